package organization

import (
	"context"

	"github.com/google/uuid"
)

// Directory is the read side consulted by the scheduling engine.
type Directory interface {
	// GetByID returns ErrNotFound when no profile has the id.
	GetByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	// GetByOwner returns the profile owned by an account, or ErrNotFound.
	GetByOwner(ctx context.Context, accountID string) (*Organization, error)
}

type Repository interface {
	Directory
	Create(ctx context.Context, org *Organization) error
	Update(ctx context.Context, org *Organization) error
	List(ctx context.Context, limit, offset int) ([]*Organization, int, error)
}
