package appointment

import (
	"context"

	"github.com/google/uuid"
)

// Store persists appointments. The one-active-booking rule is enforced by
// the store itself; Create and Update return ErrConflict when a write would
// break it.
type Store interface {
	// Create assigns id and timestamps.
	Create(ctx context.Context, a *Appointment) error
	// GetByID returns (nil, nil) for a malformed or unknown id.
	GetByID(ctx context.Context, id string) (*Appointment, error)
	// ListByUser and ListByOrganization sort by date then start time, newest first.
	ListByUser(ctx context.Context, userID string) ([]*Appointment, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID, f OrgFilter) ([]*Appointment, error)
	// Update writes every mutable field and returns the stored row, or nil
	// when the row no longer exists.
	Update(ctx context.Context, a *Appointment) (*Appointment, error)
	// Delete reports whether a row was removed. A malformed id removes nothing.
	Delete(ctx context.Context, id string) (bool, error)
	// FindActiveInSlot returns the first blocking appointment in the slot
	// other than excludeID, or nil.
	FindActiveInSlot(ctx context.Context, key SlotKey, excludeID uuid.UUID) (*Appointment, error)
	// CountActiveInSlot counts blocking appointments across every department
	// of the organization for days in [dayStart, dayEnd].
	CountActiveInSlot(ctx context.Context, orgID uuid.UUID, dayStart, dayEnd Date, startTime, endTime string) (int, error)
	// Search returns one page of matches and the total match count.
	Search(ctx context.Context, q Query) ([]*Appointment, int, error)
}
