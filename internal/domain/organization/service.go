package organization

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Invalidator drops cached copies of a profile after it changes.
type Invalidator interface {
	Invalidate(ctx context.Context, org *Organization)
}

type Service struct {
	repo   Repository
	reads  Directory
	cache  Invalidator
	logger zerolog.Logger
}

// NewService reads through reads when it is non-nil (typically a
// CachedDirectory) and writes through repo.
func NewService(repo Repository, reads Directory, cache Invalidator, logger zerolog.Logger) *Service {
	if reads == nil {
		reads = repo
	}
	return &Service{
		repo:   repo,
		reads:  reads,
		cache:  cache,
		logger: logger.With().Str("component", "organization").Logger(),
	}
}

// Create registers the profile for org.UserID. Each account owns at most one.
func (s *Service) Create(ctx context.Context, org *Organization) error {
	org.ApplyDefaults()
	org.IsActive = true
	org.IsVerified = false
	if err := org.Validate(); err != nil {
		return err
	}

	if _, err := s.repo.GetByOwner(ctx, org.UserID); err == nil {
		return ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("check existing profile: %w", err)
	}

	if err := s.repo.Create(ctx, org); err != nil {
		return err
	}
	s.logger.Info().
		Str("organization_id", org.ID.String()).
		Str("owner", org.UserID).
		Int("departments", len(org.Departments)).
		Msg("organization created")
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return s.reads.GetByID(ctx, id)
}

func (s *Service) GetByOwner(ctx context.Context, accountID string) (*Organization, error) {
	return s.reads.GetByOwner(ctx, accountID)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Organization, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// UpdateProfile replaces the editable fields of the profile owned by
// accountID. Owner, verification flag and timestamps are kept.
func (s *Service) UpdateProfile(ctx context.Context, accountID string, in *Organization) (*Organization, error) {
	current, err := s.repo.GetByOwner(ctx, accountID)
	if err != nil {
		return nil, err
	}

	in.ID = current.ID
	in.UserID = current.UserID
	in.IsVerified = current.IsVerified
	in.IsActive = current.IsActive
	in.CreatedAt = current.CreatedAt
	in.ApplyDefaults()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, in); err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, in)
	}
	return s.repo.GetByID(ctx, in.ID)
}
