package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/slotbook/slotbook/internal/domain/organization"
	"github.com/slotbook/slotbook/internal/platform/auth"
)

type action string

const (
	actionView   action = "view"
	actionModify action = "modify"
	actionManage action = "manage"
)

// grant lists who may perform an action on a single appointment.
type grant struct {
	booker    bool // the account that booked it
	owningOrg bool // the account that owns its organization
}

// Admins pass every rule. Deletion is admin-only and checked by canDelete.
var rules = map[action]grant{
	actionView:   {booker: true, owningOrg: true},
	actionModify: {booker: true, owningOrg: true},
	actionManage: {owningOrg: true},
}

type authorizer struct {
	dir organization.Directory
}

// ownedOrganization returns the id of the organization the actor owns, or
// uuid.Nil.
func (z authorizer) ownedOrganization(ctx context.Context, actor *auth.Actor) (uuid.UUID, error) {
	if !actor.IsOrganization() {
		return uuid.Nil, nil
	}
	org, err := z.dir.GetByOwner(ctx, actor.ID)
	if errors.Is(err, organization.ErrNotFound) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolve owned organization: %w", err)
	}
	return org.ID, nil
}

// authorize returns ErrForbidden unless rules admit actor for act on a.
func (z authorizer) authorize(ctx context.Context, act action, actor *auth.Actor, a *Appointment) error {
	if actor == nil {
		return fmt.Errorf("%w: sign in to %s appointments", ErrForbidden, act)
	}
	if actor.IsAdmin() {
		return nil
	}
	g := rules[act]
	// guest bookings have no booker account to match
	if g.booker && a.UserID != GuestUserID && actor.ID != "" && actor.ID == a.UserID {
		return nil
	}
	if g.owningOrg {
		owned, err := z.ownedOrganization(ctx, actor)
		if err != nil {
			return err
		}
		if owned != uuid.Nil && owned == a.OrganizationID {
			return nil
		}
	}
	return fmt.Errorf("%w: you do not have permission to %s this appointment", ErrForbidden, act)
}

// authorizeOrg admits admins and the owner of orgID.
func (z authorizer) authorizeOrg(ctx context.Context, actor *auth.Actor, orgID uuid.UUID) error {
	if actor.IsAdmin() {
		return nil
	}
	owned, err := z.ownedOrganization(ctx, actor)
	if err != nil {
		return err
	}
	if owned == uuid.Nil || owned != orgID {
		return fmt.Errorf("%w: only the organization or an admin can view its appointments", ErrForbidden)
	}
	return nil
}

func canDelete(actor *auth.Actor) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: only admins can delete appointments", ErrForbidden)
	}
	return nil
}
