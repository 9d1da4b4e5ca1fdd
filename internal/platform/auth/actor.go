package auth

import (
	"context"
	"strings"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleUser         Role = "user"
	RoleOrganization Role = "organization"
	RoleAdmin        Role = "admin"
)

// ParseRole accepts the canonical lowercase role names.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleOrganization, RoleAdmin:
		return r, true
	}
	return "", false
}

// Actor is the authenticated caller. A nil *Actor is a guest.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

func (a *Actor) IsOrganization() bool {
	return a != nil && a.Role == RoleOrganization
}

type contextKey string

const actorKey contextKey = "actor"

func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext returns the caller, or nil for unauthenticated requests.
func ActorFromContext(ctx context.Context) *Actor {
	a, _ := ctx.Value(actorKey).(*Actor)
	return a
}
