package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithActor(a *Actor) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if a != nil {
		req = req.WithContext(WithActor(context.Background(), a))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"user", RoleUser, true},
		{"Organization", RoleOrganization, true},
		{" admin ", RoleAdmin, true},
		{"owner", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRole(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRequireAuth(t *testing.T) {
	c, _ := contextWithActor(nil)
	expectStatus(t, RequireAuth()(okHandler)(c), http.StatusUnauthorized)

	c, rec := contextWithActor(&Actor{ID: "u1", Role: RoleUser})
	if err := RequireAuth()(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Allowed(t *testing.T) {
	c, _ := contextWithActor(&Actor{ID: "o1", Role: RoleOrganization})
	if err := RequireRole(RoleOrganization)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	c, _ := contextWithActor(&Actor{ID: "a1", Role: RoleAdmin})
	if err := RequireRole(RoleOrganization)(okHandler)(c); err != nil {
		t.Fatalf("admin should pass any role gate: %v", err)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	c, _ := contextWithActor(&Actor{ID: "u1", Role: RoleUser})
	expectStatus(t, RequireRole(RoleAdmin)(okHandler)(c), http.StatusForbidden)
}

func TestRequireRole_Guest(t *testing.T) {
	c, _ := contextWithActor(nil)
	expectStatus(t, RequireRole(RoleUser)(okHandler)(c), http.StatusUnauthorized)
}

func TestActorFromContext_Nil(t *testing.T) {
	if a := ActorFromContext(context.Background()); a != nil {
		t.Errorf("expected nil actor, got %+v", a)
	}
	var a *Actor
	if a.IsAdmin() || a.IsOrganization() {
		t.Error("nil actor must not report any role")
	}
}
