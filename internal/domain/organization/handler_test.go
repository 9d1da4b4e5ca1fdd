package organization

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/slotbook/slotbook/internal/platform/auth"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _, _ := newTestService()
	return NewHandler(svc), echo.New()
}

func requestAs(e *echo.Echo, method, target, body string, actor *auth.Actor) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if actor != nil {
		req = req.WithContext(auth.WithActor(req.Context(), actor))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

const createBody = `{
	"organizationName": "Green Life Hospital",
	"organizationType": "hospital",
	"street": "32 Bir Uttam Road",
	"city": "Dhaka",
	"departments": [{"name": "Cardiology"}]
}`

func TestHandler_Create(t *testing.T) {
	h, e := newTestHandler()
	c, rec := requestAs(e, http.MethodPost, "/", createBody, &auth.Actor{ID: "acct-1", Role: auth.RoleOrganization})

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp struct {
		Success bool         `json:"success"`
		Data    Organization `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Data.UserID != "acct-1" || len(resp.Data.TimeSlots) != 14 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandler_Create_Duplicate(t *testing.T) {
	h, e := newTestHandler()
	actor := &auth.Actor{ID: "acct-1", Role: auth.RoleOrganization}
	c, _ := requestAs(e, http.MethodPost, "/", createBody, actor)
	_ = h.Create(c)

	c, _ = requestAs(e, http.MethodPost, "/", createBody, actor)
	err := h.Create(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}

func TestHandler_Create_Invalid(t *testing.T) {
	h, e := newTestHandler()
	c, _ := requestAs(e, http.MethodPost, "/", `{"organizationName":"x"}`, &auth.Actor{ID: "acct-1", Role: auth.RoleOrganization})
	err := h.Create(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_Get(t *testing.T) {
	h, e := newTestHandler()
	org := newInput("acct-1")
	_ = h.svc.Create(context.Background(), org)

	c, rec := requestAs(e, http.MethodGet, "/", "", nil)
	c.SetParamNames("id")
	c.SetParamValues(org.ID.String())
	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_Get_BadID(t *testing.T) {
	h, e := newTestHandler()
	c, _ := requestAs(e, http.MethodGet, "/", "", nil)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	err := h.Get(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_GetMine_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c, _ := requestAs(e, http.MethodGet, "/", "", &auth.Actor{ID: "acct-9", Role: auth.RoleOrganization})
	err := h.GetMine(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_UpdateMine(t *testing.T) {
	h, e := newTestHandler()
	_ = h.svc.Create(context.Background(), newInput("acct-1"))

	body := strings.Replace(createBody, "Green Life Hospital", "Green Life Medical", 1)
	c, rec := requestAs(e, http.MethodPut, "/", body, &auth.Actor{ID: "acct-1", Role: auth.RoleOrganization})
	if err := h.UpdateMine(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "Green Life Medical") {
		t.Errorf("expected updated name in body: %s", rec.Body.String())
	}
}

func TestHandler_List(t *testing.T) {
	h, e := newTestHandler()
	_ = h.svc.Create(context.Background(), newInput("acct-1"))
	_ = h.svc.Create(context.Background(), newInput("acct-2"))

	c, rec := requestAs(e, http.MethodGet, "/?limit=1", "", nil)
	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total       int  `json:"total"`
		TotalPages  int  `json:"totalPages"`
		HasNext     bool `json:"hasNext"`
		HasPrevious bool `json:"hasPrevious"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 2 || resp.TotalPages != 2 || !resp.HasNext || resp.HasPrevious {
		t.Errorf("unexpected pagination: %+v", resp)
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api/v1"))

	want := map[string]bool{
		"GET /api/v1/organizations":     false,
		"GET /api/v1/organizations/:id": false,
		"GET /api/v1/organizations/me":  false,
		"POST /api/v1/organizations":    false,
		"PUT /api/v1/organizations/me":  false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for k, found := range want {
		if !found {
			t.Errorf("route %s not registered", k)
		}
	}
}
