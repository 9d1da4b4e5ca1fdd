package appointment

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/slotbook/slotbook/internal/platform/auth"
	"github.com/slotbook/slotbook/pkg/pagination"
)

type Handler struct {
	life *Lifecycle
}

func NewHandler(life *Lifecycle) *Handler {
	return &Handler{life: life}
}

// RegisterRoutes mounts the appointment API. Booking and availability are
// open to guests; everything else needs an actor.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/appointments")
	g.GET("/availability", h.CheckAvailability)
	g.POST("", h.Create)

	authed := g.Group("", auth.RequireAuth())
	authed.GET("/user", h.ListMine)
	authed.GET("/organization/:organizationId", h.ListForOrganization)
	authed.GET("/date-range", h.ListByDateRange)
	authed.GET("/:id", h.Get)
	authed.PUT("/:id", h.Update)
	authed.PATCH("/:id/cancel", h.Cancel)
	authed.PATCH("/:id/complete", h.Complete)
	authed.PATCH("/:id/confirm", h.Confirm)
	authed.PATCH("/:id/no-show", h.MarkNoShow)

	admin := g.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("", h.FindAll)
	admin.DELETE("/:id", h.Delete)
}

type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type pageInfo struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func ok(c echo.Context, code int, msg string, data interface{}) error {
	return c.JSON(code, envelope{Success: true, Message: msg, Data: data})
}

func (h *Handler) CheckAvailability(c echo.Context) error {
	date, err := queryDate(c, "date")
	if err != nil {
		return err
	}
	res, err := h.life.Availability().Check(c.Request().Context(),
		c.QueryParam("organizationId"), date,
		c.QueryParam("startTime"), c.QueryParam("endTime"),
		c.QueryParam("departmentId"))
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, "Availability checked successfully", res)
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.life.Create(c.Request().Context(), in, actor(c))
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusCreated, "Appointment created successfully", a)
}

func (h *Handler) ListMine(c echo.Context) error {
	list, err := h.life.ListForUser(c.Request().Context(), actor(c))
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, "User appointments fetched successfully", nonNil(list))
}

func (h *Handler) ListForOrganization(c echo.Context) error {
	var f OrgFilter
	f.Status = Status(c.QueryParam("status"))
	f.DepartmentID = c.QueryParam("departmentId")
	var err error
	if f.StartDate, err = optionalQueryDate(c, "startDate"); err != nil {
		return err
	}
	if f.EndDate, err = optionalQueryDate(c, "endDate"); err != nil {
		return err
	}
	list, err := h.life.ListForOrganization(c.Request().Context(), c.Param("organizationId"), f, actor(c))
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, "Organization appointments fetched successfully", nonNil(list))
}

func (h *Handler) ListByDateRange(c echo.Context) error {
	start, err := queryDate(c, "startDate")
	if err != nil {
		return err
	}
	end, err := queryDate(c, "endDate")
	if err != nil {
		return err
	}
	list, err := h.life.ListByDateRange(c.Request().Context(), c.QueryParam("organizationId"), start, end, actor(c))
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, "Appointments fetched successfully", nonNil(list))
}

func (h *Handler) Get(c echo.Context) error {
	a, err := h.life.Get(c.Request().Context(), c.Param("id"), actor(c))
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, "Appointment fetched successfully", a)
}

func (h *Handler) Update(c echo.Context) error {
	var p Patch
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.life.Update(c.Request().Context(), c.Param("id"), p, actor(c))
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, "Appointment updated successfully", a)
}

func (h *Handler) Cancel(c echo.Context) error {
	a, err := h.life.Cancel(c.Request().Context(), c.Param("id"), actor(c))
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, "Appointment cancelled successfully", a)
}

func (h *Handler) Complete(c echo.Context) error {
	a, err := h.life.Complete(c.Request().Context(), c.Param("id"), actor(c))
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, "Appointment marked as completed", a)
}

func (h *Handler) Confirm(c echo.Context) error {
	a, err := h.life.Confirm(c.Request().Context(), c.Param("id"), actor(c))
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, "Appointment confirmed", a)
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	a, err := h.life.MarkNoShow(c.Request().Context(), c.Param("id"), actor(c))
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, "Appointment marked as no-show", a)
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.life.Delete(c.Request().Context(), c.Param("id"), actor(c)); err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, "Appointment deleted successfully", nil)
}

// FindAll answers the admin listing with a pagination block beside data.
func (h *Handler) FindAll(c echo.Context) error {
	pg := pagination.FromContext(c)
	q := Query{
		Page:           pg.Page,
		Limit:          pg.Limit,
		Search:         c.QueryParam("search"),
		Status:         Status(c.QueryParam("status")),
		OrganizationID: c.QueryParam("organizationId"),
		UserID:         c.QueryParam("userId"),
	}
	var err error
	if q.StartDate, err = optionalQueryDate(c, "startDate"); err != nil {
		return err
	}
	if q.EndDate, err = optionalQueryDate(c, "endDate"); err != nil {
		return err
	}

	res, err := h.life.FindAll(c.Request().Context(), q, actor(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, struct {
		envelope
		Pagination pageInfo `json:"pagination"`
	}{
		envelope:   envelope{Success: true, Message: "Appointments fetched successfully", Data: res.Appointments},
		Pagination: pageInfo{Page: res.Page, Limit: res.Limit, Total: res.Total, TotalPages: res.TotalPages},
	})
}

func actor(c echo.Context) *auth.Actor {
	return auth.ActorFromContext(c.Request().Context())
}

func nonNil(list []*Appointment) []*Appointment {
	if list == nil {
		return []*Appointment{}
	}
	return list
}

func queryDate(c echo.Context, name string) (Date, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return Date{}, echo.NewHTTPError(http.StatusBadRequest, name+" is required")
	}
	d, err := ParseDate(raw)
	if err != nil {
		return Date{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return d, nil
}

func optionalQueryDate(c echo.Context, name string) (*Date, error) {
	if c.QueryParam(name) == "" {
		return nil, nil
	}
	d, err := queryDate(c, name)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidState):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}
