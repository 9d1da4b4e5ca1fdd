package organization

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/slotbook/slotbook/internal/platform/auth"
	"github.com/slotbook/slotbook/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/organizations", h.List)

	owner := api.Group("/organizations", auth.RequireRole(auth.RoleOrganization))
	owner.GET("/me", h.GetMine)
	owner.POST("", h.Create)
	owner.PUT("/me", h.UpdateMine)

	api.GET("/organizations/:id", h.Get)
}

type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func (h *Handler) Create(c echo.Context) error {
	var org Organization
	if err := c.Bind(&org); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	org.UserID = auth.ActorFromContext(c.Request().Context()).ID

	if err := h.svc.Create(c.Request().Context(), &org); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, envelope{Success: true, Message: "Organization profile created", Data: &org})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid organization id")
	}
	org, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Data: org})
}

func (h *Handler) GetMine(c echo.Context) error {
	actor := auth.ActorFromContext(c.Request().Context())
	org, err := h.svc.GetByOwner(c.Request().Context(), actor.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Data: org})
}

func (h *Handler) UpdateMine(c echo.Context) error {
	var org Organization
	if err := c.Bind(&org); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actor := auth.ActorFromContext(c.Request().Context())
	updated, err := h.svc.UpdateProfile(c.Request().Context(), actor.ID, &org)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Message: "Organization profile updated", Data: updated})
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	orgs, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(orgs, total, pg))
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}
