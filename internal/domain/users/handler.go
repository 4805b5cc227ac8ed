package users

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/onconova/onconova/internal/platform/auth"
	"github.com/onconova/onconova/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	users := api.Group("/users")
	users.GET("", h.ListUsers, auth.RequireCapability(auth.CapViewUsers))
	users.GET("/:id", h.GetUser, auth.RequireCapability(auth.CapViewUsers))
	users.PUT("/:id/access-level", h.SetAccessLevel, auth.RequireCapability(auth.CapManageUsers))
}

func (h *Handler) ListUsers(c echo.Context) error {
	p := pagination.FromContext(c)
	filters := UserFilters{Username: c.QueryParam("username")}
	switch c.QueryParam("external") {
	case "true":
		external := true
		filters.External = &external
	case "false":
		external := false
		filters.External = &external
	}
	users, total, err := h.svc.ListUsers(c.Request().Context(), filters, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total))
}

func (h *Handler) GetUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	user, err := h.svc.GetUser(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, user)
}

func (h *Handler) SetAccessLevel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var payload struct {
		AccessLevel int `json:"accessLevel"`
	}
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	user, err := h.svc.SetAccessLevel(c.Request().Context(), id, payload.AccessLevel)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, user)
}
