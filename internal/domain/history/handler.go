package history

import (
	"errors"
	"net/http"
	"strconv"

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

// RegisterRoutes mounts the global audit stream.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	audit := api.Group("", auth.RequireCapability(auth.CapAuditLogs))
	audit.GET("/history/events", h.ListEvents)
}

// MountEntityRoutes attaches the per-entity history endpoints under an
// entity collection group, e.g. /patient-cases/:id/history/events.
func (h *Handler) MountEntityRoutes(g *echo.Group) {
	g.GET("/:id/history/events", h.ListEntityEvents, auth.RequireCapability(auth.CapViewCases))
	g.GET("/:id/history/events/:eventId", h.GetEntityEvent, auth.RequireCapability(auth.CapViewCases))
	g.PUT("/:id/history/events/:eventId/reversion", h.RevertToEvent, auth.RequireCapability(auth.CapManageCases))
}

func (h *Handler) ListEvents(c echo.Context) error {
	p := pagination.FromContext(c)
	events, total, err := h.svc.List(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(events, total))
}

func (h *Handler) ListEntityEvents(c echo.Context) error {
	entityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p := pagination.FromContext(c)
	events, total, err := h.svc.ListByEntity(c.Request().Context(), entityID, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(events, total))
}

func (h *Handler) GetEntityEvent(c echo.Context) error {
	entityID, eventID, err := parseEventParams(c)
	if err != nil {
		return err
	}
	event, err := h.svc.GetForEntity(c.Request().Context(), entityID, eventID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "event not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, event)
}

func (h *Handler) RevertToEvent(c echo.Context) error {
	entityID, eventID, err := parseEventParams(c)
	if err != nil {
		return err
	}
	result, err := h.svc.Revert(c.Request().Context(), entityID, eventID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "event not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, result)
}

func parseEventParams(c echo.Context) (uuid.UUID, int64, error) {
	entityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	eventID, err := strconv.ParseInt(c.Param("eventId"), 10, 64)
	if err != nil {
		return uuid.Nil, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid event id")
	}
	return entityID, eventID, nil
}
