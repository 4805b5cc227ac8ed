package staging

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/onconova/onconova/internal/domain/history"
	"github.com/onconova/onconova/internal/domain/patientcase"
	"github.com/onconova/onconova/internal/platform/auth"
	"github.com/onconova/onconova/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, events *history.Handler) {
	g := api.Group("/stagings")
	g.GET("", h.List, auth.RequireCapability(auth.CapViewCases))
	g.GET("/:id", h.Get, auth.RequireCapability(auth.CapViewCases))
	g.POST("", h.Create, auth.RequireCapability(auth.CapManageCases))
	g.PUT("/:id", h.Update, auth.RequireCapability(auth.CapManageCases))
	g.DELETE("/:id", h.Delete, auth.RequireCapability(auth.CapManageCases))
	events.MountEntityRoutes(g)
}

func writeError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "staging not found")
	case errors.Is(err, patientcase.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "case not found")
	case errors.Is(err, ErrDomainMismatch):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func (h *Handler) List(c echo.Context) error {
	caseID, err := uuid.Parse(c.QueryParam("caseId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "caseId is required")
	}
	p := pagination.FromContext(c)
	if !p.Anonymized {
		if err := auth.RequireDeanonymized(c.Request().Context()); err != nil {
			return err
		}
	}
	stagings, total, err := h.svc.ListStagings(c.Request().Context(), caseID, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(stagings, total))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p := pagination.FromContext(c)
	if !p.Anonymized {
		if err := auth.RequireDeanonymized(c.Request().Context()); err != nil {
			return err
		}
	}
	st, err := h.svc.GetStaging(c.Request().Context(), id, p.Anonymized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "staging not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) Create(c echo.Context) error {
	var payload Staging
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = uuid.Nil
	if err := h.svc.CreateStaging(c.Request().Context(), &payload); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var payload Staging
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = id
	if err := h.svc.UpdateStaging(c.Request().Context(), &payload); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteStaging(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "staging not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
