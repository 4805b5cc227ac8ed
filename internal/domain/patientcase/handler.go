package patientcase

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/onconova/onconova/internal/domain/history"
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
	cases := api.Group("/patient-cases")
	cases.GET("", h.ListCases, auth.RequireCapability(auth.CapViewCases))
	cases.GET("/:id", h.GetCase, auth.RequireCapability(auth.CapViewCases))
	cases.POST("", h.CreateCase, auth.RequireCapability(auth.CapManageCases))
	cases.PUT("/:id", h.UpdateCase, auth.RequireCapability(auth.CapManageCases))
	cases.DELETE("/:id", h.DeleteCase, auth.RequireCapability(auth.CapManageCases))
	events.MountEntityRoutes(cases)

	entities := api.Group("/neoplastic-entities")
	entities.GET("", h.ListEntities, auth.RequireCapability(auth.CapViewCases))
	entities.GET("/:id", h.GetEntity, auth.RequireCapability(auth.CapViewCases))
	entities.POST("", h.CreateEntity, auth.RequireCapability(auth.CapManageCases))
	entities.PUT("/:id", h.UpdateEntity, auth.RequireCapability(auth.CapManageCases))
	entities.DELETE("/:id", h.DeleteEntity, auth.RequireCapability(auth.CapManageCases))
	events.MountEntityRoutes(entities)
}

func writeError(err error, notFound string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, notFound)
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func (h *Handler) ListCases(c echo.Context) error {
	p := pagination.FromContext(c)
	if !p.Anonymized {
		if err := auth.RequireDeanonymized(c.Request().Context()); err != nil {
			return err
		}
	}
	filters := CaseFilters{
		Pseudoidentifier: c.QueryParam("pseudoidentifier"),
		ClinicalCenter:   c.QueryParam("clinicalCenter"),
		VitalStatus:      c.QueryParam("vitalStatus"),
	}
	cases, total, err := h.svc.ListCases(c.Request().Context(), filters, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(cases, total))
}

func (h *Handler) GetCase(c echo.Context) error {
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
	result, err := h.svc.GetCase(c.Request().Context(), id, p.Anonymized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "case not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) CreateCase(c echo.Context) error {
	var payload Case
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = uuid.Nil
	if err := h.svc.CreateCase(c.Request().Context(), &payload); err != nil {
		return writeError(err, "case not found")
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *Handler) UpdateCase(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var payload Case
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = id
	if err := h.svc.UpdateCase(c.Request().Context(), &payload); err != nil {
		return writeError(err, "case not found")
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) DeleteCase(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteCase(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "case not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListEntities(c echo.Context) error {
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
	entities, total, err := h.svc.ListEntities(c.Request().Context(), caseID, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entities, total))
}

func (h *Handler) GetEntity(c echo.Context) error {
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
	entity, err := h.svc.GetEntity(c.Request().Context(), id, p.Anonymized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "entity not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, entity)
}

func (h *Handler) CreateEntity(c echo.Context) error {
	var payload NeoplasticEntity
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = uuid.Nil
	if err := h.svc.CreateEntity(c.Request().Context(), &payload); err != nil {
		return writeError(err, "case not found")
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *Handler) UpdateEntity(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var payload NeoplasticEntity
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = id
	if err := h.svc.UpdateEntity(c.Request().Context(), &payload); err != nil {
		return writeError(err, "entity not found")
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) DeleteEntity(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteEntity(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "entity not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
