package tumorboard

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
	boards := api.Group("/tumor-boards")
	boards.GET("", h.ListTumorBoards, auth.RequireCapability(auth.CapViewCases))
	boards.GET("/:id", h.GetTumorBoard, auth.RequireCapability(auth.CapViewCases))
	boards.POST("", h.CreateTumorBoard, auth.RequireCapability(auth.CapManageCases))
	boards.PUT("/:id", h.UpdateTumorBoard, auth.RequireCapability(auth.CapManageCases))
	boards.DELETE("/:id", h.DeleteTumorBoard, auth.RequireCapability(auth.CapManageCases))
	events.MountEntityRoutes(boards)
}

func writeError(err error, notFound string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, notFound)
	case errors.Is(err, patientcase.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "case not found")
	case errors.Is(err, ErrCategoryMismatch):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func (h *Handler) ListTumorBoards(c echo.Context) error {
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
	boards, total, err := h.svc.ListTumorBoards(c.Request().Context(), caseID, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(boards, total))
}

func (h *Handler) GetTumorBoard(c echo.Context) error {
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
	b, err := h.svc.GetTumorBoard(c.Request().Context(), id, p.Anonymized)
	if err != nil {
		return writeError(err, "tumor board not found")
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) CreateTumorBoard(c echo.Context) error {
	var payload TumorBoard
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = uuid.Nil
	if err := h.svc.CreateTumorBoard(c.Request().Context(), &payload); err != nil {
		return writeError(err, "tumor board not found")
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *Handler) UpdateTumorBoard(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var payload TumorBoard
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = id
	if err := h.svc.UpdateTumorBoard(c.Request().Context(), &payload); err != nil {
		return writeError(err, "tumor board not found")
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) DeleteTumorBoard(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteTumorBoard(c.Request().Context(), id); err != nil {
		return writeError(err, "tumor board not found")
	}
	return c.NoContent(http.StatusNoContent)
}
