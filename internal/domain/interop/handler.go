package interop

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/onconova/onconova/internal/domain/patientcase"
	"github.com/onconova/onconova/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	bundles := api.Group("/interoperability/bundles")
	bundles.GET("/:caseId", h.Export, auth.RequireCapability(auth.CapExportData))
	bundles.POST("", h.Import, auth.RequireCapability(auth.CapManageCases))
}

func (h *Handler) Export(c echo.Context) error {
	caseID, err := uuid.Parse(c.Param("caseId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	bundle, err := h.svc.ExportBundle(c.Request().Context(), caseID)
	if err != nil {
		if errors.Is(err, patientcase.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, bundle)
}

func (h *Handler) Import(c echo.Context) error {
	var bundle Bundle
	if err := c.Bind(&bundle); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid bundle payload")
	}
	created, err := h.svc.ImportBundle(c.Request().Context(), &bundle, c.QueryParam("conflict"))
	if err != nil {
		switch {
		case errors.Is(err, ErrConflict):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, ErrInvalidBundle):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, created)
}
