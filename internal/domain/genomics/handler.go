package genomics

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
	variants := api.Group("/genomic-variants")
	variants.GET("", h.ListVariants, auth.RequireCapability(auth.CapViewCases))
	variants.GET("/:id", h.GetVariant, auth.RequireCapability(auth.CapViewCases))
	variants.POST("", h.CreateVariant, auth.RequireCapability(auth.CapManageCases))
	variants.PUT("/:id", h.UpdateVariant, auth.RequireCapability(auth.CapManageCases))
	variants.DELETE("/:id", h.DeleteVariant, auth.RequireCapability(auth.CapManageCases))
	events.MountEntityRoutes(variants)

	signatures := api.Group("/genomic-signatures")
	signatures.GET("", h.ListSignatures, auth.RequireCapability(auth.CapViewCases))
	signatures.GET("/:id", h.GetSignature, auth.RequireCapability(auth.CapViewCases))
	signatures.POST("", h.CreateSignature, auth.RequireCapability(auth.CapManageCases))
	signatures.PUT("/:id", h.UpdateSignature, auth.RequireCapability(auth.CapManageCases))
	signatures.DELETE("/:id", h.DeleteSignature, auth.RequireCapability(auth.CapManageCases))
	events.MountEntityRoutes(signatures)
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

func (h *Handler) ListVariants(c echo.Context) error {
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
	variants, total, err := h.svc.ListVariants(c.Request().Context(), caseID, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(variants, total))
}

func (h *Handler) GetVariant(c echo.Context) error {
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
	v, err := h.svc.GetVariant(c.Request().Context(), id, p.Anonymized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "variant not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) CreateVariant(c echo.Context) error {
	var payload Variant
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = uuid.Nil
	if err := h.svc.CreateVariant(c.Request().Context(), &payload); err != nil {
		return writeError(err, "variant not found")
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *Handler) UpdateVariant(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var payload Variant
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = id
	if err := h.svc.UpdateVariant(c.Request().Context(), &payload); err != nil {
		return writeError(err, "variant not found")
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) DeleteVariant(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteVariant(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "variant not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListSignatures(c echo.Context) error {
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
	signatures, total, err := h.svc.ListSignatures(c.Request().Context(), caseID, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(signatures, total))
}

func (h *Handler) GetSignature(c echo.Context) error {
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
	sig, err := h.svc.GetSignature(c.Request().Context(), id, p.Anonymized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "signature not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sig)
}

func (h *Handler) CreateSignature(c echo.Context) error {
	var payload Signature
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = uuid.Nil
	if err := h.svc.CreateSignature(c.Request().Context(), &payload); err != nil {
		return writeError(err, "signature not found")
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *Handler) UpdateSignature(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var payload Signature
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = id
	if err := h.svc.UpdateSignature(c.Request().Context(), &payload); err != nil {
		return writeError(err, "signature not found")
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) DeleteSignature(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteSignature(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "signature not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
