package therapy

import (
	"errors"
	"net/http"
	"time"

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
	therapies := api.Group("/systemic-therapies")
	therapies.GET("", h.ListSystemicTherapies, auth.RequireCapability(auth.CapViewCases))
	therapies.GET("/:id", h.GetSystemicTherapy, auth.RequireCapability(auth.CapViewCases))
	therapies.POST("", h.CreateSystemicTherapy, auth.RequireCapability(auth.CapManageCases))
	therapies.PUT("/:id", h.UpdateSystemicTherapy, auth.RequireCapability(auth.CapManageCases))
	therapies.DELETE("/:id", h.DeleteSystemicTherapy, auth.RequireCapability(auth.CapManageCases))
	events.MountEntityRoutes(therapies)

	surgeries := api.Group("/surgeries")
	surgeries.GET("", h.ListSurgeries, auth.RequireCapability(auth.CapViewCases))
	surgeries.GET("/:id", h.GetSurgery, auth.RequireCapability(auth.CapViewCases))
	surgeries.POST("", h.CreateSurgery, auth.RequireCapability(auth.CapManageCases))
	surgeries.PUT("/:id", h.UpdateSurgery, auth.RequireCapability(auth.CapManageCases))
	surgeries.DELETE("/:id", h.DeleteSurgery, auth.RequireCapability(auth.CapManageCases))
	events.MountEntityRoutes(surgeries)

	radiotherapies := api.Group("/radiotherapies")
	radiotherapies.GET("", h.ListRadiotherapies, auth.RequireCapability(auth.CapViewCases))
	radiotherapies.GET("/:id", h.GetRadiotherapy, auth.RequireCapability(auth.CapViewCases))
	radiotherapies.POST("", h.CreateRadiotherapy, auth.RequireCapability(auth.CapManageCases))
	radiotherapies.PUT("/:id", h.UpdateRadiotherapy, auth.RequireCapability(auth.CapManageCases))
	radiotherapies.DELETE("/:id", h.DeleteRadiotherapy, auth.RequireCapability(auth.CapManageCases))
	events.MountEntityRoutes(radiotherapies)

	responses := api.Group("/treatment-responses")
	responses.GET("", h.ListResponses, auth.RequireCapability(auth.CapViewCases))
	responses.GET("/:id", h.GetResponse, auth.RequireCapability(auth.CapViewCases))
	responses.POST("", h.CreateResponse, auth.RequireCapability(auth.CapManageCases))
	responses.PUT("/:id", h.UpdateResponse, auth.RequireCapability(auth.CapManageCases))
	responses.DELETE("/:id", h.DeleteResponse, auth.RequireCapability(auth.CapManageCases))
	events.MountEntityRoutes(responses)

	lines := api.Group("/therapy-lines")
	lines.GET("", h.ListLines, auth.RequireCapability(auth.CapViewCases))
	lines.GET("/:id", h.GetLine, auth.RequireCapability(auth.CapViewCases))
	lines.GET("/:id/re-assignments", h.PreviewLines, auth.RequireCapability(auth.CapViewCases))
}

func (h *Handler) caseParam(c echo.Context) (uuid.UUID, pagination.Params, error) {
	caseID, err := uuid.Parse(c.QueryParam("caseId"))
	if err != nil {
		return uuid.Nil, pagination.Params{}, echo.NewHTTPError(http.StatusBadRequest, "caseId is required")
	}
	p := pagination.FromContext(c)
	if !p.Anonymized {
		if err := auth.RequireDeanonymized(c.Request().Context()); err != nil {
			return uuid.Nil, pagination.Params{}, err
		}
	}
	return caseID, p, nil
}

func (h *Handler) idParam(c echo.Context) (uuid.UUID, pagination.Params, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, pagination.Params{}, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p := pagination.FromContext(c)
	if !p.Anonymized {
		if err := auth.RequireDeanonymized(c.Request().Context()); err != nil {
			return uuid.Nil, pagination.Params{}, err
		}
	}
	return id, p, nil
}

func writeError(err error, notFound string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, notFound)
	case errors.Is(err, patientcase.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "case not found")
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

// -- Systemic therapies --

func (h *Handler) ListSystemicTherapies(c echo.Context) error {
	caseID, p, err := h.caseParam(c)
	if err != nil {
		return err
	}
	therapies, total, err := h.svc.ListSystemicTherapies(c.Request().Context(), caseID, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(therapies, total))
}

func (h *Handler) GetSystemicTherapy(c echo.Context) error {
	id, p, err := h.idParam(c)
	if err != nil {
		return err
	}
	t, err := h.svc.GetSystemicTherapy(c.Request().Context(), id, p.Anonymized)
	if err != nil {
		return writeError(err, "therapy not found")
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) CreateSystemicTherapy(c echo.Context) error {
	var payload SystemicTherapy
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = uuid.Nil
	if err := h.svc.CreateSystemicTherapy(c.Request().Context(), &payload); err != nil {
		return writeError(err, "therapy not found")
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *Handler) UpdateSystemicTherapy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var payload SystemicTherapy
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = id
	if err := h.svc.UpdateSystemicTherapy(c.Request().Context(), &payload); err != nil {
		return writeError(err, "therapy not found")
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) DeleteSystemicTherapy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteSystemicTherapy(c.Request().Context(), id); err != nil {
		return writeError(err, "therapy not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Surgeries --

func (h *Handler) ListSurgeries(c echo.Context) error {
	caseID, p, err := h.caseParam(c)
	if err != nil {
		return err
	}
	surgeries, total, err := h.svc.ListSurgeries(c.Request().Context(), caseID, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(surgeries, total))
}

func (h *Handler) GetSurgery(c echo.Context) error {
	id, p, err := h.idParam(c)
	if err != nil {
		return err
	}
	sg, err := h.svc.GetSurgery(c.Request().Context(), id, p.Anonymized)
	if err != nil {
		return writeError(err, "surgery not found")
	}
	return c.JSON(http.StatusOK, sg)
}

func (h *Handler) CreateSurgery(c echo.Context) error {
	var payload Surgery
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = uuid.Nil
	if err := h.svc.CreateSurgery(c.Request().Context(), &payload); err != nil {
		return writeError(err, "surgery not found")
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *Handler) UpdateSurgery(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var payload Surgery
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = id
	if err := h.svc.UpdateSurgery(c.Request().Context(), &payload); err != nil {
		return writeError(err, "surgery not found")
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) DeleteSurgery(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteSurgery(c.Request().Context(), id); err != nil {
		return writeError(err, "surgery not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Radiotherapies --

func (h *Handler) ListRadiotherapies(c echo.Context) error {
	caseID, p, err := h.caseParam(c)
	if err != nil {
		return err
	}
	radiotherapies, total, err := h.svc.ListRadiotherapies(c.Request().Context(), caseID, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(radiotherapies, total))
}

func (h *Handler) GetRadiotherapy(c echo.Context) error {
	id, p, err := h.idParam(c)
	if err != nil {
		return err
	}
	rt, err := h.svc.GetRadiotherapy(c.Request().Context(), id, p.Anonymized)
	if err != nil {
		return writeError(err, "radiotherapy not found")
	}
	return c.JSON(http.StatusOK, rt)
}

func (h *Handler) CreateRadiotherapy(c echo.Context) error {
	var payload Radiotherapy
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = uuid.Nil
	if err := h.svc.CreateRadiotherapy(c.Request().Context(), &payload); err != nil {
		return writeError(err, "radiotherapy not found")
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *Handler) UpdateRadiotherapy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var payload Radiotherapy
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = id
	if err := h.svc.UpdateRadiotherapy(c.Request().Context(), &payload); err != nil {
		return writeError(err, "radiotherapy not found")
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) DeleteRadiotherapy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteRadiotherapy(c.Request().Context(), id); err != nil {
		return writeError(err, "radiotherapy not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Treatment responses --

func (h *Handler) ListResponses(c echo.Context) error {
	caseID, p, err := h.caseParam(c)
	if err != nil {
		return err
	}
	responses, total, err := h.svc.ListResponses(c.Request().Context(), caseID, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(responses, total))
}

func (h *Handler) GetResponse(c echo.Context) error {
	id, p, err := h.idParam(c)
	if err != nil {
		return err
	}
	tr, err := h.svc.GetResponse(c.Request().Context(), id, p.Anonymized)
	if err != nil {
		return writeError(err, "response not found")
	}
	return c.JSON(http.StatusOK, tr)
}

func (h *Handler) CreateResponse(c echo.Context) error {
	var payload TreatmentResponse
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = uuid.Nil
	if err := h.svc.CreateResponse(c.Request().Context(), &payload); err != nil {
		return writeError(err, "response not found")
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *Handler) UpdateResponse(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var payload TreatmentResponse
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = id
	if err := h.svc.UpdateResponse(c.Request().Context(), &payload); err != nil {
		return writeError(err, "response not found")
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) DeleteResponse(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteResponse(c.Request().Context(), id); err != nil {
		return writeError(err, "response not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Therapy lines --

func (h *Handler) ListLines(c echo.Context) error {
	caseID, p, err := h.caseParam(c)
	if err != nil {
		return err
	}
	lines, total, err := h.svc.ListLines(c.Request().Context(), caseID, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(lines, total))
}

func (h *Handler) GetLine(c echo.Context) error {
	id, p, err := h.idParam(c)
	if err != nil {
		return err
	}
	line, err := h.svc.GetLine(c.Request().Context(), id, p.Anonymized)
	if err != nil {
		return writeError(err, "therapy line not found")
	}
	return c.JSON(http.StatusOK, line)
}

// PreviewLines returns the dry-run reassignment for a case without
// persisting it.
func (h *Handler) PreviewLines(c echo.Context) error {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	inferred, err := h.svc.PreviewLines(c.Request().Context(), caseID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	type previewLine struct {
		Label       string       `json:"label"`
		Intent      Intent       `json:"intent"`
		Ordinal     int          `json:"ordinal"`
		PeriodStart *time.Time   `json:"periodStart,omitempty"`
		PeriodEnd   *time.Time   `json:"periodEnd,omitempty"`
		SystemicTherapyIDs []uuid.UUID `json:"systemicTherapyIds"`
		SurgeryIDs         []uuid.UUID `json:"surgeryIds"`
		RadiotherapyIDs    []uuid.UUID `json:"radiotherapyIds"`
		ProgressionFreeSurvival *float64 `json:"progressionFreeSurvival,omitempty"`
		TherapyClassification   string   `json:"therapyClassification,omitempty"`
	}
	out := make([]previewLine, 0, len(inferred))
	for _, l := range inferred {
		out = append(out, previewLine{
			Label:       l.Label,
			Intent:      l.Intent,
			Ordinal:     l.Ordinal,
			PeriodStart: l.PeriodStart,
			PeriodEnd:   l.PeriodEnd,
			SystemicTherapyIDs: l.SystemicTherapyIDs,
			SurgeryIDs:         l.SurgeryIDs,
			RadiotherapyIDs:    l.RadiotherapyIDs,
			ProgressionFreeSurvival: l.ProgressionFreeSurvival,
			TherapyClassification:   l.TherapyClassification,
		})
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(out, len(out)))
}
