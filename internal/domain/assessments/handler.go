package assessments

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
	mount := func(path string, list, get, create, update, del echo.HandlerFunc) {
		g := api.Group(path)
		g.GET("", list, auth.RequireCapability(auth.CapViewCases))
		g.GET("/:id", get, auth.RequireCapability(auth.CapViewCases))
		g.POST("", create, auth.RequireCapability(auth.CapManageCases))
		g.PUT("/:id", update, auth.RequireCapability(auth.CapManageCases))
		g.DELETE("/:id", del, auth.RequireCapability(auth.CapManageCases))
		events.MountEntityRoutes(g)
	}
	mount("/adverse-events", h.ListAdverseEvents, h.GetAdverseEvent,
		h.CreateAdverseEvent, h.UpdateAdverseEvent, h.DeleteAdverseEvent)
	mount("/performance-status", h.ListPerformanceStatuses, h.GetPerformanceStatus,
		h.CreatePerformanceStatus, h.UpdatePerformanceStatus, h.DeletePerformanceStatus)
	mount("/lifestyles", h.ListLifestyles, h.GetLifestyle,
		h.CreateLifestyle, h.UpdateLifestyle, h.DeleteLifestyle)
	mount("/family-histories", h.ListFamilyHistories, h.GetFamilyHistory,
		h.CreateFamilyHistory, h.UpdateFamilyHistory, h.DeleteFamilyHistory)
	mount("/comorbidities", h.ListComorbidities, h.GetComorbidities,
		h.CreateComorbidities, h.UpdateComorbidities, h.DeleteComorbidities)
	mount("/vitals", h.ListVitals, h.GetVitals,
		h.CreateVitals, h.UpdateVitals, h.DeleteVitals)
	mount("/risk-assessments", h.ListRiskAssessments, h.GetRiskAssessment,
		h.CreateRiskAssessment, h.UpdateRiskAssessment, h.DeleteRiskAssessment)
	mount("/tumor-markers", h.ListTumorMarkers, h.GetTumorMarker,
		h.CreateTumorMarker, h.UpdateTumorMarker, h.DeleteTumorMarker)
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

// -- Adverse events --

func (h *Handler) ListAdverseEvents(c echo.Context) error {
	caseID, p, err := h.caseParam(c)
	if err != nil {
		return err
	}
	events, total, err := h.svc.ListAdverseEvents(c.Request().Context(), caseID, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(events, total))
}

func (h *Handler) GetAdverseEvent(c echo.Context) error {
	id, p, err := h.idParam(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAdverseEvent(c.Request().Context(), id, p.Anonymized)
	if err != nil {
		return writeError(err, "adverse event not found")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CreateAdverseEvent(c echo.Context) error {
	var payload AdverseEvent
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = uuid.Nil
	if err := h.svc.CreateAdverseEvent(c.Request().Context(), &payload); err != nil {
		return writeError(err, "adverse event not found")
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *Handler) UpdateAdverseEvent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var payload AdverseEvent
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = id
	if err := h.svc.UpdateAdverseEvent(c.Request().Context(), &payload); err != nil {
		return writeError(err, "adverse event not found")
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) DeleteAdverseEvent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteAdverseEvent(c.Request().Context(), id); err != nil {
		return writeError(err, "adverse event not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Performance status --

func (h *Handler) ListPerformanceStatuses(c echo.Context) error {
	caseID, p, err := h.caseParam(c)
	if err != nil {
		return err
	}
	statuses, total, err := h.svc.ListPerformanceStatuses(c.Request().Context(), caseID, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(statuses, total))
}

func (h *Handler) GetPerformanceStatus(c echo.Context) error {
	id, p, err := h.idParam(c)
	if err != nil {
		return err
	}
	st, err := h.svc.GetPerformanceStatus(c.Request().Context(), id, p.Anonymized)
	if err != nil {
		return writeError(err, "performance status not found")
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) CreatePerformanceStatus(c echo.Context) error {
	var payload PerformanceStatus
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = uuid.Nil
	if err := h.svc.CreatePerformanceStatus(c.Request().Context(), &payload); err != nil {
		return writeError(err, "performance status not found")
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *Handler) UpdatePerformanceStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var payload PerformanceStatus
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = id
	if err := h.svc.UpdatePerformanceStatus(c.Request().Context(), &payload); err != nil {
		return writeError(err, "performance status not found")
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) DeletePerformanceStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeletePerformanceStatus(c.Request().Context(), id); err != nil {
		return writeError(err, "performance status not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Lifestyle --

func (h *Handler) ListLifestyles(c echo.Context) error {
	caseID, p, err := h.caseParam(c)
	if err != nil {
		return err
	}
	records, total, err := h.svc.ListLifestyles(c.Request().Context(), caseID, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total))
}

func (h *Handler) GetLifestyle(c echo.Context) error {
	id, p, err := h.idParam(c)
	if err != nil {
		return err
	}
	l, err := h.svc.GetLifestyle(c.Request().Context(), id, p.Anonymized)
	if err != nil {
		return writeError(err, "lifestyle record not found")
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) CreateLifestyle(c echo.Context) error {
	var payload Lifestyle
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = uuid.Nil
	if err := h.svc.CreateLifestyle(c.Request().Context(), &payload); err != nil {
		return writeError(err, "lifestyle record not found")
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *Handler) UpdateLifestyle(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var payload Lifestyle
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = id
	if err := h.svc.UpdateLifestyle(c.Request().Context(), &payload); err != nil {
		return writeError(err, "lifestyle record not found")
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) DeleteLifestyle(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteLifestyle(c.Request().Context(), id); err != nil {
		return writeError(err, "lifestyle record not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Family history --

func (h *Handler) ListFamilyHistories(c echo.Context) error {
	caseID, p, err := h.caseParam(c)
	if err != nil {
		return err
	}
	records, total, err := h.svc.ListFamilyHistories(c.Request().Context(), caseID, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total))
}

func (h *Handler) GetFamilyHistory(c echo.Context) error {
	id, p, err := h.idParam(c)
	if err != nil {
		return err
	}
	f, err := h.svc.GetFamilyHistory(c.Request().Context(), id, p.Anonymized)
	if err != nil {
		return writeError(err, "family history not found")
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) CreateFamilyHistory(c echo.Context) error {
	var payload FamilyHistory
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = uuid.Nil
	if err := h.svc.CreateFamilyHistory(c.Request().Context(), &payload); err != nil {
		return writeError(err, "family history not found")
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *Handler) UpdateFamilyHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var payload FamilyHistory
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = id
	if err := h.svc.UpdateFamilyHistory(c.Request().Context(), &payload); err != nil {
		return writeError(err, "family history not found")
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) DeleteFamilyHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteFamilyHistory(c.Request().Context(), id); err != nil {
		return writeError(err, "family history not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Comorbidities --

func (h *Handler) ListComorbidities(c echo.Context) error {
	caseID, p, err := h.caseParam(c)
	if err != nil {
		return err
	}
	records, total, err := h.svc.ListComorbidities(c.Request().Context(), caseID, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total))
}

func (h *Handler) GetComorbidities(c echo.Context) error {
	id, p, err := h.idParam(c)
	if err != nil {
		return err
	}
	cm, err := h.svc.GetComorbidities(c.Request().Context(), id, p.Anonymized)
	if err != nil {
		return writeError(err, "comorbidities record not found")
	}
	return c.JSON(http.StatusOK, cm)
}

func (h *Handler) CreateComorbidities(c echo.Context) error {
	var payload Comorbidities
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = uuid.Nil
	if err := h.svc.CreateComorbidities(c.Request().Context(), &payload); err != nil {
		return writeError(err, "comorbidities record not found")
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *Handler) UpdateComorbidities(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var payload Comorbidities
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = id
	if err := h.svc.UpdateComorbidities(c.Request().Context(), &payload); err != nil {
		return writeError(err, "comorbidities record not found")
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) DeleteComorbidities(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteComorbidities(c.Request().Context(), id); err != nil {
		return writeError(err, "comorbidities record not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Vitals --

func (h *Handler) ListVitals(c echo.Context) error {
	caseID, p, err := h.caseParam(c)
	if err != nil {
		return err
	}
	records, total, err := h.svc.ListVitals(c.Request().Context(), caseID, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total))
}

func (h *Handler) GetVitals(c echo.Context) error {
	id, p, err := h.idParam(c)
	if err != nil {
		return err
	}
	v, err := h.svc.GetVitals(c.Request().Context(), id, p.Anonymized)
	if err != nil {
		return writeError(err, "vitals record not found")
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) CreateVitals(c echo.Context) error {
	var payload Vitals
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = uuid.Nil
	if err := h.svc.CreateVitals(c.Request().Context(), &payload); err != nil {
		return writeError(err, "vitals record not found")
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *Handler) UpdateVitals(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var payload Vitals
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = id
	if err := h.svc.UpdateVitals(c.Request().Context(), &payload); err != nil {
		return writeError(err, "vitals record not found")
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) DeleteVitals(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteVitals(c.Request().Context(), id); err != nil {
		return writeError(err, "vitals record not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Risk assessments --

func (h *Handler) ListRiskAssessments(c echo.Context) error {
	caseID, p, err := h.caseParam(c)
	if err != nil {
		return err
	}
	records, total, err := h.svc.ListRiskAssessments(c.Request().Context(), caseID, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total))
}

func (h *Handler) GetRiskAssessment(c echo.Context) error {
	id, p, err := h.idParam(c)
	if err != nil {
		return err
	}
	ra, err := h.svc.GetRiskAssessment(c.Request().Context(), id, p.Anonymized)
	if err != nil {
		return writeError(err, "risk assessment not found")
	}
	return c.JSON(http.StatusOK, ra)
}

func (h *Handler) CreateRiskAssessment(c echo.Context) error {
	var payload RiskAssessment
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = uuid.Nil
	if err := h.svc.CreateRiskAssessment(c.Request().Context(), &payload); err != nil {
		return writeError(err, "risk assessment not found")
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *Handler) UpdateRiskAssessment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var payload RiskAssessment
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = id
	if err := h.svc.UpdateRiskAssessment(c.Request().Context(), &payload); err != nil {
		return writeError(err, "risk assessment not found")
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) DeleteRiskAssessment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteRiskAssessment(c.Request().Context(), id); err != nil {
		return writeError(err, "risk assessment not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Tumor markers --

func (h *Handler) ListTumorMarkers(c echo.Context) error {
	caseID, p, err := h.caseParam(c)
	if err != nil {
		return err
	}
	markers, total, err := h.svc.ListTumorMarkers(c.Request().Context(), caseID, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(markers, total))
}

func (h *Handler) GetTumorMarker(c echo.Context) error {
	id, p, err := h.idParam(c)
	if err != nil {
		return err
	}
	t, err := h.svc.GetTumorMarker(c.Request().Context(), id, p.Anonymized)
	if err != nil {
		return writeError(err, "tumor marker not found")
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) CreateTumorMarker(c echo.Context) error {
	var payload TumorMarker
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = uuid.Nil
	if err := h.svc.CreateTumorMarker(c.Request().Context(), &payload); err != nil {
		return writeError(err, "tumor marker not found")
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *Handler) UpdateTumorMarker(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var payload TumorMarker
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = id
	if err := h.svc.UpdateTumorMarker(c.Request().Context(), &payload); err != nil {
		return writeError(err, "tumor marker not found")
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) DeleteTumorMarker(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteTumorMarker(c.Request().Context(), id); err != nil {
		return writeError(err, "tumor marker not found")
	}
	return c.NoContent(http.StatusNoContent)
}
