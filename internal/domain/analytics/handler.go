package analytics

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/onconova/onconova/internal/domain/research"
	"github.com/onconova/onconova/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	dashboard := api.Group("/dashboard", auth.RequireCapability(auth.CapViewCases))
	dashboard.GET("/stats", h.DashboardStats)
	dashboard.GET("/primary-site-stats", h.PrimarySiteStats)
	dashboard.GET("/cases-over-time", h.CasesOverTime)

	analysis := api.Group("/cohorts/:id/analysis", auth.RequireCapability(auth.CapAnalyzeData))
	analysis.GET("/overall-survival", h.OverallSurvival)
	analysis.GET("/progression-free-survival", h.ProgressionFreeSurvival)
	analysis.GET("/progression-free-survival/by-drug-combination", h.PFSByCombination)
	analysis.GET("/progression-free-survival/by-classification", h.PFSByClassification)
	analysis.GET("/oncoplot", h.Oncoplot)
	analysis.GET("/distributions/:trait", h.Distribution)
}

func (h *Handler) DashboardStats(c echo.Context) error {
	out, err := h.svc.DashboardStats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) PrimarySiteStats(c echo.Context) error {
	out, err := h.svc.PrimarySiteStats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) CasesOverTime(c echo.Context) error {
	out, err := h.svc.CasesOverTime(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) OverallSurvival(c echo.Context) error {
	cohortID, err := cohortParam(c)
	if err != nil {
		return err
	}
	curve, err := h.svc.CohortOverallSurvival(c.Request().Context(), cohortID)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, curve)
}

func (h *Handler) ProgressionFreeSurvival(c echo.Context) error {
	cohortID, err := cohortParam(c)
	if err != nil {
		return err
	}
	curves, err := h.svc.CohortProgressionFreeSurvival(c.Request().Context(), cohortID)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, curves)
}

func (h *Handler) PFSByCombination(c echo.Context) error {
	cohortID, err := cohortParam(c)
	if err != nil {
		return err
	}
	label, topN, err := groupingParams(c)
	if err != nil {
		return err
	}
	curves, err := h.svc.CohortPFSByCombination(c.Request().Context(), cohortID, label, topN)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, curves)
}

func (h *Handler) PFSByClassification(c echo.Context) error {
	cohortID, err := cohortParam(c)
	if err != nil {
		return err
	}
	label, topN, err := groupingParams(c)
	if err != nil {
		return err
	}
	curves, err := h.svc.CohortPFSByClassification(c.Request().Context(), cohortID, label, topN)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, curves)
}

func (h *Handler) Oncoplot(c echo.Context) error {
	cohortID, err := cohortParam(c)
	if err != nil {
		return err
	}
	topN := 0
	if raw := c.QueryParam("topN"); raw != "" {
		if topN, err = strconv.Atoi(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid topN")
		}
	}
	genes, err := h.svc.CohortOncoplot(c.Request().Context(), cohortID, topN)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, genes)
}

func (h *Handler) Distribution(c echo.Context) error {
	cohortID, err := cohortParam(c)
	if err != nil {
		return err
	}
	counts, err := h.svc.CohortDistribution(c.Request().Context(), cohortID, c.Param("trait"))
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, counts)
}

func cohortParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid cohort id")
	}
	return id, nil
}

func groupingParams(c echo.Context) (string, int, error) {
	label := c.QueryParam("label")
	if label == "" {
		return "", 0, echo.NewHTTPError(http.StatusBadRequest, "label is required")
	}
	topN := 0
	if raw := c.QueryParam("topN"); raw != "" {
		var err error
		if topN, err = strconv.Atoi(raw); err != nil {
			return "", 0, echo.NewHTTPError(http.StatusBadRequest, "invalid topN")
		}
	}
	return label, topN, nil
}

func writeError(err error) error {
	switch {
	case errors.Is(err, research.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnknownTrait):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
