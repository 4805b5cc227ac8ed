package research

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/onconova/onconova/internal/domain/history"
	"github.com/onconova/onconova/internal/platform/auth"
	"github.com/onconova/onconova/internal/rules"
	"github.com/onconova/onconova/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, events *history.Handler) {
	projects := api.Group("/projects")
	projects.GET("", h.ListProjects, auth.RequireCapability(auth.CapViewProjects))
	projects.GET("/:id", h.GetProject, auth.RequireCapability(auth.CapViewProjects))
	projects.POST("", h.CreateProject, auth.RequireCapability(auth.CapManageProjects))
	projects.PUT("/:id", h.UpdateProject, auth.RequireCapability(auth.CapManageProjects))
	projects.DELETE("/:id", h.DeleteProject, auth.RequireCapability(auth.CapDeleteProjects))
	events.MountEntityRoutes(projects)

	grants := api.Group("/project-data-manager-grants")
	grants.GET("", h.ListGrants, auth.RequireCapability(auth.CapViewProjects))
	grants.GET("/:id", h.GetGrant, auth.RequireCapability(auth.CapViewProjects))
	grants.POST("", h.CreateGrant, auth.RequireCapability(auth.CapManageProjects))
	grants.PUT("/:id", h.UpdateGrant, auth.RequireCapability(auth.CapManageProjects))
	grants.POST("/:id/revoke", h.RevokeGrant, auth.RequireCapability(auth.CapManageProjects))
	grants.DELETE("/:id", h.DeleteGrant, auth.RequireCapability(auth.CapManageProjects))
	events.MountEntityRoutes(grants)

	cohorts := api.Group("/cohorts")
	cohorts.GET("", h.ListCohorts, auth.RequireCapability(auth.CapViewCohorts))
	cohorts.GET("/:id", h.GetCohort, auth.RequireCapability(auth.CapViewCohorts))
	cohorts.POST("", h.CreateCohort, auth.RequireCapability(auth.CapManageCohorts))
	cohorts.PUT("/:id", h.UpdateCohort, auth.RequireCapability(auth.CapManageCohorts))
	cohorts.POST("/:id/freeze", h.FreezeCohort, auth.RequireCapability(auth.CapManageCohorts))
	cohorts.DELETE("/:id", h.DeleteCohort, auth.RequireCapability(auth.CapManageCohorts))
	events.MountEntityRoutes(cohorts)

	datasets := api.Group("/datasets")
	datasets.GET("", h.ListDatasets, auth.RequireCapability(auth.CapViewDatasets))
	datasets.GET("/:id", h.GetDataset, auth.RequireCapability(auth.CapViewDatasets))
	datasets.POST("", h.CreateDataset, auth.RequireCapability(auth.CapManageDatasets))
	datasets.PUT("/:id", h.UpdateDataset, auth.RequireCapability(auth.CapManageDatasets))
	datasets.POST("/:id/export", h.ExportDataset, auth.RequireCapability(auth.CapExportData))
	datasets.DELETE("/:id", h.DeleteDataset, auth.RequireCapability(auth.CapManageDatasets))
	events.MountEntityRoutes(datasets)
}

func idParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func projectParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.QueryParam("projectId"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "projectId is required")
	}
	return id, nil
}

func writeError(err error) error {
	var cfgErr *rules.ConfigError
	var valErr *rules.ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &cfgErr), errors.As(err, &valErr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

// -- Projects --

func (h *Handler) ListProjects(c echo.Context) error {
	p := pagination.FromContext(c)
	projects, total, err := h.svc.ListProjects(c.Request().Context(), p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(projects, total))
}

func (h *Handler) GetProject(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	project, err := h.svc.GetProject(c.Request().Context(), id)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, project)
}

func (h *Handler) CreateProject(c echo.Context) error {
	var payload Project
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = uuid.Nil
	if err := h.svc.CreateProject(c.Request().Context(), &payload); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *Handler) UpdateProject(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var payload Project
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = id
	if err := h.svc.UpdateProject(c.Request().Context(), &payload); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) DeleteProject(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteProject(c.Request().Context(), id); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Grants --

func (h *Handler) ListGrants(c echo.Context) error {
	projectID, err := projectParam(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	grants, total, err := h.svc.ListGrants(c.Request().Context(), projectID, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(grants, total))
}

func (h *Handler) GetGrant(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	grant, err := h.svc.GetGrant(c.Request().Context(), id)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, grant)
}

func (h *Handler) CreateGrant(c echo.Context) error {
	var payload Grant
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = uuid.Nil
	if err := h.svc.CreateGrant(c.Request().Context(), &payload); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *Handler) UpdateGrant(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var payload Grant
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = id
	if err := h.svc.UpdateGrant(c.Request().Context(), &payload); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) RevokeGrant(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	grant, err := h.svc.RevokeGrant(c.Request().Context(), id)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, grant)
}

func (h *Handler) DeleteGrant(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteGrant(c.Request().Context(), id); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Cohorts --

func (h *Handler) ListCohorts(c echo.Context) error {
	p := pagination.FromContext(c)
	cohorts, total, err := h.svc.ListCohorts(c.Request().Context(), p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(cohorts, total))
}

func (h *Handler) GetCohort(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	cohort, err := h.svc.GetCohort(c.Request().Context(), id)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, cohort)
}

func (h *Handler) CreateCohort(c echo.Context) error {
	var payload Cohort
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = uuid.Nil
	if err := h.svc.CreateCohort(c.Request().Context(), &payload); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *Handler) UpdateCohort(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var payload Cohort
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = id
	if err := h.svc.UpdateCohort(c.Request().Context(), &payload); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) FreezeCohort(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	cohort, err := h.svc.FreezeCohort(c.Request().Context(), id)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, cohort)
}

func (h *Handler) DeleteCohort(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteCohort(c.Request().Context(), id); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Datasets --

func (h *Handler) ListDatasets(c echo.Context) error {
	projectID, err := projectParam(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	datasets, total, err := h.svc.ListDatasets(c.Request().Context(), projectID, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(datasets, total))
}

func (h *Handler) GetDataset(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	dataset, err := h.svc.GetDataset(c.Request().Context(), id)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, dataset)
}

func (h *Handler) CreateDataset(c echo.Context) error {
	var payload Dataset
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = uuid.Nil
	if err := h.svc.CreateDataset(c.Request().Context(), &payload); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusCreated, payload)
}

func (h *Handler) UpdateDataset(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var payload Dataset
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payload.ID = id
	if err := h.svc.UpdateDataset(c.Request().Context(), &payload); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, payload)
}

func (h *Handler) ExportDataset(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var payload struct {
		CohortID *uuid.UUID `json:"cohortId"`
	}
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	dataset, err := h.svc.RecordDatasetExport(c.Request().Context(), id, payload.CohortID)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, dataset)
}

func (h *Handler) DeleteDataset(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDataset(c.Request().Context(), id); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
