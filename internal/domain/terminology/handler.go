package terminology

import (
	"errors"
	"net/http"
	"strings"

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

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireCapability(auth.CapViewCases))
	read.GET("/terminologies", h.ListTerminologies)
	read.GET("/terminologies/:name/concepts", h.SearchConcepts)
	read.GET("/terminologies/:name/concepts/:code", h.GetConcept)
	read.GET("/terminologies/:name/concepts/:code/descendants", h.GetDescendants)
}

func (h *Handler) ListTerminologies(c echo.Context) error {
	names := h.svc.Names()
	return c.JSON(http.StatusOK, pagination.NewResponse(names, len(names)))
}

func (h *Handler) SearchConcepts(c echo.Context) error {
	p := pagination.FromContext(c)
	var codes []string
	if raw := c.QueryParam("codes"); raw != "" {
		codes = strings.Split(raw, ",")
	}
	concepts, total, err := h.svc.Search(c.Request().Context(),
		c.Param("name"), c.QueryParam("query"), codes, p.Limit, p.Offset)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(concepts, total))
}

func (h *Handler) GetConcept(c echo.Context) error {
	concept, err := h.svc.Get(c.Request().Context(), c.Param("name"), c.Param("code"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "concept not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, concept)
}

func (h *Handler) GetDescendants(c echo.Context) error {
	concepts, err := h.svc.Descendants(c.Request().Context(), c.Param("name"), c.Param("code"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "concept not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(concepts, len(concepts)))
}
