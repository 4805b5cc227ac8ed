// Package measure exposes the unit catalogue over HTTP. The registry
// itself lives in pkg/measures; this handler only answers catalogue
// lookups and conversion requests.
package measure

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/onconova/onconova/internal/platform/auth"
	"github.com/onconova/onconova/pkg/measures"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/measures", auth.RequireCapability(auth.CapViewCases))
	g.GET("", h.ListMeasures)
	g.GET("/:name/units", h.ListUnits)
	g.GET("/:name/units/default", h.DefaultUnit)
	g.POST("/:name/units/conversion", h.Convert)
}

func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, measures.Names())
}

func (h *Handler) ListUnits(c echo.Context) error {
	m, err := measures.Lookup(c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, m.Units())
}

func (h *Handler) DefaultUnit(c echo.Context) error {
	m, err := measures.Lookup(c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"unit": m.Canonical})
}

type conversionRequest struct {
	Value float64 `json:"value"`
	From  string  `json:"from"`
	To    string  `json:"to"`
}

func (h *Handler) Convert(c echo.Context) error {
	m, err := measures.Lookup(c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	var req conversionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid conversion request")
	}
	if req.To == "" {
		req.To = m.Canonical
	}
	value, err := m.Convert(req.Value, req.From, req.To)
	if err != nil {
		if errors.Is(err, measures.ErrUnknownUnit) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		return err
	}
	return c.JSON(http.StatusOK, measures.Quantity{Value: value, Unit: req.To})
}
