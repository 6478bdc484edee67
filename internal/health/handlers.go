package health

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for health endpoints.
type Handlers struct {
	health *Service
	lister PeerLister
}

// NewHandlers creates health handlers. lister backs the test endpoint and may
// be nil.
func NewHandlers(health *Service, lister PeerLister) *Handlers {
	return &Handlers{health: health, lister: lister}
}

// RegisterRoutes registers health routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.GetAll)
	g.GET("/summary", h.GetSummary)
	g.POST("/test", h.Test)
	g.GET("/:category", h.GetByCategory)
}

// GetAll returns all health items grouped by category.
// GET /api/v1/health
func (h *Handlers) GetAll(c echo.Context) error {
	return c.JSON(http.StatusOK, h.health.GetAll())
}

// GetSummary returns summary counts.
// GET /api/v1/health/summary
func (h *Handlers) GetSummary(c echo.Context) error {
	return c.JSON(http.StatusOK, h.health.GetSummary())
}

// GetByCategory returns health items for a specific category.
// GET /api/v1/health/:category
func (h *Handlers) GetByCategory(c echo.Context) error {
	category, ok := ParseCategory(c.Param("category"))
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid health category")
	}
	return c.JSON(http.StatusOK, h.health.GetByCategory(category))
}

// Test runs a check against the remote API now. A failed check is reported
// in the body, not as an HTTP error.
// POST /api/v1/health/test
func (h *Handlers) Test(c echo.Context) error {
	if h.lister == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "remote testing not configured")
	}

	result := map[string]any{"success": true, "message": "Connection verified"}
	if err := h.health.Check(c.Request().Context(), h.lister); err != nil {
		result["success"] = false
		result["message"] = err.Error()
	}
	return c.JSON(http.StatusOK, result)
}
