// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	parsed  ParsedCache
}

// NewHealthHandler creates a new health handler. parsed may be nil.
func NewHealthHandler(version string, parsed ParsedCache) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		parsed:  parsed,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	}
	if h.parsed != nil {
		resp["parsedStore"] = h.parsed.Stats()
	}
	return c.JSON(http.StatusOK, resp)
}
