package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"relay-proxy-go/internal/model"
	"relay-proxy-go/internal/service"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	service *service.ProxyService
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(svc *service.ProxyService, v Version) *HealthHandler {
	return &HealthHandler{service: svc, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Root returns the health summary with request counters.
func (h *HealthHandler) Root(c echo.Context) error {
	st := h.service.Status()
	return c.JSON(http.StatusOK, map[string]any{
		"status":             "healthy",
		"service":            "relay-proxy",
		"version":            string(h.version),
		"requests_processed": st.RequestsProcessed,
		"active_requests":    st.ActiveRequests,
		"max_concurrent":     st.MaxConcurrent,
	})
}

type statusResponse struct {
	Status string `json:"status"`
	model.StatusSnapshot
}

// Status returns the full process-wide state snapshot.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Status:         "running",
		StatusSnapshot: h.service.Status(),
	})
}
