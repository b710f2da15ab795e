package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"relay-proxy-go/internal/model"
	"relay-proxy-go/internal/service"
)

// ProxyHandler decodes forwarding instructions and relays the results.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle binds the JSON body into a ProxyRequest, forwards it, and writes
// the outcome back. Malformed bodies are rejected before Forward is called;
// a failed result surfaces the result's own status code and error string.
func (h *ProxyHandler) Handle(c echo.Context) error {
	var pr model.ProxyRequest
	if err := c.Bind(&pr); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	h.logger.Debug("proxying request",
		"method", pr.Method,
		"url", pr.URL,
	)

	res := h.service.Forward(c.Request().Context(), &pr)

	if !res.Success {
		return c.JSON(res.StatusCode, map[string]string{
			"error": res.Error,
		})
	}

	// Relay the normalized headers verbatim; the service already stripped
	// transport-specific ones and injected the provenance set.
	for key, val := range res.Headers {
		c.Response().Header().Set(key, val)
	}

	// Raw-text fallback data goes out as plain text; structured data is
	// re-serialized as JSON. Echo only sets Content-Type when the upstream
	// did not provide one.
	if text, ok := res.Data.(string); ok {
		return c.String(res.StatusCode, text)
	}
	return c.JSON(res.StatusCode, res.Data)
}
