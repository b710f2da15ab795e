package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"relay-proxy-go/internal/client"
	"relay-proxy-go/internal/service"
)

func newTestHealthHandler(t *testing.T) *HealthHandler {
	t.Helper()
	cfg := testConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	uc := client.NewUpstreamClient(cfg, logger, nil)
	svc := service.NewProxyServiceForTest(uc, cfg, logger)
	return NewHealthHandler(svc, "1.2.3")
}

func TestHealthz(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := newTestHealthHandler(t)
	if err := h.Healthz(c); err != nil {
		t.Fatalf("Healthz() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
}

func TestRoot(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := newTestHealthHandler(t)
	if err := h.Root(c); err != nil {
		t.Fatalf("Root() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("body.status = %v, want %q", body["status"], "healthy")
	}
	if body["version"] != "1.2.3" {
		t.Errorf("body.version = %v, want %q", body["version"], "1.2.3")
	}
	if body["max_concurrent"] != float64(10) {
		t.Errorf("body.max_concurrent = %v, want 10", body["max_concurrent"])
	}
	if _, ok := body["requests_processed"]; !ok {
		t.Error("body.requests_processed missing")
	}
	if _, ok := body["active_requests"]; !ok {
		t.Error("body.active_requests missing")
	}
}

func TestStatus(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/status", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := newTestHealthHandler(t)
	if err := h.Status(c); err != nil {
		t.Fatalf("Status() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "running" {
		t.Errorf("body.status = %v, want %q", body["status"], "running")
	}
	if body["max_retries"] != float64(3) {
		t.Errorf("body.max_retries = %v, want 3", body["max_retries"])
	}
	if body["max_concurrent"] != float64(10) {
		t.Errorf("body.max_concurrent = %v, want 10", body["max_concurrent"])
	}
	if body["timeout"] != float64(10) {
		t.Errorf("body.timeout = %v, want 10", body["timeout"])
	}
	if _, ok := body["rate_limit_delay"]; !ok {
		t.Error("body.rate_limit_delay missing")
	}
	if _, ok := body["uptime_seconds"]; !ok {
		t.Error("body.uptime_seconds missing")
	}
}
