package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"relay-proxy-go/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Proxy: config.ProxyConfig{TimeoutSeconds: 10},
		Upstream: config.UpstreamConfig{
			MaxConnections:  20,
			IdleConnections: 10,
		},
	}
}

func newTestClient(t *testing.T, cfg *config.Config) *UpstreamClient {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewUpstreamClient(cfg, logger, nil)
}

func TestDo_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig())
	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL+"/test", nil, nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != `{"status":"ok"}` {
		t.Errorf("body = %q, want %q", string(body), `{"status":"ok"}`)
	}
}

func TestDo_DefaultUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig())
	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	_ = resp.Body.Close()

	if gotUA != defaultUserAgent {
		t.Errorf("User-Agent = %q, want the default", gotUA)
	}
}

func TestDo_CallerUserAgentPreserved(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	header := http.Header{}
	header.Set("User-Agent", "my-agent/1.0")

	c := newTestClient(t, testConfig())
	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL, header, nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	_ = resp.Body.Close()

	if gotUA != "my-agent/1.0" {
		t.Errorf("User-Agent = %q, want the caller's value", gotUA)
	}
}

func TestDo_BodyResentPerCall(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig())
	payload := []byte(`{"k":"v"}`)

	// Two calls with the same payload must both deliver it in full, which is
	// what the retry loop relies on.
	for range 2 {
		resp, err := c.Do(context.Background(), http.MethodPost, srv.URL, nil, payload)
		if err != nil {
			t.Fatalf("Do() error = %v", err)
		}
		_ = resp.Body.Close()
	}

	if len(bodies) != 2 {
		t.Fatalf("upstream saw %d requests, want 2", len(bodies))
	}
	for i, b := range bodies {
		if b != `{"k":"v"}` {
			t.Errorf("request %d body = %q, want %q", i, b, `{"k":"v"}`)
		}
	}
}

func TestDo_UnreachableHost(t *testing.T) {
	c := newTestClient(t, testConfig())
	_, err := c.Do(context.Background(), http.MethodGet, "http://127.0.0.1:1/nowhere", nil, nil)
	if err == nil {
		t.Fatal("Do() expected error for unreachable host, got nil")
	}
}

func TestDo_FollowsRedirects(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("landed"))
	}))
	defer final.Close()

	redirecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL, http.StatusFound)
	}))
	defer redirecting.Close()

	c := newTestClient(t, testConfig())
	resp, err := c.Do(context.Background(), http.MethodGet, redirecting.URL, nil, nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d after redirect", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "landed" {
		t.Errorf("body = %q, want %q", string(body), "landed")
	}
}
