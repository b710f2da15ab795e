// Package service implements the concurrency-controlled forwarding path:
// admission, dispatch spacing, retries with backoff, and response
// normalization.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"relay-proxy-go/internal/client"
	"relay-proxy-go/internal/config"
	"relay-proxy-go/internal/metrics"
	"relay-proxy-go/internal/model"
)

// supportedMethods lists the HTTP methods the relay will forward.
var supportedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
}

// defaultRequestHeaders are sent on every upstream request unless the caller
// overrides them. Accept-Encoding is left to the transport so compressed
// responses are decoded before normalization.
var defaultRequestHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "application/json, text/plain, */*",
	"Accept-Language": "en-US,en;q=0.9",
}

// ProxyService orchestrates forwarding calls. It owns the process-wide
// counters, the admission semaphore, and the dispatch limiter.
type ProxyService struct {
	client   *client.UpstreamClient
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	counters *Counters
	sem      *semaphore.Weighted
	limiter  *dispatchLimiter

	maxRetries    int
	maxConcurrent int
	backoffUnit   time.Duration
	started       time.Time
}

// NewProxyService creates a ProxyService. The metrics parameter is optional;
// pass nil to disable forwarding metrics.
func NewProxyService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	counters := NewCounters()
	return &ProxyService{
		client:        c,
		cfg:           cfg,
		logger:        logger.With("component", "proxy_service"),
		metrics:       m,
		counters:      counters,
		sem:           semaphore.NewWeighted(int64(cfg.Proxy.MaxConcurrent)),
		limiter:       newDispatchLimiter(cfg.Proxy.RateLimitDelay(), counters),
		maxRetries:    cfg.Proxy.MaxRetries,
		maxConcurrent: cfg.Proxy.MaxConcurrent,
		backoffUnit:   time.Second,
		started:       time.Now(),
	}
}

// NewProxyServiceForTest creates a ProxyService with millisecond backoff
// units so retry tests do not sleep for real seconds.
func NewProxyServiceForTest(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) *ProxyService {
	s := NewProxyService(c, cfg, logger, nil)
	s.backoffUnit = time.Millisecond
	return s
}

// Forward executes one forwarding call end to end: count, validate, admit,
// wait out the dispatch interval, run the retry loop, normalize. All
// failures are converted into a ProxyResult with Success=false; Forward
// never returns an error.
//
// The context bounds only the admission and rate-limit waits. Once admitted,
// the call runs to completion.
func (s *ProxyService) Forward(ctx context.Context, pr *model.ProxyRequest) *model.ProxyResult {
	// Counted before validation so rejected calls still show up as processed.
	s.counters.CountRequest()

	method := strings.ToUpper(pr.Method)
	if method == "" {
		method = http.MethodGet
	}

	// Validation failures never take a concurrency slot, never wait on the
	// rate limiter, and never back off.
	if !supportedMethods[method] {
		s.recordOutcome(method, "rejected")
		return validationFailure(method, pr.URL, fmt.Sprintf("unsupported method: %s", method))
	}

	target, err := buildTargetURL(pr)
	if err != nil {
		s.recordOutcome(method, "rejected")
		return validationFailure(method, pr.URL, err.Error())
	}

	// The body variant is resolved once here, not re-inspected per attempt.
	body, err := pr.ResolveBody()
	if err != nil {
		s.recordOutcome(method, "rejected")
		return validationFailure(method, pr.URL, err.Error())
	}

	header := mergeHeaders(pr.Headers)
	var payload []byte
	if methodAllowsBody(method) && body.Kind != model.BodyNone {
		payload = body.Payload
		if body.ContentType != "" && header.Get("Content-Type") == "" {
			header.Set("Content-Type", body.ContentType)
		}
	}

	admitStart := time.Now()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.recordOutcome(method, "error")
		return s.transportFailure(method, target, fmt.Errorf("acquire concurrency slot: %w", err))
	}
	defer s.sem.Release(1)
	if s.metrics != nil {
		s.metrics.AdmissionWait.Observe(time.Since(admitStart).Seconds())
	}

	s.counters.EnterActive()
	defer s.counters.LeaveActive()

	waitStart := time.Now()
	if err := s.limiter.Wait(ctx); err != nil {
		s.recordOutcome(method, "error")
		return s.transportFailure(method, target, fmt.Errorf("dispatch wait: %w", err))
	}
	if s.metrics != nil {
		s.metrics.RateLimitWait.Observe(time.Since(waitStart).Seconds())
	}

	s.logger.Debug("forwarding request",
		"method", method,
		"url", target,
		"active", s.counters.Active(),
		"max_concurrent", s.maxConcurrent,
	)

	res := s.attemptLoop(method, target, header, payload)
	if res.Success {
		s.recordOutcome(method, "success")
	} else {
		s.recordOutcome(method, "failure")
	}
	return res
}

// Status returns a read-only snapshot of process-wide relay state.
func (s *ProxyService) Status() model.StatusSnapshot {
	return model.StatusSnapshot{
		RequestsProcessed: s.counters.Requests(),
		ActiveRequests:    s.counters.Active(),
		MaxConcurrent:     s.maxConcurrent,
		RateLimitDelay:    s.cfg.Proxy.RateLimitDelay().Seconds(),
		MaxRetries:        s.maxRetries,
		Timeout:           s.cfg.Proxy.Timeout().Seconds(),
		Workers:           s.cfg.Server.Workers,
		UptimeSeconds:     time.Since(s.started).Seconds(),
	}
}

// Counters exposes the counter set for handlers that report on it.
func (s *ProxyService) Counters() *Counters {
	return s.counters
}

func (s *ProxyService) recordOutcome(method, outcome string) {
	if s.metrics != nil {
		s.metrics.ForwardsTotal.WithLabelValues(metrics.NormalizeMethod(method), outcome).Inc()
	}
}

// buildTargetURL validates the target and merges query parameters into it.
func buildTargetURL(pr *model.ProxyRequest) (string, error) {
	if pr.URL == "" {
		return "", fmt.Errorf("url is required")
	}
	u, err := url.Parse(pr.URL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("url must be absolute; got %q", pr.URL)
	}

	if len(pr.Params) > 0 {
		q := u.Query()
		for k, v := range pr.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// mergeHeaders lays caller-supplied headers over the default set; caller
// values win on key collision.
func mergeHeaders(extra map[string]string) http.Header {
	header := make(http.Header, len(defaultRequestHeaders)+len(extra))
	for k, v := range defaultRequestHeaders {
		header.Set(k, v)
	}
	for k, v := range extra {
		header.Set(k, v)
	}
	return header
}

// methodAllowsBody reports whether the relay attaches a body for the method.
// GET and DELETE forwards carry parameters and headers only.
func methodAllowsBody(method string) bool {
	return method == http.MethodPost || method == http.MethodPut
}

func validationFailure(method, target, msg string) *model.ProxyResult {
	return &model.ProxyResult{
		StatusCode: http.StatusBadRequest,
		Success:    false,
		Error:      msg,
		Method:     method,
		URL:        target,
	}
}
