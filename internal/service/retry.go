package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"relay-proxy-go/internal/model"
)

// attemptLoop issues the prepared request up to maxRetries times, backing off
// exponentially (1, 2, 4, ... units) between failed attempts. A 2xx/3xx
// response short-circuits into normalization. Backoff sleeps happen while the
// admission slot is still held, so retries count against the concurrency
// budget for their whole duration.
//
// Once a call is admitted it runs to completion: attempts are bounded by the
// client timeout, not by the inbound request context.
func (s *ProxyService) attemptLoop(method, target string, header http.Header, payload []byte) *model.ProxyResult {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		final := attempt == s.maxRetries-1

		resp, err := s.client.Do(context.Background(), method, target, header, payload)
		if err != nil {
			if final {
				return s.transportFailure(method, target, err)
			}
			s.backoff(attempt, method, err.Error())
			continue
		}

		raw, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			if final {
				return s.transportFailure(method, target, readErr)
			}
			s.backoff(attempt, method, readErr.Error())
			continue
		}

		// Redirects were already followed by the client, so anything >= 400
		// is a status error.
		if resp.StatusCode >= http.StatusBadRequest {
			if final {
				return s.statusFailure(method, target, resp, raw)
			}
			s.backoff(attempt, method, fmt.Sprintf("HTTP %d", resp.StatusCode))
			continue
		}

		return s.normalize(method, target, resp, raw)
	}

	// Unreachable while maxRetries >= 1; kept for safety.
	return s.transportFailure(method, target, fmt.Errorf("no attempts made"))
}

// backoff sleeps 2^attempt backoff units before the next retry.
func (s *ProxyService) backoff(attempt int, method, reason string) {
	if s.metrics != nil {
		s.metrics.ForwardRetries.Inc()
	}
	delay := time.Duration(1<<attempt) * s.backoffUnit
	s.logger.Debug("retrying upstream request",
		"method", method,
		"attempt", attempt+1,
		"backoff", delay,
		"reason", reason,
	)
	time.Sleep(delay)
}

// transportFailure builds the result for a network-level failure: the
// upstream status is unknown, so a synthetic 500 is reported.
func (s *ProxyService) transportFailure(method, target string, err error) *model.ProxyResult {
	return &model.ProxyResult{
		StatusCode: http.StatusInternalServerError,
		Success:    false,
		Error:      err.Error(),
		Method:     method,
		URL:        target,
	}
}

// statusFailure builds the result for exhausted retries against an upstream
// that kept answering with an error status. The upstream's own status code,
// headers, and body are carried as the error detail.
func (s *ProxyService) statusFailure(method, target string, resp *http.Response, raw []byte) *model.ProxyResult {
	return &model.ProxyResult{
		StatusCode: resp.StatusCode,
		Headers:    flattenHeader(resp.Header),
		Data:       string(raw),
		Success:    false,
		Error:      fmt.Sprintf("HTTP %d: %s", resp.StatusCode, raw),
		Method:     method,
		URL:        target,
	}
}
