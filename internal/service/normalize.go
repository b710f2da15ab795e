package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"relay-proxy-go/internal/model"
)

// strippedResponseHeaders are transport-specific headers removed before the
// response is relayed: the relay re-serializes the body, so their values
// would be stale or contradictory. Keys are canonical.
var strippedResponseHeaders = map[string]bool{
	"Content-Length":    true,
	"Transfer-Encoding": true,
	"Content-Encoding":  true,
}

// normalize converts a successful upstream response into a ProxyResult.
// An empty or whitespace-only body becomes an empty object; otherwise the
// body is parsed as JSON, falling back to the raw text with a non-fatal
// parse warning. Relayed headers are sanitized and provenance headers added.
func (s *ProxyService) normalize(method, target string, resp *http.Response, raw []byte) *model.ProxyResult {
	res := &model.ProxyResult{
		StatusCode: resp.StatusCode,
		Success:    true,
		Method:     method,
		URL:        target,
	}

	if strings.TrimSpace(string(raw)) == "" {
		res.Data = map[string]any{}
	} else {
		var parsed any
		if err := json.Unmarshal(raw, &parsed); err != nil {
			res.Data = string(raw)
			res.ParseWarning = fmt.Sprintf("JSON parse failed: %v", err)
		} else {
			res.Data = parsed
		}
	}

	res.Headers = s.relayHeaders(resp.Header, method, target)
	return res
}

// relayHeaders sanitizes upstream response headers and injects the relay's
// provenance headers.
func (s *ProxyService) relayHeaders(src http.Header, method, target string) map[string]string {
	dst := make(map[string]string, len(src)+4)
	for key, vals := range src {
		if strippedResponseHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		if len(vals) > 0 {
			dst[key] = strings.Join(vals, ", ")
		}
	}

	dst["X-Proxy-Status"] = "success"
	dst["X-Proxy-Method"] = method
	dst["X-Proxy-URL"] = target
	dst["X-Proxy-Active-Requests"] = strconv.FormatInt(s.counters.Active(), 10)

	return dst
}

// flattenHeader converts an http.Header into a flat string map without
// sanitization, for carrying upstream headers as failure detail.
func flattenHeader(src http.Header) map[string]string {
	dst := make(map[string]string, len(src))
	for key, vals := range src {
		if len(vals) > 0 {
			dst[key] = strings.Join(vals, ", ")
		}
	}
	return dst
}
