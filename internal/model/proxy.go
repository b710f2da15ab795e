// Package model defines shared types for the relay.
package model

import (
	"encoding/json"
	"fmt"
)

// BodyKind identifies which representation of the request body is in use.
type BodyKind int

const (
	// BodyNone means the request carries no body.
	BodyNone BodyKind = iota
	// BodyJSON means the structured payload is serialized as JSON.
	BodyJSON
	// BodyRaw means the opaque payload is sent as-is.
	BodyRaw
)

// ProxyRequest describes an outbound request to be forwarded upstream.
// It is the wire format of the /proxy endpoint.
type ProxyRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"` // defaults to GET
	Params  map[string]string `json:"params,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Data    string            `json:"data,omitempty"`      // opaque payload
	JSON    map[string]any    `json:"json_data,omitempty"` // structured payload, wins over Data
}

// RequestBody is the resolved body representation of a ProxyRequest.
// It is computed once per forwarding call, not per retry attempt.
type RequestBody struct {
	Kind        BodyKind
	Payload     []byte
	ContentType string
}

// ResolveBody selects the body representation: the structured payload takes
// precedence over the opaque one. A request with neither yields BodyNone.
func (r *ProxyRequest) ResolveBody() (RequestBody, error) {
	if r.JSON != nil {
		payload, err := json.Marshal(r.JSON)
		if err != nil {
			return RequestBody{}, fmt.Errorf("marshal json payload: %w", err)
		}
		return RequestBody{Kind: BodyJSON, Payload: payload, ContentType: "application/json"}, nil
	}
	if r.Data != "" {
		return RequestBody{Kind: BodyRaw, Payload: []byte(r.Data)}, nil
	}
	return RequestBody{Kind: BodyNone}, nil
}

// ProxyResult is the outcome of one forwarding call. It is created fresh per
// call and never persisted.
type ProxyResult struct {
	StatusCode   int               `json:"status_code"`
	Headers      map[string]string `json:"headers,omitempty"`
	Data         any               `json:"data"`
	Success      bool              `json:"success"`
	Error        string            `json:"error,omitempty"`
	ParseWarning string            `json:"parse_warning,omitempty"`
	Method       string            `json:"method"`
	URL          string            `json:"url"`
}

// StatusSnapshot is a read-only view of process-wide relay state.
// Counters are per-process: separate worker processes do not share them.
type StatusSnapshot struct {
	RequestsProcessed int64   `json:"requests_processed"`
	ActiveRequests    int64   `json:"active_requests"`
	MaxConcurrent     int     `json:"max_concurrent"`
	RateLimitDelay    float64 `json:"rate_limit_delay"` // seconds
	MaxRetries        int     `json:"max_retries"`
	Timeout           float64 `json:"timeout"` // seconds
	Workers           int     `json:"workers"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}
