package service

import (
	"sync/atomic"
	"time"
)

// Counters tracks process-wide forwarding state for status reporting.
// All fields are updated atomically; values are per-process and are not
// shared across separate worker processes.
type Counters struct {
	requests     atomic.Int64
	active       atomic.Int64
	lastDispatch atomic.Int64 // unix nanoseconds of the last upstream dispatch
}

// NewCounters creates a zeroed Counters instance. One instance lives for the
// whole process, owned by the ProxyService.
func NewCounters() *Counters {
	return &Counters{}
}

// CountRequest records one forwarding call. It is incremented once per call,
// before validation, so rejected calls still count as processed.
func (c *Counters) CountRequest() {
	c.requests.Add(1)
}

// Requests returns the total number of forwarding calls seen.
func (c *Counters) Requests() int64 {
	return c.requests.Load()
}

// EnterActive marks a forwarding call as admitted.
func (c *Counters) EnterActive() {
	c.active.Add(1)
}

// LeaveActive marks a forwarding call as complete.
func (c *Counters) LeaveActive() {
	c.active.Add(-1)
}

// Active returns the number of forwarding calls currently admitted.
func (c *Counters) Active() int64 {
	return c.active.Load()
}

// RecordDispatch stores the timestamp of an upstream dispatch.
func (c *Counters) RecordDispatch(t time.Time) {
	c.lastDispatch.Store(t.UnixNano())
}

// LastDispatch returns the time of the most recent upstream dispatch, or the
// zero time if nothing has been dispatched yet.
func (c *Counters) LastDispatch() time.Time {
	ns := c.lastDispatch.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
