// Package health runs the diagnostics behind switchboard doctor.
//
// Each Checker probes one dependency of the console (the backend, the
// credential file, the route table, the stored session) and reports a
// Result. A Manager runs the checkers in parallel with a per-check timeout
// and returns the results in registration order.
//
//	m := health.NewManager()
//	m.AddChecker(health.NewBackendChecker(client))
//	m.AddChecker(health.NewSessionChecker(store, manager, client))
//	reports := m.Check(ctx)
package health

import (
	"context"
	"time"
)

// Checker probes one dependency.
type Checker interface {
	// Name returns a short lowercase name, e.g. "backend".
	Name() string

	// Check performs the probe. It should respect the context deadline.
	Check(ctx context.Context) *Result
}

// Status represents the health check status.
type Status string

const (
	// StatusHealthy means the dependency works.
	StatusHealthy Status = "healthy"

	// StatusDegraded means the console works with reduced function, for
	// example without a stored session.
	StatusDegraded Status = "degraded"

	// StatusUnhealthy means the console cannot work until this is fixed.
	StatusUnhealthy Status = "unhealthy"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Result is the outcome of one check.
type Result struct {
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	// Fix is an action that would resolve a degraded or unhealthy result.
	Fix     string        `json:"fix,omitempty"`
	Latency time.Duration `json:"latency_ns"`
}

// NewResult creates a new health check result with the given status and message.
func NewResult(status Status, message string) *Result {
	return &Result{
		Status:  status,
		Message: message,
		Details: make(map[string]any),
	}
}

// WithDetail adds a detail to the result and returns the result for chaining.
func (r *Result) WithDetail(key string, value any) *Result {
	r.Details[key] = value
	return r
}

// WithFix records how to resolve the result.
func (r *Result) WithFix(fix string) *Result {
	r.Fix = fix
	return r
}

// WithLatency sets the latency and returns the result for chaining.
func (r *Result) WithLatency(latency time.Duration) *Result {
	r.Latency = latency
	return r
}

// Healthy creates a healthy result with the given message.
func Healthy(message string) *Result {
	return NewResult(StatusHealthy, message)
}

// Degraded creates a degraded result with the given message.
func Degraded(message string) *Result {
	return NewResult(StatusDegraded, message)
}

// Unhealthy creates an unhealthy result with the given message.
func Unhealthy(message string) *Result {
	return NewResult(StatusUnhealthy, message)
}

// checkFunc adapts a function to Checker.
type checkFunc struct {
	name string
	fn   func(ctx context.Context) *Result
}

// NewCheck returns a Checker named name that runs fn.
func NewCheck(name string, fn func(ctx context.Context) *Result) Checker {
	return checkFunc{name: name, fn: fn}
}

func (c checkFunc) Name() string                      { return c.name }
func (c checkFunc) Check(ctx context.Context) *Result { return c.fn(ctx) }
