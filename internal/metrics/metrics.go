package metrics

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for switchboard.
//
// All recording helpers accept a nil receiver so components can run
// without a registry.
type Metrics struct {
	// Command execution metrics
	CommandExecutions *prometheus.CounterVec
	CommandDuration   *prometheus.HistogramVec

	// Request pipeline metrics
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	AuthExpired     prometheus.Counter

	// Session metrics
	SessionTransitions *prometheus.CounterVec
	Revocations        *prometheus.CounterVec

	// Route authorization metrics
	RouteDecisions *prometheus.CounterVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		CommandExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_command_executions_total",
				Help: "Total number of command executions",
			},
			[]string{"command", "success"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "switchboard_command_duration_seconds",
				Help:    "Command execution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),

		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_api_requests_total",
				Help: "Total number of backend API requests by outcome",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "switchboard_api_request_duration_seconds",
				Help:    "Backend API request latency in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"method", "endpoint"},
		),
		AuthExpired: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "switchboard_auth_expired_total",
				Help: "Number of resident credentials cleared after a 401",
			},
		),

		SessionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_session_transitions_total",
				Help: "Session state transitions",
			},
			[]string{"from", "to"},
		),
		Revocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_token_revocations_total",
				Help: "Server-side token revocation attempts by result",
			},
			[]string{"result"},
		),

		RouteDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_route_decisions_total",
				Help: "Route authorization decisions by outcome",
			},
			[]string{"outcome"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code", "component"},
		),
	}
}

// ObserveCommand records one CLI command execution.
func (m *Metrics) ObserveCommand(command string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.CommandExecutions.WithLabelValues(command, strconv.FormatBool(success)).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// ObserveRequest records one pipeline request. A status of 0 means the
// request never produced a response.
func (m *Metrics) ObserveRequest(method, endpoint string, status int, d time.Duration) {
	if m == nil {
		return
	}
	ep := EndpointLabel(endpoint)
	m.Requests.WithLabelValues(method, ep, StatusLabel(status)).Inc()
	m.RequestDuration.WithLabelValues(method, ep).Observe(d.Seconds())
}

// IncAuthExpired counts a credential cleared by a 401.
func (m *Metrics) IncAuthExpired() {
	if m == nil {
		return
	}
	m.AuthExpired.Inc()
}

// ObserveTransition records a session state change.
func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(from, to).Inc()
}

// ObserveRevocation records a logout call outcome ("ok", "queued", "retried", "failed").
func (m *Metrics) ObserveRevocation(result string) {
	if m == nil {
		return
	}
	m.Revocations.WithLabelValues(result).Inc()
}

// ObserveRouteDecision records a route authorizer outcome.
func (m *Metrics) ObserveRouteDecision(outcome string) {
	if m == nil {
		return
	}
	m.RouteDecisions.WithLabelValues(outcome).Inc()
}

// ObserveError counts a coded error raised by component.
func (m *Metrics) ObserveError(code, component string) {
	if m == nil || code == "" {
		return
	}
	m.Errors.WithLabelValues(code, component).Inc()
}

var idSegment = regexp.MustCompile(`^([0-9]+|[0-9a-fA-F-]{32,36})$`)

// EndpointLabel collapses identifier path segments so per-record endpoints
// share one label value: /campaigns/17/leads becomes /campaigns/:id/leads.
func EndpointLabel(endpoint string) string {
	path := endpoint
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(path, "/")
	for i, s := range segments {
		if idSegment.MatchString(s) {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}

// StatusLabel renders an HTTP status for the requests counter.
func StatusLabel(status int) string {
	if status == 0 {
		return "error"
	}
	return strconv.Itoa(status)
}
