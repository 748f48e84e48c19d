package route

import (
	"github.com/felixgeelhaar/switchboard/internal/log"
	"github.com/felixgeelhaar/switchboard/internal/metrics"
	"github.com/felixgeelhaar/switchboard/internal/session"
)

// Decision is the result of Authorize. Target is set for redirects; From
// carries the requested path on a login redirect so the caller can
// return there after signing in.
type Decision struct {
	Outcome Outcome
	Path    string
	Target  string
	From    string
	Route   *Route
}

// Authorizer gates navigation against a route table.
type Authorizer struct {
	table   *Table
	logger  *log.Logger
	metrics *metrics.Metrics
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithLogger sets the logger used for decisions.
func WithLogger(l *log.Logger) Option {
	return func(a *Authorizer) { a.logger = l }
}

// WithMetrics records a counter per decision outcome.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Authorizer) { a.metrics = m }
}

// NewAuthorizer creates an authorizer over table. A nil table selects the
// built-in declarations.
func NewAuthorizer(table *Table, opts ...Option) *Authorizer {
	if table == nil {
		table = DefaultTable()
	}
	a := &Authorizer{table: table}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = log.OrDefault(a.logger)
	return a
}

// Table returns the route table.
func (a *Authorizer) Table() *Table { return a.table }

// Authorize decides what state may do with a request for p.
func (a *Authorizer) Authorize(state session.State, p string) Decision {
	d := decide(a.table, state, p)
	a.metrics.ObserveRouteDecision(string(d.Outcome))
	a.logger.Debug("route decision",
		"path", d.Path,
		"outcome", string(d.Outcome),
		"target", d.Target,
		"status", string(state.Status))
	return d
}

// Resolve returns the route declaration governing p.
func (a *Authorizer) Resolve(p string) (Route, bool) {
	return a.table.Resolve(p)
}

func decide(t *Table, state session.State, p string) Decision {
	p = Normalize(p)
	d := Decision{Path: p}

	switch state.Status {
	case session.StatusChecking:
		d.Outcome = OutcomeLoading
		return d
	case session.StatusAuthenticated:
		if !state.Authenticated() {
			return toLogin(d)
		}
	default:
		r, ok := t.Resolve(p)
		if ok && r.Public {
			d.Outcome, d.Route = OutcomeRender, &r
			return d
		}
		return toLogin(d)
	}

	role := state.Role()
	r, ok := t.Resolve(p)
	if !ok || r.Entry {
		d.Outcome, d.Target = OutcomeRedirectHome, HomeFor(role)
		if ok {
			d.Route = &r
		}
		return d
	}
	d.Route = &r
	if !r.Allows(role) {
		d.Outcome, d.Target = OutcomeRedirectUnauthorized, UnauthorizedPath
		return d
	}
	d.Outcome = OutcomeRender
	return d
}

func toLogin(d Decision) Decision {
	d.Outcome, d.Target = OutcomeRedirectLogin, LoginPath
	if d.Path != LoginPath && d.Path != "/" {
		d.From = d.Path
	}
	return d
}
