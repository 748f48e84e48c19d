package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/switchboard/internal/api"
	"github.com/felixgeelhaar/switchboard/internal/credential"
	"github.com/felixgeelhaar/switchboard/internal/errors"
	"github.com/felixgeelhaar/switchboard/internal/log"
	"github.com/felixgeelhaar/switchboard/internal/metrics"
	"github.com/felixgeelhaar/switchboard/internal/telemetry"
)

// Backend is the subset of the API client the manager needs.
type Backend interface {
	Login(ctx context.Context, creds api.Credentials) (*api.LoginResponse, error)
	Me(ctx context.Context) (*api.User, error)
	Logout(ctx context.Context) error
	Revoke(ctx context.Context, token credential.Token) error
	OnAuthExpired(fn func(api.AuthExpiredEvent)) (cancel func())
}

// Manager owns the session state machine:
//
//	checking -> authenticated | anonymous
//	authenticated <-> anonymous
//
// It is safe for concurrent use. Network calls are made without holding the
// state lock.
type Manager struct {
	backend Backend
	store   credential.Store
	logger  *log.Logger
	metrics *metrics.Metrics

	// transitionMu orders transitions and their notifications.
	transitionMu sync.Mutex

	mu          sync.RWMutex
	state       State
	subscribers map[uint64]func(State)
	nextSubID   uint64

	cancelExpiry func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics records session transitions.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager creates a manager in the checking state and subscribes it to
// the backend's auth-expired events.
func NewManager(backend Backend, store credential.Store, opts ...Option) *Manager {
	m := &Manager{
		backend:     backend,
		store:       store,
		state:       State{Status: StatusChecking},
		subscribers: make(map[uint64]func(State)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = log.OrDefault(m.logger).With("component", "session")
	m.cancelExpiry = backend.OnAuthExpired(m.handleExpired)
	return m
}

// Close detaches the manager from the backend's events.
func (m *Manager) Close() {
	if m.cancelExpiry != nil {
		m.cancelExpiry()
	}
}

// State returns a snapshot of the current session.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// IsCurrent reports whether gen is still the latest generation. Callers
// drop responses whose request started under an older generation.
func (m *Manager) IsCurrent(gen uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Generation == gen
}

// Subscribe registers fn to receive every new state. fn runs synchronously
// after each transition and must not start another transition itself.
func (m *Manager) Subscribe(fn func(State)) (cancel func()) {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// IsAdmin reports whether the current user is an administrator.
func (m *Manager) IsAdmin() bool { return m.HasRole(api.RoleAdmin) }

// IsSupervisor reports whether the current user is a supervisor.
func (m *Manager) IsSupervisor() bool { return m.HasRole(api.RoleSupervisor) }

// IsAgent reports whether the current user is an agent.
func (m *Manager) IsAgent() bool { return m.HasRole(api.RoleAgent) }

// HasRole reports whether the current user holds one of roles. It is false
// without a profile.
func (m *Manager) HasRole(roles ...api.Role) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.HasRole(roles...)
}

// Bootstrap resolves the initial session from the stored credential. With
// no credential it becomes anonymous without a network call. It always
// leaves the manager authenticated or anonymous and may be called again.
func (m *Manager) Bootstrap(ctx context.Context) State {
	ctx, span := telemetry.StartSessionSpan(ctx, "bootstrap")
	defer span.End()

	state := m.resolve(ctx, true)
	if len(m.store.Pending()) > 0 {
		m.RetryRevocations(ctx)
	}
	telemetry.RecordSuccess(span)
	return state
}

// Refresh re-fetches the profile of the resident credential. Failure is
// handled like a failed bootstrap.
func (m *Manager) Refresh(ctx context.Context) State {
	ctx, span := telemetry.StartSessionSpan(ctx, "refresh")
	defer span.End()

	state := m.resolve(ctx, false)
	telemetry.RecordSuccess(span)
	return state
}

// resolve fetches /auth/me for the resident credential. showChecking moves a
// non-authenticated session to checking while the request is in flight.
func (m *Manager) resolve(ctx context.Context, showChecking bool) State {
	token, ok := m.store.Get()
	if !ok {
		return m.transition(func(State) State {
			return State{Status: StatusAnonymous}
		})
	}

	var gen uint64
	if showChecking && m.State().Status != StatusAuthenticated {
		gen = m.transition(func(s State) State {
			return State{Status: StatusChecking}
		}).Generation
	} else {
		gen = m.State().Generation
	}

	user, err := m.backend.Me(ctx)

	if !m.IsCurrent(gen) {
		m.logger.DebugContext(ctx, "discarding stale profile response", "generation", gen)
		return m.State()
	}

	if err != nil {
		// The credential is unusable; drop it unless a newer one replaced it.
		if _, clearErr := m.store.CompareAndClear(token); clearErr != nil {
			m.logger.WarnContext(ctx, "failed to clear credential", "error", clearErr.Error())
		}
		m.logger.WithError(err).InfoContext(ctx, "stored session rejected",
			"fingerprint", credential.Fingerprint(token))
		return m.transitionIf(gen, func(State) State {
			return State{Status: StatusAnonymous, LastError: errors.UserMessage(err)}
		})
	}

	return m.transitionIf(gen, func(State) State {
		if !m.holds(token) {
			return State{Status: StatusAnonymous, LastError: expiredMessage}
		}
		return State{Status: StatusAuthenticated, User: user}
	})
}

// holds reports whether token is still the resident credential. A 401 that
// lands before the authenticated transition has already cleared it, and
// handleExpired ignores events for a session that is not yet authenticated.
func (m *Manager) holds(token credential.Token) bool {
	t, ok := m.store.Get()
	return ok && t == token
}

// Login exchanges credentials for a token, stores it, then publishes the
// authenticated state. On failure the error message is kept in LastError and
// returned; an existing session is left as it was.
func (m *Manager) Login(ctx context.Context, creds api.Credentials) (*User, error) {
	ctx, span := telemetry.StartSessionSpan(ctx, "login")
	defer span.End()

	resp, err := m.backend.Login(ctx, creds)
	if err != nil {
		telemetry.RecordError(span, err)
		m.logger.WithError(err).InfoContext(ctx, "login failed", "username", creds.Username)
		m.transition(func(s State) State {
			if s.Status == StatusAuthenticated {
				s.LastError = errors.UserMessage(err)
				return s
			}
			return State{Status: StatusAnonymous, LastError: errors.UserMessage(err)}
		})
		return nil, err
	}

	// The credential write happens before any observer sees authenticated.
	token := credential.Token(resp.AccessToken)
	if err := m.store.Set(token); err != nil {
		telemetry.RecordError(span, err)
		m.transition(func(State) State {
			return State{Status: StatusAnonymous, LastError: errors.UserMessage(err)}
		})
		return nil, err
	}

	user := *resp.User
	s := m.transition(func(State) State {
		if !m.holds(token) {
			return State{Status: StatusAnonymous, LastError: expiredMessage}
		}
		return State{Status: StatusAuthenticated, User: &user}
	})
	if s.Status != StatusAuthenticated {
		err := errors.NewAuthExpiredError(expiredMessage)
		telemetry.RecordError(span, err)
		m.logger.InfoContext(ctx, "credential rejected before sign-in completed",
			"username", user.Username,
			"fingerprint", credential.Fingerprint(token))
		return nil, err
	}
	m.logger.InfoContext(ctx, "signed in",
		"username", user.Username,
		"role", string(user.Role),
		"fingerprint", credential.Fingerprint(token))
	telemetry.RecordSuccess(span)

	m.RetryRevocations(ctx)

	u := user
	return &u, nil
}

// Logout notifies the backend best-effort, then clears the credential and
// profile. It always ends anonymous. A failed logout call queues the token
// for revocation later; only a local store failure is returned.
func (m *Manager) Logout(ctx context.Context) error {
	ctx, span := telemetry.StartSessionSpan(ctx, "logout")
	defer span.End()

	token, ok := m.store.Get()
	if ok {
		switch err := m.backend.Logout(ctx); {
		case err == nil:
			m.metrics.ObserveRevocation("ok")
		case errors.IsAuthExpired(err):
			// Already dead server-side.
			m.metrics.ObserveRevocation("ok")
		default:
			m.metrics.ObserveRevocation("queued")
			m.logger.WithError(err).WarnContext(ctx, "logout call failed, queued for revocation",
				"fingerprint", credential.Fingerprint(token))
			if qErr := m.store.AddPending(token); qErr != nil {
				m.logger.WithError(qErr).WarnContext(ctx, "failed to queue revocation")
			}
		}
	}

	clearErr := m.store.Clear()
	m.transition(func(State) State {
		return State{Status: StatusAnonymous}
	})

	if clearErr != nil {
		telemetry.RecordError(span, clearErr)
		return clearErr
	}
	telemetry.RecordSuccess(span)
	return nil
}

// RetryRevocations makes one attempt to revoke each queued token. Tokens the
// backend accepts or already rejects are dropped; the rest stay queued. It
// returns how many were revoked.
func (m *Manager) RetryRevocations(ctx context.Context) int {
	revoked := 0
	for _, p := range m.store.Pending() {
		fp := credential.Fingerprint(p.Token)
		if err := m.backend.Revoke(ctx, p.Token); err != nil {
			m.metrics.ObserveRevocation("failed")
			m.logger.WithError(err).DebugContext(ctx, "revocation retry failed", "fingerprint", fp)
			continue
		}
		if err := m.store.RemovePending(p.Token); err != nil {
			m.logger.WithError(err).WarnContext(ctx, "failed to dequeue revocation", "fingerprint", fp)
			continue
		}
		m.metrics.ObserveRevocation("retried")
		revoked++
	}
	return revoked
}

const expiredMessage = "session expired"

// handleExpired treats a pipeline 401 like a local logout.
func (m *Manager) handleExpired(ev api.AuthExpiredEvent) {
	message := ev.Message
	if message == "" {
		message = expiredMessage
	}
	m.logger.Info("session expired", "endpoint", ev.Endpoint, "fingerprint", ev.Fingerprint)
	m.transition(func(s State) State {
		// A pending bootstrap resolves the failure itself. A token present
		// here was stored by a login that finished after the 401.
		if s.Status != StatusAuthenticated {
			return s
		}
		if _, ok := m.store.Get(); ok {
			return s
		}
		return State{Status: StatusAnonymous, LastError: message}
	})
}

// transition applies fn to the current state and publishes the result.
func (m *Manager) transition(fn func(State) State) State {
	return m.apply(0, false, fn)
}

// transitionIf applies fn only while gen is still current.
func (m *Manager) transitionIf(gen uint64, fn func(State) State) State {
	return m.apply(gen, true, fn)
}

func (m *Manager) apply(gen uint64, guarded bool, fn func(State) State) State {
	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()

	m.mu.Lock()
	prev := m.state
	if guarded && prev.Generation != gen {
		m.mu.Unlock()
		return prev.clone()
	}
	next := fn(prev.clone())
	next.Generation = prev.Generation
	if next.equal(prev) {
		m.mu.Unlock()
		return prev.clone()
	}
	next.Generation = prev.Generation + 1
	m.state = next
	fns := make([]func(State), 0, len(m.subscribers))
	for _, f := range m.subscribers {
		fns = append(fns, f)
	}
	m.mu.Unlock()

	if err := m.check(next); err != nil {
		m.logger.Error("session invariant violated", "error", err.Error())
	}
	if prev.Status != next.Status {
		m.metrics.ObserveTransition(string(prev.Status), string(next.Status))
		m.logger.Debug("session transition", "from", string(prev.Status), "to", string(next.Status), "generation", next.Generation)
	}

	for _, f := range fns {
		f(next.clone())
	}
	return next.clone()
}

// check verifies that authenticated holds iff a profile and a credential
// are both present.
func (m *Manager) check(s State) error {
	_, hasToken := m.store.Get()
	authenticated := s.Status == StatusAuthenticated
	if authenticated != (s.User != nil && hasToken) {
		return fmt.Errorf("status=%s user=%t credential=%t", s.Status, s.User != nil, hasToken)
	}
	return nil
}
