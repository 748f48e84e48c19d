package health

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/felixgeelhaar/switchboard/internal/api"
	"github.com/felixgeelhaar/switchboard/internal/credential"
	"github.com/felixgeelhaar/switchboard/internal/errors"
	"github.com/felixgeelhaar/switchboard/internal/route"
	"github.com/felixgeelhaar/switchboard/internal/session"
)

// Backend is the part of the API client the backend checks call.
type Backend interface {
	Health(ctx context.Context) (*api.Health, error)
	SetupStatus(ctx context.Context) (*api.SetupStatus, error)
}

// Bootstrapper resolves the stored session against the backend.
type Bootstrapper interface {
	Bootstrap(ctx context.Context) session.State
}

// NewBackendChecker reports whether the backend answers /health.
func NewBackendChecker(b Backend, baseURL string) Checker {
	return NewCheck("backend", func(ctx context.Context) *Result {
		start := time.Now()
		h, err := b.Health(ctx)
		latency := time.Since(start)
		if err != nil {
			return Unhealthy(errors.UserMessage(err)).
				WithDetail("url", baseURL).
				WithFix("Check api.base_url in the config or pass --api-url").
				WithLatency(latency)
		}
		r := Healthy(fmt.Sprintf("%s (%s)", h.Status, latency.Round(time.Millisecond))).
			WithDetail("url", baseURL).
			WithLatency(latency)
		if h.Version != "" {
			r.WithDetail("version", h.Version)
		}
		return r
	})
}

// NewSetupChecker reports whether the backend still needs its first
// administrator.
func NewSetupChecker(b Backend) Checker {
	return NewCheck("setup", func(ctx context.Context) *Result {
		s, err := b.SetupStatus(ctx)
		switch {
		case err != nil:
			return Degraded("setup status unavailable")
		case s.SetupRequired:
			return Degraded("no administrator exists yet").
				WithFix("Register one with: switchboard auth register-admin")
		default:
			return Healthy(fmt.Sprintf("%d administrator(s)", s.AdminCount)).
				WithDetail("admin_count", s.AdminCount)
		}
	})
}

// NewCredentialChecker inspects the credential store: file permissions,
// encryption, and the expiry claim of the resident token.
func NewCredentialChecker(store credential.Store, passphraseEnv string) Checker {
	return NewCheck("credentials", func(ctx context.Context) *Result {
		fs, ok := store.(*credential.FileStore)
		if !ok {
			return Healthy("in memory (--ephemeral)")
		}

		r := Healthy(fs.Path()).WithDetail("encrypted", fs.Encrypted())
		if !fs.Encrypted() {
			r = Degraded(fs.Path()+" is not encrypted").
				WithDetail("encrypted", false).
				WithFix("Set " + passphraseEnv + " to encrypt the token at rest")
		}

		if info, err := os.Stat(fs.Path()); err == nil {
			if perm := info.Mode().Perm(); perm&0o077 != 0 {
				return Unhealthy(fmt.Sprintf("%s is readable by others (%o)", fs.Path(), perm)).
					WithFix("Run 'chmod 600 " + fs.Path() + "'")
			}
		}

		token, ok := store.Get()
		if !ok {
			return r
		}
		r.WithDetail("fingerprint", credential.Fingerprint(token))
		if claims, err := credential.Inspect(token); err == nil && claims.Expired(time.Now()) {
			return Degraded("stored token has expired").
				WithDetail("fingerprint", credential.Fingerprint(token)).
				WithFix("Sign in again with 'switchboard auth login'")
		}
		return r
	})
}

// NewRouteChecker validates the route table load returns.
func NewRouteChecker(load func() (*route.Table, error), source string) Checker {
	if source == "" {
		source = "built-in"
	}
	return NewCheck("routes", func(ctx context.Context) *Result {
		t, err := load()
		if err != nil {
			return Unhealthy(errors.UserMessage(err)).
				WithFix("Fix " + source + " or remove routes.file from the config")
		}
		return Healthy(fmt.Sprintf("%s, %d routes", source, len(t.Routes)))
	})
}

// NewSessionChecker bootstraps the stored session and reports queued
// revocations. It probes the backend first: a bootstrap that cannot reach
// the backend would discard the token.
func NewSessionChecker(store credential.Store, b Bootstrapper, probe Backend) Checker {
	return NewCheck("session", func(ctx context.Context) *Result {
		pending := len(store.Pending())

		var r *Result
		if _, ok := store.Get(); !ok {
			r = Degraded("not signed in").WithFix("Sign in with 'switchboard auth login'")
		} else if _, err := probe.Health(ctx); err != nil {
			r = Degraded("token stored, backend unreachable")
		} else if state := b.Bootstrap(ctx); state.Authenticated() {
			r = Healthy(fmt.Sprintf("%s (%s)", state.User.DisplayName(), state.User.Role))
		} else {
			r = Degraded("stored session is not usable: " + state.LastError).
				WithFix("Sign in again with 'switchboard auth login'")
		}

		r.WithDetail("pending_revocations", pending)
		if pending > 0 && r.Status == StatusHealthy {
			r.Status = StatusDegraded
			r.Message += fmt.Sprintf(", %d token(s) queued for revocation", pending)
			r.WithFix("Run 'switchboard auth revoke'")
		}
		return r
	})
}
