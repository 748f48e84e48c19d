package route

import (
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/felixgeelhaar/switchboard/internal/api"
	"github.com/felixgeelhaar/switchboard/internal/log"
	"github.com/felixgeelhaar/switchboard/internal/session"
)

func genPath() *rapid.Generator[string] {
	segment := rapid.SampledFrom([]string{
		"admin", "agent", "login", "unauthorized", "campaigns", "leads",
		"users", "sip", "reports", "dialer", "calls", "42", "x",
	})
	return rapid.Custom(func(t *rapid.T) string {
		parts := rapid.SliceOfN(segment, 0, 4).Draw(t, "segments")
		p := "/" + strings.Join(parts, "/")
		if rapid.Bool().Draw(t, "trailing_slash") {
			p += "/"
		}
		return p
	})
}

func genState() *rapid.Generator[session.State] {
	return rapid.Custom(func(t *rapid.T) session.State {
		switch rapid.IntRange(0, 2).Draw(t, "status") {
		case 0:
			return session.State{Status: session.StatusChecking}
		case 1:
			return session.State{Status: session.StatusAnonymous}
		default:
			return signedIn(rapid.SampledFrom(api.Roles).Draw(t, "role"))
		}
	})
}

func TestProperty_Authorize(t *testing.T) {
	a := NewAuthorizer(nil, WithLogger(log.Discard()))

	rapid.Check(t, func(t *rapid.T) {
		state := genState().Draw(t, "state")
		p := genPath().Draw(t, "path")
		d := a.Authorize(state, p)

		switch state.Status {
		case session.StatusChecking:
			if d.Outcome != OutcomeLoading {
				t.Fatalf("checking must yield loading, got %s", d.Outcome)
			}
		case session.StatusAnonymous:
			if d.Outcome != OutcomeRender && d.Outcome != OutcomeRedirectLogin {
				t.Fatalf("anonymous got %s", d.Outcome)
			}
			if d.Outcome == OutcomeRender && (d.Route == nil || !d.Route.Public) {
				t.Fatalf("anonymous rendered non-public %s", d.Path)
			}
		case session.StatusAuthenticated:
			if d.Outcome == OutcomeRedirectLogin || d.Outcome == OutcomeLoading {
				t.Fatalf("authenticated got %s", d.Outcome)
			}
			if d.Outcome == OutcomeRender && !d.Route.Allows(state.Role()) {
				t.Fatalf("%s rendered %s declared for %v", state.Role(), d.Path, d.Route.Roles)
			}
			if d.Outcome == OutcomeRedirectHome && d.Target != HomeFor(state.Role()) {
				t.Fatalf("home redirect to %s for %s", d.Target, state.Role())
			}
		}

		// Following a redirect once must settle: the target renders.
		if d.Outcome.Redirect() {
			next := a.Authorize(state, d.Target)
			if next.Outcome != OutcomeRender {
				t.Fatalf("redirect %s -> %s did not settle: %s", d.Path, d.Target, next.Outcome)
			}
		}
	})
}

func TestProperty_IsActiveExactImpliesSection(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		current := genPath().Draw(t, "current")
		target := genPath().Draw(t, "target")

		if IsActive(current, target, true) && !IsActive(current, target, false) {
			t.Fatalf("exact match %s/%s must imply section match", current, target)
		}
		if IsActive(current, target, true) != (Normalize(current) == Normalize(target)) {
			t.Fatalf("exact highlighting must be path equality")
		}
	})
}
