// Package route decides what a session may render. Decisions are pure
// functions of the session snapshot and the requested path.
package route

import (
	"path"
	"slices"
	"strings"

	"github.com/felixgeelhaar/switchboard/internal/api"
)

// Outcome is the result of authorizing a navigation.
type Outcome string

const (
	OutcomeLoading              Outcome = "loading"
	OutcomeRender               Outcome = "render"
	OutcomeRedirectLogin        Outcome = "redirect-to-login"
	OutcomeRedirectUnauthorized Outcome = "redirect-to-unauthorized"
	OutcomeRedirectHome         Outcome = "redirect-to-home"
)

// Redirect reports whether the outcome navigates away from the request.
func (o Outcome) Redirect() bool {
	switch o {
	case OutcomeRedirectLogin, OutcomeRedirectUnauthorized, OutcomeRedirectHome:
		return true
	}
	return false
}

// Well-known paths.
const (
	LoginPath        = "/login"
	UnauthorizedPath = "/unauthorized"
	AdminHome        = "/admin"
	AgentHome        = "/agent"
)

// Route declares one navigable path.
//
// An exact route matches only its own path. A section route also matches
// every descendant and is what authorization falls back to for paths that
// are not declared themselves.
type Route struct {
	Path  string     `yaml:"path"`
	Roles []api.Role `yaml:"roles,omitempty"`
	Exact bool       `yaml:"exact,omitempty"`
	// Public routes render for anonymous sessions.
	Public bool `yaml:"public,omitempty"`
	// Entry routes send authenticated sessions to their workspace home.
	Entry bool   `yaml:"entry,omitempty"`
	Title string `yaml:"title,omitempty"`
	// Endpoint is the backend resource the view lists, relative to the
	// API base URL.
	Endpoint string `yaml:"endpoint,omitempty"`
}

// Allows reports whether role may render the route. A route without
// declared roles allows every authenticated role.
func (r Route) Allows(role api.Role) bool {
	return len(r.Roles) == 0 || slices.Contains(r.Roles, role)
}

// Matches reports whether p falls under the route: the path itself, or
// any descendant for a section route.
func (r Route) Matches(p string) bool {
	return IsActive(p, r.Path, r.Exact)
}

// HomeFor returns the default workspace for role.
func HomeFor(role api.Role) string {
	switch role {
	case api.RoleAdmin, api.RoleSupervisor:
		return AdminHome
	case api.RoleAgent:
		return AgentHome
	default:
		return UnauthorizedPath
	}
}

// IsActive reports whether a navigation entry for target should be
// highlighted while current is displayed. Used for presentation only.
func IsActive(current, target string, exact bool) bool {
	current, target = Normalize(current), Normalize(target)
	if current == target {
		return true
	}
	if exact {
		return false
	}
	if target == "/" {
		return true
	}
	return strings.HasPrefix(current, target+"/")
}

// Normalize strips the query and fragment, cleans the path and removes a
// trailing slash.
func Normalize(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// EndpointFor returns the backend resource for p under the route. A
// descendant of a section maps onto the same suffix of the endpoint, so
// /admin/campaigns/12 lists /campaigns/12.
func (r Route) EndpointFor(p string) string {
	if r.Endpoint == "" {
		return ""
	}
	p = Normalize(p)
	if r.Exact || p == r.Path || !r.Matches(p) {
		return r.Endpoint
	}
	suffix := strings.TrimPrefix(p, r.Path)
	if r.Path == "/" {
		suffix = p
	}
	return strings.TrimSuffix(r.Endpoint, "/") + suffix
}
