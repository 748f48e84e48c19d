// Package session owns the current user's authentication state and its
// lifecycle: bootstrap from a stored credential, login, logout, refresh and
// expiry driven by the request pipeline.
package session

import (
	"slices"

	"github.com/felixgeelhaar/switchboard/internal/api"
)

// Status is the session lifecycle state.
type Status string

const (
	// StatusChecking is the initial state, before bootstrap has resolved.
	StatusChecking Status = "checking"
	// StatusAuthenticated means a profile and a credential are both present.
	StatusAuthenticated Status = "authenticated"
	// StatusAnonymous means there is no usable session.
	StatusAnonymous Status = "anonymous"
)

// User is the profile snapshot of the signed-in user.
type User = api.User

// State is an immutable snapshot of the session. User is a private copy.
type State struct {
	Status    Status
	User      *User
	LastError string
	// Generation increases on every transition. A response started under
	// an older generation is stale.
	Generation uint64
}

// Authenticated reports whether the snapshot is signed in.
func (s State) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil
}

// Role returns the signed-in role, or "" when anonymous.
func (s State) Role() api.Role {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}

// HasRole reports whether the signed-in role is one of roles.
func (s State) HasRole(roles ...api.Role) bool {
	if !s.Authenticated() {
		return false
	}
	return slices.Contains(roles, s.User.Role)
}

func (s State) clone() State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

func (s State) equal(o State) bool {
	if s.Status != o.Status || s.LastError != o.LastError || s.Generation != o.Generation {
		return false
	}
	if s.User == nil || o.User == nil {
		return s.User == o.User
	}
	return *s.User == *o.User
}
