// Package credential persists the bearer token that proves a session to the
// backend. There is exactly one token slot; tokens whose server-side logout
// failed are kept on a separate pending-revocation list.
package credential

import (
	"encoding/hex"
	"time"

	"github.com/zeebo/blake3"
)

// SlotName is the fixed key under which the session token is stored.
const SlotName = "switchboard_token"

// Token is an opaque bearer token. The empty token means "absent".
type Token string

// Pending is a token whose logout call did not reach the backend.
type Pending struct {
	Token    Token     `json:"token"`
	QueuedAt time.Time `json:"queuedAt"`
}

// Store is the single-slot token store shared by the request pipeline and the
// session manager.
//
// Implementations must be safe for concurrent use. Set("") and Clear() are
// indistinguishable from a slot that was never written.
type Store interface {
	// Get returns the resident token and whether one is present.
	Get() (Token, bool)

	// Set replaces the resident token. An empty token clears the slot.
	Set(token Token) error

	// Clear empties the slot.
	Clear() error

	// CompareAndClear empties the slot only if it still holds expected and
	// reports whether it did.
	CompareAndClear(expected Token) (bool, error)

	// AddPending queues a token for server-side revocation.
	AddPending(token Token) error

	// Pending lists queued revocations, oldest first.
	Pending() []Pending

	// RemovePending drops a token from the revocation queue.
	RemovePending(token Token) error
}

// Fingerprint returns a short, stable digest of token for logs and status
// output. The token itself is never logged.
func Fingerprint(token Token) string {
	if token == "" {
		return ""
	}
	sum := blake3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}
