package credential

import (
	"sync"
	"time"
)

// MemoryStore keeps the token in process memory. It backs tests and
// ephemeral console runs.
type MemoryStore struct {
	mu      sync.RWMutex
	token   Token
	pending []Pending
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the resident token.
func (m *MemoryStore) Get() (Token, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != ""
}

// Set replaces the resident token.
func (m *MemoryStore) Set(token Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

// Clear empties the slot.
func (m *MemoryStore) Clear() error {
	return m.Set("")
}

// CompareAndClear empties the slot if it still holds expected.
func (m *MemoryStore) CompareAndClear(expected Token) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if expected == "" || m.token != expected {
		return false, nil
	}
	m.token = ""
	return true, nil
}

// AddPending queues token for revocation. Duplicates are ignored.
func (m *MemoryStore) AddPending(token Token) error {
	if token == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = appendPending(m.pending, token, time.Now())
	return nil
}

// Pending lists queued revocations.
func (m *MemoryStore) Pending() []Pending {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Pending(nil), m.pending...)
}

// RemovePending drops token from the queue.
func (m *MemoryStore) RemovePending(token Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = removePending(m.pending, token)
	return nil
}

func appendPending(list []Pending, token Token, now time.Time) []Pending {
	for _, p := range list {
		if p.Token == token {
			return list
		}
	}
	return append(list, Pending{Token: token, QueuedAt: now})
}

func removePending(list []Pending, token Token) []Pending {
	out := list[:0]
	for _, p := range list {
		if p.Token != token {
			out = append(out, p)
		}
	}
	return out
}
