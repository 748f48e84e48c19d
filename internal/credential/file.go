package credential

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/felixgeelhaar/switchboard/internal/errors"
)

const fileVersion = 1

// document is the on-disk layout of the credential file.
type document struct {
	Version   int              `json:"version"`
	Encrypted bool             `json:"encrypted,omitempty"`
	Salt      string           `json:"salt,omitempty"`
	Slots     map[string]entry `json:"slots"`
	Pending   []entry          `json:"pending,omitempty"`
}

type entry struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FileStore persists the token slot in a JSON file so a session survives a
// process restart. Values are sealed with AES-GCM when a passphrase is set.
//
// Reads are served from memory. Every write first re-reads the file, so a
// long-running process such as the console picks up a logout or login made
// by another switchboard process instead of writing its stale token back.
type FileStore struct {
	mu      sync.RWMutex
	path    string
	sealer  *sealer
	salt    []byte
	token   Token
	pending []Pending
	// unsavedClear is set while a clear has taken effect in memory but not
	// on disk; reload must not bring the old token back.
	unsavedClear bool
}

// FileOption configures a FileStore.
type FileOption func(*fileOptions)

type fileOptions struct {
	passphrase string
}

// WithPassphrase enables at-rest encryption of stored tokens.
func WithPassphrase(passphrase string) FileOption {
	return func(o *fileOptions) {
		o.passphrase = passphrase
	}
}

// OpenFileStore loads the credential file at path, creating nothing until the
// first write. A missing file is an empty store.
func OpenFileStore(path string, opts ...FileOption) (*FileStore, error) {
	var o fileOptions
	for _, opt := range opts {
		opt(&o)
	}

	s := &FileStore{path: path}

	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}

	if o.passphrase != "" {
		salt, err := s.resolveSalt(doc)
		if err != nil {
			return nil, err
		}
		s.salt = salt
		s.sealer = newSealer(o.passphrase, salt)
	}

	token, pending, err := s.parse(doc)
	if err != nil {
		return nil, err
	}
	s.token, s.pending = token, pending
	return s, nil
}

// parse decodes the token slot and revocation queue of doc. A nil doc is an
// empty store.
func (s *FileStore) parse(doc *document) (Token, []Pending, error) {
	if doc == nil {
		return "", nil, nil
	}
	if doc.Encrypted && s.sealer == nil {
		return "", nil, errors.New(errors.ErrCodeCredentialStore, "credential file is encrypted").
			WithSuggestion("Set SWITCHBOARD_PASSPHRASE to the passphrase used at login").
			WithSuggestion("Or run 'switchboard auth logout' to discard the stored session")
	}

	var token Token
	if e, ok := doc.Slots[SlotName]; ok {
		value, err := s.decode(doc.Encrypted, e.Value)
		if err != nil {
			return "", nil, errors.Wrap(errors.ErrCodeCredentialStore, "failed to decrypt credential file", err).
				WithSuggestion("Check that SWITCHBOARD_PASSPHRASE matches the passphrase used at login")
		}
		token = Token(value)
	}
	var pending []Pending
	for _, e := range doc.Pending {
		value, err := s.decode(doc.Encrypted, e.Value)
		if err != nil {
			return "", nil, errors.Wrap(errors.ErrCodeCredentialStore, "failed to decrypt pending revocation", err)
		}
		pending = append(pending, Pending{Token: Token(value), QueuedAt: e.UpdatedAt})
	}
	return token, pending, nil
}

// reload adopts what another process wrote since this store last looked,
// so a write here never undoes its logout or login. Must be called with mu
// held. An unreadable file leaves the in-memory state as it was.
func (s *FileStore) reload() {
	doc, err := readDocument(s.path)
	if err != nil {
		return
	}
	token, pending, err := s.parse(doc)
	if err != nil {
		return
	}
	if !s.unsavedClear {
		s.token = token
	}
	s.pending = pending
}

// Path returns the location of the credential file.
func (s *FileStore) Path() string {
	return s.path
}

// Encrypted reports whether values are sealed at rest.
func (s *FileStore) Encrypted() bool {
	return s.sealer != nil
}

// Get returns the resident token.
func (s *FileStore) Get() (Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Set replaces the resident token and rewrites the file. If the write
// fails a new token is not adopted, but a clear still takes effect in
// memory so this process stops sending the old token.
func (s *FileStore) Set(token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reload()
	previous := s.token
	s.token = token
	if err := s.save(); err != nil {
		if token != "" {
			s.token = previous
		}
		return err
	}
	return nil
}

// Clear empties the slot.
func (s *FileStore) Clear() error {
	return s.Set("")
}

// CompareAndClear empties the slot if it still holds expected. A different
// token written to the file by another process is adopted and kept.
func (s *FileStore) CompareAndClear(expected Token) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expected == "" || s.token != expected {
		return false, nil
	}
	s.reload()
	if s.token != "" && s.token != expected {
		return false, nil
	}
	s.token = ""
	if err := s.save(); err != nil {
		return true, err
	}
	return true, nil
}

// AddPending queues token for revocation.
func (s *FileStore) AddPending(token Token) error {
	if token == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reload()
	previous := s.pending
	s.pending = appendPending(append([]Pending(nil), s.pending...), token, time.Now().UTC())
	if err := s.save(); err != nil {
		s.pending = previous
		return err
	}
	return nil
}

// Pending lists queued revocations.
func (s *FileStore) Pending() []Pending {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Pending(nil), s.pending...)
}

// RemovePending drops token from the queue.
func (s *FileStore) RemovePending(token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reload()
	previous := s.pending
	s.pending = removePending(append([]Pending(nil), s.pending...), token)
	if err := s.save(); err != nil {
		s.pending = previous
		return err
	}
	return nil
}

func (s *FileStore) resolveSalt(doc *document) ([]byte, error) {
	if doc != nil && doc.Salt != "" {
		salt, err := base64.StdEncoding.DecodeString(doc.Salt)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeCredentialStore, "invalid salt in credential file", err)
		}
		return salt, nil
	}
	salt, err := newSalt()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCredentialStore, "failed to generate salt", err)
	}
	return salt, nil
}

func (s *FileStore) decode(encrypted bool, value string) (string, error) {
	if !encrypted {
		return value, nil
	}
	return s.sealer.open(value)
}

func (s *FileStore) encode(value string) (string, error) {
	if s.sealer == nil {
		return value, nil
	}
	return s.sealer.seal(value)
}

// save writes the current state. Must be called with mu held.
func (s *FileStore) save() error {
	now := time.Now().UTC()
	doc := document{
		Version:   fileVersion,
		Encrypted: s.sealer != nil,
		Slots:     map[string]entry{},
	}
	if s.sealer != nil {
		doc.Salt = base64.StdEncoding.EncodeToString(s.salt)
	}

	if s.token != "" {
		value, err := s.encode(string(s.token))
		if err != nil {
			return errors.Wrap(errors.ErrCodeCredentialStore, "failed to encrypt token", err)
		}
		doc.Slots[SlotName] = entry{Value: value, UpdatedAt: now}
	}
	for _, p := range s.pending {
		value, err := s.encode(string(p.Token))
		if err != nil {
			return errors.Wrap(errors.ErrCodeCredentialStore, "failed to encrypt pending revocation", err)
		}
		doc.Pending = append(doc.Pending, entry{Value: value, UpdatedAt: p.QueuedAt})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to encode credential file", err)
	}
	err = writeFileAtomic(s.path, data)
	switch {
	case err == nil:
		s.unsavedClear = false
	case s.token == "":
		s.unsavedClear = true
	}
	return err
}

func readDocument(path string) (*document, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from configuration
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read %s", path), err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewFileUnmarshalError(path, "JSON", err).
			WithSuggestion("Delete the file to discard the stored session")
	}
	return &doc, nil
}

// writeFileAtomic writes data next to path and renames it into place so a
// concurrent reader sees either the old or the new file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, fmt.Sprintf("failed to create %s", dir), err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to create temp file", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to set permissions", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write credential file", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to sync credential file", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to close credential file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to replace credential file", err)
	}
	return nil
}
