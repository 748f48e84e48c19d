package session

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/switchboard/internal/api"
	"github.com/felixgeelhaar/switchboard/internal/credential"
	"github.com/felixgeelhaar/switchboard/internal/errors"
)

type outcome int

const (
	outcomeOK outcome = iota
	outcomeRejected
	outcomeNetwork
	outcomeServerError
)

// fakeBackend mimics the request pipeline's credential handling without
// HTTP: a rejected call clears the token it was sent with and emits the
// auth-expired event once.
type fakeBackend struct {
	store credential.Store

	mu          sync.Mutex
	user        api.User
	nextToken   string
	login       outcome
	me          outcome
	logout      outcome
	revoke      outcome
	calls       map[string]int
	revoked     []credential.Token
	meGate      chan struct{}
	subscribers map[int]func(api.AuthExpiredEvent)
	nextSub     int
}

func newFakeBackend(store credential.Store) *fakeBackend {
	return &fakeBackend{
		store:       store,
		user:        api.User{ID: 1, Username: "ann", Role: api.RoleAgent},
		nextToken:   "t1",
		calls:       map[string]int{},
		subscribers: map[int]func(api.AuthExpiredEvent){},
	}
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeBackend) fail(o outcome, sent credential.Token, endpoint string) error {
	switch o {
	case outcomeRejected:
		if sent != "" {
			if cleared, _ := f.store.CompareAndClear(sent); cleared {
				f.emit(api.AuthExpiredEvent{Endpoint: endpoint, Message: "Token has expired"})
			}
		}
		return errors.NewAuthExpiredError("Token has expired")
	case outcomeNetwork:
		return errors.NewNetworkError("GET", endpoint, context.DeadlineExceeded)
	case outcomeServerError:
		return errors.NewAPIError(500, "", "")
	}
	return nil
}

func (f *fakeBackend) Login(ctx context.Context, creds api.Credentials) (*api.LoginResponse, error) {
	f.record("login")
	f.mu.Lock()
	o, user, token := f.login, f.user, f.nextToken
	f.mu.Unlock()
	if o == outcomeRejected {
		return nil, errors.NewAuthExpiredError("bad creds")
	}
	if err := f.fail(o, "", "/auth/login"); err != nil {
		return nil, err
	}
	return &api.LoginResponse{AccessToken: token, User: &user}, nil
}

func (f *fakeBackend) Me(ctx context.Context) (*api.User, error) {
	f.record("me")
	sent, _ := f.store.Get()
	f.mu.Lock()
	o, user, gate := f.me, f.user, f.meGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if sent == "" {
		return nil, errors.NewAuthExpiredError("Authorization token is required")
	}
	if err := f.fail(o, sent, "/auth/me"); err != nil {
		return nil, err
	}
	return &user, nil
}

func (f *fakeBackend) Logout(ctx context.Context) error {
	f.record("logout")
	sent, _ := f.store.Get()
	f.mu.Lock()
	o := f.logout
	f.mu.Unlock()
	return f.fail(o, sent, "/auth/logout")
}

func (f *fakeBackend) Revoke(ctx context.Context, token credential.Token) error {
	f.record("revoke")
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.revoke {
	case outcomeNetwork:
		return errors.NewNetworkError("POST", "/auth/logout", context.DeadlineExceeded)
	case outcomeServerError:
		return errors.NewAPIError(500, "", "")
	}
	f.revoked = append(f.revoked, token)
	return nil
}

func (f *fakeBackend) OnAuthExpired(fn func(api.AuthExpiredEvent)) func() {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subscribers[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subscribers, id)
		f.mu.Unlock()
	}
}

func (f *fakeBackend) emit(ev api.AuthExpiredEvent) {
	f.mu.Lock()
	fns := make([]func(api.AuthExpiredEvent), 0, len(f.subscribers))
	for _, fn := range f.subscribers {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (f *fakeBackend) set(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}
