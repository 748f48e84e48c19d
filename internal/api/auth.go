package api

import (
	"context"
	"net/http"

	"github.com/felixgeelhaar/switchboard/internal/credential"
	"github.com/felixgeelhaar/switchboard/internal/errors"
)

// MinPasswordLength matches the backend's password policy.
const MinPasswordLength = 8

// Credentials are what a user types at the login prompt. Username may also
// be an email address.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate rejects empty fields before a request is made.
func (c Credentials) Validate() error {
	if c.Username == "" || c.Password == "" {
		return errors.New(errors.ErrCodeAuthInvalidInput, "Username and password are required")
	}
	return nil
}

// LoginResponse is the body of a successful /auth/login. The backend also
// issues a refresh token; it is ignored because the store holds one slot.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	User        *User  `json:"user"`
}

// SetupStatus reports whether the backend has an administrator yet.
type SetupStatus struct {
	HasAdmin             bool   `json:"has_admin"`
	AdminCount           int    `json:"admin_count"`
	SetupRequired        bool   `json:"setup_required"`
	RegistrationEndpoint string `json:"registration_endpoint"`
}

// Health is the body of /health.
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// Login posts credentials to /auth/login. It does not store the token;
// that is the session manager's job. The request is anonymous so a rejected
// password never evicts a session that is already resident.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResponse, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	var resp LoginResponse
	if err := c.Do(ctx, Request{Method: http.MethodPost, Endpoint: "/auth/login", Body: creds, Anonymous: true}, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" || resp.User == nil {
		return nil, errors.NewMalformedResponseError(http.StatusOK, errMissingField("access_token or user"))
	}
	return &resp, nil
}

// Me fetches the profile of the resident credential.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var resp struct {
		User *User `json:"user"`
	}
	if err := c.Do(ctx, Request{Method: http.MethodGet, Endpoint: "/auth/me"}, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, errors.NewMalformedResponseError(http.StatusOK, errMissingField("user"))
	}
	return resp.User, nil
}

// Logout tells the backend the resident credential is done.
func (c *Client) Logout(ctx context.Context) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Endpoint: "/auth/logout"}, nil)
}

// Revoke calls /auth/logout with an explicit token instead of the resident
// one. It is used to retry revocations that failed earlier. A 401 means the
// token is already dead, which counts as revoked.
func (c *Client) Revoke(ctx context.Context, token credential.Token) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+string(token))

	_, err := c.Execute(ctx, Request{
		Method:    http.MethodPost,
		Endpoint:  "/auth/logout",
		Header:    header,
		Anonymous: true,
	})
	if errors.IsAuthExpired(err) {
		return nil
	}
	return err
}

// ChangePassword changes the current user's password.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	if current == "" || next == "" {
		return errors.New(errors.ErrCodeAuthInvalidInput, "Current password and new password are required")
	}
	if len(next) < MinPasswordLength {
		return errors.New(errors.ErrCodeAuthInvalidInput, "Password must be at least 8 characters long")
	}
	body := map[string]string{
		"current_password": current,
		"new_password":     next,
	}
	return c.Do(ctx, Request{Method: http.MethodPost, Endpoint: "/auth/change-password", Body: body}, nil)
}

// AdminRegistration is the body of /auth/register-admin. The backend fills
// in "Admin User" when the names are left out.
type AdminRegistration struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Validate rejects missing fields and short passwords before a request is made.
func (r AdminRegistration) Validate() error {
	if r.Username == "" || r.Email == "" || r.Password == "" {
		return errors.New(errors.ErrCodeAuthInvalidInput, "Username, password, and email are required")
	}
	if len(r.Password) < MinPasswordLength {
		return errors.New(errors.ErrCodeAuthInvalidInput, "Password must be at least 8 characters long")
	}
	return nil
}

// RegisterAdmin creates the first administrator on a fresh backend. The
// request is anonymous. The token the backend issues alongside the profile
// is discarded; the new administrator signs in through Login like anyone else.
func (c *Client) RegisterAdmin(ctx context.Context, reg AdminRegistration) (*User, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	var resp struct {
		User *User `json:"user"`
	}
	if err := c.Do(ctx, Request{Method: http.MethodPost, Endpoint: "/auth/register-admin", Body: reg, Anonymous: true}, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, errors.NewMalformedResponseError(http.StatusCreated, errMissingField("user"))
	}
	return resp.User, nil
}

// SetupStatus reports whether an administrator must be registered first.
func (c *Client) SetupStatus(ctx context.Context) (*SetupStatus, error) {
	var resp SetupStatus
	if err := c.Do(ctx, Request{Method: http.MethodGet, Endpoint: "/auth/setup-status"}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks that the backend is up. It needs no credential.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var resp Health
	if err := c.Do(ctx, Request{Method: http.MethodGet, Endpoint: "/health"}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type errMissingField string

func (e errMissingField) Error() string {
	return "response is missing " + string(e)
}
