package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/switchboard/internal/errors"
)

func TestLogin(t *testing.T) {
	var sent Credentials
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		_ = json.NewDecoder(r.Body).Decode(&sent)
		writeJSON(w, http.StatusOK, `{"access_token":"t1","refresh_token":"r1","token_type":"bearer","expires_in":3600,"user":{"id":1,"username":"ann","role":"agent"}}`)
	})

	resp, err := c.Login(context.Background(), Credentials{Username: "ann", Password: "pw"})
	require.NoError(t, err)

	assert.Equal(t, Credentials{Username: "ann", Password: "pw"}, sent)
	assert.Equal(t, "t1", resp.AccessToken)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.Equal(t, RoleAgent, resp.User.Role)
	_, ok := store.Get()
	assert.False(t, ok, "Login does not store the token itself")
}

func TestLogin_Validation(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.Login(context.Background(), Credentials{Username: "ann"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeAuthInvalidInput))
}

func TestLogin_MissingToken(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"user":{"id":1,"role":"agent"}}`)
	})

	_, err := c.Login(context.Background(), Credentials{Username: "a", Password: "b"})
	assert.True(t, errors.IsMalformed(err))
}

func TestMe(t *testing.T) {
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer t1", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, `{"user":{"id":4,"username":"sue","first_name":"Sue","last_name":"Park","role":"supervisor","is_active":true}}`)
	})
	require.NoError(t, store.Set("t1"))

	user, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, user.ID)
	assert.Equal(t, RoleSupervisor, user.Role)
	assert.Equal(t, "Sue Park", user.DisplayName())
}

func TestMe_MissingUser(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})

	_, err := c.Me(context.Background())
	assert.True(t, errors.IsMalformed(err))
}

func TestLogout(t *testing.T) {
	var called bool
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = r.URL.Path == "/api/auth/logout" && r.Header.Get("Authorization") == "Bearer t1"
		writeJSON(w, http.StatusOK, `{"message":"Successfully logged out"}`)
	})
	require.NoError(t, store.Set("t1"))

	require.NoError(t, c.Logout(context.Background()))
	assert.True(t, called)
}

func TestRevoke(t *testing.T) {
	var auth string
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusUnauthorized, `{"error":{"message":"Token has been revoked"}}`)
	})
	require.NoError(t, store.Set("current"))

	var fired bool
	c.OnAuthExpired(func(AuthExpiredEvent) { fired = true })

	require.NoError(t, c.Revoke(context.Background(), "old"), "a dead token counts as revoked")
	assert.Equal(t, "Bearer old", auth)
	assert.False(t, fired)

	token, _ := store.Get()
	assert.Equal(t, "current", string(token), "revoking never touches the resident credential")
}

func TestChangePassword(t *testing.T) {
	var body map[string]string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, `{"message":"Password changed successfully"}`)
	})

	require.NoError(t, c.ChangePassword(context.Background(), "oldpass", "newpassword"))
	assert.Equal(t, map[string]string{"current_password": "oldpass", "new_password": "newpassword"}, body)

	err := c.ChangePassword(context.Background(), "oldpass", "short")
	require.Error(t, err)
	assert.Equal(t, "Password must be at least 8 characters long", errors.UserMessage(err))

	err = c.ChangePassword(context.Background(), "", "newpassword")
	assert.True(t, errors.HasCode(err, errors.ErrCodeAuthInvalidInput))
}

func TestSetupStatusAndHealth(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/setup-status":
			writeJSON(w, http.StatusOK, `{"has_admin":false,"admin_count":0,"setup_required":true,"registration_endpoint":"/api/auth/register-admin"}`)
		case "/api/health":
			writeJSON(w, http.StatusOK, `{"status":"healthy","timestamp":"2026-10-17T09:00:00","version":"1.0.0"}`)
		default:
			http.NotFound(w, r)
		}
	})

	status, err := c.SetupStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.SetupRequired)
	assert.Equal(t, "/api/auth/register-admin", status.RegistrationEndpoint)

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
}

func TestRegisterAdmin(t *testing.T) {
	var sent map[string]string
	var hasAuth bool
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/register-admin", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		_, hasAuth = r.Header["Authorization"]
		_ = json.NewDecoder(r.Body).Decode(&sent)
		writeJSON(w, http.StatusCreated, `{"message":"Admin user created successfully","user":{"id":1,"username":"root","email":"root@example.com","first_name":"Admin","last_name":"User","role":"admin","is_active":true},"access_token":"issued","refresh_token":"r1","token_type":"Bearer"}`)
	})
	require.NoError(t, store.Set("resident"))

	user, err := c.RegisterAdmin(context.Background(), AdminRegistration{
		Username: "root",
		Email:    "root@example.com",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"username": "root", "email": "root@example.com", "password": "s3cret-pass"}, sent,
		"omitted names are left for the backend to default")
	assert.False(t, hasAuth, "registration is anonymous")
	assert.Equal(t, RoleAdmin, user.Role)
	assert.Equal(t, "Admin User", user.DisplayName())

	token, _ := store.Get()
	assert.Equal(t, "resident", string(token), "the issued token is not stored")
}

func TestRegisterAdmin_UserExists(t *testing.T) {
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, `{"error":{"code":"USER_EXISTS","message":"User with this username or email already exists"}}`)
	})
	require.NoError(t, store.Set("resident"))

	_, err := c.RegisterAdmin(context.Background(), AdminRegistration{
		Username:  "root",
		Email:     "root@example.com",
		Password:  "s3cret-pass",
		FirstName: "Ada",
	})
	require.Error(t, err)

	e, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeAPIError, e.Code)
	assert.Equal(t, http.StatusConflict, e.Status)
	assert.Equal(t, "USER_EXISTS", e.BackendCode)
	assert.Equal(t, "User with this username or email already exists", errors.UserMessage(err))
	_, ok = store.Get()
	assert.True(t, ok, "a conflict never touches the resident credential")
}

func TestRegisterAdmin_Validation(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	tests := []struct {
		name string
		reg  AdminRegistration
		want string
	}{
		{"missing email", AdminRegistration{Username: "root", Password: "s3cret-pass"}, "Username, password, and email are required"},
		{"short password", AdminRegistration{Username: "root", Email: "r@example.com", Password: "short"}, "Password must be at least 8 characters long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.RegisterAdmin(context.Background(), tt.reg)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeAuthInvalidInput))
			assert.Equal(t, tt.want, errors.UserMessage(err))
		})
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range Roles {
		assert.True(t, r.Valid())
	}
	assert.False(t, Role("root").Valid())
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "ann", User{Username: "ann"}.DisplayName())
	assert.Equal(t, "Ann", User{Username: "ann", FirstName: "Ann"}.DisplayName())
}

func TestLogin_RejectedPasswordKeepsResidentSession(t *testing.T) {
	var hasAuth bool
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth = r.Header["Authorization"]
		writeJSON(w, http.StatusUnauthorized, `{"error":{"code":"INVALID_CREDENTIALS","message":"Invalid username or password"}}`)
	})
	require.NoError(t, store.Set("t1"))

	var fired bool
	c.OnAuthExpired(func(AuthExpiredEvent) { fired = true })

	_, err := c.Login(context.Background(), Credentials{Username: "ann", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, "Invalid username or password", errors.UserMessage(err))
	assert.False(t, hasAuth)
	assert.False(t, fired)

	token, ok := store.Get()
	assert.True(t, ok)
	assert.Equal(t, "t1", string(token))
}
