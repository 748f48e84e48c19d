package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/switchboard/internal/errors"
	"github.com/felixgeelhaar/switchboard/internal/exitcode"
)

func login(t *testing.T) {
	t.Helper()
	res := runCLI(t, "s3cret-pass\n", "auth", "login", "-u", "ann", "--password-stdin")
	require.NoError(t, res.Err, res.Stderr)
}

func TestCLI_LoginStatusLogout(t *testing.T) {
	backend := newFakeBackend(t)
	dir := cliEnv(t, backend.URL())

	res := runCLI(t, "s3cret-pass\n", "auth", "login", "-u", "ann", "--password-stdin")
	require.NoError(t, res.Err, res.Stderr)
	assert.Equal(t, "Signed in as Ann Lee (admin)\n", res.Stdout)

	credFile := filepath.Join(dir, "switchboard", "credentials.json")
	info, err := os.Stat(credFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	res = runCLI(t, "", "auth", "status", "--json")
	require.NoError(t, res.Err, res.Stderr)
	var report struct {
		Status      string `json:"status"`
		Fingerprint string `json:"fingerprint"`
		Store       string `json:"store"`
		User        struct {
			Username string `json:"username"`
			Role     string `json:"role"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Stdout), &report))
	assert.Equal(t, "authenticated", report.Status)
	assert.Equal(t, "ann", report.User.Username)
	assert.Equal(t, "admin", report.User.Role)
	assert.NotEmpty(t, report.Fingerprint)
	assert.Equal(t, credFile, report.Store)

	res = runCLI(t, "", "auth", "logout")
	require.NoError(t, res.Err)
	assert.Equal(t, "Signed out.\n", res.Stdout)
	assert.Equal(t, int32(1), backend.logoutCalls.Load())

	res = runCLI(t, "", "auth", "status")
	require.Error(t, res.Err)
	assert.Contains(t, res.Stdout, "Not signed in.")
	assert.Equal(t, exitcode.AuthError, exitcode.DetermineExitCode(res.Err))
}

func TestCLI_LoginRejected(t *testing.T) {
	backend := newFakeBackend(t)
	cliEnv(t, backend.URL())

	res := runCLI(t, "wrong\n", "auth", "login", "-u", "ann", "--password-stdin")
	require.Error(t, res.Err)
	assert.Equal(t, "Invalid username or password", errors.UserMessage(res.Err))

	res = runCLI(t, "", "auth", "status")
	assert.True(t, errors.HasCode(res.Err, errors.ErrCodeAuthRequired))
}

func TestCLI_LoginNeedsUsernameWithStdin(t *testing.T) {
	backend := newFakeBackend(t)
	cliEnv(t, backend.URL())

	res := runCLI(t, "s3cret-pass\n", "auth", "login", "--password-stdin")
	require.Error(t, res.Err)
	assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(res.Err))
}

func TestCLI_APIGetAndPost(t *testing.T) {
	backend := newFakeBackend(t)
	cliEnv(t, backend.URL())
	login(t)

	res := runCLI(t, "", "api", "/campaigns")
	require.NoError(t, res.Err, res.Stderr)
	assert.JSONEq(t, `{"campaigns":[{"id":1,"name":"Winter"}]}`, res.Stdout)
	assert.Equal(t, "GET", backend.lastMethod.Load())

	res = runCLI(t, "", "api", "/campaigns", "-d", `{"name":"Spring"}`)
	require.NoError(t, res.Err, res.Stderr)
	assert.Equal(t, "POST", backend.lastMethod.Load())
	assert.JSONEq(t, `{"name":"Spring"}`, backend.lastBody.Load().(string))
	assert.JSONEq(t, `{"campaign":{"id":7,"name":"Spring"}}`, res.Stdout)

	res = runCLI(t, `{"name":"Autumn"}`, "api", "put", "/campaigns", "-d", "-")
	require.NoError(t, res.Err, res.Stderr)
	assert.Equal(t, "PUT", backend.lastMethod.Load())
	assert.JSONEq(t, `{"name":"Autumn"}`, backend.lastBody.Load().(string))
}

func TestCLI_APIRejectsBadInput(t *testing.T) {
	backend := newFakeBackend(t)
	cliEnv(t, backend.URL())

	tests := []struct {
		name string
		args []string
	}{
		{"body is not JSON", []string{"api", "/campaigns", "-d", "name=Spring"}},
		{"unknown method", []string{"api", "TRACE", "/campaigns"}},
		{"malformed header", []string{"api", "/campaigns", "-H", "X-Trace"}},
		{"authorization header", []string{"api", "/campaigns", "-H", "Authorization: Bearer x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, "", tt.args...)
			require.Error(t, res.Err)
			assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(res.Err))
		})
	}
}

func TestCLI_ExpiredTokenEndsSession(t *testing.T) {
	backend := newFakeBackend(t)
	cliEnv(t, backend.URL())
	login(t)

	backend.expired.Store(true)
	res := runCLI(t, "", "api", "/campaigns")
	require.Error(t, res.Err)
	assert.True(t, errors.IsAuthExpired(res.Err))
	assert.Equal(t, exitcode.AuthError, exitcode.DetermineExitCode(res.Err))

	backend.expired.Store(false)
	res = runCLI(t, "", "auth", "status")
	assert.True(t, errors.HasCode(res.Err, errors.ErrCodeAuthRequired), "token should have been cleared")
}

func TestCLI_LogoutQueuesAndRevokeRetries(t *testing.T) {
	backend := newFakeBackend(t)
	cliEnv(t, backend.URL())
	login(t)

	backend.srv.Close()
	res := runCLI(t, "", "auth", "logout")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "Signed out.")
	assert.Contains(t, res.Stdout, "revoked on a later run")

	second := newFakeBackend(t)
	res = runCLI(t, "", "--api-url", second.URL(), "auth", "revoke")
	require.NoError(t, res.Err, res.Stderr)
	assert.Equal(t, "Revoked 1 of 1 queued token(s).\n", res.Stdout)
	assert.Equal(t, []string{"tok-1"}, second.revoked())

	res = runCLI(t, "", "--api-url", second.URL(), "auth", "revoke")
	require.NoError(t, res.Err)
	assert.Equal(t, "No queued tokens.\n", res.Stdout)
}

func TestCLI_Upload(t *testing.T) {
	backend := newFakeBackend(t)
	cliEnv(t, backend.URL())
	login(t)

	csv := filepath.Join(t.TempDir(), "leads.csv")
	require.NoError(t, os.WriteFile(csv, []byte("name,phone\nBo,555-0100\n"), 0o600))

	res := runCLI(t, "", "upload", "/leads/import", "-f", "file="+csv, "--field", "campaign_id=3")
	require.NoError(t, res.Err, res.Stderr)
	assert.JSONEq(t, `{"imported":2}`, res.Stdout)

	seen := backend.lastUpload.Load().(uploadSeen)
	assert.Equal(t, "file", seen.Field)
	assert.Equal(t, "leads.csv", seen.Filename)
	assert.Equal(t, "name,phone\nBo,555-0100\n", seen.Content)
	assert.Equal(t, map[string]string{"campaign_id": "3"}, seen.Form)
}

func TestCLI_UploadNeedsFile(t *testing.T) {
	cliEnv(t, "http://127.0.0.1:1/api")
	res := runCLI(t, "", "upload", "/leads/import")
	require.Error(t, res.Err)
	assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(res.Err))
}

func TestCLI_RouteCheck(t *testing.T) {
	cliEnv(t, "http://127.0.0.1:1/api")

	tests := []struct {
		path    string
		as      string
		outcome string
		target  string
		from    string
	}{
		{"/admin/users", "supervisor", "redirect-to-unauthorized", "/unauthorized", ""},
		{"/admin/users", "admin", "render", "", ""},
		{"/admin/leads", "anonymous", "redirect-to-login", "/login", "/admin/leads"},
		{"/login", "agent", "redirect-to-home", "/agent", ""},
		{"/agent/dialer", "agent", "render", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path+" as "+tt.as, func(t *testing.T) {
			res := runCLI(t, "", "route", "check", tt.path, "--as", tt.as, "--json")
			require.NoError(t, res.Err, res.Stderr)

			var got checkReport
			require.NoError(t, json.Unmarshal([]byte(res.Stdout), &got))
			assert.Equal(t, tt.outcome, string(got.Outcome))
			assert.Equal(t, tt.target, got.Target)
			assert.Equal(t, tt.from, got.From)
		})
	}
}

func TestCLI_RouteCheckUnknownRole(t *testing.T) {
	cliEnv(t, "http://127.0.0.1:1/api")
	res := runCLI(t, "", "route", "check", "/admin", "--as", "manager")
	require.Error(t, res.Err)
	assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(res.Err))
}

func TestCLI_RouteList(t *testing.T) {
	cliEnv(t, "http://127.0.0.1:1/api")

	res := runCLI(t, "", "route", "list", "--as", "agent", "--json")
	require.NoError(t, res.Err, res.Stderr)

	var routes []struct {
		Path string `json:"Path"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Stdout), &routes))
	paths := make([]string, len(routes))
	for i, r := range routes {
		paths[i] = r.Path
	}
	assert.Contains(t, paths, "/agent/dialer")
	assert.NotContains(t, paths, "/admin/users")

	res = runCLI(t, "", "route", "list")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "/admin/sip")
	assert.Contains(t, res.Stdout, "SIP Settings")
}

func TestCLI_RouteTableOverrideInvalid(t *testing.T) {
	dir := cliEnv(t, "http://127.0.0.1:1/api")
	bad := filepath.Join(dir, "routes.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("version: 2\nroutes: []\n"), 0o600))
	t.Setenv("SWITCHBOARD_ROUTES_FILE", bad)

	res := runCLI(t, "", "route", "list")
	require.Error(t, res.Err)
	assert.Equal(t, exitcode.ConfigError, exitcode.DetermineExitCode(res.Err))
}

func TestCLI_HealthAndSetupStatus(t *testing.T) {
	backend := newFakeBackend(t)
	cliEnv(t, backend.URL())

	res := runCLI(t, "", "health", "--json")
	require.NoError(t, res.Err, res.Stderr)
	assert.JSONEq(t, `{"status":"healthy","timestamp":"2026-10-17T09:00:00Z","version":"1.4.0"}`, res.Stdout)

	res = runCLI(t, "", "auth", "setup-status")
	require.NoError(t, res.Err)
	assert.Equal(t, "Setup complete: 2 administrator(s).\n", res.Stdout)
}

func TestCLI_HealthUnreachable(t *testing.T) {
	cliEnv(t, "http://127.0.0.1:1/api")
	res := runCLI(t, "", "health")
	require.Error(t, res.Err)
	assert.Equal(t, exitcode.NetworkError, exitcode.DetermineExitCode(res.Err))
}

func TestCLI_RegisterAdmin(t *testing.T) {
	backend := newFakeBackend(t)
	cliEnv(t, backend.URL())

	res := runCLI(t, "s3cret-pass\n", "auth", "register-admin", "-u", "root", "--email", "root@example.com", "--password-stdin")
	require.NoError(t, res.Err, res.Stderr)
	assert.Equal(t, "Created administrator Admin User (root)\nSign in with: switchboard auth login -u root\n", res.Stdout)
	assert.Equal(t, map[string]string{"username": "root", "email": "root@example.com", "password": "s3cret-pass"},
		backend.registered.Load())

	res = runCLI(t, "", "auth", "status")
	assert.True(t, errors.HasCode(res.Err, errors.ErrCodeAuthRequired), "registering does not sign in")
}

func TestCLI_RegisterAdminConflict(t *testing.T) {
	backend := newFakeBackend(t)
	cliEnv(t, backend.URL())

	res := runCLI(t, "s3cret-pass\n", "auth", "register-admin", "-u", "ann", "--email", "ann@example.com",
		"--first-name", "Ann", "--password-stdin")
	require.Error(t, res.Err)
	assert.Equal(t, "User with this username or email already exists", errors.UserMessage(res.Err))
	assert.Equal(t, exitcode.BackendError, exitcode.DetermineExitCode(res.Err))
	assert.Nil(t, backend.registered.Load())
}

func TestCLI_RegisterAdminNeedsFieldsWithStdin(t *testing.T) {
	backend := newFakeBackend(t)
	cliEnv(t, backend.URL())

	res := runCLI(t, "s3cret-pass\n", "auth", "register-admin", "-u", "root", "--password-stdin")
	require.Error(t, res.Err)
	assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(res.Err))

	res = runCLI(t, "", "auth", "register-admin", "-u", "root", "--email", "root@example.com")
	assert.True(t, errors.HasCode(res.Err, errors.ErrCodeAuthNotInteractive))
}

func TestCLI_InvalidConfig(t *testing.T) {
	cliEnv(t, "ftp://example.com")
	res := runCLI(t, "", "health")
	require.Error(t, res.Err)
	assert.Equal(t, exitcode.ConfigError, exitcode.DetermineExitCode(res.Err))
}

func TestCLI_StandaloneCommands(t *testing.T) {
	dir := cliEnv(t, "ftp://invalid")

	res := runCLI(t, "", "version")
	require.NoError(t, res.Err, "version must not load the config")
	assert.Contains(t, res.Stdout, "switchboard ")

	res = runCLI(t, "", "config", "path")
	require.NoError(t, res.Err)
	assert.Equal(t, filepath.Join(dir, "switchboard", "config.yaml")+"\n", res.Stdout)

	res = runCLI(t, "", "--config", "/etc/sb.yaml", "config", "path")
	require.NoError(t, res.Err)
	assert.Equal(t, "/etc/sb.yaml\n", res.Stdout)

	res = runCLI(t, "", "completion", "bash")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "switchboard")
}

func TestCLI_ConfigView(t *testing.T) {
	dir := cliEnv(t, "")
	cfgDir := filepath.Join(dir, "switchboard")
	require.NoError(t, os.MkdirAll(cfgDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "config.yaml"),
		[]byte("api:\n  base_url: https://dialer.example.com/api\n  timeout: 45s\n"), 0o600))

	res := runCLI(t, "", "config", "view")
	require.NoError(t, res.Err, res.Stderr)
	assert.Contains(t, res.Stdout, "# Configuration file: "+filepath.Join(cfgDir, "config.yaml"))
	assert.Contains(t, res.Stdout, "https://dialer.example.com/api")
	assert.Contains(t, res.Stdout, "45s")

	res = runCLI(t, "", "--api-url", "https://other.example.com/api", "config", "view", "--json")
	require.NoError(t, res.Err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Stdout), &doc))
	assert.Equal(t, "https://other.example.com/api", doc["api"].(map[string]any)["base_url"])
}

func TestCLI_ChangePasswordFromStdin(t *testing.T) {
	backend := newFakeBackend(t)
	cliEnv(t, backend.URL())

	res := runCLI(t, "old\nnew-password\n", "auth", "change-password", "--password-stdin")
	assert.True(t, errors.HasCode(res.Err, errors.ErrCodeAuthRequired))

	login(t)
	res = runCLI(t, "old\nshort\n", "auth", "change-password", "--password-stdin")
	require.Error(t, res.Err)
	assert.Equal(t, "Password must be at least 8 characters long", errors.UserMessage(res.Err))

	res = runCLI(t, "only-one-line\n", "auth", "change-password", "--password-stdin")
	require.Error(t, res.Err)
	assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(res.Err))
}

func TestCLI_Doctor(t *testing.T) {
	backend := newFakeBackend(t)
	cliEnv(t, backend.URL())
	t.Setenv("SWITCHBOARD_PASSPHRASE", "correct horse")
	login(t)

	res := runCLI(t, "", "doctor", "--json")
	require.NoError(t, res.Err, res.Stderr)

	var report DoctorReport
	require.NoError(t, json.Unmarshal([]byte(res.Stdout), &report))
	assert.Equal(t, "healthy", string(report.Status))
	names := make([]string, len(report.Checks))
	for i, c := range report.Checks {
		names[i] = c.Name
		assert.Equal(t, "healthy", string(c.Status), c.Name+": "+c.Message)
	}
	assert.Equal(t, []string{"backend", "setup", "credentials", "routes", "session"}, names)
}

func TestCLI_DoctorBackendDown(t *testing.T) {
	cliEnv(t, "http://127.0.0.1:1/api")

	res := runCLI(t, "", "doctor", "--timeout", "2s")
	require.Error(t, res.Err)
	assert.Equal(t, exitcode.NetworkError, exitcode.DetermineExitCode(res.Err))
	assert.Contains(t, res.Stdout, "✗ backend")
	assert.Contains(t, res.Stdout, "Next steps:")
}
