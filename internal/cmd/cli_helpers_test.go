package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// cliResult is the captured outcome of one run of the command tree.
type cliResult struct {
	Stdout string
	Stderr string
	Err    error
}

// cliEnv isolates the command tree from the developer's config and
// credentials.
func cliEnv(t *testing.T, apiURL string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	t.Setenv("SWITCHBOARD_CONFIG", "")
	if apiURL != "" {
		t.Setenv("SWITCHBOARD_API_URL", apiURL)
	}
	return dir
}

// runCLI executes the root command with args and stdin.
func runCLI(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	err := ExecuteContext(context.Background())
	return cliResult{Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
}

// resetFlags restores every flag in the tree to its default so runs do
// not leak into each other.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// fakeBackend is a small call-center API: auth endpoints, a campaigns
// collection and a lead import.
type fakeBackend struct {
	srv *httptest.Server

	token        string
	expired      atomic.Bool
	logoutCalls  atomic.Int32
	lastMethod   atomic.Value
	lastBody     atomic.Value
	lastUpload   atomic.Value
	registered   atomic.Value
	mu           sync.Mutex
	revokedToken []string
}

type uploadSeen struct {
	Field    string
	Filename string
	Content  string
	Form     map[string]string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{token: "tok-1"}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) URL() string { return b.srv.URL + "/api" }

func (b *fakeBackend) authorized(r *http.Request) bool {
	return !b.expired.Load() && r.Header.Get("Authorization") == "Bearer "+b.token
}

func (b *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	unauthorized := func() {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"code":"TOKEN_EXPIRED","message":"Token has expired"}}`)
	}

	switch r.URL.Path {
	case "/api/health":
		_, _ = io.WriteString(w, `{"status":"healthy","timestamp":"2026-10-17T09:00:00Z","version":"1.4.0"}`)
	case "/api/auth/setup-status":
		_, _ = io.WriteString(w, `{"has_admin":true,"admin_count":2,"setup_required":false}`)
	case "/api/auth/login":
		var creds struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != "s3cret-pass" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"code":"INVALID_CREDENTIALS","message":"Invalid username or password"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"`+b.token+`","user":{"id":1,"username":"ann","first_name":"Ann","last_name":"Lee","role":"admin","is_active":true}}`)
	case "/api/auth/register-admin":
		var reg map[string]string
		_ = json.NewDecoder(r.Body).Decode(&reg)
		if reg["username"] == "ann" {
			w.WriteHeader(http.StatusConflict)
			_, _ = io.WriteString(w, `{"error":{"code":"USER_EXISTS","message":"User with this username or email already exists"}}`)
			return
		}
		b.registered.Store(reg)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"message":"Admin user created successfully","access_token":"tok-new","token_type":"Bearer","user":{"id":9,"username":"`+reg["username"]+`","email":"`+reg["email"]+`","first_name":"Admin","last_name":"User","role":"admin","is_active":true}}`)
	case "/api/auth/me":
		if !b.authorized(r) {
			unauthorized()
			return
		}
		_, _ = io.WriteString(w, `{"user":{"id":1,"username":"ann","first_name":"Ann","last_name":"Lee","role":"admin","is_active":true}}`)
	case "/api/auth/logout":
		b.logoutCalls.Add(1)
		b.mu.Lock()
		b.revokedToken = append(b.revokedToken, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		b.mu.Unlock()
		_, _ = io.WriteString(w, `{"message":"Successfully logged out"}`)
	case "/api/campaigns":
		if !b.authorized(r) {
			unauthorized()
			return
		}
		body, _ := io.ReadAll(r.Body)
		b.lastMethod.Store(r.Method)
		b.lastBody.Store(string(body))
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"campaign":{"id":7,"name":"Spring"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"campaigns":[{"id":1,"name":"Winter"}]}`)
	case "/api/leads/import":
		if !b.authorized(r) {
			unauthorized()
			return
		}
		b.lastUpload.Store(readUpload(r))
		_, _ = io.WriteString(w, `{"imported":2}`)
	default:
		http.NotFound(w, r)
	}
}

func readUpload(r *http.Request) uploadSeen {
	seen := uploadSeen{Form: map[string]string{}}
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return seen
	}
	mr := multipart.NewReader(r.Body, params["boundary"])
	for {
		part, err := mr.NextPart()
		if err != nil {
			return seen
		}
		data, _ := io.ReadAll(part)
		if part.FileName() != "" {
			seen.Field = part.FormName()
			seen.Filename = part.FileName()
			seen.Content = string(data)
			continue
		}
		seen.Form[part.FormName()] = string(data)
	}
}

func (b *fakeBackend) revoked() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.revokedToken...)
}
