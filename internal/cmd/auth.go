package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/switchboard/internal/api"
	"github.com/felixgeelhaar/switchboard/internal/credential"
	"github.com/felixgeelhaar/switchboard/internal/errors"
	"github.com/felixgeelhaar/switchboard/internal/session"
	"github.com/felixgeelhaar/switchboard/internal/tui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the backend session",
	Long: `Manage the session with the call-center backend.

The session token is kept in one slot of the credential file
($XDG_CONFIG_HOME/switchboard/credentials.json by default, mode 0600).
Set SWITCHBOARD_PASSPHRASE to encrypt it at rest.

Subcommands:
  login            Sign in with username and password
  logout           Sign out and forget the token
  status           Show who is signed in
  refresh          Re-read the profile of the stored session
  change-password  Change the signed-in user's password
  setup-status     Show whether the backend still needs an administrator
  register-admin   Create the first administrator on a fresh backend
  revoke           Retry server-side logout for tokens that failed earlier

Examples:
  switchboard auth login -u ann
  echo "$PASSWORD" | switchboard auth login -u ann --password-stdin
  switchboard auth status --json
  switchboard auth logout`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the backend",
	Long: `Sign in with a username and password. The returned token is stored and
used by every later command until logout or until the backend rejects it.

Without a terminal, pass the password on stdin with --password-stdin.`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the token",
	Long: `Tell the backend the session is over, then remove the local token.

The local token is always removed. If the backend cannot be reached the
token is queued and revoked on a later run.`,
	Args: cobra.NoArgs,
	RunE: runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show who is signed in",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-read the profile of the stored session",
	Args:  cobra.NoArgs,
	RunE:  runAuthRefresh,
}

var authChangePasswordCmd = &cobra.Command{
	Use:   "change-password",
	Short: "Change the signed-in user's password",
	Long: `Change the signed-in user's password. New passwords need at least 8
characters.

With --password-stdin, stdin holds the current password on the first line
and the new one on the second.`,
	Args: cobra.NoArgs,
	RunE: runAuthChangePassword,
}

var authSetupStatusCmd = &cobra.Command{
	Use:   "setup-status",
	Short: "Show whether the backend still needs an administrator",
	Args:  cobra.NoArgs,
	RunE:  runAuthSetupStatus,
}

var authRegisterAdminCmd = &cobra.Command{
	Use:   "register-admin",
	Short: "Create the first administrator on a fresh backend",
	Long: `Create an administrator account. The backend accepts this without a
session, so it is how a new installation gets its first admin. It fails
with a conflict when the username or email is already taken.

First and last name default to "Admin User" on the backend. The new
account is not signed in; run 'switchboard auth login' afterwards.

Without a terminal, pass --username and --email and the password on stdin
with --password-stdin.`,
	Example: `  switchboard auth register-admin
  echo "$PASSWORD" | switchboard auth register-admin -u root --email root@example.com --password-stdin`,
	Args: cobra.NoArgs,
	RunE: runAuthRegisterAdmin,
}

var authRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Retry server-side logout for queued tokens",
	Args:  cobra.NoArgs,
	RunE:  runAuthRevoke,
}

func init() {
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRefreshCmd)
	authCmd.AddCommand(authChangePasswordCmd)
	authCmd.AddCommand(authSetupStatusCmd)
	authCmd.AddCommand(authRegisterAdminCmd)
	authCmd.AddCommand(authRevokeCmd)

	authLoginCmd.Flags().StringP("username", "u", "", "username")
	authLoginCmd.Flags().Bool("password-stdin", false, "read the password from stdin")
	authChangePasswordCmd.Flags().Bool("password-stdin", false, "read current and new password from stdin")
	authRegisterAdminCmd.Flags().StringP("username", "u", "", "administrator username")
	authRegisterAdminCmd.Flags().String("email", "", "administrator email")
	authRegisterAdminCmd.Flags().String("first-name", "", "first name (backend default: Admin)")
	authRegisterAdminCmd.Flags().String("last-name", "", "last name (backend default: User)")
	authRegisterAdminCmd.Flags().Bool("password-stdin", false, "read the password from stdin")

	rootCmd.AddCommand(authCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	username, _ := cmd.Flags().GetString("username")
	fromStdin, _ := cmd.Flags().GetBool("password-stdin")

	if _, ok := a.store.Get(); ok && !fromStdin && tui.ShouldPrompt() {
		if state := a.manager.Bootstrap(a.ctx); state.Authenticated() {
			again, err := tui.PromptForConfirmation(
				fmt.Sprintf("Already signed in as %s. Sign in again?", state.User.DisplayName()), false)
			if err != nil || !again {
				return err
			}
		}
	}

	creds, err := readCredentials(cmd.InOrStdin(), username, fromStdin)
	if err != nil {
		return err
	}

	user, err := a.manager.Login(a.ctx, creds)
	if err != nil {
		return err
	}

	if a.cc.JSON {
		return printJSON(cmd.OutOrStdout(), user)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", user.DisplayName(), user.Role)
	return nil
}

// readCredentials collects credentials from stdin or an interactive prompt.
func readCredentials(in io.Reader, username string, fromStdin bool) (api.Credentials, error) {
	if fromStdin {
		if username == "" {
			return api.Credentials{}, errors.New(errors.ErrCodeAuthInvalidInput, "--username is required with --password-stdin")
		}
		lines, err := readLines(in, 1)
		if err != nil {
			return api.Credentials{}, err
		}
		return api.Credentials{Username: username, Password: lines[0]}, nil
	}

	if !tui.ShouldPrompt() {
		return api.Credentials{}, errors.New(errors.ErrCodeAuthNotInteractive, "no terminal to prompt for the password").
			WithSuggestion("Pass the password on stdin: switchboard auth login -u NAME --password-stdin")
	}
	return tui.PromptCredentials(username)
}

// readLines reads n lines from in, trimming line endings.
func readLines(in io.Reader, n int) ([]string, error) {
	scanner := bufio.NewScanner(in)
	lines := make([]string, 0, n)
	for len(lines) < n && scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeAuthInvalidInput, "failed to read stdin", err)
	}
	if len(lines) < n {
		return nil, errors.New(errors.ErrCodeAuthInvalidInput, fmt.Sprintf("expected %d line(s) on stdin, got %d", n, len(lines)))
	}
	return lines, nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	out := cmd.OutOrStdout()

	if _, ok := a.store.Get(); !ok {
		fmt.Fprintln(out, "Not signed in.")
		return nil
	}

	queued := len(a.store.Pending())
	if err := a.manager.Logout(a.ctx); err != nil {
		return err
	}

	fmt.Fprintln(out, "Signed out.")
	if len(a.store.Pending()) > queued {
		fmt.Fprintln(out, "The backend could not be reached; the token will be revoked on a later run.")
	}
	return nil
}

// statusReport is the JSON shape of auth status.
type statusReport struct {
	Status      session.Status `json:"status"`
	User        *session.User  `json:"user,omitempty"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	Pending     int            `json:"pending_revocations"`
	Store       string         `json:"store"`
	Encrypted   bool           `json:"encrypted"`
	Error       string         `json:"error,omitempty"`
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)

	token, hadToken := a.store.Get()
	state := session.State{Status: session.StatusAnonymous}
	if hadToken {
		state = a.manager.Bootstrap(a.ctx)
	}

	report := statusReport{
		Status:  state.Status,
		User:    state.User,
		Pending: len(a.store.Pending()),
		Store:   "memory",
		Error:   state.LastError,
	}
	if fs, ok := a.store.(*credential.FileStore); ok {
		report.Store = fs.Path()
		report.Encrypted = fs.Encrypted()
	}
	if state.Authenticated() {
		report.Fingerprint = credential.Fingerprint(token)
		if claims, err := credential.Inspect(token); err == nil {
			report.ExpiresAt = claims.ExpiresAt
		}
	}

	if a.cc.JSON {
		if err := printJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		printStatus(cmd.OutOrStdout(), report)
	}

	if !state.Authenticated() {
		if hadToken {
			return errors.NewAuthExpiredError(state.LastError)
		}
		return notSignedIn()
	}
	return nil
}

func printStatus(w io.Writer, r statusReport) {
	if r.User == nil {
		fmt.Fprintln(w, "Not signed in.")
		if r.Error != "" {
			fmt.Fprintf(w, "Last error: %s\n", r.Error)
		}
	} else {
		fmt.Fprintf(w, "Signed in as %s (%s)\n", r.User.DisplayName(), r.User.Role)
		fmt.Fprintf(w, "  Username:    %s\n", r.User.Username)
		if r.User.Email != "" {
			fmt.Fprintf(w, "  Email:       %s\n", r.User.Email)
		}
		fmt.Fprintf(w, "  Token:       %s\n", r.Fingerprint)
		if r.ExpiresAt != nil {
			fmt.Fprintf(w, "  Expires:     %s\n", r.ExpiresAt.Local().Format(time.RFC1123))
		}
	}
	store := r.Store
	if r.Encrypted {
		store += " (encrypted)"
	}
	fmt.Fprintf(w, "  Credentials: %s\n", store)
	if r.Pending > 0 {
		fmt.Fprintf(w, "  Pending revocations: %d\n", r.Pending)
	}
}

func runAuthRefresh(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	if _, ok := a.store.Get(); !ok {
		return notSignedIn()
	}

	state := a.manager.Refresh(a.ctx)
	if !state.Authenticated() {
		return errors.NewAuthExpiredError(state.LastError)
	}
	if a.cc.JSON {
		return printJSON(cmd.OutOrStdout(), state.User)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Session valid for %s (%s)\n", state.User.DisplayName(), state.User.Role)
	return nil
}

func runAuthChangePassword(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	if _, ok := a.store.Get(); !ok {
		return notSignedIn()
	}

	var current, next string
	fromStdin, _ := cmd.Flags().GetBool("password-stdin")
	switch {
	case fromStdin:
		lines, err := readLines(cmd.InOrStdin(), 2)
		if err != nil {
			return err
		}
		current, next = lines[0], lines[1]
	case tui.ShouldPrompt():
		var err error
		if current, next, err = tui.PromptNewPassword(); err != nil {
			return err
		}
	default:
		return errors.New(errors.ErrCodeAuthNotInteractive, "no terminal to prompt for passwords").
			WithSuggestion("Pass both passwords on stdin with --password-stdin")
	}

	if err := a.client.ChangePassword(a.ctx, current, next); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Password changed.")
	return nil
}

func runAuthSetupStatus(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	status, err := a.client.SetupStatus(a.ctx)
	if err != nil {
		return err
	}
	if a.cc.JSON {
		return printJSON(cmd.OutOrStdout(), status)
	}

	out := cmd.OutOrStdout()
	if status.SetupRequired {
		fmt.Fprintln(out, "Setup required: no administrator exists yet.")
		if status.RegistrationEndpoint != "" {
			fmt.Fprintln(out, "Register one with: switchboard auth register-admin")
		}
		return nil
	}
	fmt.Fprintf(out, "Setup complete: %d administrator(s).\n", status.AdminCount)
	return nil
}

func runAuthRegisterAdmin(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	reg := api.AdminRegistration{}
	reg.Username, _ = cmd.Flags().GetString("username")
	reg.Email, _ = cmd.Flags().GetString("email")
	reg.FirstName, _ = cmd.Flags().GetString("first-name")
	reg.LastName, _ = cmd.Flags().GetString("last-name")
	fromStdin, _ := cmd.Flags().GetBool("password-stdin")

	switch {
	case fromStdin:
		if reg.Username == "" || reg.Email == "" {
			return errors.New(errors.ErrCodeAuthInvalidInput, "--username and --email are required with --password-stdin")
		}
		lines, err := readLines(cmd.InOrStdin(), 1)
		if err != nil {
			return err
		}
		reg.Password = lines[0]
	case tui.ShouldPrompt():
		var err error
		if reg, err = tui.PromptAdminRegistration(reg); err != nil {
			return err
		}
	default:
		return errors.New(errors.ErrCodeAuthNotInteractive, "no terminal to prompt for the new account").
			WithSuggestion("switchboard auth register-admin -u NAME --email ADDRESS --password-stdin")
	}

	user, err := a.client.RegisterAdmin(a.ctx, reg)
	if err != nil {
		if e, ok := errors.As(err); ok && e.BackendCode == "USER_EXISTS" {
			e.WithSuggestion("Pick another username and email, or sign in: switchboard auth login")
		}
		return err
	}
	a.logger.Info("administrator registered", "username", user.Username)

	if a.cc.JSON {
		return printJSON(cmd.OutOrStdout(), user)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created administrator %s (%s)\n", user.DisplayName(), user.Username)
	fmt.Fprintf(out, "Sign in with: switchboard auth login -u %s\n", user.Username)
	return nil
}

func runAuthRevoke(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	pending := len(a.store.Pending())
	if pending == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No queued tokens.")
		return nil
	}
	revoked := a.manager.RetryRevocations(a.ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "Revoked %d of %d queued token(s).\n", revoked, pending)
	return nil
}
