package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/felixgeelhaar/switchboard/internal/api"
)

// PromptCredentials asks for a username and password. The password is
// masked and checked against the backend's minimum length.
func PromptCredentials(username string) (api.Credentials, error) {
	creds := api.Credentials{Username: username}

	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Username").
			Value(&creds.Username).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return fmt.Errorf("username is required")
				}
				return nil
			}),
		huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&creds.Password).
			Validate(func(s string) error {
				if s == "" {
					return fmt.Errorf("password is required")
				}
				return nil
			}),
	))

	if err := form.Run(); err != nil {
		return api.Credentials{}, fmt.Errorf("prompt failed: %w", err)
	}
	creds.Username = strings.TrimSpace(creds.Username)
	return creds, nil
}

// PromptNewPassword asks for the current password and a confirmed new one.
func PromptNewPassword() (current, next string, err error) {
	var confirm string

	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Current password").
			EchoMode(huh.EchoModePassword).
			Value(&current),
		huh.NewInput().
			Title("New password").
			Description(fmt.Sprintf("At least %d characters", api.MinPasswordLength)).
			EchoMode(huh.EchoModePassword).
			Value(&next).
			Validate(func(s string) error {
				if len(s) < api.MinPasswordLength {
					return fmt.Errorf("password must be at least %d characters long", api.MinPasswordLength)
				}
				return nil
			}),
		huh.NewInput().
			Title("Confirm new password").
			EchoMode(huh.EchoModePassword).
			Value(&confirm),
	))

	if err := form.Run(); err != nil {
		return "", "", fmt.Errorf("prompt failed: %w", err)
	}
	if confirm != next {
		return "", "", fmt.Errorf("passwords do not match")
	}
	return current, next, nil
}

// PromptAdminRegistration asks for the first administrator's account. Fields
// already set on reg are shown as defaults. Names are optional.
func PromptAdminRegistration(reg api.AdminRegistration) (api.AdminRegistration, error) {
	var confirm string
	required := func(field string) func(string) error {
		return func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s is required", field)
			}
			return nil
		}
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Username").Value(&reg.Username).Validate(required("username")),
			huh.NewInput().Title("Email").Value(&reg.Email).Validate(func(s string) error {
				if !strings.Contains(s, "@") {
					return fmt.Errorf("enter a valid email address")
				}
				return nil
			}),
			huh.NewInput().Title("First name").Placeholder("Admin").Value(&reg.FirstName),
			huh.NewInput().Title("Last name").Placeholder("User").Value(&reg.LastName),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Password").
				Description(fmt.Sprintf("At least %d characters", api.MinPasswordLength)).
				EchoMode(huh.EchoModePassword).
				Value(&reg.Password).
				Validate(func(s string) error {
					if len(s) < api.MinPasswordLength {
						return fmt.Errorf("password must be at least %d characters long", api.MinPasswordLength)
					}
					return nil
				}),
			huh.NewInput().
				Title("Confirm password").
				EchoMode(huh.EchoModePassword).
				Value(&confirm),
		),
	)

	if err := form.Run(); err != nil {
		return api.AdminRegistration{}, fmt.Errorf("prompt failed: %w", err)
	}
	if confirm != reg.Password {
		return api.AdminRegistration{}, fmt.Errorf("passwords do not match")
	}
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)
	reg.FirstName = strings.TrimSpace(reg.FirstName)
	reg.LastName = strings.TrimSpace(reg.LastName)
	return reg, nil
}

// PromptForConfirmation displays a yes/no confirmation prompt
func PromptForConfirmation(message string, defaultValue bool) (bool, error) {
	confirmed := defaultValue

	confirm := huh.NewConfirm().
		Title(message).
		Value(&confirmed)

	if err := huh.NewForm(huh.NewGroup(confirm)).Run(); err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return confirmed, nil
}

// IsInteractive returns true if stdin and stdout are terminals
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldPrompt returns true if prompts should be shown based on environment
// Prompts are disabled in CI environments or when stdin is not a terminal
func ShouldPrompt() bool {
	return shouldPrompt(os.Getenv, IsInteractive())
}

func shouldPrompt(getenv func(string) string, interactive bool) bool {
	ciEnvVars := []string{
		"CI",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_URL",
		"TRAVIS",
		"CIRCLECI",
		"BUILDKITE",
	}

	for _, envVar := range ciEnvVars {
		if getenv(envVar) != "" {
			return false
		}
	}

	return interactive
}

// ReadPassword reads a password from the terminal without echo.
func ReadPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}
