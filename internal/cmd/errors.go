package cmd

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/switchboard/internal/errors"
)

// FormatError renders err for the terminal: the user-facing message, then
// any recovery suggestions carried by a coded error.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	sbErr, ok := errors.As(err)
	if !ok {
		return "Error: " + err.Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Error: %s", errors.UserMessage(err))
	if sbErr.Status != 0 {
		fmt.Fprintf(&b, " (HTTP %d", sbErr.Status)
		if sbErr.BackendCode != "" {
			fmt.Fprintf(&b, ", %s", sbErr.BackendCode)
		}
		b.WriteString(")")
	}
	if len(sbErr.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, s := range sbErr.Suggestions {
			b.WriteString("\n  • ")
			b.WriteString(s)
		}
	}
	if sbErr.DocsURL != "" {
		fmt.Fprintf(&b, "\n\nDocumentation: %s", sbErr.DocsURL)
	}
	return b.String()
}

// notSignedIn is returned by commands that need a resident session.
func notSignedIn() error {
	return errors.NewAuthRequiredError()
}

// usageError marks a bad argument so it maps to the usage exit code.
func usageError(format string, args ...any) error {
	return errors.New(errors.ErrCodeRequestInvalid, fmt.Sprintf(format, args...))
}
