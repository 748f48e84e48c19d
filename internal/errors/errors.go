package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Authentication errors (AUTH-001 to AUTH-099)
	ErrCodeAuthExpired        ErrorCode = "AUTH-001"
	ErrCodeAuthRequired       ErrorCode = "AUTH-002"
	ErrCodeAuthInvalidInput   ErrorCode = "AUTH-003"
	ErrCodeAuthNotInteractive ErrorCode = "AUTH-004"

	// Backend API errors (API-001 to API-099)
	ErrCodeAPIError          ErrorCode = "API-001"
	ErrCodeMalformedResponse ErrorCode = "API-002"
	ErrCodeRequestInvalid    ErrorCode = "API-003"

	// Transport errors (NET-001 to NET-099)
	ErrCodeNetworkFailure ErrorCode = "NET-001"

	// Route errors (ROUTE-001 to ROUTE-099)
	ErrCodeRouteTableInvalid ErrorCode = "ROUTE-001"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid ErrorCode = "CONFIG-001"
	ErrCodeConfigEnv     ErrorCode = "CONFIG-002"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileReadFailed  ErrorCode = "IO-001"
	ErrCodeFileWriteFailed ErrorCode = "IO-002"
	ErrCodeFileUnmarshal   ErrorCode = "IO-003"
	ErrCodeCredentialStore ErrorCode = "IO-004"
)

// SwitchboardError represents an error with code, suggestions and documentation.
// Status carries the HTTP status for errors produced by the request pipeline.
type SwitchboardError struct {
	Code        ErrorCode
	Message     string
	Status      int
	BackendCode string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *SwitchboardError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *SwitchboardError) Unwrap() error {
	return e.Cause
}

// New creates a new SwitchboardError
func New(code ErrorCode, message string) *SwitchboardError {
	return &SwitchboardError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new SwitchboardError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *SwitchboardError {
	return &SwitchboardError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *SwitchboardError) WithSuggestion(suggestion string) *SwitchboardError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *SwitchboardError) WithSuggestions(suggestions ...string) *SwitchboardError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *SwitchboardError) WithDocs(url string) *SwitchboardError {
	e.DocsURL = url
	return e
}

// As returns the first SwitchboardError in err's chain.
func As(err error) (*SwitchboardError, bool) {
	var sbErr *SwitchboardError
	if stderrors.As(err, &sbErr) {
		return sbErr, true
	}
	return nil, false
}

// HasCode reports whether err's chain contains a SwitchboardError with code.
func HasCode(err error, code ErrorCode) bool {
	sbErr, ok := As(err)
	return ok && sbErr.Code == code
}

// IsAuthExpired reports whether the backend rejected the credential.
func IsAuthExpired(err error) bool { return HasCode(err, ErrCodeAuthExpired) }

// IsAPIError reports whether the backend returned a non-success status.
func IsAPIError(err error) bool { return HasCode(err, ErrCodeAPIError) }

// IsMalformed reports whether the backend returned a body that was not JSON.
func IsMalformed(err error) bool { return HasCode(err, ErrCodeMalformedResponse) }

// IsNetwork reports whether the request never produced a response.
func IsNetwork(err error) bool { return HasCode(err, ErrCodeNetworkFailure) }

// UserMessage returns the text a view should display for err. Backend
// messages are surfaced verbatim; everything else gets a generic line.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	sbErr, ok := As(err)
	if !ok {
		return err.Error()
	}
	switch sbErr.Code {
	case ErrCodeAuthExpired, ErrCodeAPIError, ErrCodeAuthInvalidInput:
		return sbErr.Message
	case ErrCodeMalformedResponse:
		return "The server returned an unexpected response."
	case ErrCodeNetworkFailure:
		return "Could not reach the server. Check your connection and retry."
	default:
		return sbErr.Message
	}
}

// Common error constructors for the request pipeline

// NewAuthExpiredError creates an error for a 401 response.
func NewAuthExpiredError(message string) *SwitchboardError {
	if message == "" {
		message = "session expired"
	}
	e := New(ErrCodeAuthExpired, message).
		WithSuggestion("Run 'switchboard auth login' to sign in again")
	e.Status = http.StatusUnauthorized
	return e
}

// NewAPIError creates an error for a non-success response.
func NewAPIError(status int, message, backendCode string) *SwitchboardError {
	if message == "" {
		message = fmt.Sprintf("HTTP error %d", status)
	}
	e := New(ErrCodeAPIError, message)
	e.Status = status
	e.BackendCode = backendCode
	if status == http.StatusForbidden {
		e.WithSuggestion("Your role does not allow this operation")
	}
	return e
}

// NewMalformedResponseError creates an error for a body that failed to parse.
func NewMalformedResponseError(status int, cause error) *SwitchboardError {
	e := Wrap(ErrCodeMalformedResponse, fmt.Sprintf("malformed response (HTTP %d)", status), cause).
		WithSuggestion("Check that the API URL points at the call-center backend")
	e.Status = status
	return e
}

// NewNetworkError creates an error for a request that never got a response.
func NewNetworkError(method, target string, cause error) *SwitchboardError {
	return Wrap(ErrCodeNetworkFailure, fmt.Sprintf("%s %s failed", method, target), cause).
		WithSuggestion("Retry the operation").
		WithSuggestion("Run 'switchboard health' to check that the backend is reachable")
}

// NewAuthRequiredError creates an error for operations that need a session.
func NewAuthRequiredError() *SwitchboardError {
	return New(ErrCodeAuthRequired, "not logged in").
		WithSuggestion("Run 'switchboard auth login' first")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *SwitchboardError {
	return Wrap(ErrCodeFileUnmarshal, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithSuggestion("Check the file syntax and format").
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}
