package exitcode

import (
	"net/http"
	"os"
	"strings"

	"github.com/felixgeelhaar/switchboard/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// AccessDenied indicates the session's role may not perform the operation
	AccessDenied = 3

	// BackendError indicates the backend rejected the request or answered with garbage
	BackendError = 4

	// AuthError indicates a missing or rejected credential
	AuthError = 5

	// NetworkError indicates the backend could not be reached
	NetworkError = 6

	// ConfigError indicates unreadable or invalid configuration
	ConfigError = 7

	// Interrupted indicates the run was cancelled by SIGINT or SIGTERM
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode maps an error to an exit code. Coded errors map by
// code; uncoded errors are only recognised as cobra usage errors.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	if sbErr, ok := errors.As(err); ok {
		switch sbErr.Code {
		case errors.ErrCodeAuthExpired, errors.ErrCodeAuthRequired:
			return AuthError
		case errors.ErrCodeAuthInvalidInput, errors.ErrCodeAuthNotInteractive, errors.ErrCodeRequestInvalid:
			return UsageError
		case errors.ErrCodeNetworkFailure:
			return NetworkError
		case errors.ErrCodeAPIError:
			if sbErr.Status == http.StatusForbidden {
				return AccessDenied
			}
			return BackendError
		case errors.ErrCodeMalformedResponse:
			return BackendError
		case errors.ErrCodeConfigInvalid, errors.ErrCodeConfigEnv, errors.ErrCodeRouteTableInvalid:
			return ConfigError
		default:
			return GeneralError
		}
	}

	errMsg := strings.ToLower(err.Error())
	for _, marker := range usageMarkers {
		if strings.Contains(errMsg, marker) {
			return UsageError
		}
	}
	return GeneralError
}

var usageMarkers = []string{
	"unknown command",
	"unknown flag",
	"unknown shorthand flag",
	"invalid argument",
	"required flag",
	"accepts ",
	"requires at least",
	"flag needs an argument",
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case AccessDenied:
		return "Access denied for the current role"
	case BackendError:
		return "Backend error"
	case AuthError:
		return "Authentication error"
	case NetworkError:
		return "Network error"
	case ConfigError:
		return "Configuration error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
