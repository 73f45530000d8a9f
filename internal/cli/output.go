package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/rulesync/internal/core"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The operation ran and failed (stale snapshot, store rejection, lock held)
	ExitCommandError = 2 // The command could not run (bad flags, config, unreachable database)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Errors that did not come from a command are flag or argument errors
// raised by cobra, so they map to ExitCommandError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// operationError wraps a service error. Unknown domains are caller mistakes;
// everything else is a failed operation.
func operationError(message string, err error) *ExitError {
	if errors.Is(err, core.ErrUnknownDomain) {
		return WrapExitError(ExitCommandError, message, err)
	}
	return WrapExitError(ExitFailure, message, err)
}

// response is the envelope for structured output.
type response struct {
	Status string         `json:"status" yaml:"status"` // "ok" or "error"
	Data   any            `json:"data,omitempty" yaml:"data,omitempty"`
	Error  *responseError `json:"error,omitempty" yaml:"error,omitempty"`
}

type responseError struct {
	Code    string `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
	Action  string `json:"action,omitempty" yaml:"action,omitempty"`
	Detail  string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// writeResult prints data in the requested format. text renders the
// human-readable form.
func writeResult(w io.Writer, format string, data any, text func(io.Writer)) error {
	switch format {
	case "json", "yaml":
		return encode(w, format, response{Status: "ok", Data: data})
	default:
		text(w)
		return nil
	}
}

// writeError prints err with its user-facing code. The technical error is
// shown in verbose mode, or when no specific message exists.
func writeError(w io.Writer, format string, err error, verbose bool) {
	re := describeError(err)
	if !verbose && core.IsUserFacing(err) {
		re.Detail = ""
	}

	switch format {
	case "json", "yaml":
		_ = encode(w, format, response{Status: "error", Error: &re})
	default:
		if re.Code == usageCode {
			fmt.Fprintf(w, "Error: %s (Code: %s)\n", re.Message, re.Code)
		} else {
			fmt.Fprintf(w, "Error: %s\n", core.FormatUserError(err))
		}
		if re.Detail != "" {
			fmt.Fprintf(w, "  cause: %s\n", re.Detail)
		}
	}
}

// usageCode marks errors raised by the CLI itself: bad flags or arguments,
// and refusals such as an unconfirmed wipe.
const usageCode = "CLI001"

// usageError converts a cobra flag or argument error into an ExitError.
func usageError(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return NewExitError(ExitCommandError, err.Error())
}

func describeError(err error) responseError {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return responseError{Code: usageCode, Message: exitErr.Message}
	}

	ue := core.NewUserError(err)
	return responseError{
		Code:    ue.User.Code,
		Message: ue.User.Message,
		Action:  ue.User.Action,
		Detail:  ue.Technical.Error(),
	}
}

func encode(w io.Writer, format string, v any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
