package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // successful execution
	ExitDenied       = 1 // governance refusal or failed audit
	ExitCommandError = 2 // command error (bad flags, missing database, etc.)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
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

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitDenied (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitDenied
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Response is the standard JSON envelope for CLI output.
type Response struct {
	Status string   `json:"status"` // "ok" or "error"
	Data   any      `json:"data,omitempty"`
	Error  *RespErr `json:"error,omitempty"`
}

// RespErr is the error structure inside a Response.
type RespErr struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Success outputs a successful result. In text mode, text is printed
// as-is; in JSON mode, data is wrapped in the response envelope.
func (f *OutputFormatter) Success(data any, text string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, text)
	return err
}

// Denied outputs a governance refusal with its code.
func (f *OutputFormatter) Denied(code, message string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{
			Status: "error",
			Error:  &RespErr{Code: code, Message: message},
		})
	}
	_, err := fmt.Fprintf(f.Writer, "Denied [%s]: %s\n", code, message)
	return err
}
