package cli

import (
	"errors"
	"fmt"
	"io"

	ldapclient "github.com/isometry/replicad/internal/ldap"
	"github.com/isometry/replicad/internal/replication"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // At least one change or bind did not succeed
	ExitCommandError = 2 // Bad flags, unreadable config or records
)

// ExitError carries the process exit code for a failed command.
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

// NewExitError creates an ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error, ExitFailure by default.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// writeOutcome prints one tab-separated line per applied record.
func writeOutcome(w io.Writer, target *ldapclient.ReplicaTarget, rec *replication.ChangeRecord, out replication.Outcome) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", target.Name, rec.ChangeType, rec.DN, out)
}
