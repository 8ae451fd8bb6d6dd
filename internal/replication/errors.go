package replication

import (
	"errors"
	"fmt"
)

// Reasons a change record is rejected before anything is sent to a replica.
var (
	ErrNoModifications   = errors.New("no modifications to do")
	ErrOperatorExpected  = errors.New("attribute value outside a modify operation")
	ErrAttributeMismatch = errors.New("malformed modify operation")
	ErrBadValue          = errors.New("bad value in replication log entry")
	ErrMissingArgument   = errors.New("missing argument: requires newrdn and deleteoldrdn")
	ErrIncorrectArgument = errors.New("incorrect argument to deleteoldrdn")
	ErrUnknownChangeType = errors.New("unknown change type")
)

// RecordError reports a malformed change record. It is never retryable.
type RecordError struct {
	DN         string
	ChangeType ChangeType
	Err        error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.ChangeType, e.DN, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func (e *RecordError) IsRetryable() bool {
	return false
}
