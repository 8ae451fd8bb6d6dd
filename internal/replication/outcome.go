package replication

import (
	"errors"
	"fmt"

	"github.com/go-ldap/ldap/v3"

	ldapclient "github.com/isometry/replicad/internal/ldap"
)

// Status classifies the result of applying a change record.
type Status int

const (
	// StatusOK means the replica accepted the change.
	StatusOK Status = iota
	// StatusRetryable means the change may succeed later; the caller should
	// back off and resubmit it.
	StatusRetryable
	// StatusFatal means the change will never succeed and should be rejected.
	StatusFatal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRetryable:
		return "retryable"
	case StatusFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the result of applying one change record to one replica.
type Outcome struct {
	Status  Status
	Code    uint16 // LDAP result code, zero when no request was sent
	Message string
	Err     error
}

func (o Outcome) String() string {
	if o.Status == StatusOK {
		return o.Status.String()
	}
	if o.Code != 0 {
		return fmt.Sprintf("%s: %s (code %d)", o.Status, o.Message, o.Code)
	}
	return fmt.Sprintf("%s: %s", o.Status, o.Message)
}

// Category classifies why the change was not applied.
func (o Outcome) Category() ldapclient.ErrorCategory {
	var recErr *RecordError
	if errors.As(o.Err, &recErr) {
		return ldapclient.ErrorCategoryValidation
	}
	return ldapclient.GetErrorCategory(o.Err)
}

func okOutcome() Outcome {
	return Outcome{Status: StatusOK, Code: ldap.LDAPResultSuccess}
}

// rejectRecord reports a malformed record; nothing was sent.
func rejectRecord(rec *ChangeRecord, err error) Outcome {
	return Outcome{
		Status:  StatusFatal,
		Message: err.Error(),
		Err:     &RecordError{DN: rec.DN, ChangeType: rec.ChangeType, Err: err},
	}
}

// classifyResult maps the result of an LDAP request onto an Outcome.
func classifyResult(operation, dn string, err error) Outcome {
	if err == nil {
		return okOutcome()
	}

	ldapErr := ldapclient.NewLDAPError(operation, dn, err)
	status := StatusFatal
	if ldapErr.Retryable {
		status = StatusRetryable
	}
	return Outcome{
		Status:  status,
		Code:    ldapErr.LDAPCode,
		Message: ldapErr.Message,
		Err:     ldapErr,
	}
}

// bindOutcome maps a session error onto an Outcome.
func bindOutcome(err error) Outcome {
	out := Outcome{
		Status:  StatusRetryable,
		Message: err.Error(),
		Err:     err,
	}
	var bindErr *ldapclient.BindError
	if errors.As(err, &bindErr) {
		out.Code = bindErr.LDAPCode
		out.Message = bindErr.Reason.String()
	}
	if !ldapclient.IsRetryableError(err) {
		out.Status = StatusFatal
	}
	return out
}
