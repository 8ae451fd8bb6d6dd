package ldap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// ErrorCategory represents different categories of LDAP errors.
type ErrorCategory string

const (
	ErrorCategoryConnection     ErrorCategory = "connection"
	ErrorCategoryAuthentication ErrorCategory = "authentication"
	ErrorCategoryConfiguration  ErrorCategory = "configuration"
	ErrorCategoryPermission     ErrorCategory = "permission"
	ErrorCategoryNotFound       ErrorCategory = "not_found"
	ErrorCategoryConflict       ErrorCategory = "conflict"
	ErrorCategoryValidation     ErrorCategory = "validation"
	ErrorCategoryServer         ErrorCategory = "server"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// serverDownCodes are the result codes that mean the session is unusable and
// the operation may succeed against a fresh one.
var serverDownCodes = []uint16{
	ldap.LDAPResultUnavailable,
	ldap.LDAPResultServerDown,
	ldap.LDAPResultConnectError,
	ldap.ErrorNetwork,
}

// LDAPError provides enhanced error information for LDAP operations.
type LDAPError struct {
	Operation string        // The operation that failed
	Category  ErrorCategory // Error category
	LDAPCode  uint16        // LDAP result code
	Message   string        // Human-readable message
	ServerMsg string        // Server-provided message
	DN        string        // DN involved in the operation (if applicable)
	Retryable bool          // Whether the operation may succeed on a new session
	Cause     error         // Underlying error
}

func (e *LDAPError) Error() string {
	var parts []string

	if e.LDAPCode > 0 {
		parts = append(parts, fmt.Sprintf("LDAP %s failed (code %d)", e.Operation, e.LDAPCode))
	} else {
		parts = append(parts, fmt.Sprintf("LDAP %s failed", e.Operation))
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	if e.ServerMsg != "" && e.ServerMsg != e.Message {
		parts = append(parts, fmt.Sprintf("server: %s", e.ServerMsg))
	}

	if e.DN != "" {
		parts = append(parts, fmt.Sprintf("DN: %s", e.DN))
	}

	return strings.Join(parts, " - ")
}

func (e *LDAPError) IsRetryable() bool {
	return e.Retryable
}

func (e *LDAPError) Unwrap() error {
	return e.Cause
}

// NewLDAPError classifies err as the result of operation against dn.
func NewLDAPError(operation, dn string, err error) *LDAPError {
	if err == nil {
		return nil
	}

	ldapErr := &LDAPError{
		Operation: operation,
		DN:        dn,
		Cause:     err,
	}

	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		ldapErr.LDAPCode = resultErr.ResultCode
		if resultErr.Err != nil {
			ldapErr.ServerMsg = resultErr.Err.Error()
		}
		ldapErr.Category = categorizeError(resultErr.ResultCode)
		ldapErr.Retryable = IsServerDownCode(resultErr.ResultCode)
		ldapErr.Message = ErrorString(resultErr.ResultCode)
	} else {
		// Anything that is not a protocol result came from the transport.
		ldapErr.LDAPCode = ldap.ErrorNetwork
		ldapErr.Category = ErrorCategoryConnection
		ldapErr.Retryable = true
		ldapErr.Message = err.Error()
	}

	return ldapErr
}

// ErrorString returns the text for an LDAP result code.
func ErrorString(code uint16) string {
	if msg, ok := ldap.LDAPResultCodeMap[code]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown LDAP error (code %d)", code)
}

// IsServerDownCode reports whether code belongs to the server-down family.
func IsServerDownCode(code uint16) bool {
	for _, c := range serverDownCodes {
		if c == code {
			return true
		}
	}
	return false
}

// IsServerDown reports whether err means the session is gone.
func IsServerDown(err error) bool {
	if err == nil {
		return false
	}
	if ldap.IsErrorAnyOf(err, serverDownCodes...) {
		return true
	}
	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) {
		return ldapErr.Retryable
	}
	return false
}

// categorizeError categorizes an error based on LDAP result code.
func categorizeError(code uint16) ErrorCategory {
	switch code {
	case ldap.LDAPResultInvalidCredentials,
		ldap.LDAPResultInappropriateAuthentication,
		ldap.LDAPResultStrongAuthRequired,
		ldap.LDAPResultAuthMethodNotSupported:
		return ErrorCategoryAuthentication

	case ldap.LDAPResultInsufficientAccessRights,
		ldap.LDAPResultUnwillingToPerform:
		return ErrorCategoryPermission

	case ldap.LDAPResultNoSuchObject,
		ldap.LDAPResultNoSuchAttribute,
		ldap.LDAPResultUndefinedAttributeType:
		return ErrorCategoryNotFound

	case ldap.LDAPResultEntryAlreadyExists,
		ldap.LDAPResultAttributeOrValueExists,
		ldap.LDAPResultObjectClassViolation,
		ldap.LDAPResultNotAllowedOnNonLeaf,
		ldap.LDAPResultNotAllowedOnRDN:
		return ErrorCategoryConflict

	case ldap.LDAPResultInvalidAttributeSyntax,
		ldap.LDAPResultConstraintViolation,
		ldap.LDAPResultInvalidDNSyntax,
		ldap.LDAPResultNamingViolation:
		return ErrorCategoryValidation

	case ldap.LDAPResultServerDown,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultBusy,
		ldap.LDAPResultTimeLimitExceeded,
		ldap.LDAPResultAdminLimitExceeded:
		return ErrorCategoryServer

	case ldap.LDAPResultConnectError,
		ldap.LDAPResultProtocolError,
		ldap.ErrorNetwork:
		return ErrorCategoryConnection

	default:
		return ErrorCategoryUnknown
	}
}

// BindFailure names why a session could not be established.
type BindFailure int

const (
	BindErrOpen                BindFailure = iota // connection could not be opened
	BindErrSimpleFailed                           // simple bind rejected
	BindErrKerberosFailed                         // no principal yielded a ticket, or the SASL bind failed
	BindErrKerberosUnsupported                    // ticket-based auth unavailable in this build or config
	BindErrBadAuthMethod                          // target names an unknown auth method
)

func (f BindFailure) String() string {
	switch f {
	case BindErrOpen:
		return "open failed"
	case BindErrSimpleFailed:
		return "simple bind failed"
	case BindErrKerberosFailed:
		return "kerberos bind failed"
	case BindErrKerberosUnsupported:
		return "kerberos not supported"
	case BindErrBadAuthMethod:
		return "unknown auth method"
	default:
		return "bind failed"
	}
}

// BindError is returned by SessionManager when a session cannot be established.
type BindError struct {
	Reason   BindFailure
	Target   string
	LDAPCode uint16
	Cause    error
}

func (e *BindError) Error() string {
	msg := fmt.Sprintf("bind to %s: %s", e.Target, e.Reason)
	if e.LDAPCode > 0 {
		msg += fmt.Sprintf(" (code %d: %s)", e.LDAPCode, ErrorString(e.LDAPCode))
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *BindError) Unwrap() error {
	return e.Cause
}

// IsConfigurationError reports whether retrying can never help.
func (e *BindError) IsConfigurationError() bool {
	return e.Reason == BindErrKerberosUnsupported || e.Reason == BindErrBadAuthMethod
}

// IsRetryable reports whether the caller may try to bind again later.
func (e *BindError) IsRetryable() bool {
	return !e.IsConfigurationError()
}

func newBindError(reason BindFailure, target *ReplicaTarget, err error) *BindError {
	bindErr := &BindError{
		Reason: reason,
		Target: target.String(),
		Cause:  err,
	}
	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		bindErr.LDAPCode = resultErr.ResultCode
	}
	return bindErr
}

// WrapError wraps an error with operation context.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) {
		if ldapErr.Operation == "" {
			ldapErr.Operation = operation
		}
		return ldapErr
	}

	return NewLDAPError(operation, "", err)
}

// IsRetryableError checks if an error is retryable.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	return IsServerDown(err)
}

// IsConfigurationError reports whether err stems from target configuration.
func IsConfigurationError(err error) bool {
	var bindErr *BindError
	return errors.As(err, &bindErr) && bindErr.IsConfigurationError()
}

// GetErrorCategory returns the category of an error.
func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryUnknown
	}

	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) {
		return ldapErr.Category
	}

	var bindErr *BindError
	if errors.As(err, &bindErr) {
		if bindErr.IsConfigurationError() {
			return ErrorCategoryConfiguration
		}
		if bindErr.Reason == BindErrOpen {
			return ErrorCategoryConnection
		}
		return ErrorCategoryAuthentication
	}

	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		return categorizeError(resultErr.ResultCode)
	}

	return ErrorCategoryUnknown
}
