package ldap

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-ldap/ldap/v3"
)

func TestNewLDAPError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantNil       bool
		wantCode      uint16
		wantRetryable bool
		wantCategory  ErrorCategory
		wantMessage   string
	}{
		{
			name:    "nil error",
			wantNil: true,
		},
		{
			name:          "server down",
			err:           ldap.NewError(ldap.LDAPResultServerDown, errors.New("connection reset")),
			wantCode:      ldap.LDAPResultServerDown,
			wantRetryable: true,
			wantCategory:  ErrorCategoryServer,
			wantMessage:   "Cannot establish a connection",
		},
		{
			name:          "no such object",
			err:           ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("entry missing")),
			wantCode:      ldap.LDAPResultNoSuchObject,
			wantRetryable: false,
			wantCategory:  ErrorCategoryNotFound,
			wantMessage:   "No Such Object",
		},
		{
			name:          "transport error",
			err:           errors.New("broken pipe"),
			wantCode:      ldap.ErrorNetwork,
			wantRetryable: true,
			wantCategory:  ErrorCategoryConnection,
			wantMessage:   "broken pipe",
		},
		{
			name:          "wrapped result",
			err:           fmt.Errorf("modify: %w", ldap.NewError(ldap.LDAPResultUnavailable, errors.New("shutting down"))),
			wantCode:      ldap.LDAPResultUnavailable,
			wantRetryable: true,
			wantCategory:  ErrorCategoryServer,
			wantMessage:   "Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewLDAPError("modify", "cn=x,dc=example,dc=com", tt.err)

			if tt.wantNil {
				if result != nil {
					t.Errorf("NewLDAPError() = %v, want nil", result)
				}
				return
			}
			if result == nil {
				t.Fatal("NewLDAPError() = nil, want non-nil")
			}

			if result.LDAPCode != tt.wantCode {
				t.Errorf("LDAPCode = %d, want %d", result.LDAPCode, tt.wantCode)
			}
			if result.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", result.Retryable, tt.wantRetryable)
			}
			if result.Category != tt.wantCategory {
				t.Errorf("Category = %s, want %s", result.Category, tt.wantCategory)
			}
			if result.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", result.Message, tt.wantMessage)
			}
			if !errors.Is(result, tt.err) {
				t.Error("result does not unwrap to the original error")
			}
		})
	}
}

func TestLDAPError_Error(t *testing.T) {
	tests := []struct {
		name    string
		ldapErr *LDAPError
		want    string
	}{
		{
			name:    "basic error",
			ldapErr: &LDAPError{Operation: "delete", Message: "broken pipe"},
			want:    "LDAP delete failed - broken pipe",
		},
		{
			name: "error with code and server message",
			ldapErr: &LDAPError{
				Operation: "add",
				LDAPCode:  ldap.LDAPResultEntryAlreadyExists,
				Message:   "Entry Already Exists",
				ServerMsg: "entry exists",
			},
			want: "LDAP add failed (code 68) - Entry Already Exists - server: entry exists",
		},
		{
			name: "error with DN",
			ldapErr: &LDAPError{
				Operation: "modify",
				Message:   "Insufficient Access Rights",
				DN:        "cn=user,dc=example,dc=com",
			},
			want: "LDAP modify failed - Insufficient Access Rights - DN: cn=user,dc=example,dc=com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.ldapErr.Error()
			if got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		code uint16
		want string
	}{
		{ldap.LDAPResultSuccess, "Success"},
		{ldap.LDAPResultServerDown, "Cannot establish a connection"},
		{ldap.ErrorNetwork, "Network Error"},
		{ldap.LDAPResultInsufficientAccessRights, "Insufficient Access Rights"},
		{4242, "Unknown LDAP error (code 4242)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := ErrorString(tt.code); got != tt.want {
				t.Errorf("ErrorString(%d) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestIsServerDown(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server down", ldap.NewError(ldap.LDAPResultServerDown, errors.New("x")), true},
		{"connect error", ldap.NewError(ldap.LDAPResultConnectError, errors.New("x")), true},
		{"unavailable", ldap.NewError(ldap.LDAPResultUnavailable, errors.New("x")), true},
		{"network", ldap.NewError(ldap.ErrorNetwork, errors.New("x")), true},
		{"busy", ldap.NewError(ldap.LDAPResultBusy, errors.New("x")), false},
		{"classified transport error", NewLDAPError("delete", "", errors.New("eof")), true},
		{"plain error", errors.New("eof"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsServerDown(tt.err); got != tt.want {
				t.Errorf("IsServerDown() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		code uint16
		want ErrorCategory
	}{
		{ldap.LDAPResultInvalidCredentials, ErrorCategoryAuthentication},
		{ldap.LDAPResultInsufficientAccessRights, ErrorCategoryPermission},
		{ldap.LDAPResultNoSuchObject, ErrorCategoryNotFound},
		{ldap.LDAPResultEntryAlreadyExists, ErrorCategoryConflict},
		{ldap.LDAPResultInvalidDNSyntax, ErrorCategoryValidation},
		{ldap.LDAPResultBusy, ErrorCategoryServer},
		{ldap.ErrorNetwork, ErrorCategoryConnection},
		{ldap.LDAPResultOther, ErrorCategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(ErrorString(tt.code), func(t *testing.T) {
			if got := categorizeError(tt.code); got != tt.want {
				t.Errorf("categorizeError(%d) = %s, want %s", tt.code, got, tt.want)
			}
		})
	}
}

func TestBindError(t *testing.T) {
	target := &ReplicaTarget{Name: "r1", Host: "r1.example.com", Port: 389}

	simple := newBindError(BindErrSimpleFailed, target,
		ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad password")))
	if simple.LDAPCode != ldap.LDAPResultInvalidCredentials {
		t.Errorf("LDAPCode = %d, want 49", simple.LDAPCode)
	}
	if !simple.IsRetryable() || IsConfigurationError(simple) {
		t.Error("simple bind failure should be retryable")
	}
	want := "bind to r1 (r1.example.com:389): simple bind failed (code 49: Invalid Credentials): " +
		"LDAP Result Code 49 \"Invalid Credentials\": bad password"
	if simple.Error() != want {
		t.Errorf("Error() = %q, want %q", simple.Error(), want)
	}
	if GetErrorCategory(simple) != ErrorCategoryAuthentication {
		t.Errorf("GetErrorCategory() = %s", GetErrorCategory(simple))
	}

	open := newBindError(BindErrOpen, target, errors.New("connection refused"))
	if open.LDAPCode != 0 {
		t.Errorf("LDAPCode = %d, want 0", open.LDAPCode)
	}
	if GetErrorCategory(open) != ErrorCategoryConnection {
		t.Errorf("GetErrorCategory() = %s", GetErrorCategory(open))
	}

	for _, reason := range []BindFailure{BindErrKerberosUnsupported, BindErrBadAuthMethod} {
		err := fmt.Errorf("session: %w", newBindError(reason, target, errors.New("nope")))
		if !IsConfigurationError(err) {
			t.Errorf("%s should be a configuration error", reason)
		}
		if IsRetryableError(err) {
			t.Errorf("%s should not be retryable", reason)
		}
		if GetErrorCategory(err) != ErrorCategoryConfiguration {
			t.Errorf("GetErrorCategory(%s) = %s", reason, GetErrorCategory(err))
		}
	}
}

func TestWrapError(t *testing.T) {
	if WrapError("dial", nil) != nil {
		t.Error("WrapError(nil) should be nil")
	}

	wrapped := WrapError("dial", ldap.NewError(ldap.ErrorNetwork, errors.New("connection refused")))
	var ldapErr *LDAPError
	if !errors.As(wrapped, &ldapErr) {
		t.Fatalf("WrapError() = %T, want *LDAPError", wrapped)
	}
	if ldapErr.Operation != "dial" || !ldapErr.Retryable {
		t.Errorf("unexpected wrap: %+v", ldapErr)
	}

	existing := &LDAPError{Operation: "search", Message: "test"}
	if got := WrapError("dial", existing); got != existing {
		t.Error("an existing LDAPError should be returned unchanged")
	}
	if existing.Operation != "search" {
		t.Errorf("Operation = %s, want search", existing.Operation)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server down", ldap.NewError(ldap.LDAPResultServerDown, errors.New("x")), true},
		{"no such object", ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("x")), false},
		{"classified", &LDAPError{Retryable: true}, true},
		{"plain", errors.New("x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.want {
				t.Errorf("IsRetryableError() = %v, want %v", got, tt.want)
			}
		})
	}
}
