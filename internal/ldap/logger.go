package ldap

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Log subsystems.
const (
	SubsystemLDAP        = "ldap"
	SubsystemKerberos    = "kerberos"
	SubsystemReplication = "replication"
)

// LogEnvVar is the root log level variable; REPLICAD_LOG_<SUBSYSTEM>
// overrides the level for a single subsystem.
const LogEnvVar = "REPLICAD_LOG"

// sensitiveKeys are masked by SanitizeFields and by every subsystem logger.
var sensitiveKeys = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"credential",
	"credentials",
}

// WithSubsystems registers the replicad log subsystems on ctx.
func WithSubsystems(ctx context.Context) context.Context {
	for _, sub := range []string{SubsystemLDAP, SubsystemKerberos, SubsystemReplication} {
		ctx = tflog.NewSubsystem(ctx, sub, tflog.WithLevelFromEnv(LogEnvVar, strings.ToUpper(sub)))
		ctx = tflog.SubsystemMaskFieldValuesWithFieldKeys(ctx, sub, sensitiveKeys...)
	}
	return ctx
}

// LogOperation runs fn and logs its start, duration and result.
func LogOperation(ctx context.Context, subsystem, operation string, fields map[string]any, fn func() error) error {
	start := time.Now()

	if fields == nil {
		fields = make(map[string]any)
	}
	fields["operation"] = operation

	tflog.SubsystemDebug(ctx, subsystem, "Starting operation", fields)

	err := fn()

	fields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		fields["error"] = err.Error()
		tflog.SubsystemDebug(ctx, subsystem, "Operation failed", fields)
	} else {
		tflog.SubsystemDebug(ctx, subsystem, "Operation completed successfully", fields)
	}

	return err
}

// LogLDAPError logs LDAP-specific error information.
func LogLDAPError(ctx context.Context, subsystem string, operation string, err error, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}

	fields["operation"] = operation
	fields["error"] = err.Error()

	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		fields["ldap_result_code"] = resultErr.ResultCode
		fields["ldap_result"] = ErrorString(resultErr.ResultCode)
		if resultErr.MatchedDN != "" {
			fields["ldap_matched_dn"] = resultErr.MatchedDN
		}
		if resultErr.Err != nil {
			fields["ldap_diagnostic_message"] = resultErr.Err.Error()
		}
	}

	tflog.SubsystemError(ctx, subsystem, "LDAP operation failed", fields)
}

// LogConnectionEvent logs connection-related events.
func LogConnectionEvent(ctx context.Context, event string, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}

	fields["event"] = event
	fields = SanitizeFields(fields)

	switch event {
	case "connection_established", "authentication_success":
		tflog.SubsystemInfo(ctx, SubsystemLDAP, "Connection event", fields)
	case "connection_failed", "authentication_failed":
		tflog.SubsystemError(ctx, SubsystemLDAP, "Connection event", fields)
	case "unbind_failed":
		tflog.SubsystemWarn(ctx, SubsystemLDAP, "Connection event", fields)
	default:
		tflog.SubsystemDebug(ctx, SubsystemLDAP, "Connection event", fields)
	}
}

// LogKerberosEvent logs Kerberos-specific events.
func LogKerberosEvent(ctx context.Context, event string, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}

	fields["event"] = event
	fields = SanitizeFields(fields)

	switch event {
	case "ticket_acquired", "principal_resolved":
		tflog.SubsystemInfo(ctx, SubsystemKerberos, "Kerberos event", fields)
	case "principal_lookup_failed", "authentication_failed":
		tflog.SubsystemError(ctx, SubsystemKerberos, "Kerberos event", fields)
	case "ticket_acquisition_failed", "principal_parse_failed":
		tflog.SubsystemWarn(ctx, SubsystemKerberos, "Kerberos event", fields)
	case "principal_candidates", "krb5_conf_generated":
		tflog.SubsystemDebug(ctx, SubsystemKerberos, "Kerberos event", fields)
	default:
		tflog.SubsystemTrace(ctx, SubsystemKerberos, "Kerberos event", fields)
	}
}

// SanitizeFields returns a copy of fields with sensitive values redacted.
func SanitizeFields(fields map[string]any) map[string]any {
	sanitized := make(map[string]any, len(fields))

	for k, v := range fields {
		if isSensitiveKey(k) {
			sanitized[k] = "[REDACTED]"
			continue
		}
		if str, ok := v.(string); ok && containsSensitivePattern(str) {
			sanitized[k] = "[REDACTED]"
			continue
		}
		sanitized[k] = v
	}

	return sanitized
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, k := range sensitiveKeys {
		if key == k {
			return true
		}
	}
	return false
}

// containsSensitivePattern checks if a string contains patterns that might be sensitive.
func containsSensitivePattern(s string) bool {
	lower := strings.ToLower(s)
	for _, key := range sensitiveKeys {
		if strings.Contains(lower, key+"=") {
			return true
		}
	}
	return false
}
