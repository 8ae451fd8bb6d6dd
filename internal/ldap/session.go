package ldap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// NetDialer dials replicas over TCP using go-ldap.
type NetDialer struct {
	// ConnectTimeout bounds the TCP handshake; the target timeout is used when zero.
	ConnectTimeout time.Duration
}

func (d NetDialer) Dial(_ context.Context, target *ReplicaTarget) (Conn, error) {
	timeout := d.ConnectTimeout
	if timeout == 0 {
		timeout = targetTimeout(target)
	}

	opts := []ldap.DialOpt{
		ldap.DialWithDialer(&net.Dialer{Timeout: timeout}),
	}
	if target.UseTLS {
		tlsConfig := target.TLS
		if tlsConfig == nil {
			tlsConfig = &tls.Config{ServerName: target.Host, MinVersion: tls.VersionTLS12}
		}
		opts = append(opts, ldap.DialWithTLSConfig(tlsConfig))
	}

	conn, err := ldap.DialURL(target.URL(), opts...)
	if err != nil {
		return nil, WrapError("dial", err)
	}
	return conn, nil
}

// SessionManager establishes and tears down authenticated sessions to replicas.
type SessionManager struct {
	dialer          Dialer
	tickets         TicketSource
	kerberosEnabled bool
	principalAttr   string
	lookupTimeout   time.Duration
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithDialer replaces the network dialer.
func WithDialer(d Dialer) SessionOption {
	return func(m *SessionManager) {
		m.dialer = d
	}
}

// WithTicketSource replaces the Kerberos ticket source.
func WithTicketSource(ts TicketSource) SessionOption {
	return func(m *SessionManager) {
		m.tickets = ts
	}
}

// WithKerberos enables or disables ticket-based authentication. It cannot
// enable Kerberos in a build without Kerberos support.
func WithKerberos(enabled bool) SessionOption {
	return func(m *SessionManager) {
		m.kerberosEnabled = enabled && KerberosSupported
	}
}

// WithPrincipalAttribute sets the attribute read from the bind DN entry to
// discover candidate principals.
func WithPrincipalAttribute(attr string) SessionOption {
	return func(m *SessionManager) {
		if attr != "" {
			m.principalAttr = attr
		}
	}
}

// WithLookupTimeout bounds the principal discovery search.
func WithLookupTimeout(d time.Duration) SessionOption {
	return func(m *SessionManager) {
		if d > 0 {
			m.lookupTimeout = d
		}
	}
}

// NewSessionManager creates a SessionManager with network dialing and, when
// compiled in, keytab-based Kerberos.
func NewSessionManager(opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		dialer:          NetDialer{},
		tickets:         defaultTicketSource(),
		kerberosEnabled: KerberosSupported,
		principalAttr:   DefaultPrincipalAttribute,
		lookupTimeout:   DefaultPrincipalLookupTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// KerberosEnabled reports whether ticket-based binds are available.
func (m *SessionManager) KerberosEnabled() bool {
	return m.kerberosEnabled && m.tickets != nil
}

// EnsureSession binds to target unless it already holds a session.
func (m *SessionManager) EnsureSession(ctx context.Context, target *ReplicaTarget) error {
	if target.session != nil {
		return nil
	}
	return m.Bind(ctx, target)
}

// Bind opens a new connection to target and authenticates it, replacing any
// existing session. On failure the target is left without a session.
func (m *SessionManager) Bind(ctx context.Context, target *ReplicaTarget) error {
	if target.session != nil {
		_ = m.Teardown(ctx, target)
	}

	fields := map[string]any{
		"replica":     target.String(),
		"auth_method": target.AuthMethod.String(),
		"bind_dn":     target.BindDN,
	}

	switch target.AuthMethod {
	case AuthMethodSimpleBind:
	case AuthMethodKerberos:
		if !m.KerberosEnabled() {
			LogConnectionEvent(ctx, "authentication_failed", fields)
			return newBindError(BindErrKerberosUnsupported, target,
				errors.New("kerberos authentication is not available"))
		}
	default:
		LogConnectionEvent(ctx, "authentication_failed", fields)
		return newBindError(BindErrBadAuthMethod, target,
			fmt.Errorf("unknown auth method %d", int(target.AuthMethod)))
	}

	LogConnectionEvent(ctx, "connection_attempt", fields)

	conn, err := m.dialer.Dial(ctx, target)
	if err != nil {
		fields["error"] = err.Error()
		LogConnectionEvent(ctx, "connection_failed", fields)
		return newBindError(BindErrOpen, target, err)
	}
	conn.SetTimeout(targetTimeout(target))

	reason := BindErrSimpleFailed
	if target.AuthMethod == AuthMethodKerberos {
		reason = BindErrKerberosFailed
		err = m.bindKerberos(ctx, conn, target)
	} else {
		err = conn.Bind(target.BindDN, target.Password)
	}

	if err != nil {
		_ = conn.Close()
		fields["error"] = err.Error()
		LogConnectionEvent(ctx, "authentication_failed", fields)
		return newBindError(reason, target, err)
	}

	target.session = conn
	LogConnectionEvent(ctx, "authentication_success", fields)
	return nil
}

// Teardown releases the target's session. Unbind failures are logged and
// returned, but the session is always cleared.
func (m *SessionManager) Teardown(ctx context.Context, target *ReplicaTarget) error {
	conn := target.session
	if conn == nil {
		return nil
	}
	target.session = nil

	err := conn.Unbind()
	if err == nil {
		LogConnectionEvent(ctx, "connection_closed", map[string]any{"replica": target.String()})
		return nil
	}

	if errors.Is(err, ldap.ErrConnUnbound) {
		return nil
	}

	_ = conn.Close()
	LogConnectionEvent(ctx, "unbind_failed", map[string]any{
		"replica": target.String(),
		"error":   err.Error(),
	})
	return fmt.Errorf("unbind from %s: %w", target, err)
}

func (m *SessionManager) bindKerberos(ctx context.Context, conn Conn, target *ReplicaTarget) error {
	candidates, err := m.principalCandidates(ctx, conn, target)
	if err != nil {
		LogKerberosEvent(ctx, "principal_lookup_failed", map[string]any{
			"replica": target.String(),
			"bind_dn": target.BindDN,
			"error":   err.Error(),
		})
		return err
	}
	candidates = preferPrincipal(candidates, target.lastPrincipal)

	LogKerberosEvent(ctx, "principal_candidates", map[string]any{
		"replica":    target.String(),
		"candidates": candidates,
	})

	var (
		client   ldap.GSSAPIClient
		failures []error
	)
	for _, candidate := range candidates {
		principal, err := m.tickets.ParsePrincipal(candidate)
		if err != nil {
			LogKerberosEvent(ctx, "principal_parse_failed", map[string]any{
				"principal": candidate,
				"error":     err.Error(),
			})
			failures = append(failures, err)
			continue
		}

		client, err = m.tickets.Acquire(ctx, principal, target.Keytab)
		if err != nil {
			LogKerberosEvent(ctx, "ticket_acquisition_failed", map[string]any{
				"principal": principal.String(),
				"keytab":    target.Keytab,
				"error":     err.Error(),
			})
			failures = append(failures, fmt.Errorf("%s: %w", principal, err))
			client = nil
			continue
		}

		target.lastPrincipal = candidate
		LogKerberosEvent(ctx, "ticket_acquired", map[string]any{
			"principal": principal.String(),
		})
		break
	}

	if client == nil {
		return fmt.Errorf("could not obtain a ticket for bind DN %q: %w", target.BindDN, errors.Join(failures...))
	}
	defer func() {
		_ = client.DeleteSecContext()
	}()

	authzID := ""
	if target.BindDN != "" {
		authzID = "dn:" + target.BindDN
	}

	if err := conn.GSSAPIBind(client, buildServicePrincipal(target), authzID); err != nil {
		LogKerberosEvent(ctx, "authentication_failed", map[string]any{
			"replica": target.String(),
			"spn":     buildServicePrincipal(target),
			"error":   err.Error(),
		})
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}
	return nil
}

// principalCandidates returns the static principal, or reads the principal
// attribute of the bind DN entry over an anonymous bind.
func (m *SessionManager) principalCandidates(ctx context.Context, conn Conn, target *ReplicaTarget) ([]string, error) {
	if target.Principal != "" {
		return []string{target.Principal}, nil
	}
	if target.BindDN == "" {
		return nil, errors.New("no principal configured and no bind DN to look one up")
	}

	if err := conn.UnauthenticatedBind(""); err != nil {
		return nil, fmt.Errorf("anonymous bind for principal lookup: %w", err)
	}

	conn.SetTimeout(m.lookupTimeout)
	defer conn.SetTimeout(targetTimeout(target))

	req := ldap.NewSearchRequest(
		target.BindDN,
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		0,
		int(m.lookupTimeout/time.Second),
		false,
		"(objectClass=*)",
		[]string{m.principalAttr},
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("principal lookup on %q: %w", target.BindDN, err)
	}

	switch len(res.Entries) {
	case 0:
		return nil, fmt.Errorf("principal lookup on %q returned no entry", target.BindDN)
	case 1:
	default:
		return nil, fmt.Errorf("principal lookup on %q is ambiguous: %d entries", target.BindDN, len(res.Entries))
	}

	values := res.Entries[0].GetEqualFoldAttributeValues(m.principalAttr)
	if len(values) == 0 {
		return nil, fmt.Errorf("entry %q has no %s values", target.BindDN, m.principalAttr)
	}

	LogKerberosEvent(ctx, "principal_resolved", map[string]any{
		"bind_dn":    target.BindDN,
		"attribute":  m.principalAttr,
		"principals": len(values),
	})
	return values, nil
}

// preferPrincipal moves last to the front of candidates when present.
func preferPrincipal(candidates []string, last string) []string {
	if last == "" {
		return candidates
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == last {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return candidates
	}
	for _, c := range candidates {
		if c != last {
			out = append(out, c)
		}
	}
	return out
}

// buildServicePrincipal returns the SPN to request a service ticket for.
func buildServicePrincipal(target *ReplicaTarget) string {
	if target.KerberosSPN != "" {
		return target.KerberosSPN
	}
	return "ldap/" + strings.ToLower(target.Host)
}

func targetTimeout(target *ReplicaTarget) time.Duration {
	if target.Timeout > 0 {
		return target.Timeout
	}
	return DefaultTimeout
}
