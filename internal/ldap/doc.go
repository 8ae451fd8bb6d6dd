/*
Package ldap manages authenticated sessions to replica directory servers.

A ReplicaTarget describes one replica and carries its live session. The
SessionManager is the only code that opens, authenticates or releases that
session; everything else reads it through ReplicaTarget.Session.

# Sessions

EnsureSession binds when the target holds no session and is a no-op
otherwise. Bind always tears down a stale session before dialing again, so at
most one connection per target is open. Teardown unbinds and clears the
session; unbind failures are logged and returned but never leave a stale
handle behind.

# Authentication

Two methods are supported:

  - Simple bind with the configured bind DN and password.
  - Kerberos (SASL/GSSAPI) with keys from a keytab. Candidate principals come
    from the target's static principal or, when none is configured, from the
    principal attribute of the bind DN entry read over an anonymous bind. The
    principal that last produced a ticket is tried first.

Kerberos is compiled out by the nokerberos build tag and can be disabled at
runtime with WithKerberos(false). Kerberos targets then fail with a
configuration error before any network traffic.

# Error Handling

BindError reports why a session could not be established; configuration
failures are never retryable. LDAPError classifies the result of a request:
the server-down family (unavailable, server down, connect error and network
errors) is retryable on a fresh session, everything else is not.

# Example Usage

	sessions := ldap.NewSessionManager(ldap.WithLookupTimeout(10 * time.Second))
	target := &ldap.ReplicaTarget{
		Host:       "replica1.example.com",
		AuthMethod: ldap.AuthMethodSimpleBind,
		BindDN:     "cn=replicator,dc=example,dc=com",
		Password:   password,
	}
	if err := sessions.EnsureSession(ctx, target); err != nil {
		return err
	}
	defer sessions.Teardown(ctx, target)
*/
package ldap
