package ldap

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Defaults applied to a ReplicaTarget when the configuration leaves them unset.
const (
	DefaultLDAPPort               = 389
	DefaultLDAPSPort              = 636
	DefaultTimeout                = 30 * time.Second
	DefaultPrincipalAttribute     = "kerberosName"
	DefaultPrincipalLookupTimeout = 30 * time.Second
)

// AuthMethod defines authentication method types.
type AuthMethod int

const (
	AuthMethodSimpleBind AuthMethod = iota // DN/password authentication
	AuthMethodKerberos                     // GSSAPI/Kerberos authentication
	AuthMethodUnknown    AuthMethod = -1
)

// String returns string representation of authentication method.
func (a AuthMethod) String() string {
	switch a {
	case AuthMethodSimpleBind:
		return "simple"
	case AuthMethodKerberos:
		return "kerberos"
	default:
		return "unknown"
	}
}

// ParseAuthMethod maps a configured method name onto an AuthMethod.
// Unrecognised names yield AuthMethodUnknown; the session manager rejects
// those before touching the network.
func ParseAuthMethod(name string) AuthMethod {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "simple", "password":
		return AuthMethodSimpleBind
	case "kerberos", "gssapi":
		return AuthMethodKerberos
	default:
		return AuthMethodUnknown
	}
}

// ReplicaTarget describes one remote replica and carries its live session.
//
// A target is created once from configuration and lives for the process
// lifetime. Only SessionManager mutates the session fields, and callers must
// not drive two applies against the same target concurrently.
type ReplicaTarget struct {
	Name    string
	Host    string
	Port    int
	UseTLS  bool        // Dial ldaps:// instead of ldap://
	TLS     *tls.Config // Optional TLS configuration for ldaps://
	Timeout time.Duration

	AuthMethod AuthMethod
	BindDN     string
	Password   string

	Principal   string // Static Kerberos principal; skips the directory lookup
	Keytab      string // Path to the keytab holding the principal keys
	KerberosSPN string // Overrides the ldap/<host> service principal

	session       Conn
	lastPrincipal string
}

// Address returns host:port for the replica.
func (t *ReplicaTarget) Address() string {
	port := t.Port
	if port == 0 {
		port = DefaultLDAPPort
		if t.UseTLS {
			port = DefaultLDAPSPort
		}
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// URL returns the LDAP URL used to dial the replica.
func (t *ReplicaTarget) URL() string {
	scheme := "ldap"
	if t.UseTLS {
		scheme = "ldaps"
	}
	return scheme + "://" + t.Address()
}

// String identifies the target in logs and errors.
func (t *ReplicaTarget) String() string {
	if t.Name != "" && t.Name != t.Host {
		return t.Name + " (" + t.Address() + ")"
	}
	return t.Address()
}

// HasSession reports whether the target holds a live, authenticated session.
func (t *ReplicaTarget) HasSession() bool {
	return t.session != nil
}

// Session returns the live session, or nil when the target is not bound.
func (t *ReplicaTarget) Session() Conn {
	return t.session
}

// LastPrincipal returns the Kerberos principal that last yielded a ticket.
func (t *ReplicaTarget) LastPrincipal() string {
	return t.lastPrincipal
}

// Conn is the subset of the LDAP protocol a replica session needs.
// *ldap.Conn from go-ldap satisfies it.
type Conn interface {
	Bind(username, password string) error
	UnauthenticatedBind(username string) error
	GSSAPIBind(client ldap.GSSAPIClient, servicePrincipal, authzid string) error

	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Add(req *ldap.AddRequest) error
	Modify(req *ldap.ModifyRequest) error
	Del(req *ldap.DelRequest) error
	ModifyDN(req *ldap.ModifyDNRequest) error

	SetTimeout(timeout time.Duration)
	Unbind() error
	Close() error
}

var _ Conn = (*ldap.Conn)(nil)

// Dialer opens unauthenticated connections to a replica.
type Dialer interface {
	Dial(ctx context.Context, target *ReplicaTarget) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, target *ReplicaTarget) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, target *ReplicaTarget) (Conn, error) {
	return f(ctx, target)
}

// Principal is a parsed Kerberos principal name.
type Principal struct {
	Name     string
	Instance string
	Realm    string
}

// Username returns the principal without its realm, as used for AS requests.
func (p Principal) Username() string {
	if p.Instance == "" {
		return p.Name
	}
	return p.Name + "/" + p.Instance
}

func (p Principal) String() string {
	if p.Realm == "" {
		return p.Username()
	}
	return p.Username() + "@" + p.Realm
}

// TicketSource obtains Kerberos ticket material for a principal.
type TicketSource interface {
	// ParsePrincipal splits name[/instance][@REALM] into its parts,
	// filling in a default realm when none is given.
	ParsePrincipal(principal string) (Principal, error)

	// Acquire obtains a TGT for the principal from the keytab and returns a
	// GSSAPI client ready for an LDAP SASL bind.
	Acquire(ctx context.Context, principal Principal, keytab string) (ldap.GSSAPIClient, error)
}

// RetryableError indicates an error that can be retried.
type RetryableError interface {
	error
	IsRetryable() bool
}
