//go:build !nokerberos

package ldap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/types"
)

// KerberosSupported reports whether this build can perform GSSAPI binds.
const KerberosSupported = true

const defaultKrb5ConfPath = "/etc/krb5.conf"

// KeytabTicketSource acquires TGTs from a keytab using gokrb5.
type KeytabTicketSource struct {
	// Krb5Conf is the krb5.conf path. When the file does not exist and Realm
	// is set, a configuration relying on DNS KDC discovery is generated.
	Krb5Conf string

	// Realm is used for principals that carry no realm of their own.
	Realm string
}

func defaultTicketSource() TicketSource {
	return &KeytabTicketSource{}
}

// NewTicketSource returns a keytab ticket source using krb5conf and realm.
func NewTicketSource(krb5conf, realm string) TicketSource {
	return &KeytabTicketSource{Krb5Conf: krb5conf, Realm: realm}
}

// ParsePrincipal splits name[/instance][@REALM]. The realm is upper-cased.
func (s *KeytabTicketSource) ParsePrincipal(principal string) (Principal, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return Principal{}, errors.New("empty principal")
	}

	pn, realm := types.ParseSPNString(principal)
	if len(pn.NameString) == 0 || pn.NameString[0] == "" {
		return Principal{}, fmt.Errorf("principal %q has no name component", principal)
	}

	p := Principal{
		Name:     pn.NameString[0],
		Instance: strings.Join(pn.NameString[1:], "/"),
		Realm:    realm,
	}
	if p.Realm == "" {
		p.Realm = s.defaultRealm()
	}
	if p.Realm == "" {
		return Principal{}, fmt.Errorf("principal %q has no realm and no default realm is configured", principal)
	}
	p.Realm = strings.ToUpper(p.Realm)

	return p, nil
}

// Acquire logs in to the KDC with keys from keytabPath, or the default keytab.
func (s *KeytabTicketSource) Acquire(ctx context.Context, principal Principal, keytabPath string) (ldap.GSSAPIClient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if keytabPath == "" {
		keytabPath = getDefaultKeytabPath()
	}
	kt, err := keytab.Load(keytabPath)
	if err != nil {
		return nil, fmt.Errorf("load keytab %s: %w", keytabPath, err)
	}

	realm := principal.Realm
	if realm == "" {
		realm = s.Realm
	}
	krb5conf, err := s.loadConfig(ctx, realm)
	if err != nil {
		return nil, err
	}

	cl := krb5client.NewWithKeytab(principal.Username(), realm, kt, krb5conf, krb5client.DisablePAFXFAST(true))
	if err := cl.Login(); err != nil {
		cl.Destroy()
		return nil, fmt.Errorf("obtain TGT for %s: %w", principal, err)
	}

	return &gssapi.Client{Client: cl}, nil
}

func (s *KeytabTicketSource) confPath() string {
	if s.Krb5Conf != "" {
		return s.Krb5Conf
	}
	if env := os.Getenv("KRB5_CONFIG"); env != "" {
		return env
	}
	return defaultKrb5ConfPath
}

func (s *KeytabTicketSource) loadConfig(ctx context.Context, realm string) (*config.Config, error) {
	path := s.confPath()
	if fileExists(path) {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load krb5 config %s: %w", path, err)
		}
		return cfg, nil
	}

	if realm == "" {
		return nil, fmt.Errorf("kerberos configuration file not found at %s and no realm to generate one", path)
	}

	cfg, err := config.NewFromString(generateRuntimeKrb5Conf(ctx, realm))
	if err != nil {
		return nil, fmt.Errorf("generate krb5 config for %s: %w", realm, err)
	}
	return cfg, nil
}

func (s *KeytabTicketSource) defaultRealm() string {
	if s.Realm != "" {
		return s.Realm
	}
	path := s.confPath()
	if !fileExists(path) {
		return ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return ""
	}
	return cfg.LibDefaults.DefaultRealm
}

// generateRuntimeKrb5Conf builds a krb5.conf that finds KDCs through DNS SRV records.
func generateRuntimeKrb5Conf(ctx context.Context, realm string) string {
	realm = strings.ToUpper(realm)
	domain := strings.ToLower(realm)

	LogKerberosEvent(ctx, "krb5_conf_generated", map[string]any{
		"realm":  realm,
		"domain": domain,
	})

	return fmt.Sprintf(`[libdefaults]
    default_realm = %s
    dns_lookup_kdc = true
    dns_lookup_realm = false
    rdns = false

[realms]
    %s = {
    }

[domain_realm]
    .%s = %s
    %s = %s
`,
		realm,
		realm,
		domain, realm,
		domain, realm,
	)
}

// getDefaultKeytabPath returns the default keytab location.
func getDefaultKeytabPath() string {
	if kt := os.Getenv("KRB5_KTNAME"); kt != "" {
		return strings.TrimPrefix(kt, "FILE:")
	}
	return "/etc/krb5.keytab"
}

// fileExists checks if a file exists and is readable.
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	file.Close()
	return true
}
