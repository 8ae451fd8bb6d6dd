package ldap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// ValidateDNSyntax checks that dn parses as an RFC 4514 distinguished name.
func ValidateDNSyntax(dn string) error {
	dn = strings.TrimSpace(dn)
	if dn == "" {
		return errors.New("DN cannot be empty")
	}
	if _, err := ldap.ParseDN(dn); err != nil {
		return fmt.Errorf("invalid DN syntax: %w", err)
	}
	return nil
}

// RenamedDN returns the DN an entry will have after a modrdn of dn to newRDN.
func RenamedDN(dn, newRDN string) (string, error) {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid DN syntax: %w", err)
	}
	if len(parsed.RDNs) <= 1 {
		return newRDN, nil
	}

	parent := &ldap.DN{RDNs: parsed.RDNs[1:]}
	return newRDN + "," + parent.String(), nil
}
