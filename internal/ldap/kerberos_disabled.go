//go:build nokerberos

package ldap

// KerberosSupported reports whether this build can perform GSSAPI binds.
const KerberosSupported = false

func defaultTicketSource() TicketSource {
	return nil
}

// NewTicketSource returns nil; this build cannot acquire tickets.
func NewTicketSource(_, _ string) TicketSource {
	return nil
}
