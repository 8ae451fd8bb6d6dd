//go:build !nokerberos

package ldap_test

import (
	"context"
	"errors"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	ldapclient "github.com/isometry/replicad/internal/ldap"
	"github.com/isometry/replicad/internal/ldap/ldaptest"
)

func principalSearch(base string) any {
	return mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.BaseDN == base &&
			req.Scope == ldap.ScopeBaseObject &&
			req.Filter == "(objectClass=*)" &&
			len(req.Attributes) == 1 && req.Attributes[0] == ldapclient.DefaultPrincipalAttribute
	})
}

func principalResult(values ...string) *ldap.SearchResult {
	return &ldap.SearchResult{
		Entries: []*ldap.Entry{
			ldap.NewEntry(testBindDN, map[string][]string{"kerberosName": values}),
		},
	}
}

func TestKerberos_CandidateFallbackAndPreference(t *testing.T) {
	ctx := context.Background()
	candidates := []string{"svc1@example.com", "svc2@example.com", "svc3@example.com"}
	principals := []ldapclient.Principal{
		{Name: "svc1", Realm: "EXAMPLE.COM"},
		{Name: "svc2", Realm: "EXAMPLE.COM"},
	}
	target := kerberosTarget()

	newConn := func() (*ldaptest.MockConn, *ldaptest.MockGSSAPIClient) {
		client := &ldaptest.MockGSSAPIClient{}
		client.On("DeleteSecContext").Return(nil)
		conn := &ldaptest.MockConn{}
		conn.On("UnauthenticatedBind", "").Return(nil)
		conn.On("Search", principalSearch(testBindDN)).Return(principalResult(candidates...), nil)
		conn.On("GSSAPIBind", client, "ldap/replica1.example.com", "dn:"+testBindDN).Return(nil)
		return conn, client
	}
	first, firstClient := newConn()
	first.On("Unbind").Return(nil).Once()
	second, secondClient := newConn()

	tickets := &ldaptest.MockTicketSource{}
	for i, c := range candidates[:len(principals)] {
		tickets.On("ParsePrincipal", c).Return(principals[i], nil)
	}
	tickets.On("Acquire", mock.Anything, principals[0], target.Keytab).
		Return(nil, errors.New("key not found in keytab")).Once()
	tickets.On("Acquire", mock.Anything, principals[1], target.Keytab).
		Return(firstClient, nil).Once()
	tickets.On("Acquire", mock.Anything, principals[1], target.Keytab).
		Return(secondClient, nil).Once()

	sm := ldapclient.NewSessionManager(
		ldapclient.WithDialer(ldaptest.NewDialer(first, second)),
		ldapclient.WithTicketSource(tickets),
	)

	require.NoError(t, sm.EnsureSession(ctx, target))
	assert.Equal(t, "svc2@example.com", target.LastPrincipal())
	assert.Same(t, first, target.Session())

	require.NoError(t, sm.Teardown(ctx, target))
	require.NoError(t, sm.EnsureSession(ctx, target))
	assert.Same(t, second, target.Session())

	// The remembered principal goes first, so svc1 is not retried.
	tickets.AssertNumberOfCalls(t, "Acquire", 3)
	tickets.AssertExpectations(t)
	tickets.AssertNotCalled(t, "ParsePrincipal", "svc3@example.com")
	first.AssertExpectations(t)
	second.AssertExpectations(t)
	firstClient.AssertCalled(t, "DeleteSecContext")
}

func TestKerberos_StaticPrincipalSkipsLookup(t *testing.T) {
	ctx := context.Background()
	target := kerberosTarget()
	target.Principal = "replicator/host@EXAMPLE.COM"
	target.KerberosSPN = "ldap/ldap-vip.example.com"
	principal := ldapclient.Principal{Name: "replicator", Instance: "host", Realm: "EXAMPLE.COM"}

	client := &ldaptest.MockGSSAPIClient{}
	client.On("DeleteSecContext").Return(nil)
	conn := &ldaptest.MockConn{}
	conn.On("GSSAPIBind", client, "ldap/ldap-vip.example.com", "dn:"+testBindDN).Return(nil)

	tickets := &ldaptest.MockTicketSource{}
	tickets.On("ParsePrincipal", target.Principal).Return(principal, nil)
	tickets.On("Acquire", mock.Anything, principal, target.Keytab).Return(client, nil)

	sm := ldapclient.NewSessionManager(
		ldapclient.WithDialer(ldaptest.NewDialer(conn)),
		ldapclient.WithTicketSource(tickets),
	)

	require.NoError(t, sm.EnsureSession(ctx, target))
	conn.AssertNotCalled(t, "UnauthenticatedBind", mock.Anything)
	conn.AssertNotCalled(t, "Search", mock.Anything)
	conn.AssertExpectations(t)
}

func TestKerberos_LookupFailures(t *testing.T) {
	tests := []struct {
		name   string
		result *ldap.SearchResult
		err    error
	}{
		{
			name:   "no entry",
			result: &ldap.SearchResult{},
		},
		{
			name: "ambiguous",
			result: &ldap.SearchResult{Entries: []*ldap.Entry{
				ldap.NewEntry(testBindDN, map[string][]string{"kerberosName": {"a@EXAMPLE.COM"}}),
				ldap.NewEntry("cn=other,dc=example,dc=com", map[string][]string{"kerberosName": {"b@EXAMPLE.COM"}}),
			}},
		},
		{
			name:   "no values",
			result: principalResult(),
		},
		{
			name: "search error",
			err:  ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object")),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &ldaptest.MockConn{}
			conn.On("UnauthenticatedBind", "").Return(nil)
			conn.On("Search", principalSearch(testBindDN)).Return(tt.result, tt.err)
			conn.On("Close").Return(nil).Once()

			tickets := &ldaptest.MockTicketSource{}
			sm := ldapclient.NewSessionManager(
				ldapclient.WithDialer(ldaptest.NewDialer(conn)),
				ldapclient.WithTicketSource(tickets),
			)
			target := kerberosTarget()

			err := sm.EnsureSession(context.Background(), target)

			var bindErr *ldapclient.BindError
			require.ErrorAs(t, err, &bindErr)
			assert.Equal(t, ldapclient.BindErrKerberosFailed, bindErr.Reason)
			assert.False(t, target.HasSession())
			tickets.AssertNotCalled(t, "Acquire", mock.Anything, mock.Anything, mock.Anything)
			conn.AssertExpectations(t)
		})
	}
}

func TestKerberos_AllCandidatesFail(t *testing.T) {
	conn := &ldaptest.MockConn{}
	conn.On("UnauthenticatedBind", "").Return(nil)
	conn.On("Search", principalSearch(testBindDN)).Return(principalResult("bad", "svc@EXAMPLE.COM"), nil)
	conn.On("Close").Return(nil).Once()

	svc := ldapclient.Principal{Name: "svc", Realm: "EXAMPLE.COM"}
	tickets := &ldaptest.MockTicketSource{}
	tickets.On("ParsePrincipal", "bad").Return(ldapclient.Principal{}, errors.New("no realm"))
	tickets.On("ParsePrincipal", "svc@EXAMPLE.COM").Return(svc, nil)
	tickets.On("Acquire", mock.Anything, svc, mock.Anything).Return(nil, errors.New("KDC unreachable"))

	sm := ldapclient.NewSessionManager(
		ldapclient.WithDialer(ldaptest.NewDialer(conn)),
		ldapclient.WithTicketSource(tickets),
	)
	target := kerberosTarget()

	err := sm.EnsureSession(context.Background(), target)

	var bindErr *ldapclient.BindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, ldapclient.BindErrKerberosFailed, bindErr.Reason)
	assert.Contains(t, err.Error(), "KDC unreachable")
	assert.Empty(t, target.LastPrincipal())
	conn.AssertNotCalled(t, "GSSAPIBind", mock.Anything, mock.Anything, mock.Anything)
}
