package replication

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	ldapclient "github.com/isometry/replicad/internal/ldap"
	"github.com/isometry/replicad/internal/ldap/ldaptest"
)

const (
	testBindDN   = "cn=replicator,dc=example,dc=com"
	testPassword = "secret"
	testDN       = "uid=jdoe,ou=people,dc=example,dc=com"
)

func newTarget() *ldapclient.ReplicaTarget {
	return &ldapclient.ReplicaTarget{
		Name:       "replica1",
		Host:       "replica1.example.com",
		Port:       389,
		AuthMethod: ldapclient.AuthMethodSimpleBind,
		BindDN:     testBindDN,
		Password:   testPassword,
	}
}

// newConn returns a connection that accepts the test credentials.
func newConn() *ldaptest.MockConn {
	return ldaptest.NewBoundConn(testBindDN, testPassword)
}

// boundTarget returns a target already holding conn as its session.
func boundTarget(t *testing.T, conn *ldaptest.MockConn) *ldapclient.ReplicaTarget {
	t.Helper()
	target := newTarget()
	sm := ldapclient.NewSessionManager(ldapclient.WithDialer(ldaptest.NewDialer(conn)))
	require.NoError(t, sm.EnsureSession(context.Background(), target))
	return target
}
