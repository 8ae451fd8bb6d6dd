// Package ldaptest provides testify mocks of the replica session contracts.
package ldaptest

import (
	"context"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/mock"

	ldapclient "github.com/isometry/replicad/internal/ldap"
)

// MockConn implements ldapclient.Conn.
type MockConn struct {
	mock.Mock
}

var _ ldapclient.Conn = (*MockConn)(nil)

func (m *MockConn) Bind(username, password string) error {
	args := m.Called(username, password)
	return args.Error(0)
}

func (m *MockConn) UnauthenticatedBind(username string) error {
	args := m.Called(username)
	return args.Error(0)
}

func (m *MockConn) GSSAPIBind(client ldap.GSSAPIClient, servicePrincipal, authzid string) error {
	args := m.Called(client, servicePrincipal, authzid)
	return args.Error(0)
}

func (m *MockConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	args := m.Called(req)
	if res := args.Get(0); res != nil {
		return res.(*ldap.SearchResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockConn) Add(req *ldap.AddRequest) error {
	args := m.Called(req)
	return args.Error(0)
}

func (m *MockConn) Modify(req *ldap.ModifyRequest) error {
	args := m.Called(req)
	return args.Error(0)
}

func (m *MockConn) Del(req *ldap.DelRequest) error {
	args := m.Called(req)
	return args.Error(0)
}

func (m *MockConn) ModifyDN(req *ldap.ModifyDNRequest) error {
	args := m.Called(req)
	return args.Error(0)
}

// SetTimeout is recorded only when an expectation has been registered.
func (m *MockConn) SetTimeout(timeout time.Duration) {
	for _, call := range m.ExpectedCalls {
		if call.Method == "SetTimeout" {
			m.Called(timeout)
			return
		}
	}
}

func (m *MockConn) Unbind() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockConn) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockDialer implements ldapclient.Dialer.
type MockDialer struct {
	mock.Mock
}

var _ ldapclient.Dialer = (*MockDialer)(nil)

func (m *MockDialer) Dial(ctx context.Context, target *ldapclient.ReplicaTarget) (ldapclient.Conn, error) {
	args := m.Called(ctx, target)
	if conn := args.Get(0); conn != nil {
		return conn.(ldapclient.Conn), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockTicketSource implements ldapclient.TicketSource.
type MockTicketSource struct {
	mock.Mock
}

var _ ldapclient.TicketSource = (*MockTicketSource)(nil)

func (m *MockTicketSource) ParsePrincipal(principal string) (ldapclient.Principal, error) {
	args := m.Called(principal)
	return args.Get(0).(ldapclient.Principal), args.Error(1)
}

func (m *MockTicketSource) Acquire(ctx context.Context, principal ldapclient.Principal, keytab string) (ldap.GSSAPIClient, error) {
	args := m.Called(ctx, principal, keytab)
	if client := args.Get(0); client != nil {
		return client.(ldap.GSSAPIClient), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockGSSAPIClient implements ldap.GSSAPIClient.
type MockGSSAPIClient struct {
	mock.Mock
}

var _ ldap.GSSAPIClient = (*MockGSSAPIClient)(nil)

func (m *MockGSSAPIClient) InitSecContext(target string, token []byte) ([]byte, bool, error) {
	args := m.Called(target, token)
	return bytesArg(args, 0), args.Bool(1), args.Error(2)
}

func (m *MockGSSAPIClient) InitSecContextWithOptions(target string, token []byte, options []int) ([]byte, bool, error) {
	args := m.Called(target, token, options)
	return bytesArg(args, 0), args.Bool(1), args.Error(2)
}

func (m *MockGSSAPIClient) NegotiateSaslAuth(token []byte, authzid string) ([]byte, error) {
	args := m.Called(token, authzid)
	return bytesArg(args, 0), args.Error(1)
}

func (m *MockGSSAPIClient) DeleteSecContext() error {
	args := m.Called()
	return args.Error(0)
}

func bytesArg(args mock.Arguments, i int) []byte {
	if b := args.Get(i); b != nil {
		return b.([]byte)
	}
	return nil
}

// NewBoundConn returns a MockConn whose simple bind succeeds.
func NewBoundConn(bindDN, password string) *MockConn {
	conn := &MockConn{}
	conn.On("Bind", bindDN, password).Return(nil)
	return conn
}

// NewDialer returns a MockDialer handing out conns in order, one per Dial.
func NewDialer(conns ...ldapclient.Conn) *MockDialer {
	d := &MockDialer{}
	for _, c := range conns {
		d.On("Dial", mock.Anything, mock.Anything).Return(c, nil).Once()
	}
	return d
}
