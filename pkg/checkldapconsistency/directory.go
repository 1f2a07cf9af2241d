package checkldapconsistency

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Scope is the search scope of a directory query.
type Scope int

const (
	ScopeBase Scope = iota
	ScopeOne
	ScopeSub
)

func (s Scope) String() string {
	switch s {
	case ScopeBase:
		return "base"
	case ScopeOne:
		return "one"
	case ScopeSub:
		return "sub"
	}

	return "unknown"
}

// Querier is the directory query capability used by every check.
type Querier interface {
	// Bind connects to the given server and verifies the bind credentials.
	Bind(ctx context.Context, server *Server) error

	// Search runs one directory search and returns the values of attribute
	// for every matching entry. With an empty attribute it returns one DN
	// per matching entry instead, which callers use for plain counting.
	Search(ctx context.Context, server *Server, base string, scope Scope, filter, attribute string) ([]string, error)

	// Agreements returns the replication agreements of the server with
	// their reduced last-update status.
	Agreements(ctx context.Context, server *Server) ([]*Agreement, error)
}

const (
	replicationBase       = "cn=mapping tree,cn=config"
	replicationFilter     = "(objectClass=nsds5ReplicationAgreement)"
	replicaHostAttribute  = "nsDS5ReplicaHost"
	replicaStateAttribute = "nsds5replicaLastUpdateStatus"
)

// LDAPQuerier implements the Querier capability on a real directory server.
// Every query dials its own short-lived connection, the shared query
// semaphore of the engine keeps the total connection count bounded.
type LDAPQuerier struct {
	BindDN   string
	BindPw   string
	UseLDAPS bool
	Insecure bool
	Port     int // 0 uses the scheme default
	Timeout  time.Duration
}

// NewLDAPQuerier returns a Querier for the given bind credentials.
func NewLDAPQuerier(bindDN, bindPw string) *LDAPQuerier {
	return &LDAPQuerier{
		BindDN:  bindDN,
		BindPw:  bindPw,
		Timeout: 10 * time.Second,
	}
}

// URL returns the connection url for the given server.
func (q *LDAPQuerier) URL(server *Server) string {
	scheme := "ldap"
	port := 389
	if q.UseLDAPS {
		scheme = "ldaps"
		port = 636
	}
	if q.Port > 0 {
		port = q.Port
	}

	return fmt.Sprintf("%s://%s:%d", scheme, server.FQDN, port)
}

func (q *LDAPQuerier) connect(ctx context.Context, server *Server) (*ldap.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("query cancelled: %s", err.Error())
	}

	opts := []ldap.DialOpt{
		ldap.DialWithDialer(&net.Dialer{Timeout: q.Timeout}),
	}
	if q.UseLDAPS {
		opts = append(opts, ldap.DialWithTLSConfig(&tls.Config{
			ServerName:         server.FQDN,
			InsecureSkipVerify: q.Insecure, //nolint:gosec // explicitly requested via --insecure
		}))
	}

	conn, err := ldap.DialURL(q.URL(server), opts...)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %s", q.URL(server), err.Error())
	}
	conn.SetTimeout(q.Timeout)

	err = conn.Bind(q.BindDN, q.BindPw)
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("bind to %s as %s: %s", server.FQDN, q.BindDN, err.Error())
	}

	return conn, nil
}

// Bind connects to the server once to verify the credentials.
func (q *LDAPQuerier) Bind(ctx context.Context, server *Server) error {
	conn, err := q.connect(ctx, server)
	if err != nil {
		return err
	}
	conn.Close()

	return nil
}

// Search implements the Querier capability with one search request per call.
func (q *LDAPQuerier) Search(ctx context.Context, server *Server, base string, scope Scope, filter, attribute string) ([]string, error) {
	conn, err := q.connect(ctx, server)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	attributes := []string{"1.1"} // request no attributes, DNs are enough for counting
	if attribute != "" {
		attributes = []string{attribute}
	}
	request := ldap.NewSearchRequest(
		base,
		ldapScope(scope),
		ldap.NeverDerefAliases,
		0,
		int(q.Timeout.Seconds()),
		false,
		filter,
		attributes,
		nil,
	)

	result, err := conn.Search(request)
	if err != nil {
		return nil, fmt.Errorf("search %s (%s): %w", base, server.FQDN, err)
	}

	values := make([]string, 0, len(result.Entries))
	for _, entry := range result.Entries {
		if attribute == "" {
			values = append(values, entry.DN)

			continue
		}
		values = append(values, entry.GetAttributeValues(attribute)...)
	}

	return values, nil
}

// Agreements returns one entry per replication agreement of this server.
func (q *LDAPQuerier) Agreements(ctx context.Context, server *Server) ([]*Agreement, error) {
	conn, err := q.connect(ctx, server)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	request := ldap.NewSearchRequest(
		replicationBase,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0,
		int(q.Timeout.Seconds()),
		false,
		replicationFilter,
		[]string{replicaHostAttribute, replicaStateAttribute},
		nil,
	)

	result, err := conn.Search(request)
	if err != nil {
		return nil, fmt.Errorf("search %s (%s): %w", replicationBase, server.FQDN, err)
	}

	agreements := make([]*Agreement, 0, len(result.Entries))
	for _, entry := range result.Entries {
		agreements = append(agreements, &Agreement{
			Peer:   shortHostname(entry.GetAttributeValue(replicaHostAttribute)),
			Status: parseAgreementStatus(entry.GetAttributeValue(replicaStateAttribute)),
		})
	}

	return agreements, nil
}

// IsNoSuchObject returns true if the error is the directory telling us the
// search base does not exist, ex.: the certificate repository on a
// deployment without a CA.
func IsNoSuchObject(err error) bool {
	return ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject)
}

func ldapScope(scope Scope) int {
	switch scope {
	case ScopeBase:
		return ldap.ScopeBaseObject
	case ScopeOne:
		return ldap.ScopeSingleLevel
	case ScopeSub:
		return ldap.ScopeWholeSubtree
	}

	return ldap.ScopeWholeSubtree
}
