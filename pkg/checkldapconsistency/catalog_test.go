package checkldapconsistency

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogOrder(t *testing.T) {
	expected := []string{
		"users", "susers", "ugroups", "hosts", "hgroups", "hbac", "sudo",
		"zones", "certs", "conflicts", "ghosts", "bind", "msdcs", "replicas",
	}

	assert.Equalf(t, expected, CheckIDs(), "catalog order")
	assert.Lenf(t, Catalog(), 14, "catalog size")
}

func TestLookupCheck(t *testing.T) {
	def := LookupCheck("users")
	require.NotNilf(t, def, "users exists")
	assert.Equalf(t, "Active Users", def.Label, "users label")

	alias := LookupCheck("msdscs")
	require.NotNilf(t, alias, "msdscs alias resolves")
	assert.Equalf(t, "msdcs", alias.ID, "msdscs alias resolves to msdcs")

	assert.Nilf(t, LookupCheck("bogus"), "unknown check")
}

func TestCheckBaseDN(t *testing.T) {
	suffix := "dc=ipa,dc=test"
	tests := []struct {
		id  string
		res string
	}{
		{"users", "cn=users,cn=accounts,dc=ipa,dc=test"},
		{"conflicts", "dc=ipa,dc=test"},
		{"certs", "ou=certificateRepository,ou=ca,o=ipaca"},
		{"bind", "cn=config"},
		{"ghosts", "nsuniqueid=ffffffff-ffffffff-ffffffff-ffffffff,dc=ipa,dc=test"},
	}

	for _, tst := range tests {
		def := LookupCheck(tst.id)
		require.NotNilf(t, def, "check %s exists", tst.id)
		assert.Equalf(t, tst.res, def.BaseDN(suffix), "base DN of %s", tst.id)
	}
}

func TestReduceCount(t *testing.T) {
	assert.Equalf(t, Value("0"), reduceCount([]string{}, nil), "empty count")
	assert.Equalf(t, Value("3"), reduceCount([]string{"a", "b", "c"}, nil), "count")
	assert.Equalf(t, ValueError, reduceCount(nil, errors.New("connection refused")), "error")
}

func TestReduceCertificates(t *testing.T) {
	assert.Equalf(t, Value("2"), reduceCertificates([]string{"a", "b"}, nil), "count")

	noSuchObject := ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))
	assert.Equalf(t, ValueNA, reduceCertificates(nil, noSuchObject), "missing repository")

	wrapped := fmt.Errorf("search ou=certificateRepository,ou=ca,o=ipaca (ipa01.ipa.test): %w", noSuchObject)
	assert.Equalf(t, ValueNA, reduceCertificates(nil, wrapped), "wrapped missing repository")

	assert.Equalf(t, ValueError, reduceCertificates(nil, errors.New("connection refused")), "other error")
}

func TestReduceGhosts(t *testing.T) {
	healthy := []string{
		"nsds50ruv: {replica 4 ldap://ipa01.ipa.test:389} 5e4f... 60a1...",
		"nsds50ruv: {replica 3 ldap://ipa02.ipa.test:389} 5e4f... 60a1...",
	}
	assert.Equalf(t, ValueNo, reduceGhosts(healthy, nil), "all replicas have an ldap url")

	ghost := append(healthy, "nsds50ruv: {replica 9 } 5e4f... 60a1...")
	assert.Equalf(t, ValueYes, reduceGhosts(ghost, nil), "replica without ldap url")

	// a single multi-line attribute value is handled the same way
	joined := []string{healthy[0] + "\n" + "nsds50ruv: {replica 7 } 5e4f..."}
	assert.Equalf(t, ValueYes, reduceGhosts(joined, nil), "multi-line value")

	assert.Equalf(t, ValueNo, reduceGhosts(nil, nil), "no tombstone values")
	assert.Equalf(t, ValueError, reduceGhosts(nil, errors.New("connection refused")), "error")
}

func TestReduceAnonymousBind(t *testing.T) {
	tests := []struct {
		in  string
		res Value
	}{
		{"off", ValueNo},
		{"Off", ValueNo},
		{"on", ValueYes},
		{"rootdse", ValueYes},
	}

	for _, tst := range tests {
		assert.Equalf(t, tst.res, reduceAnonymousBind([]string{tst.in}, nil), "anonymous bind: %s", tst.in)
	}

	assert.Equalf(t, ValueError, reduceAnonymousBind(nil, nil), "missing attribute")
	assert.Equalf(t, ValueError, reduceAnonymousBind(nil, errors.New("connection refused")), "error")
}

func TestReduceTrustDomains(t *testing.T) {
	assert.Equalf(t, ValueYes, reduceTrustDomains([]string{"cn=ad.test,cn=ad,cn=trusts,cn=accounts,dc=ipa,dc=test"}, nil), "trust configured")
	assert.Equalf(t, ValueNo, reduceTrustDomains([]string{}, nil), "no trust entries")

	noSuchObject := ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))
	assert.Equalf(t, ValueNo, reduceTrustDomains(nil, noSuchObject), "no trust container")

	assert.Equalf(t, ValueError, reduceTrustDomains(nil, errors.New("connection refused")), "error")
}
