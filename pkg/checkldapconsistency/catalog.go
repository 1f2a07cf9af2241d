package checkldapconsistency

import (
	"strconv"
	"strings"
)

// Value is one report cell produced by a query against one server, either a
// decimal count or one of the tokens below. Query failures map to ERROR (or
// N/A where absence is a normal condition), never to a missing entry.
type Value string

const (
	ValueError Value = "ERROR"
	ValueNA    Value = "N/A"
	ValueYes   Value = "YES"
	ValueNo    Value = "NO"
)

// Policy is the consistency policy of a check.
type Policy int

const (
	// PolicyEqual passes when all servers report the same value.
	PolicyEqual Policy = iota

	// PolicyExpect passes when all servers report the same value and that
	// shared value matches the expected safe one.
	PolicyExpect

	// PolicyReplication passes when no rendered agreement cell carries an
	// ERROR status. Agreement lists are never compared across servers.
	PolicyReplication
)

// CheckDefinition pairs a per-server query with a consistency policy.
type CheckDefinition struct {
	ID     string
	Label  string
	Policy Policy
	Expect Value // shared value required by PolicyExpect

	base      string // search base, relative to the directory suffix unless absolute
	absolute  bool
	scope     Scope
	filter    string
	attribute string
	reduce    func(values []string, err error) Value
}

// BaseDN returns the full search base below the given directory suffix.
func (def *CheckDefinition) BaseDN(suffix string) string {
	switch {
	case def.absolute:
		return def.base
	case def.base == "":
		return suffix
	default:
		return def.base + "," + suffix
	}
}

// Replication returns true for the structurally distinct replication check.
func (def *CheckDefinition) Replication() bool {
	return def.Policy == PolicyReplication
}

// catalog is the fixed check catalog. The slice order is the report order.
var catalog = []*CheckDefinition{
	{
		ID: "users", Label: "Active Users", Policy: PolicyEqual,
		base: "cn=users,cn=accounts", scope: ScopeOne, filter: "(uid=*)", reduce: reduceCount,
	},
	{
		ID: "susers", Label: "Stage Users", Policy: PolicyEqual,
		base: "cn=staged users,cn=accounts,cn=provisioning", scope: ScopeOne, filter: "(uid=*)", reduce: reduceCount,
	},
	{
		ID: "ugroups", Label: "User Groups", Policy: PolicyEqual,
		base: "cn=groups,cn=accounts", scope: ScopeOne, filter: "(ipaUniqueID=*)", reduce: reduceCount,
	},
	{
		ID: "hosts", Label: "Hosts", Policy: PolicyEqual,
		base: "cn=computers,cn=accounts", scope: ScopeOne, filter: "(fqdn=*)", reduce: reduceCount,
	},
	{
		ID: "hgroups", Label: "Host Groups", Policy: PolicyEqual,
		base: "cn=hostgroups,cn=accounts", scope: ScopeOne, filter: "(ipaUniqueID=*)", reduce: reduceCount,
	},
	{
		ID: "hbac", Label: "HBAC Rules", Policy: PolicyEqual,
		base: "cn=hbac", scope: ScopeOne, filter: "(ipaUniqueID=*)", reduce: reduceCount,
	},
	{
		ID: "sudo", Label: "SUDO Rules", Policy: PolicyEqual,
		base: "cn=sudorules,cn=sudo", scope: ScopeOne, filter: "(ipaUniqueID=*)", reduce: reduceCount,
	},
	{
		ID: "zones", Label: "DNS Zones", Policy: PolicyEqual,
		base: "cn=dns", scope: ScopeSub, filter: "(|(objectClass=idnszone)(objectClass=idnsforwardzone))", reduce: reduceCount,
	},
	{
		ID: "certs", Label: "Certificates", Policy: PolicyEqual,
		base: "ou=certificateRepository,ou=ca,o=ipaca", absolute: true,
		scope: ScopeSub, filter: "(certStatus=*)", reduce: reduceCertificates,
	},
	{
		ID: "conflicts", Label: "LDAP Conflicts", Policy: PolicyEqual,
		base: "", scope: ScopeSub, filter: "(nsds5ReplConflict=*)", reduce: reduceCount,
	},
	{
		ID: "ghosts", Label: "Ghost Replicas", Policy: PolicyExpect, Expect: ValueNo,
		base: "nsuniqueid=ffffffff-ffffffff-ffffffff-ffffffff", scope: ScopeBase,
		filter: "(objectClass=*)", attribute: "nscpentrywsi", reduce: reduceGhosts,
	},
	{
		ID: "bind", Label: "Anonymous BIND", Policy: PolicyExpect, Expect: ValueNo,
		base: "cn=config", absolute: true, scope: ScopeBase,
		filter: "(objectClass=*)", attribute: "nsslapd-allow-anonymous-access", reduce: reduceAnonymousBind,
	},
	{
		ID: "msdcs", Label: "Microsoft ADTrust", Policy: PolicyEqual,
		base: "cn=ad,cn=trusts,cn=accounts", scope: ScopeSub,
		filter: "(objectClass=ipaNTTrustedDomain)", reduce: reduceTrustDomains,
	},
	{
		ID: "replicas", Label: "Replication Status", Policy: PolicyReplication,
	},
}

// checkAliases maps alternate spellings onto catalog IDs. The short trust
// check identifier circulated in both spellings, accept both.
var checkAliases = map[string]string{
	"msdscs": "msdcs",
}

// Catalog returns the fixed, ordered check catalog.
func Catalog() []*CheckDefinition {
	return catalog
}

// LookupCheck resolves a check ID (or a known alias) to its definition.
func LookupCheck(id string) *CheckDefinition {
	if alias, ok := checkAliases[id]; ok {
		id = alias
	}
	for _, def := range catalog {
		if def.ID == id {
			return def
		}
	}

	return nil
}

// CheckIDs returns all catalog IDs in report order.
func CheckIDs() []string {
	ids := make([]string, 0, len(catalog))
	for _, def := range catalog {
		ids = append(ids, def.ID)
	}

	return ids
}

// reduceCount turns a search result into an entry count cell.
func reduceCount(values []string, err error) Value {
	if err != nil {
		return ValueError
	}

	return Value(strconv.Itoa(len(values)))
}

// reduceCertificates counts certificates, a missing repository means the
// deployment has no CA and is reported N/A instead of an error.
func reduceCertificates(values []string, err error) Value {
	if err != nil {
		if IsNoSuchObject(err) {
			return ValueNA
		}

		return ValueError
	}

	return Value(strconv.Itoa(len(values)))
}

// reduceGhosts inspects the RUV tombstone entry. Replica lines without an
// ldap url are leftovers of improperly removed servers.
func reduceGhosts(values []string, err error) Value {
	if err != nil {
		return ValueError
	}

	ghosts := 0
	for _, value := range values {
		for _, line := range strings.Split(value, "\n") {
			if strings.Contains(line, "replica ") && !strings.Contains(line, "ldap") {
				ghosts++
			}
		}
	}
	if ghosts > 0 {
		return ValueYes
	}

	return ValueNo
}

// reduceAnonymousBind maps the nsslapd-allow-anonymous-access setting,
// only "off" counts as disabled, "on" and "rootdse" both expose data.
func reduceAnonymousBind(values []string, err error) Value {
	if err != nil || len(values) == 0 {
		return ValueError
	}

	if strings.EqualFold(strings.TrimSpace(values[0]), "off") {
		return ValueNo
	}

	return ValueYes
}

// reduceTrustDomains reports whether any AD trust domain is configured, a
// missing trust container simply means no trust was ever established.
func reduceTrustDomains(values []string, err error) Value {
	if err != nil {
		if IsNoSuchObject(err) {
			return ValueNo
		}

		return ValueError
	}
	if len(values) > 0 {
		return ValueYes
	}

	return ValueNo
}
