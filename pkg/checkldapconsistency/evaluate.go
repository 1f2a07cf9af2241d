package checkldapconsistency

// Verdict is the consistency outcome of one check.
type Verdict string

const (
	VerdictOK   Verdict = "OK"
	VerdictFail Verdict = "FAIL"
)

// CheckResult is the outcome of one catalog check across all servers.
type CheckResult struct {
	Definition *CheckDefinition
	Values     map[string]Value        // report cells keyed by server FQDN
	Agreements map[string][]*Agreement // replication check only, keyed by server FQDN
	Rows       []*ReplicationRow       // replication check only, display rows
	Verdict    Verdict
}

// NewCheckResult prepares an empty result for the given check.
func NewCheckResult(def *CheckDefinition) *CheckResult {
	res := &CheckResult{
		Definition: def,
		Values:     map[string]Value{},
	}
	if def.Replication() {
		res.Agreements = map[string][]*Agreement{}
	}

	return res
}

// evaluateResult fills in the verdict once all per-server cells are gathered.
// A check passes when every server reports the same value, expected-value
// checks additionally require the shared value to be the safe one. With a
// single server the comparison is trivially consistent.
func evaluateResult(set *ServerSet, res *CheckResult) {
	if res.Definition.Replication() {
		res.Rows = replicationRows(set.Servers, res.Agreements)
		res.Verdict = replicationVerdict(res.Rows)

		return
	}

	first := res.Values[set.Servers[0].FQDN]
	consistent := true
	for _, server := range set.Servers[1:] {
		if res.Values[server.FQDN] != first {
			consistent = false

			break
		}
	}

	res.Verdict = VerdictFail
	switch {
	case !consistent:
	case res.Definition.Policy == PolicyExpect && first != res.Definition.Expect:
	default:
		res.Verdict = VerdictOK
		if first == ValueError {
			// an outage hitting all servers alike looks consistent, keep
			// the verdict but leave a loud trace
			log.Warnf("check %s: all servers report ERROR, equal failures count as consistent", res.Definition.ID)
		}
	}
}

// failedCount tallies the checks that ended in a FAIL verdict.
func failedCount(results []*CheckResult) int {
	failed := 0
	for _, res := range results {
		if res.Verdict == VerdictFail {
			failed++
		}
	}

	return failed
}
