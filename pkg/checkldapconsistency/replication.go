package checkldapconsistency

import (
	"regexp"
	"strings"
)

// Agreement is one replication agreement of a server, reduced to the peer
// name and the outcome of the last update.
type Agreement struct {
	Peer   string `json:"peer" yaml:"peer"`
	Status Value  `json:"status" yaml:"status"`
}

// Cell returns the report cell for this agreement, ex.: "ipa02 0".
func (a *Agreement) Cell() string {
	if a.Peer == "" {
		return string(a.Status)
	}

	return a.Peer + " " + string(a.Status)
}

// agreement status texts, ex.:
//
//	Error (0) Replica acquired successfully: Incremental update succeeded
//	0 Replica acquired successfully
var (
	reStatusCode       = regexp.MustCompile(`^Error \((-?\d+)\)`)
	reLegacyStatusCode = regexp.MustCompile(`^(-?\d+) `)
)

// parseAgreementStatus reduces a last-update status text to "0" for a
// healthy agreement and ERROR for everything else.
func parseAgreementStatus(status string) Value {
	status = strings.TrimSpace(status)

	code := ""
	if match := reStatusCode.FindStringSubmatch(status); match != nil {
		code = match[1]
	} else if match := reLegacyStatusCode.FindStringSubmatch(status); match != nil {
		code = match[1]
	}

	if code == "0" {
		return Value("0")
	}

	return ValueError
}

// ReplicationRow is one rendered agreement line across all servers.
type ReplicationRow struct {
	Cells   []string `json:"cells" yaml:"cells"`
	Verdict Verdict  `json:"state" yaml:"state"`
}

// replicationRows arranges the per-server agreement lists into display rows.
// Servers are independent in agreement count, row i simply takes each
// server's i-th agreement if present. A row fails if any of its cells
// carries an ERROR status, values are never compared across servers.
func replicationRows(servers []*Server, agreements map[string][]*Agreement) []*ReplicationRow {
	maxRows := 0
	for _, server := range servers {
		if count := len(agreements[server.FQDN]); count > maxRows {
			maxRows = count
		}
	}

	if maxRows == 0 {
		// no agreements anywhere, render one empty healthy line
		return []*ReplicationRow{{
			Cells:   make([]string, len(servers)),
			Verdict: VerdictOK,
		}}
	}

	rows := make([]*ReplicationRow, 0, maxRows)
	for i := 0; i < maxRows; i++ {
		row := &ReplicationRow{
			Cells:   make([]string, 0, len(servers)),
			Verdict: VerdictOK,
		}
		for _, server := range servers {
			list := agreements[server.FQDN]
			if i >= len(list) {
				row.Cells = append(row.Cells, "")

				continue
			}
			row.Cells = append(row.Cells, list[i].Cell())
			if list[i].Status == ValueError {
				row.Verdict = VerdictFail
			}
		}
		rows = append(rows, row)
	}

	return rows
}

// replicationVerdict reduces the rows to the single verdict the check
// contributes to the monitoring tally.
func replicationVerdict(rows []*ReplicationRow) Verdict {
	for _, row := range rows {
		if row.Verdict == VerdictFail {
			return VerdictFail
		}
	}

	return VerdictOK
}
