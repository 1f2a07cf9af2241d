package checkldapconsistency

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// interactive output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// headerLabel is the text of the leading header cell.
const headerLabel = "LDAP servers"

// Report combines the results of one run with the server set they were
// gathered from.
type Report struct {
	Set     *ServerSet
	Results []*CheckResult
}

// NewReport creates a report over the given results.
func NewReport(set *ServerSet, results []*CheckResult) *Report {
	return &Report{
		Set:     set,
		Results: results,
	}
}

// Render returns the report in the requested format.
func (rep *Report) Render(format string) (string, error) {
	switch format {
	case "", FormatTable:
		return rep.Table(), nil
	case FormatJSON:
		buf, err := json.MarshalIndent(rep.document(), "", "  ")
		if err != nil {
			return "", fmt.Errorf("json encode failed: %s", err.Error())
		}

		return string(buf) + "\n", nil
	case FormatYAML:
		buf, err := yaml.Marshal(rep.document())
		if err != nil {
			return "", fmt.Errorf("yaml encode failed: %s", err.Error())
		}

		return string(buf), nil
	}

	return "", configErrorf("unknown output format: %s (expected table, json or yaml)", format)
}

// Table renders the fixed-width result table. The replication check spans
// one line per agreement row, the label appears on its first line only.
func (rep *Report) Table() string {
	table := &strings.Builder{}
	rule := strings.Repeat("=", rep.Set.TableWidth())

	rep.writeRow(table, headerLabel, rep.Set.Names(), "STATE")
	table.WriteString(rule)
	table.WriteString("\n")

	for _, res := range rep.Results {
		if res.Definition.Replication() {
			for num, row := range res.Rows {
				label := ""
				if num == 0 {
					label = res.Definition.Label
				}
				rep.writeRow(table, label, row.Cells, string(row.Verdict))
			}

			continue
		}

		cells := make([]string, 0, len(rep.Set.Servers))
		for _, server := range rep.Set.Servers {
			cells = append(cells, string(res.Values[server.FQDN]))
		}
		rep.writeRow(table, res.Definition.Label, cells, string(res.Verdict))
	}

	table.WriteString(rule)
	table.WriteString("\n")

	return table.String()
}

// writeRow writes one padded table line, the cell widths come from the
// server set layout.
func (rep *Report) writeRow(table *strings.Builder, label string, cells []string, state string) {
	fmt.Fprintf(table, "%-*s", LabelColumnWidth, label)
	for _, cell := range cells {
		fmt.Fprintf(table, "%-*s", rep.Set.ColumnWidth, cell)
	}
	fmt.Fprintf(table, "%-*s\n", StateColumnWidth, state)
}

// reportDocument is the machine-readable form of a report.
type reportDocument struct {
	Servers []string         `json:"servers" yaml:"servers"`
	Checks  []*checkDocument `json:"checks" yaml:"checks"`
	Summary *summaryDocument `json:"summary" yaml:"summary"`
}

type checkDocument struct {
	ID          string            `json:"id" yaml:"id"`
	Label       string            `json:"label" yaml:"label"`
	Values      map[string]Value  `json:"values,omitempty" yaml:"values,omitempty"`
	Replication []*ReplicationRow `json:"replication,omitempty" yaml:"replication,omitempty"`
	State       Verdict           `json:"state" yaml:"state"`
}

type summaryDocument struct {
	Passed int `json:"passed" yaml:"passed"`
	Failed int `json:"failed" yaml:"failed"`
	Total  int `json:"total" yaml:"total"`
}

func (rep *Report) document() *reportDocument {
	doc := &reportDocument{
		Servers: make([]string, 0, len(rep.Set.Servers)),
		Checks:  make([]*checkDocument, 0, len(rep.Results)),
	}
	for _, server := range rep.Set.Servers {
		doc.Servers = append(doc.Servers, server.FQDN)
	}

	for _, res := range rep.Results {
		check := &checkDocument{
			ID:    res.Definition.ID,
			Label: res.Definition.Label,
			State: res.Verdict,
		}
		if res.Definition.Replication() {
			check.Replication = res.Rows
		} else {
			check.Values = res.Values
		}
		doc.Checks = append(doc.Checks, check)
	}

	failed := failedCount(rep.Results)
	doc.Summary = &summaryDocument{
		Passed: len(rep.Results) - failed,
		Failed: failed,
		Total:  len(rep.Results),
	}

	return doc
}
