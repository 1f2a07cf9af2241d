package checkldapconsistency

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const metricNamespace = "ldap_consistency"

// WriteMetrics writes the run's results as Prometheus textfile metrics for
// the node exporter's textfile collector. A fresh registry per run keeps
// stale series from previous invocations out of the file.
func WriteMetrics(path string, rep *Report) error {
	registry := prometheus.NewRegistry()

	state := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Name:      "check_state",
		Help:      "Consistency state per check, 0 means ok, 1 means failed.",
	}, []string{"check"})

	value := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Name:      "check_value",
		Help:      "Per server value of a check where the cell is a count.",
	}, []string{"check", "server"})

	passed := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Name:      "checks_passed",
		Help:      "Number of checks that passed.",
	})

	failed := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Name:      "checks_failed",
		Help:      "Number of checks that failed.",
	})

	total := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Name:      "checks_total",
		Help:      "Number of checks run.",
	})

	registry.MustRegister(state, value, passed, failed, total)

	for _, res := range rep.Results {
		stateValue := float64(0)
		if res.Verdict == VerdictFail {
			stateValue = 1
		}
		state.WithLabelValues(res.Definition.ID).Set(stateValue)

		for fqdn, cell := range res.Values {
			num, err := strconv.ParseFloat(string(cell), 64)
			if err != nil {
				// YES/NO/ERROR/N/A cells are covered by the state metric
				continue
			}
			value.WithLabelValues(res.Definition.ID, fqdn).Set(num)
		}
	}

	failedChecks := failedCount(rep.Results)
	passed.Set(float64(len(rep.Results) - failedChecks))
	failed.Set(float64(failedChecks))
	total.Set(float64(len(rep.Results)))

	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("writing prometheus textfile %s failed: %s", path, err.Error())
	}

	return nil
}
