package checkldapconsistency

import (
	"fmt"

	"github.com/mackerelio/checkers"
)

// NagiosAll selects the whole catalog in monitoring mode.
const NagiosAll = "all"

// ValidateThresholds verifies the failing-check thresholds against the
// number of checks. Runs before any server is contacted.
func ValidateThresholds(warning, critical, total int64) error {
	switch {
	case warning < 0 || warning > total:
		return configErrorf("warning threshold %d out of range 0..%d", warning, total)
	case critical < 0 || critical > total:
		return configErrorf("critical threshold %d out of range 0..%d", critical, total)
	case critical < warning:
		return configErrorf("critical threshold %d below warning threshold %d", critical, warning)
	}

	return nil
}

// MonitoringVerdict reduces the results to a plugin verdict. With a single
// check selected the verdict is OK or CRITICAL and the message carries the
// check's label. Otherwise the count of failing checks is judged against
// the thresholds and the message is the passed/total tally.
func MonitoringVerdict(results []*CheckResult, selector string, warning, critical int64) *checkers.Checker {
	if selector != "" && selector != NagiosAll {
		for _, res := range results {
			if res.Definition.ID == selector {
				if res.Verdict == VerdictOK {
					return checkers.Ok(res.Definition.Label)
				}

				return checkers.Critical(res.Definition.Label)
			}
		}

		return checkers.Unknown(fmt.Sprintf("unknown check: %s", selector))
	}

	total := int64(len(results))
	failed := int64(failedCount(results))
	message := fmt.Sprintf("%d/%d checks passed", total-failed, total)
	switch {
	case failed < warning:
		return checkers.Ok(message)
	case failed < critical:
		return checkers.Warning(message)
	case failed >= critical:
		return checkers.Critical(message)
	}

	// not reachable with validated thresholds
	return checkers.Unknown(message)
}
