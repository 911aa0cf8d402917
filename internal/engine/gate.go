package engine

import (
	"fmt"
	"time"

	"loopline/internal/domain"
)

// checkCapGate counts steps of the kind started inside the rolling window
// ending at now. Kinds without a configured gate always pass. The count
// and the eventual step start are not atomic; concurrent submissions may
// admit slightly more than the limit.
func (e *Engine) checkCapGate(kind string, now time.Time) domain.GateResult {
	gate, ok := e.Config.Policies.CapGates[kind]
	if !ok {
		return domain.GateResult{OK: true}
	}
	from := now.Add(-gate.WindowDuration())
	count := e.Store.CountStepsStartedBetween(kind, from, now)
	if count >= gate.Limit {
		return domain.GateResult{
			OK:      false,
			Current: count,
			Limit:   gate.Limit,
			Reason:  fmt.Sprintf("%s quota reached (%d/%d in %s)", kind, count, gate.Limit, gate.Window),
		}
	}
	return domain.GateResult{OK: true, Current: count, Limit: gate.Limit}
}
