package engine

import (
	"time"

	"loopline/internal/domain"
	"loopline/internal/events"
)

const staleError = "stale: no progress"

// SweepStale force-fails running steps that started more than staleAfter
// before now. A staleAfter of zero or less uses the configured threshold.
// The sweep does not conclude the owning missions; callers follow up with
// RecheckMission so a stalled mission still reaches a terminal status.
func (e *Engine) SweepStale(now time.Time, staleAfter time.Duration) []domain.Step {
	if staleAfter <= 0 {
		staleAfter = e.Config.StaleAfter()
	}
	cutoff := now.Add(-staleAfter)
	var failed []domain.Step
	for _, st := range e.Store.RunningStepsStartedBefore(cutoff) {
		completed := now.UTC()
		st.Status = "failed"
		st.Error = staleError
		st.CompletedAt = &completed
		if err := e.Store.UpdateStep(st); err != nil {
			continue
		}
		e.Events.Append("watchdog", "step_stale", []string{"step", "stale", st.Kind}, events.Payload{
			"step_id":    st.ID,
			"mission_id": st.MissionID,
		})
		failed = append(failed, st)
	}
	return failed
}
