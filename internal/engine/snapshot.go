package engine

import "loopline/internal/domain"

// Snapshot returns the read-only dashboard view.
func (e *Engine) Snapshot(recentEvents int) domain.Snapshot {
	return e.Store.Snapshot(recentEvents)
}

// DrainEvents marks up to max unprocessed events processed and returns
// them in insertion order.
func (e *Engine) DrainEvents(max int) []domain.Event {
	return e.Events.Drain(max)
}
