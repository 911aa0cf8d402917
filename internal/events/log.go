package events

import (
	"time"

	"loopline/internal/domain"
	"loopline/internal/store"
)

// Payload carries free-form event data.
type Payload map[string]any

// Log appends domain events to the store. Events are consumed by the
// drain sweep; reaction logic is invoked directly at the emitting call
// sites, not by event subscription.
type Log struct {
	Store *store.Store
	Now   func() time.Time
}

func (l Log) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Append records an occurrence with processed=false.
func (l Log) Append(source, evtType string, tags []string, payload Payload) domain.Event {
	if payload == nil {
		payload = Payload{}
	}
	return l.Store.AppendEvent(domain.Event{
		Source:    source,
		Type:      evtType,
		Tags:      tags,
		Payload:   payload,
		CreatedAt: l.now().UTC(),
	})
}

// Drain marks up to max unprocessed events processed and returns them in
// insertion order.
func (l Log) Drain(max int) []domain.Event {
	return l.Store.DrainEvents(max)
}
