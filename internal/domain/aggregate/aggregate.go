// Package aggregate provides the base type every domain aggregate root
// embeds: identity, timestamps, an optimistic-concurrency version token, and
// a pending-event queue. Aggregate operations append PendingEvents and the
// caller publishes them only after a successful save.
package aggregate

import (
	"time"

	"github.com/aerosuite/platform/internal/eventbus"
)

// Root is embedded by every aggregate root (Inspection, Component,
// Customer).
type Root struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64 // optimistic-concurrency token, bumped on every save

	pending []eventbus.PendingEvent
}

// Touch stamps UpdatedAt; every state-changing operation must call it.
func (r *Root) Touch() { r.UpdatedAt = time.Now() }

// Record appends a pending domain event, to be published by the caller
// after persistence succeeds.
func (r *Root) Record(eventType string, payload any) {
	r.pending = append(r.pending, eventbus.PendingEvent{
		Type:        eventType,
		AggregateID: r.ID,
		Payload:     payload,
	})
}

// PendingEvents returns and clears the queue of events recorded since the
// last call; aggregates hand their emitted events back to the caller
// alongside the new state.
func (r *Root) PendingEvents() []eventbus.PendingEvent {
	evts := r.pending
	r.pending = nil
	return evts
}

// HasPendingEvents reports whether any event is queued without draining it.
func (r *Root) HasPendingEvents() bool { return len(r.pending) > 0 }

// GetID satisfies repository.Entity so generic repositories can key on any
// aggregate root without a type switch.
func (r *Root) GetID() string { return r.ID }

// GetVersion satisfies repository.Entity for optimistic-concurrency checks.
func (r *Root) GetVersion() int64 { return r.Version }

// SetVersion is invoked by the repository layer after a successful save.
func (r *Root) SetVersion(v int64) { r.Version = v }
