// Package eventbus implements an intra-process publish/subscribe bus for
// domain events. Events from a single publisher are delivered in the order
// they were published; order across publishers is unspecified.
package eventbus

import (
	"context"
	"sync"
)

// Event is one domain occurrence published on the bus.
type Event struct {
	Type       string
	AggregateID string
	PublisherID string
	Sequence   uint64
	Payload    any
}

// Handler consumes one event. Publish invokes every matching handler
// sequentially, in subscription order, before returning; a slow handler
// delays the publisher, which is what makes per-publisher ordering hold.
type Handler func(ctx context.Context, evt Event)

// Bus is a simple fan-out publish/subscribe bus keyed by event type.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
	allTopics   []Handler
	sequences   map[string]uint64
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string][]Handler),
		sequences:   make(map[string]uint64),
	}
}

// Subscribe registers fn to run for every event of eventType. Passing ""
// subscribes to every event type.
func (b *Bus) Subscribe(eventType string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if eventType == "" {
		b.allTopics = append(b.allTopics, fn)
		return
	}
	b.subscribers[eventType] = append(b.subscribers[eventType], fn)
}

// Publish delivers evt to every subscriber of evt.Type plus every wildcard
// subscriber, stamping a monotonic per-publisher sequence number first.
// Delivery to a single publisher's subscribers happens in publish order;
// the call blocks until every handler for this event has returned, which is
// what gives per-publisher FIFO ordering its guarantee.
func (b *Bus) Publish(ctx context.Context, publisherID, eventType, aggregateID string, payload any) Event {
	b.mu.Lock()
	b.sequences[publisherID]++
	seq := b.sequences[publisherID]
	handlers := make([]Handler, 0, len(b.subscribers[eventType])+len(b.allTopics))
	handlers = append(handlers, b.subscribers[eventType]...)
	handlers = append(handlers, b.allTopics...)
	b.mu.Unlock()

	evt := Event{
		Type:        eventType,
		AggregateID: aggregateID,
		PublisherID: publisherID,
		Sequence:    seq,
		Payload:     payload,
	}
	for _, h := range handlers {
		h(ctx, evt)
	}
	return evt
}

// PublishAll publishes every event in evts in order, preserving per-publisher
// sequencing. It completes the aggregate event contract: an aggregate
// returns emitted events alongside its new state, and the caller publishes
// them only after persistence succeeds.
func (b *Bus) PublishAll(ctx context.Context, publisherID string, evts []PendingEvent) []Event {
	out := make([]Event, 0, len(evts))
	for _, e := range evts {
		out = append(out, b.Publish(ctx, publisherID, e.Type, e.AggregateID, e.Payload))
	}
	return out
}

// PendingEvent is an event an aggregate has recorded but not yet published.
type PendingEvent struct {
	Type        string
	AggregateID string
	Payload     any
}
