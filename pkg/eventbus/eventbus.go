// Package eventbus implements the single-writer, multi-subscriber SSE
// fanout that multicasts orchestrator phase transitions and progress
// counters to connected viewers. A caller-supplied snapshot is
// replayed to every new subscriber so clients converge without
// polling; the bus itself keeps no durable log, the store is that log.
package eventbus

import (
	"strconv"
	"sync"
	"time"
)

// Event is one frame multicast to an iteration's subscribers.
type Event struct {
	IterationID string    `json:"iterationId"`
	Seq         uint64    `json:"seq"`
	Type        string    `json:"type"`
	Payload     any       `json:"payload,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// subscriberBufferSize bounds how many events a slow subscriber may lag
// behind before new events are dropped for it. A dropped event is
// recoverable by re-reading persisted state on reconnect.
const subscriberBufferSize = 64

type subscriber struct {
	id string
	ch chan Event
}

// Bus multicasts Events to subscribers of an iteration id. One Bus
// instance is shared across all iterations; subscriptions are keyed by
// iteration id internally.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string]map[string]*subscriber
	seq         map[string]uint64
	nextSubID   uint64
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string]map[string]*subscriber),
		seq:         make(map[string]uint64),
	}
}

// CancelFunc unsubscribes and releases the subscriber's channel.
type CancelFunc func()

// Subscribe registers a new subscriber for iterationID and immediately
// enqueues snapshot as its first event, so the client converges on
// current state without polling.
func (b *Bus) Subscribe(iterationID string, snapshot Event) (<-chan Event, CancelFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSubID++
	sub := &subscriber{id: subIDKey(b.nextSubID), ch: make(chan Event, subscriberBufferSize)}

	if _, ok := b.subscribers[iterationID]; !ok {
		b.subscribers[iterationID] = make(map[string]*subscriber)
	}
	b.subscribers[iterationID][sub.id] = sub

	snapshot.IterationID = iterationID
	sub.ch <- snapshot

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.subscribers[iterationID]; ok {
			if existing, ok := subs[sub.id]; ok {
				close(existing.ch)
				delete(subs, sub.id)
			}
			if len(subs) == 0 {
				delete(b.subscribers, iterationID)
			}
		}
	}
	return sub.ch, cancel
}

// Publish multicasts one event to every current subscriber of
// iterationID. Publish never blocks: a subscriber whose buffer is full
// has the event dropped for it rather than stalling the single writer.
func (b *Bus) Publish(iterationID string, eventType string, payload any) {
	b.mu.Lock()
	b.seq[iterationID]++
	event := Event{
		IterationID: iterationID,
		Seq:         b.seq[iterationID],
		Type:        eventType,
		Payload:     payload,
		Timestamp:   time.Now(),
	}
	subs := make([]*subscriber, 0, len(b.subscribers[iterationID]))
	for _, s := range b.subscribers[iterationID] {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers for
// iterationID, for tests and diagnostics.
func (b *Bus) SubscriberCount(iterationID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[iterationID])
}

func subIDKey(n uint64) string {
	return "sub-" + strconv.FormatUint(n, 10)
}
