// Package eventbus implements the typed, transport-agnostic Event
// Emitter (spec component G): fan-out of state changes to subscribers.
package eventbus

import (
	"sync"
	"time"
)

// EventType enumerates the events named in spec §6.
type EventType string

const (
	EventConnectionAck    EventType = "connection:ack"
	EventVehicleUpdate    EventType = "vehicle:update"
	EventSignalChange     EventType = "signal:change"
	EventDensityUpdate    EventType = "density:update"
	EventEmergencyActive  EventType = "emergency:activated"
	EventViolationDetect  EventType = "violation:detected"
	EventChallanIssued    EventType = "challan:issued"
	EventPredictionUpdate EventType = "prediction:updated"
	EventPredictionAlert  EventType = "prediction:alert"
	EventSystemModeChange EventType = "system:mode_changed"
	EventSafetyFailsafe   EventType = "safety:failsafe"
	EventSystemEvent      EventType = "system:event"
)

// Event is one envelope delivered to subscribers.
type Event struct {
	Type      EventType
	Payload   any
	Timestamp time.Time
}

// Bus is an in-process typed pub/sub fan-out. Subscribers each get their
// own buffered channel; a slow subscriber drops events rather than
// blocking the emitter (best-effort delivery, matching spec's
// "best-effort batched persistence" non-goal for transient telemetry).
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscription
	nextID      int
}

type subscription struct {
	ch     chan Event
	filter map[EventType]bool // nil means "all types"
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[int]*subscription)}
}

// Subscribe returns a channel receiving every event of the given types
// (or all types, if none given), and an unsubscribe function.
func (b *Bus) Subscribe(bufferSize int, types ...EventType) (<-chan Event, func()) {
	if bufferSize < 1 {
		bufferSize = 32
	}
	var filter map[EventType]bool
	if len(types) > 0 {
		filter = make(map[EventType]bool, len(types))
		for _, t := range types {
			filter[t] = true
		}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := &subscription{ch: make(chan Event, bufferSize), filter: filter}
	b.subscribers[id] = sub
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subscribers[id]; ok {
			close(s.ch)
			delete(b.subscribers, id)
		}
	}
	return sub.ch, unsubscribe
}

// Emit implements capability.EventEmitter, fanning the event out to
// every matching subscriber without blocking.
func (b *Bus) Emit(eventType string, payload any) {
	evt := Event{Type: EventType(eventType), Payload: payload, Timestamp: time.Now()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if sub.filter != nil && !sub.filter[evt.Type] {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// drop: best-effort delivery, never block the emitter
		}
	}
}
