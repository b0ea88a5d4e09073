package events

import (
	"context"
	"sync"
)

// DefaultLogCapacity is the number of events a Log retains by default.
const DefaultLogCapacity = 50_000

// Reader is the read side of an event log handed to query handlers.
type Reader interface {
	// Latest returns the most recently appended event matching q.
	Latest(q Query) (Event, bool)

	// Search returns events matching q in append order. A positive limit
	// bounds the number of results.
	Search(q Query, limit int) []Event
}

// Log is a bounded in-memory ledger event log. When full, the oldest events
// are dropped first. Log is safe for concurrent use.
type Log struct {
	mu       sync.RWMutex
	events   []Event
	head     int
	size     int
	capacity int

	bus *Bus
}

// NewLog creates a log retaining at most capacity events.
// A non-positive capacity selects DefaultLogCapacity.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &Log{
		events:   make([]Event, capacity),
		capacity: capacity,
	}
}

// SetBus makes Append publish every event to bus.
func (l *Log) SetBus(bus *Bus) {
	l.mu.Lock()
	l.bus = bus
	l.mu.Unlock()
}

// Append records events in order.
func (l *Log) Append(events ...Event) {
	l.mu.Lock()
	for _, ev := range events {
		l.events[(l.head+l.size)%l.capacity] = ev
		if l.size < l.capacity {
			l.size++
		} else {
			l.head = (l.head + 1) % l.capacity
		}
	}
	bus := l.bus
	l.mu.Unlock()

	if bus != nil && bus.IsRunning() {
		for _, ev := range events {
			_ = bus.Publish(context.Background(), ev)
		}
	}
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Latest returns the most recently appended event matching q.
func (l *Log) Latest(q Query) (Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := l.size - 1; i >= 0; i-- {
		ev := l.events[(l.head+i)%l.capacity]
		if q.Matches(ev) {
			return ev, true
		}
	}
	return Event{}, false
}

// Find returns the most recent event of the given kind carrying the
// attribute key=value.
func (l *Log) Find(kind, key, value string) (Event, bool) {
	return l.Latest(KindWithAttribute(kind, key, value))
}

// Search returns events matching q in append order.
func (l *Log) Search(q Query, limit int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Event
	for i := 0; i < l.size; i++ {
		ev := l.events[(l.head+i)%l.capacity]
		if !q.Matches(ev) {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

var _ Reader = (*Log)(nil)
