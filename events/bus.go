package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Common errors returned by the Bus.
var (
	ErrBusNotRunning      = errors.New("event bus is not running")
	ErrSubscriberExists   = errors.New("subscriber already exists for this query")
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrTooManySubscribers = errors.New("maximum number of subscribers reached")
)

// BusConfig contains configuration for a Bus.
type BusConfig struct {
	// BufferSize is the channel buffer of each subscription. Default: 100.
	BufferSize int

	// MaxSubscribers caps the subscriptions across all subscribers.
	// Zero is unlimited.
	MaxSubscribers int
}

// DefaultBusConfig returns sensible defaults for BusConfig.
func DefaultBusConfig() BusConfig {
	return BusConfig{BufferSize: 100}
}

// Bus fans committed ledger events out to websocket and gRPC subscribers.
// A subscriber that does not keep up loses events rather than stalling the
// commit path.
type Bus struct {
	config BusConfig

	// subscribers maps a subscriber id to its channels keyed by query string.
	subscribers map[string]map[string]*subscription
	count       int
	mu          sync.RWMutex

	running atomic.Bool
	dropped atomic.Uint64
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type subscription struct {
	query Query
	ch    chan Event
}

// NewBus creates a new Bus.
func NewBus(config BusConfig) *Bus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBusConfig().BufferSize
	}
	return &Bus{
		config:      config,
		subscribers: make(map[string]map[string]*subscription),
		stopCh:      make(chan struct{}),
	}
}

// Start starts the bus.
func (b *Bus) Start() error {
	if b.running.Swap(true) {
		return nil
	}
	b.mu.Lock()
	b.stopCh = make(chan struct{})
	b.mu.Unlock()
	return nil
}

// Stop stops the bus and closes every subscription channel.
func (b *Bus) Stop() error {
	if !b.running.Swap(false) {
		return nil
	}

	b.mu.Lock()
	close(b.stopCh)
	for id := range b.subscribers {
		b.removeLocked(id, "")
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// IsRunning returns true if the bus is running.
func (b *Bus) IsRunning() bool {
	return b.running.Load()
}

// Subscribe registers subscriber for events matching query. The returned
// channel is closed on Unsubscribe, on Stop, or when ctx is done.
func (b *Bus) Subscribe(ctx context.Context, subscriber string, query Query) (<-chan Event, error) {
	if !b.running.Load() {
		return nil, ErrBusNotRunning
	}
	key := query.String()

	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[subscriber]
	if _, exists := subs[key]; exists {
		return nil, ErrSubscriberExists
	}
	if b.config.MaxSubscribers > 0 && b.count >= b.config.MaxSubscribers {
		return nil, ErrTooManySubscribers
	}
	if subs == nil {
		subs = make(map[string]*subscription)
		b.subscribers[subscriber] = subs
	}
	sub := &subscription{query: query, ch: make(chan Event, b.config.BufferSize)}
	subs[key] = sub
	b.count++

	if ctx.Done() != nil {
		stopCh := b.stopCh
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			select {
			case <-ctx.Done():
				_ = b.Unsubscribe(subscriber, query)
			case <-stopCh:
			}
		}()
	}
	return sub.ch, nil
}

// Unsubscribe removes one subscription of subscriber.
func (b *Bus) Unsubscribe(subscriber string, query Query) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.removeLocked(subscriber, query.String()) {
		return ErrSubscriberNotFound
	}
	return nil
}

// UnsubscribeAll removes every subscription of subscriber.
func (b *Bus) UnsubscribeAll(subscriber string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(subscriber, "")
}

// removeLocked closes and removes the subscription of subscriber keyed by
// key, or all of them when key is empty. It reports whether anything was
// removed. Must be called with b.mu held.
func (b *Bus) removeLocked(subscriber, key string) bool {
	subs := b.subscribers[subscriber]
	removed := false
	for k, sub := range subs {
		if key != "" && k != key {
			continue
		}
		close(sub.ch)
		delete(subs, k)
		b.count--
		removed = true
	}
	if len(subs) == 0 {
		delete(b.subscribers, subscriber)
	}
	return removed
}

// Publish delivers event to every matching subscription. Subscriptions
// with a full buffer miss it; see Dropped.
func (b *Bus) Publish(_ context.Context, event Event) error {
	if !b.running.Load() {
		return ErrBusNotRunning
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, subs := range b.subscribers {
		for _, sub := range subs {
			if !sub.query.Matches(event) {
				continue
			}
			select {
			case sub.ch <- event:
			default:
				b.dropped.Add(1)
			}
		}
	}
	return nil
}

// NumSubscribers returns the number of active subscriptions.
func (b *Bus) NumSubscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
