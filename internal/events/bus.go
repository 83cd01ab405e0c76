package events

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind represents the type of event
type Kind string

const (
	ConnectionCreated  Kind = "connection_created"
	ConnectionRemoved  Kind = "connection_removed"
	PoolError          Kind = "pool_error"
	SlowQuery          Kind = "slow_query"
	MetricsUpdated     Kind = "metrics_updated"
	HealthCheck        Kind = "health_check"
	LongRunningQueries Kind = "long_running_queries"
	BlockingQueries    Kind = "blocking_queries"
	IndexAnalysis      Kind = "index_analysis"
)

// Event represents a single published event
type Event struct {
	Kind    Kind
	Payload any
}

// Handler receives published events. Handlers must not block; delivery is
// fire-and-forget and no return value is expected.
type Handler func(Event)

// SubscriptionID identifies a single registration
type SubscriptionID string

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// Bus represents the event dispatcher. Events are delivered asynchronously
// through a single dispatch goroutine, which preserves publish order per kind.
type Bus struct {
	logger    *zap.Logger
	mu        sync.RWMutex
	handlers  map[Kind][]subscription
	eventChan chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewBus creates a new event bus and starts its dispatch loop
func NewBus(logger *zap.Logger) *Bus {
	b := &Bus{
		logger:    logger,
		handlers:  make(map[Kind][]subscription),
		eventChan: make(chan Event, 256),
		done:      make(chan struct{}),
	}

	b.wg.Add(1)
	go b.dispatchLoop()

	return b
}

// Subscribe registers a handler for an event kind and returns its registration ID
func (b *Bus) Subscribe(kind Kind, handler Handler) SubscriptionID {
	id := SubscriptionID(uuid.NewString())

	b.mu.Lock()
	b.handlers[kind] = append(b.handlers[kind], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return id
}

// Unsubscribe removes a registration. Unknown IDs are ignored.
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for kind, subs := range b.handlers {
		for i, sub := range subs {
			if sub.id == id {
				b.handlers[kind] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish enqueues an event for delivery. If the bus is closed or the queue
// is full the event is dropped; metrics events are best-effort observability,
// not a durability mechanism.
func (b *Bus) Publish(kind Kind, payload any) {
	select {
	case <-b.done:
		return
	default:
	}

	select {
	case b.eventChan <- Event{Kind: kind, Payload: payload}:
	default:
		b.logger.Warn("Event queue full, dropping event",
			zap.String("kind", string(kind)))
	}
}

// Close stops the dispatch loop after draining queued events.
// Safe to call multiple times.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
	b.wg.Wait()
}

func (b *Bus) dispatchLoop() {
	defer b.wg.Done()

	for {
		select {
		case ev := <-b.eventChan:
			b.dispatch(ev)
		case <-b.done:
			// Drain anything already queued, then stop.
			for {
				select {
				case ev := <-b.eventChan:
					b.dispatch(ev)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(ev Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.handlers[ev.Kind]))
	copy(subs, b.handlers[ev.Kind])
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(sub, ev)
	}
}

func (b *Bus) deliver(sub subscription, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("Event handler panicked",
				zap.String("kind", string(ev.Kind)),
				zap.Any("panic", p))
		}
	}()
	sub.handler(ev)
}
