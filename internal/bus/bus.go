// Package bus implements the synchronous in-process event bus that connects
// the orchestration pipeline's stages. Handlers run before Emit returns, so a
// caller knows its event has been fully observed; a failing or panicking
// handler is isolated and reported in the EmitResult without affecting the
// other subscribers.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pipewise/pipewise/agent-core/internal/store"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// Wildcard subscribes a handler to every event name.
const Wildcard = "*"

// Event is one emission on the bus.
type Event struct {
	Name          string
	OrgID         string
	Payload       map[string]interface{}
	CorrelationID string
	EmittedAt     time.Time
}

// Handler processes one event. A non-nil error is recorded in the emit
// result and the audit log; it does not stop delivery to other handlers.
type Handler func(ctx context.Context, event Event) error

// EmitResult summarizes one emission: which subscribers ran and which failed.
type EmitResult struct {
	EventID     string
	DeliveredTo []string
	Failures    map[string]error
}

// Failed reports whether any handler returned an error or panicked.
func (r EmitResult) Failed() bool { return len(r.Failures) > 0 }

type subscriber struct {
	id      string
	name    string
	handler Handler
}

// Bus is a synchronous publish/subscribe hub. Subscribers are keyed by event
// name; the wildcard name receives everything. Safe for concurrent use.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]subscriber

	// eventLog, when set, receives an append-only audit record per emit.
	eventLog store.EventLogStore
}

// New creates a bus. eventLog may be nil to disable audit persistence.
func New(eventLog store.EventLogStore) *Bus {
	return &Bus{
		subscribers: make(map[string][]subscriber),
		eventLog:    eventLog,
	}
}

// Subscribe registers handler for the given event name (or Wildcard).
// The handlerName identifies the subscriber in emit results and logs.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventName, handlerName string, handler Handler) func() {
	sub := subscriber{id: uuid.NewString(), name: handlerName, handler: handler}

	b.mu.Lock()
	b.subscribers[eventName] = append(b.subscribers[eventName], sub)
	b.mu.Unlock()

	return func() { b.unsubscribe(eventName, sub.id) }
}

func (b *Bus) unsubscribe(eventName, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[eventName]
	for i, s := range subs {
		if s.id == id {
			b.subscribers[eventName] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Emit delivers the event to every matching subscriber, in registration
// order, and waits for all of them. Wildcard subscribers run after exact
// matches. The emit is recorded in the audit event log with per-handler
// results.
func (b *Bus) Emit(ctx context.Context, event Event) EmitResult {
	if event.EmittedAt.IsZero() {
		event.EmittedAt = time.Now().UTC()
	}

	b.mu.RLock()
	subs := make([]subscriber, 0, len(b.subscribers[event.Name])+len(b.subscribers[Wildcard]))
	subs = append(subs, b.subscribers[event.Name]...)
	subs = append(subs, b.subscribers[Wildcard]...)
	b.mu.RUnlock()

	result := EmitResult{
		EventID:  uuid.NewString(),
		Failures: make(map[string]error),
	}
	handlerResults := make([]models.HandlerResult, 0, len(subs))

	for _, sub := range subs {
		start := time.Now()
		err := b.invoke(ctx, sub, event)
		hr := models.HandlerResult{
			Handler:    sub.name,
			DurationMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			hr.Error = err.Error()
			result.Failures[sub.name] = err
			log.Warn().
				Err(err).
				Str("event", event.Name).
				Str("org_id", event.OrgID).
				Str("handler", sub.name).
				Msg("event handler failed")
		} else {
			result.DeliveredTo = append(result.DeliveredTo, sub.name)
		}
		handlerResults = append(handlerResults, hr)
	}

	b.record(ctx, result.EventID, event, handlerResults)
	return result
}

// invoke runs one handler with panic isolation.
func (b *Bus) invoke(ctx context.Context, sub subscriber, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", sub.name, r)
		}
	}()
	return sub.handler(ctx, event)
}

func (b *Bus) record(ctx context.Context, eventID string, event Event, results []models.HandlerResult) {
	if b.eventLog == nil {
		return
	}
	stored := &models.StoredEvent{
		ID:             eventID,
		OrgID:          event.OrgID,
		EventName:      event.Name,
		Payload:        event.Payload,
		EmittedAt:      event.EmittedAt,
		HandlerResults: results,
	}
	if err := b.eventLog.AppendEvent(ctx, stored); err != nil {
		log.Error().Err(err).Str("event", event.Name).Msg("append event audit record")
	}
}
