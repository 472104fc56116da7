// Package eventbus implements the Agent Loop's lifecycle event fan-out:
// cycle started/completed, tool scheduled/resolved, state transitioned,
// danger detected. Subscribers (CLI transcript printer, telemetry, tests)
// register independently of the publisher.
package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"
)

// EventType enumerates the lifecycle events. The agent loop publishes all of
// them except ToolScheduled.
type EventType string

const (
	CycleStarted      EventType = "cycle_started"
	CycleCompleted     EventType = "cycle_completed"
	ToolScheduled      EventType = "tool_scheduled"
	ToolResolved       EventType = "tool_resolved"
	StateTransitioned  EventType = "state_transitioned"
	DangerDetected     EventType = "danger_detected"
)

// Event is one published occurrence.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// Subscriber reacts to published events. Returning an error halts delivery
// to remaining subscribers for that Publish call.
type Subscriber interface {
	HandleEvent(ctx context.Context, event Event) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, event Event) error

func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) error { return f(ctx, event) }

// Subscription is returned by Register; closing it unregisters the subscriber.
type Subscription interface {
	Close() error
}

// Bus publishes events to every registered subscriber in registration order,
// synchronously, stopping at the first subscriber error.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Register(sub Subscriber) (Subscription, error)
}

type bus struct {
	mu          sync.RWMutex
	subscribers map[*subscription]Subscriber
	order       []*subscription
}

type subscription struct {
	bus  *bus
	once sync.Once
}

// NewBus constructs an in-process, synchronous fan-out bus.
func NewBus() Bus {
	return &bus{subscribers: make(map[*subscription]Subscriber)}
}

func (b *bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.order))
	for _, s := range b.order {
		if sub, ok := b.subscribers[s]; ok {
			subs = append(subs, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (b *bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("eventbus: subscriber is required")
	}
	s := &subscription{bus: b}
	b.mu.Lock()
	b.subscribers[s] = sub
	b.order = append(b.order, s)
	b.mu.Unlock()
	return s, nil
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		s.bus.mu.Unlock()
	})
	return nil
}
