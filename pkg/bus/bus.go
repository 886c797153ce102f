package bus

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/tinyland-inc/telebridge/pkg/telegram"
)

// ErrBusClosed is returned when publishing to a closed EventBus.
var ErrBusClosed = errors.New("event bus closed")

// EventBus carries remote events from the messaging client to the bridge
// dispatcher. Events for a given peer are delivered in publish order.
type EventBus struct {
	events chan telegram.Event
	done   chan struct{}
	closed atomic.Bool
}

func NewEventBus() *EventBus {
	return &EventBus{
		events: make(chan telegram.Event, 100),
		done:   make(chan struct{}),
	}
}

func (b *EventBus) Publish(ctx context.Context, ev telegram.Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	select {
	case b.events <- ev:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *EventBus) Consume(ctx context.Context) (telegram.Event, bool) {
	select {
	case ev, ok := <-b.events:
		return ev, ok
	case <-b.done:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

func (b *EventBus) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.done)
	}
}
