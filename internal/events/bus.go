package events

import (
	"sync/atomic"

	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
	dropped    atomic.Uint64
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(InstanceStartedEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event dispatches on the static type, so unwrap the interface first.
	switch e := ev.(type) {
	case StateChangedEvent:
		event.Publish(b.dispatcher, e)
	case InstanceStartedEvent:
		event.Publish(b.dispatcher, e)
	case InstanceExitedEvent:
		event.Publish(b.dispatcher, e)
	case BatchCompletedEvent:
		event.Publish(b.dispatcher, e)
	case InstancesStoppedEvent:
		event.Publish(b.dispatcher, e)
	case OperatorLineEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function
// The handler type determines which events it receives (type inference)
// Returns an unsubscribe function
// Usage: unsub := bus.Subscribe(func(e BatchCompletedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(StateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(InstanceStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(InstanceExitedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(BatchCompletedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(InstancesStoppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(OperatorLineEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}

// Dropped returns how many events channel subscribers have discarded because
// their channel was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
