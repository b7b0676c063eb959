package events

import "github.com/kelindar/event"

// SubscribeToChannel delivers every T published on bus to ch without ever
// blocking the publisher. An event that does not fit in ch is dropped and
// counted in Bus.Dropped. The returned func unsubscribes.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
			bus.dropped.Add(1)
		}
	})
}

// Notify signals wake each time a T is published. Signals coalesce: while one
// is pending, later ones are absorbed, so the reader must re-read its source
// after every wake-up rather than count them.
func Notify[T Event](bus *Bus, wake chan<- struct{}) func() {
	return event.Subscribe(bus.dispatcher, func(T) {
		select {
		case wake <- struct{}{}:
		default:
		}
	})
}
