package streaming

import (
	"context"
	"slices"
)

// Handler receives events from a Bus.
type Handler func(Event)

type busSubscription struct {
	id      uint64
	types   []string
	handler Handler
}

// Bus is the synchronous dispatcher shared by one diagram and its manager.
// Events emitted from inside a handler are queued and delivered after the
// current event has reached every subscriber, so a reaction never
// interleaves with the mutation that caused it.
//
// Bus is not safe for concurrent use; the editor is single-threaded.
type Bus struct {
	subs        []busSubscription
	seq         uint64
	queue       []Event
	dispatching bool
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers handler for the given event types (all events when
// none are given). The returned function removes the subscription.
func (b *Bus) Subscribe(handler Handler, types ...string) func() {
	b.seq++
	id := b.seq
	b.subs = append(b.subs, busSubscription{id: id, types: types, handler: handler})
	return func() {
		b.subs = slices.DeleteFunc(b.subs, func(s busSubscription) bool { return s.id == id })
	}
}

// Emit delivers event to every matching subscriber in subscription order.
func (b *Bus) Emit(event Event) {
	b.queue = append(b.queue, event)
	if b.dispatching {
		return
	}
	b.dispatching = true
	defer func() { b.dispatching = false }()

	for len(b.queue) > 0 {
		next := b.queue[0]
		b.queue = b.queue[1:]
		// Snapshot: handlers may unsubscribe while we iterate.
		subs := slices.Clone(b.subs)
		for _, s := range subs {
			if len(s.types) > 0 && !slices.Contains(s.types, next.Type) {
				continue
			}
			s.handler(next)
		}
	}
}

// Bridge forwards the given event types (all when empty) to hub.
// Publish errors are ignored: observers outside the editor are best effort.
func (b *Bus) Bridge(ctx context.Context, hub EventHub, types ...string) func() {
	return b.Subscribe(func(e Event) {
		_ = hub.Publish(ctx, e)
	}, types...)
}
