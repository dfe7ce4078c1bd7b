package event

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrDuplicateSubscription is returned by [Bus.Subscribe] when the (topic,
// name) pair is already registered. The prior subscription is untouched.
var ErrDuplicateSubscription = fmt.Errorf("event: duplicate subscription")

type subscription struct {
	name    string
	handler Handler
}

// Bus is an in-process publish/subscribe bus. Publish never blocks; a single
// dispatcher goroutine delivers events to handlers sequentially in publish
// order. The zero value is not usable — construct with [NewBus].
type Bus struct {
	mu         sync.Mutex
	cond       *sync.Cond
	queue      []Event
	delivering bool
	subs       map[Topic][]subscription

	closed bool
	done   chan struct{}
}

// NewBus creates a bus and starts its dispatcher goroutine. Call [Bus.Close]
// to stop it.
func NewBus() *Bus {
	b := &Bus{
		subs: make(map[Topic][]subscription),
		done: make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	go b.dispatch()
	return b
}

// Subscribe registers handler for topic under name. Names exist so a caller
// can later unsubscribe, and so accidental double registration is caught: a
// second Subscribe with the same (topic, name) fails with
// [ErrDuplicateSubscription] and leaves the first registration in place.
// Handlers for one topic are invoked in registration order.
func (b *Bus) Subscribe(topic Topic, name string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("event: subscribe %q/%q: nil handler", topic, name)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs[topic] {
		if sub.name == name {
			return fmt.Errorf("%w: %q on topic %q", ErrDuplicateSubscription, name, topic)
		}
	}
	b.subs[topic] = append(b.subs[topic], subscription{name: name, handler: handler})
	return nil
}

// Unsubscribe removes the (topic, name) registration. Removing an unknown
// pair is a no-op. Events already queued are still delivered to the handlers
// registered at dispatch time.
func (b *Bus) Unsubscribe(topic Topic, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[topic]
	for i, sub := range subs {
		if sub.name == name {
			b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish enqueues payload on topic and returns immediately. Publishing on a
// closed bus is a no-op.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.queue = append(b.queue, Event{Topic: topic, Time: time.Now(), Payload: payload})
	b.cond.Broadcast()
}

// Close stops the dispatcher after it has delivered every event queued before
// the call. Safe to call once; the bus is unusable afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
	<-b.done
}

// Flush blocks until every event published before the call has been
// delivered. Intended for tests and ordered shutdown.
func (b *Bus) Flush() {
	b.mu.Lock()
	for (len(b.queue) > 0 || b.delivering) && !b.closed {
		b.cond.Wait()
	}
	b.mu.Unlock()
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 && b.closed {
			b.cond.Broadcast()
			b.mu.Unlock()
			return
		}
		ev := b.queue[0]
		b.queue = b.queue[1:]
		b.delivering = true
		// Snapshot so handlers may subscribe/unsubscribe without deadlock.
		subs := make([]subscription, len(b.subs[ev.Topic]))
		copy(subs, b.subs[ev.Topic])
		b.mu.Unlock()

		for _, sub := range subs {
			b.deliver(sub, ev)
		}

		b.mu.Lock()
		b.delivering = false
		if len(b.queue) == 0 {
			b.cond.Broadcast()
		}
		b.mu.Unlock()
	}
}

func (b *Bus) deliver(sub subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event: handler panic",
				"topic", ev.Topic, "subscriber", sub.name, "panic", r)
		}
	}()
	sub.handler(ev)
}
