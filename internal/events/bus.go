// Package events fans normalized hub events out to in-process subscribers.
package events

import (
	"log/slog"
	"sync"
)

// Handler receives one event. Each handler gets its own copy of the payload.
type Handler func(Event)

// Subscription is the handle returned by Subscribe. Pass it to Unsubscribe
// to remove exactly that handler.
type Subscription struct {
	kind Kind
	id   uint64
}

type entry struct {
	id uint64
	h  Handler
}

// Bus is a synchronous publish/subscribe registry keyed by Kind.
// Publishing to a kind with no subscribers drops the event; there is no replay.
type Bus struct {
	log *slog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[Kind][]entry
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{log: logger, subs: make(map[Kind][]entry)}
}

// Subscribe registers h for events of kind k, after any existing handlers.
func (b *Bus) Subscribe(k Kind, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[k] = append(b.subs[k], entry{id: b.nextID, h: h})
	return &Subscription{kind: k, id: b.nextID}
}

// Unsubscribe removes s. Unknown, nil or already removed subscriptions are ignored.
func (b *Bus) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[s.kind]
	for i, e := range list {
		if e.id != s.id {
			continue
		}
		next := make([]entry, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, s.kind)
		} else {
			b.subs[s.kind] = next
		}
		return
	}
}

// Publish invokes every handler of e's kind in subscription order.
// Handlers run outside the lock, so they may subscribe or unsubscribe.
func (b *Bus) Publish(e Event) {
	if e == nil {
		return
	}
	b.mu.RLock()
	list := b.subs[e.Kind()]
	b.mu.RUnlock()
	for _, s := range list {
		b.deliver(s.h, e.clone())
	}
}

// Len returns the number of handlers subscribed to k.
func (b *Bus) Len(k Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[k])
}

func (b *Bus) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", "kind", e.Kind().String(), "panic", r)
		}
	}()
	h(e)
}

// On subscribes fn to the kind of E.
func On[E Event](b *Bus, fn func(E)) *Subscription {
	var zero E
	return b.Subscribe(zero.Kind(), func(e Event) {
		if v, ok := e.(E); ok {
			fn(v)
		}
	})
}
