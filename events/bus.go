// Package events carries domain notifications between components. The event
// set is the closed union defined in model; handlers are plain registered
// functions, never string-dispatched methods.
package events

import (
	"sync"

	"LinkFM/logger"
	"LinkFM/model"
)

// Handler receives dispatched events.
type Handler func(event model.Event)

// Bus fans events out to subscribers. Dispatch is decoupled from delivery by
// a single consumer goroutine, so emitters on hot paths never wait on slow
// handlers and handlers observe events in dispatch order.
type Bus struct {
	mu       sync.RWMutex
	all      []*subscription
	typed    map[model.EventType][]*subscription
	ch       chan model.Event
	done     chan struct{}
	closeOne sync.Once
}

type subscription struct {
	handler Handler
}

// NewBus creates and starts a bus.
func NewBus() *Bus {
	b := &Bus{
		typed: make(map[model.EventType][]*subscription),
		ch:    make(chan model.Event, 256),
		done:  make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bus) run() {
	for {
		select {
		case e := <-b.ch:
			b.deliver(e)
		case <-b.done:
			// Drain what was already queued before shutdown.
			for {
				select {
				case e := <-b.ch:
					b.deliver(e)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(e model.Event) {
	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.all)+4)
	subs = append(subs, b.all...)
	subs = append(subs, b.typed[e.EventType()]...)
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(e)
	}
}

// Subscribe registers a handler for every event. The returned function
// removes the subscription.
func (b *Bus) Subscribe(h Handler) func() {
	s := &subscription{handler: h}
	b.mu.Lock()
	b.all = append(b.all, s)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, cur := range b.all {
			if cur == s {
				b.all = append(b.all[:i], b.all[i+1:]...)
				return
			}
		}
	}
}

// SubscribeType registers a handler for one event variant.
func (b *Bus) SubscribeType(t model.EventType, h Handler) func() {
	s := &subscription{handler: h}
	b.mu.Lock()
	b.typed[t] = append(b.typed[t], s)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.typed[t]
		for i, cur := range list {
			if cur == s {
				b.typed[t] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

// Dispatch queues an event for delivery. If the bus is saturated the event is
// dropped rather than stalling the emitter.
func (b *Bus) Dispatch(e model.Event) {
	select {
	case b.ch <- e:
	default:
		logger.Warn("event bus saturated, dropping event",
			logger.String("type", string(e.EventType())))
	}
}

// Close stops delivery after draining queued events.
func (b *Bus) Close() {
	b.closeOne.Do(func() {
		close(b.done)
	})
}
