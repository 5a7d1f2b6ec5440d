package runtime

import (
	"cim/domain/event"
	"cim/errors"
	"context"
	"iter"
	"sync"
)

// Bus delivers display events to every subscription in publication order.
// Publishing never blocks: each subscription buffers without bound, so a
// slow consumer delays only itself.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe returns a subscription that sees events published from now on.
// Subscribing to a closed bus yields an already ended subscription.
func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{bus: b, notify: make(chan struct{}, 1)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.closed = true
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

func (b *Bus) Publish(events ...event.DisplayEvent) {
	if len(events) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		s.push(events)
	}
}

// Close ends every subscription once its buffered events are consumed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.end()
	}
	clear(b.subs)
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, s)
}

// Subscription is a lazy, ordered, non restartable sequence of events.
type Subscription struct {
	bus    *Bus
	mu     sync.Mutex
	queue  []event.DisplayEvent
	closed bool
	notify chan struct{}
}

func (s *Subscription) push(events []event.DisplayEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, events...)
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) end() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available. It returns errors.ErrSessionClosed
// once the subscription ended and its buffer is empty, or ctx.Err().
func (s *Subscription) Next(ctx context.Context) (event.DisplayEvent, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			evt := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return evt, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil, errors.ErrSessionClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.notify:
		}
	}
}

// All ranges over the events until the subscription ends or ctx is done.
func (s *Subscription) All(ctx context.Context) iter.Seq[event.DisplayEvent] {
	return func(yield func(event.DisplayEvent) bool) {
		for {
			evt, err := s.Next(ctx)
			if err != nil || !yield(evt) {
				return
			}
		}
	}
}

// Close detaches the subscription from the bus and drops what it buffered.
func (s *Subscription) Close() {
	s.bus.remove(s)
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	s.signal()
}
