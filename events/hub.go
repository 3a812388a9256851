// Package events fans typed events out to any number of subscribers
// without ever blocking the publisher.
package events

import (
	"sync"
)

// Hub delivers every published value, in order, to each subscriber.
type Hub[T any] struct {
	mx     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	closed bool
}

// Subscription is a single consumer of a Hub. Values queue without bound
// until read from C.
type Subscription[T any] struct {
	hub *Hub[T]
	ch  chan T

	mx      sync.Mutex
	queue   []T
	closing bool

	wake     chan struct{}
	quit     chan struct{}
	quitOnce sync.Once
}

// NewHub creates an empty Hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[*Subscription[T]]struct{})}
}

// Subscribe registers a new consumer. Subscribing to a closed Hub
// returns a subscription whose channel is already closed.
func (h *Hub[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{
		hub:  h,
		ch:   make(chan T),
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
	}

	h.mx.Lock()
	if h.closed {
		s.closing = true
	} else {
		h.subs[s] = struct{}{}
	}
	h.mx.Unlock()

	go s.loop()
	return s
}

// Publish queues v for every current subscriber.
func (h *Hub[T]) Publish(v T) {
	h.mx.Lock()
	defer h.mx.Unlock()
	for s := range h.subs {
		s.push(v)
	}
}

// Close ends every subscription once its queued values are delivered.
func (h *Hub[T]) Close() {
	h.mx.Lock()
	defer h.mx.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		s.mx.Lock()
		s.closing = true
		s.mx.Unlock()
		s.poke()
		delete(h.subs, s)
	}
}

// C returns the channel values are delivered on.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Close unsubscribes, discarding anything still queued.
func (s *Subscription[T]) Close() {
	s.hub.mx.Lock()
	delete(s.hub.subs, s)
	s.hub.mx.Unlock()

	s.quitOnce.Do(func() { close(s.quit) })
}

func (s *Subscription[T]) push(v T) {
	s.mx.Lock()
	if !s.closing {
		s.queue = append(s.queue, v)
	}
	s.mx.Unlock()
	s.poke()
}

func (s *Subscription[T]) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) loop() {
	defer close(s.ch)
	var zero T
	for {
		s.mx.Lock()
		if len(s.queue) == 0 {
			closing := s.closing
			s.mx.Unlock()
			if closing {
				return
			}
			select {
			case <-s.wake:
			case <-s.quit:
				return
			}
			continue
		}
		v := s.queue[0]
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mx.Unlock()

		select {
		case s.ch <- v:
		case <-s.quit:
			return
		}
	}
}
