// Package topic provides latched in-process publish/subscribe channels. A
// latched topic remembers its last value and hands it to every new
// subscriber, so late subscribers always start from the current state.
package topic

import (
	"sync"

	"github.com/google/uuid"
)

// Latched is a named topic carrying values of type T. Each subscriber sees
// the newest value; a subscriber that falls behind loses intermediate
// values, never the latest one.
type Latched[T any] struct {
	name string

	mu          sync.Mutex
	subscribers map[string]chan T
	last        T
	hasLast     bool
	closed      bool
}

// New creates an empty latched topic.
func New[T any](name string) *Latched[T] {
	return &Latched[T]{
		name:        name,
		subscribers: make(map[string]chan T),
	}
}

// Name returns the topic name.
func (t *Latched[T]) Name() string {
	return t.name
}

// Publish stores v as the latched value and delivers it to every subscriber.
// Publish never blocks on a slow subscriber. Publishing on a closed topic is
// a no-op.
func (t *Latched[T]) Publish(v T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.last = v
	t.hasLast = true
	for _, ch := range t.subscribers {
		offer(ch, v)
	}
}

// offer replaces any undelivered value in ch with v.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

// Subscribe registers a new subscriber. If the topic has a value it is
// already waiting on the returned channel. The ID is used to unsubscribe.
// Subscribing to a closed topic returns a closed channel.
func (t *Latched[T]) Subscribe() (string, <-chan T) {
	id := uuid.NewString()
	ch := make(chan T, 1)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		close(ch)
		return id, ch
	}
	if t.hasLast {
		ch <- t.last
	}
	t.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (t *Latched[T]) Unsubscribe(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch, ok := t.subscribers[id]; ok {
		close(ch)
		delete(t.subscribers, id)
	}
}

// Last returns the latched value, if any.
func (t *Latched[T]) Last() (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.hasLast
}

// Subscribers returns the number of active subscribers.
func (t *Latched[T]) Subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subscribers)
}

// Close closes every subscriber channel. Further publishes are dropped.
func (t *Latched[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for id, ch := range t.subscribers {
		close(ch)
		delete(t.subscribers, id)
	}
}
