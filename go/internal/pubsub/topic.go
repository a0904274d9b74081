// Package pubsub is a small in-process fan-out used to pass events between
// console components without shared globals.
package pubsub

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handler receives a published value.
type Handler[T any] func(T)

// Topic delivers every published value to all current subscribers.
// A panicking subscriber is logged and does not affect the others.
type Topic[T any] struct {
	name string
	mu   sync.RWMutex
	subs map[uuid.UUID]Handler[T]
	// order keeps delivery deterministic across publishes.
	order []uuid.UUID
}

// NewTopic creates an empty topic. The name only appears in logs.
func NewTopic[T any](name string) *Topic[T] {
	return &Topic[T]{
		name: name,
		subs: make(map[uuid.UUID]Handler[T]),
	}
}

// Subscribe registers h and returns a function that removes it.
// The returned function is safe to call more than once.
func (t *Topic[T]) Subscribe(h Handler[T]) func() {
	id := uuid.New()

	t.mu.Lock()
	t.subs[id] = h
	t.order = append(t.order, id)
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { t.unsubscribe(id) })
	}
}

func (t *Topic[T]) unsubscribe(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.subs, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Publish calls every subscriber synchronously, in subscription order.
func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	handlers := make([]Handler[T], 0, len(t.order))
	for _, id := range t.order {
		handlers = append(handlers, t.subs[id])
	}
	t.mu.RUnlock()

	for _, h := range handlers {
		t.deliver(h, v)
	}
}

func (t *Topic[T]) deliver(h Handler[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("topic", t.name).
				Interface("panic", r).
				Msg("subscriber panicked")
		}
	}()
	h(v)
}

// Len returns the number of active subscribers.
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}
