// Package events delivers named notifications from the compiler to host
// listeners.
package events

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Handler receives the payload of one triggered event.
type Handler func(payload ...any)

// Bus dispatches triggered events synchronously to the handlers subscribed to
// their name, in subscription order.
//
// Bus is safe for concurrent use.
type Bus struct {
	mu       sync.Mutex
	handlers map[string][]subscription
	nextID   uint64
	logger   *zap.Logger
}

type subscription struct {
	id uint64
	fn Handler
}

// NewBus creates an empty Bus.
//
// Precondition: logger must be non-nil.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]subscription),
		logger:   logger,
	}
}

// Subscribe registers fn for events named name and returns a function that
// removes it. Calling the returned function more than once is a no-op.
//
// Precondition: fn must not be nil.
func (b *Bus) Subscribe(name string, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[name] = append(b.handlers[name], subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(name, id) })
	}
}

func (b *Bus) remove(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[name]
	for i, s := range subs {
		if s.id == id {
			b.handlers[name] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.handlers[name]) == 0 {
		delete(b.handlers, name)
	}
}

// Trigger calls every handler subscribed to name with payload. A panicking
// handler is logged and does not prevent later handlers from running.
//
// Postcondition: Returns after all handlers have returned.
func (b *Bus) Trigger(name string, payload ...any) {
	b.mu.Lock()
	subs := append([]subscription(nil), b.handlers[name]...)
	b.mu.Unlock()

	b.logger.Debug("event triggered",
		zap.String("event", name),
		zap.Int("handlers", len(subs)),
	)
	for _, s := range subs {
		b.call(name, s.fn, payload)
	}
}

func (b *Bus) call(name string, fn Handler, payload []any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("event", name),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	fn(payload...)
}

// Subscribers returns the number of handlers subscribed to name.
func (b *Bus) Subscribers(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[name])
}
