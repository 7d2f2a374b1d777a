// Package events carries in-process notifications: typed observer lists with explicit
// unsubscribe, and a topic dispatcher for streaming to HTTP clients.
package events

import "sync"

// Observers is a set of handlers notified synchronously, in registration order.
type Observers[T any] struct {
	mu       sync.RWMutex
	handlers map[int64]func(T)
	order    []int64
	nextID   int64
}

// Add registers handler and returns a function that removes it. Removing twice is a no-op.
func (o *Observers[T]) Add(handler func(T)) func() {
	if handler == nil {
		return func() {}
	}
	o.mu.Lock()
	if o.handlers == nil {
		o.handlers = make(map[int64]func(T))
	}
	o.nextID++
	id := o.nextID
	o.handlers[id] = handler
	o.order = append(o.order, id)
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if _, ok := o.handlers[id]; !ok {
			return
		}
		delete(o.handlers, id)
		for index, existing := range o.order {
			if existing == id {
				o.order = append(o.order[:index], o.order[index+1:]...)
				break
			}
		}
	}
}

// Notify calls every registered handler with value.
func (o *Observers[T]) Notify(value T) {
	o.mu.RLock()
	handlers := make([]func(T), 0, len(o.order))
	for _, id := range o.order {
		handlers = append(handlers, o.handlers[id])
	}
	o.mu.RUnlock()

	for _, handler := range handlers {
		handler(value)
	}
}

func (o *Observers[T]) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.order)
}
