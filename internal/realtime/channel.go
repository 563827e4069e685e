// Package realtime is the push/subscribe transport feeding the live
// availability reconciler. The concrete implementation rides RabbitMQ; the
// Channel interface exists so the reconciler can be driven by a fake in
// tests and never touches a broker directly.
package realtime

import (
	"sync"

	"wheres-my-table/internal/domain"
)

// Channel is the boundary the reconciler subscribes through.
//
// Each On* registration returns an unsubscribe callback. Partial
// implementations may return nil; consumers must tolerate nil callbacks
// instead of failing. The connection-change handler is invoked once with
// the current status at registration time.
type Channel interface {
	SubscribeToDate(date string) error
	UnsubscribeFromDate(date string) error
	SubscribeToTable(tableID string) error
	RequestAvailabilityUpdate(date string) error

	OnAvailabilityUpdate(fn func(domain.AvailabilityUpdate)) func()
	OnReservationEvent(fn func(domain.ReservationEvent)) func()
	OnTableStatusUpdate(fn func(domain.TableStatusUpdate)) func()
	OnConnectionChange(fn func(domain.ConnectionStatus)) func()
}

// registry fans one payload out to all registered handlers. Handlers run
// outside the lock so a slow handler cannot deadlock registration.
type registry[T any] struct {
	mu       sync.Mutex
	next     int
	handlers map[int]func(T)
}

func (r *registry[T]) add(fn func(T)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[int]func(T))
	}
	id := r.next
	r.next++
	r.handlers[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.handlers, id)
	}
}

func (r *registry[T]) dispatch(v T) {
	r.mu.Lock()
	fns := make([]func(T), 0, len(r.handlers))
	for _, fn := range r.handlers {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}
