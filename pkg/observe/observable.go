// Package observe provides a minimal synchronous publish/subscribe container.
//
// An Observable holds a current value and a set of subscribers. Every call to
// Set replaces the value and invokes all subscribers, in registration order,
// before Set returns. This gives collaborators a deterministic "reactive tick":
// by the time a mutation returns, every subscriber has observed the new state.
//
// Deliveries are serialized across mutations: one mutation's callbacks all
// complete before the next mutation's begin, so subscribers observe values in
// the order the mutations were applied. Do not mutate or subscribe to the
// same Observable from within a subscriber callback.
package observe

import "sync"

// Observable is a mutable value container with synchronous change
// notification. The zero value is not usable; create one with New.
type Observable[T any] struct {
	mu    sync.Mutex // guards value and the subscriber registry
	emit  sync.Mutex // held across write plus fan-out to order deliveries
	value T
	subs  map[int]func(T)
	next  int
}

// New creates an Observable holding the given initial value.
func New[T any](initial T) *Observable[T] {
	return &Observable[T]{
		value: initial,
		subs:  make(map[int]func(T)),
	}
}

// Get returns the current value.
func (o *Observable[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

// Set replaces the current value and invokes every subscriber with it before
// returning. Subscribers run in registration order.
func (o *Observable[T]) Set(v T) {
	o.emit.Lock()
	defer o.emit.Unlock()

	o.mu.Lock()
	o.value = v
	fns := o.snapshotLocked()
	o.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Update applies fn to the current value and publishes the result. The
// read-modify-write is atomic with respect to other Set/Update calls.
func (o *Observable[T]) Update(fn func(T) T) {
	o.emit.Lock()
	defer o.emit.Unlock()

	o.mu.Lock()
	o.value = fn(o.value)
	v := o.value
	fns := o.snapshotLocked()
	o.mu.Unlock()

	for _, f := range fns {
		f(v)
	}
}

// Subscribe registers fn to be called on every subsequent value change and
// returns an unsubscribe function. fn is also invoked immediately with the
// current value, matching the first-read semantics subscribers rely on; the
// immediate call cannot interleave with another mutation's fan-out.
func (o *Observable[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	o.emit.Lock()
	o.mu.Lock()
	id := o.next
	o.next++
	o.subs[id] = fn
	v := o.value
	o.mu.Unlock()

	fn(v)
	o.emit.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

// snapshotLocked returns subscribers ordered by registration id.
// Callers must hold o.mu.
func (o *Observable[T]) snapshotLocked() []func(T) {
	fns := make([]func(T), 0, len(o.subs))
	for id := 0; id < o.next; id++ {
		if fn, ok := o.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}
