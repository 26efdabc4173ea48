// Package observable provides value containers that support synchronous
// reads and change subscriptions. Every piece of derived runtime state
// (settings, messages, reports, capabilities, errors) is published through
// one of the two shapes defined here.
package observable

import (
	"errors"
	"sort"
	"sync"
)

// ErrNotInitialized is returned by Async accessors before Init completed.
var ErrNotInitialized = errors.New("observable: not initialized yet")

// Dispatcher delivers notifications. A nil Dispatcher notifies inline.
type Dispatcher interface {
	Dispatch(fn func())
}

// Observable holds a value and notifies subscribers on every Set.
type Observable[T any] struct {
	mu         sync.RWMutex
	value      T
	subs       map[uint64]func(T)
	nextID     uint64
	dispatcher Dispatcher
}

// New creates an Observable holding initial.
func New[T any](initial T, dispatcher Dispatcher) *Observable[T] {
	return &Observable[T]{
		value:      initial,
		subs:       make(map[uint64]func(T)),
		dispatcher: dispatcher,
	}
}

// Get returns the current value.
func (o *Observable[T]) Get() T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.value
}

// Set replaces the value and notifies subscribers with it.
func (o *Observable[T]) Set(v T) {
	o.mu.Lock()
	o.value = v
	fns := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(fns, v)
}

// Update applies fn to the current value atomically and publishes the result.
func (o *Observable[T]) Update(fn func(T) T) T {
	o.mu.Lock()
	v := fn(o.value)
	o.value = v
	fns := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(fns, v)
	return v
}

// Subscribe registers fn for future changes and returns its unsubscribe handle.
func (o *Observable[T]) Subscribe(fn func(T)) func() {
	if fn == nil {
		return func() {}
	}
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
		})
	}
}

// Subscribers reports the number of registered subscribers.
func (o *Observable[T]) Subscribers() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.subs)
}

func (o *Observable[T]) snapshotLocked() []func(T) {
	if len(o.subs) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(o.subs))
	for id := range o.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, o.subs[id])
	}
	return fns
}

func (o *Observable[T]) notify(fns []func(T), v T) {
	if len(fns) == 0 {
		return
	}
	deliver := func() {
		for _, fn := range fns {
			fn(v)
		}
	}
	if o.dispatcher == nil {
		deliver()
		return
	}
	o.dispatcher.Dispatch(deliver)
}
