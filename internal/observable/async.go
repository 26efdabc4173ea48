package observable

import (
	"context"
	"sync"
)

// Async is an Observable whose value only becomes readable after Init.
// Init runs the start hook once and waits for the first Set.
type Async[T any] struct {
	inner *Observable[T]

	startOnce sync.Once
	start     func(ctx context.Context)

	mu        sync.RWMutex
	requested bool
	ready     chan struct{}
	readyOnce sync.Once
}

// NewAsync creates an uninitialized Async. start is invoked by the first
// Init call and is expected to eventually call Set.
func NewAsync[T any](dispatcher Dispatcher, start func(ctx context.Context)) *Async[T] {
	var zero T
	return &Async[T]{
		inner: New(zero, dispatcher),
		start: start,
		ready: make(chan struct{}),
	}
}

// Init requests initialization and blocks until the first value is
// available or ctx is done.
func (a *Async[T]) Init(ctx context.Context) error {
	a.mu.Lock()
	a.requested = true
	a.mu.Unlock()

	a.startOnce.Do(func() {
		if a.start != nil {
			a.start(ctx)
		}
	})

	select {
	case <-a.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Set publishes a value. The first Set marks the observable as ready.
func (a *Async[T]) Set(v T) {
	a.inner.Set(v)
	a.readyOnce.Do(func() { close(a.ready) })
}

// Get returns the current value, or ErrNotInitialized before Init completed.
func (a *Async[T]) Get() (T, error) {
	if !a.initialized() {
		var zero T
		return zero, ErrNotInitialized
	}
	return a.inner.Get(), nil
}

// Subscribe registers fn for future changes, or fails before Init completed.
func (a *Async[T]) Subscribe(fn func(T)) (func(), error) {
	if !a.initialized() {
		return nil, ErrNotInitialized
	}
	return a.inner.Subscribe(fn), nil
}

func (a *Async[T]) initialized() bool {
	a.mu.RLock()
	requested := a.requested
	a.mu.RUnlock()
	if !requested {
		return false
	}
	select {
	case <-a.ready:
		return true
	default:
		return false
	}
}
