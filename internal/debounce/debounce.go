// Package debounce coalesces bursts of triggers into a single call of a
// function once a quiet window has elapsed.
package debounce

import (
	"context"
	"sync"
	"time"
)

// DefaultWait is the quiet window used by validation and persistence.
const DefaultWait = 500 * time.Millisecond

// Debouncer owns one pending timer. Every Trigger restarts the window;
// executions of fn are serialized, so a run in flight always completes
// before the next one starts.
type Debouncer struct {
	wait time.Duration
	fn   func(ctx context.Context)
	ctx  context.Context

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending bool
	closed  bool
	wg      sync.WaitGroup

	runMu sync.Mutex
}

// New creates a Debouncer. ctx is passed to every execution of fn.
func New(ctx context.Context, wait time.Duration, fn func(ctx context.Context)) *Debouncer {
	if wait <= 0 {
		wait = DefaultWait
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Debouncer{wait: wait, fn: fn, ctx: ctx}
}

// Wait returns the quiet window.
func (d *Debouncer) Wait() time.Duration { return d.wait }

// Trigger (re)starts the quiet window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = true
	d.timer = time.AfterFunc(d.wait, func() { d.fire(gen) })
}

// Pending reports whether a trigger is waiting for its window to elapse.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Flush runs fn immediately if a trigger is pending and reports whether it did.
func (d *Debouncer) Flush(ctx context.Context) bool {
	d.mu.Lock()
	if d.closed || !d.pending {
		d.mu.Unlock()
		return false
	}
	d.cancelLocked()
	d.wg.Add(1)
	d.mu.Unlock()

	defer d.wg.Done()
	d.run(ctx)
	return true
}

// Stop cancels any pending trigger and waits for an in-flight run.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.wg.Wait()
		return
	}
	d.closed = true
	d.cancelLocked()
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Debouncer) cancelLocked() {
	d.gen++
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.timer = nil
	d.wg.Add(1)
	d.mu.Unlock()

	defer d.wg.Done()
	d.run(d.ctx)
}

func (d *Debouncer) run(ctx context.Context) {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	d.fn(ctx)
}
