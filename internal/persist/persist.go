// Package persist writes the message store back through the active saver
// module once edits have settled.
package persist

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"polyglot/internal/ctxlog"
	"polyglot/internal/debounce"
	"polyglot/internal/messages"
	"polyglot/internal/module"
	"polyglot/internal/settings"
	"polyglot/internal/storage"
	"polyglot/internal/tracing"
)

type Op string

const (
	OpSaveMessages  Op = "save-messages"
	OpLoadMessages  Op = "load-messages"
	OpWriteSettings Op = "write-settings"
)

// Error is a persistence failure. In-memory state is never rolled back.
type Error struct {
	Op     Op
	Module string
	Err    error
}

func (e *Error) Error() string {
	if e.Module == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s via %s: %v", e.Op, e.Module, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Config struct {
	Store *messages.Store
	// Saver is the extension that saves messages; nil keeps changes in memory.
	Saver    module.MessageSaver
	SaverID  string
	Settings func() settings.Settings
	Storage  storage.Storage
	Debounce time.Duration
	OnError  func(error)
}

// Coordinator saves the store after every quiet window. Saves never
// overlap and each one sees the full latest message list.
type Coordinator struct {
	cfg       Config
	debouncer *debounce.Debouncer
	unsub     func()

	saved   atomic.Uint64
	saves   atomic.Int64
	mu      sync.Mutex
	lastErr error
}

// New starts watching the store. ctx is used for debounced saves.
func New(ctx context.Context, cfg Config) *Coordinator {
	c := &Coordinator{cfg: cfg}
	if cfg.Store != nil {
		c.saved.Store(cfg.Store.Version())
	}
	c.debouncer = debounce.New(ctx, cfg.Debounce, func(ctx context.Context) { c.save(ctx) })
	if cfg.Store != nil && cfg.Saver != nil {
		c.unsub = cfg.Store.Subscribe(func(messages.Snapshot) { c.debouncer.Trigger() })
	}
	return c
}

// Active reports whether a saver is installed.
func (c *Coordinator) Active() bool { return c.cfg.Saver != nil }

// Pending reports whether a save is scheduled.
func (c *Coordinator) Pending() bool { return c.debouncer.Pending() }

// Dirty reports whether the store holds changes that were not saved.
func (c *Coordinator) Dirty() bool {
	return c.cfg.Store != nil && c.cfg.Store.Version() != c.saved.Load()
}

// Saves counts completed SaveMessages calls, failed ones included.
func (c *Coordinator) Saves() int64 { return c.saves.Load() }

// Flush saves unsaved changes now and returns the outcome of that save.
func (c *Coordinator) Flush(ctx context.Context) error {
	if c.cfg.Saver == nil {
		return nil
	}
	ran := c.debouncer.Flush(ctx)
	if !ran && c.Dirty() {
		c.debouncer.Trigger()
		ran = c.debouncer.Flush(ctx)
	}
	if !ran {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Close flushes pending changes and stops watching the store.
func (c *Coordinator) Close(ctx context.Context) error {
	if c.unsub != nil {
		c.unsub()
	}
	err := c.Flush(ctx)
	c.debouncer.Stop()
	return err
}

func (c *Coordinator) save(ctx context.Context) {
	err := c.saveOnce(ctx)
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	if err != nil && c.cfg.OnError != nil {
		c.cfg.OnError(err)
	}
}

func (c *Coordinator) saveOnce(ctx context.Context) (err error) {
	if c.cfg.Saver == nil || c.cfg.Store == nil {
		return nil
	}
	snap := c.cfg.Store.Snapshot()
	if snap.Version == c.saved.Load() {
		return nil
	}

	ctx, span := tracing.Start(ctx, "persist.Save",
		attribute.String("module", c.cfg.SaverID),
		attribute.Int("messages", len(snap.Messages)))
	defer func() { tracing.End(span, err) }()

	var cfg settings.Settings
	if c.cfg.Settings != nil {
		cfg = c.cfg.Settings()
	}
	args := module.SaveArgs{
		Messages:          messages.CloneAll(snap.Messages),
		SourceLanguageTag: cfg.SourceLanguageTag,
		LanguageTags:      cfg.LanguageTags,
		Settings:          cfg.ForModule(c.cfg.SaverID),
		Storage:           c.cfg.Storage,
	}

	started := time.Now()
	if err := callSaver(ctx, c.cfg.Saver, args); err != nil {
		c.saves.Add(1)
		return &Error{Op: OpSaveMessages, Module: c.cfg.SaverID, Err: err}
	}
	c.saves.Add(1)
	c.saved.Store(snap.Version)
	ctxlog.FromContext(ctx).Debug("messages saved",
		"module", c.cfg.SaverID,
		"messages", len(snap.Messages),
		"version", snap.Version,
		"elapsed", time.Since(started))
	return nil
}

func callSaver(ctx context.Context, saver module.MessageSaver, args module.SaveArgs) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return saver.SaveMessages(ctx, args)
}
