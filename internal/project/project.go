// Package project is the runtime of a localization project. Load reads the
// settings, resolves modules, fills the message store from the active
// loader and wires validation and persistence to the store.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"polyglot/internal/ctxlog"
	"polyglot/internal/debounce"
	"polyglot/internal/lint"
	"polyglot/internal/messages"
	"polyglot/internal/module"
	"polyglot/internal/observable"
	"polyglot/internal/persist"
	"polyglot/internal/settings"
	"polyglot/internal/storage"
	"polyglot/internal/taskqueue"
	"polyglot/internal/tracing"
)

// ErrClosed is returned by mutations after Close.
var ErrClosed = errors.New("project: closed")

type Options struct {
	// SettingsPath defaults to settings.DefaultPath.
	SettingsPath string
	Storage      storage.Storage
	Resolver     module.Resolver
	Logger       *slog.Logger
	// Debounce is the quiet window for validation and saving.
	Debounce       time.Duration
	SourcePolicy   lint.SourcePolicy
	ResolveOptions module.Options
}

type Project struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	queue        *taskqueue.Queue
	settings     *SettingsHandle
	store        *messages.Store
	engine       *lint.Engine
	persist      *persist.Coordinator
	resolved     module.Result
	errors       *observable.Observable[[]error]
	capabilities *observable.Observable[map[string]any]

	saveDisabled bool

	closeOnce sync.Once
	closeErr  error
}

// Load opens the project described by the settings file. Settings errors
// are fatal; module, load and later persistence failures are collected on
// Errors.
func Load(ctx context.Context, opts Options) (p *Project, err error) {
	if opts.Storage == nil {
		return nil, errors.New("project: storage is required")
	}
	if opts.SettingsPath == "" {
		opts.SettingsPath = settings.DefaultPath
	}
	if opts.Debounce <= 0 {
		opts.Debounce = debounce.DefaultWait
	}
	logger := opts.Logger
	if logger == nil {
		logger = ctxlog.FromContext(ctx)
	}
	ctx = ctxlog.WithLogger(ctx, logger)

	ctx, span := tracing.Start(ctx, "project.Load", attribute.String("settings", opts.SettingsPath))
	defer func() { tracing.End(span, err) }()

	cfg, err := settings.Load(ctx, opts.Storage, opts.SettingsPath)
	if err != nil {
		return nil, err
	}

	resolved := module.Resolve(ctx, module.ResolveArgs{
		Modules:  cfg.Modules,
		Resolver: opts.Resolver,
		Options:  opts.ResolveOptions,
	})

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p = &Project{
		ctx:      runCtx,
		cancel:   cancel,
		logger:   logger,
		queue:    taskqueue.New(logger),
		resolved: resolved,
	}

	initialErrors := make([]error, 0, len(resolved.Errors))
	for _, e := range resolved.Errors {
		initialErrors = append(initialErrors, e)
	}
	initial, loadErr := p.loadMessages(ctx, cfg, opts.Storage)
	if loadErr != nil {
		logger.Error("initial message load failed", "error", loadErr)
		initialErrors = append(initialErrors, loadErr)
	}

	p.errors = observable.New(initialErrors, p.queue)
	p.capabilities = observable.New(maps.Clone(resolved.Capabilities), p.queue)
	p.settings = newSettingsHandle(runCtx, cfg, opts.SettingsPath, opts.Storage, p.queue, p.addError)
	p.store = messages.NewStore(initial, p.queue)
	p.engine = lint.NewEngine(runCtx, lint.EngineConfig{
		Messages:     p.store,
		Settings:     p.settings.observable(),
		Rules:        resolved.Rules,
		SourcePolicy: opts.SourcePolicy,
		Debounce:     opts.Debounce,
		Dispatcher:   p.queue,
	})

	pcfg := persist.Config{
		Store:    p.store,
		Settings: p.settings.Get,
		Storage:  opts.Storage,
		Debounce: opts.Debounce,
		OnError:  p.addError,
	}
	// Saving after a failed load would overwrite the files that could not
	// be read with whatever was created since.
	if ext, ok := resolved.Saver(); ok && loadErr == nil {
		pcfg.Saver, _ = ext.Saver()
		pcfg.SaverID = ext.Meta.ID
	} else if ok {
		p.saveDisabled = true
		logger.Warn("saving disabled until the project loads cleanly", "saver", ext.Meta.ID)
	}
	p.persist = persist.New(runCtx, pcfg)

	logger.Info("project loaded",
		"settings", opts.SettingsPath,
		"extensions", len(resolved.Extensions),
		"rules", len(resolved.Rules),
		"messages", p.store.Len(),
		"errors", len(initialErrors))
	span.SetAttributes(attribute.Int("messages", p.store.Len()))
	return p, nil
}

func (p *Project) loadMessages(ctx context.Context, cfg settings.Settings, fs storage.Storage) (msgs []messages.Message, err error) {
	ext, ok := p.resolved.Loader()
	if !ok {
		return nil, nil
	}
	loader, _ := ext.Loader()
	defer func() {
		if r := recover(); r != nil {
			msgs, err = nil, &persist.Error{Op: persist.OpLoadMessages, Module: ext.Meta.ID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	msgs, err = loader.LoadMessages(ctx, module.LoadArgs{
		SourceLanguageTag: cfg.SourceLanguageTag,
		LanguageTags:      slices.Clone(cfg.LanguageTags),
		Settings:          cfg.ForModule(ext.Meta.ID),
		Storage:           fs,
	})
	if err != nil {
		return nil, &persist.Error{Op: persist.OpLoadMessages, Module: ext.Meta.ID, Err: err}
	}
	return msgs, nil
}

func (p *Project) addError(err error) {
	p.errors.Update(func(cur []error) []error {
		next := make([]error, 0, len(cur)+1)
		next = append(next, cur...)
		return append(next, err)
	})
}

// SaveDisabled reports whether the saver was left unarmed because the
// initial load failed. Edits then stay in memory only.
func (p *Project) SaveDisabled() bool { return p.saveDisabled }

// Settings exposes get, set and subscribe on the project settings.
func (p *Project) Settings() *SettingsHandle { return p.settings }

// Messages is the authoritative message store.
func (p *Project) Messages() *messages.Store { return p.store }

// Reports must be initialized before it can be read.
func (p *Project) Reports() *observable.Async[[]lint.Report] { return p.engine.Reports() }

// RuleErrors holds rule failures of the latest validation run.
func (p *Project) RuleErrors() *observable.Observable[[]*lint.RuleError] {
	return p.engine.RuleErrors()
}

// Errors accumulates module, load, save and settings write-back failures.
func (p *Project) Errors() *observable.Observable[[]error] { return p.errors }

// Capabilities is the merged capability registry of all extensions.
func (p *Project) Capabilities() *observable.Observable[map[string]any] { return p.capabilities }

// Flush runs pending validation and saves immediately and waits for queued
// settings writes.
func (p *Project) Flush(ctx context.Context) error {
	p.engine.Flush(ctx)
	err := p.persist.Flush(ctx)
	p.queue.Wait()
	return err
}

// Close saves pending changes, stops timers, releases subscriptions and
// drains the task queue. It is safe to call more than once.
func (p *Project) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.closeErr = p.persist.Close(ctx)
		p.engine.Close()
		p.queue.Close()
		p.cancel()
		p.logger.Debug("project closed")
	})
	return p.closeErr
}
