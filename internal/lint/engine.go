package lint

import (
	"context"
	"sync"
	"time"

	"polyglot/internal/ctxlog"
	"polyglot/internal/debounce"
	"polyglot/internal/messages"
	"polyglot/internal/module"
	"polyglot/internal/observable"
	"polyglot/internal/settings"
)

type EngineConfig struct {
	Messages     *messages.Store
	Settings     *observable.Observable[settings.Settings]
	Rules        []module.InstalledRule
	SourcePolicy SourcePolicy
	Debounce     time.Duration
	Dispatcher   observable.Dispatcher
}

// Engine keeps reports current with the message store and settings.
// Nothing is computed until Reports().Init is called; after that every
// change schedules a recomputation, coalesced over the debounce window.
type Engine struct {
	ctx        context.Context
	cfg        EngineConfig
	reports    *observable.Async[[]Report]
	ruleErrors *observable.Observable[[]*RuleError]
	debouncer  *debounce.Debouncer

	mu     sync.Mutex
	unsubs []func()
	closed bool
}

// NewEngine creates an idle engine. ctx is used for recomputations and
// carries the logger.
func NewEngine(ctx context.Context, cfg EngineConfig) *Engine {
	if ctx == nil {
		ctx = context.Background()
	}
	e := &Engine{
		ctx:        ctx,
		cfg:        cfg,
		ruleErrors: observable.New([]*RuleError{}, cfg.Dispatcher),
	}
	e.debouncer = debounce.New(ctx, cfg.Debounce, e.recompute)
	e.reports = observable.NewAsync[[]Report](cfg.Dispatcher, e.start)
	return e
}

// Reports is the published report list. Its value is shared and must be
// treated as read-only.
func (e *Engine) Reports() *observable.Async[[]Report] { return e.reports }

// RuleErrors holds the rule failures of the latest computation.
func (e *Engine) RuleErrors() *observable.Observable[[]*RuleError] { return e.ruleErrors }

// Rules returns the installed rules the engine runs.
func (e *Engine) Rules() []module.InstalledRule { return e.cfg.Rules }

// Trigger schedules a recomputation.
func (e *Engine) Trigger() { e.debouncer.Trigger() }

// Flush runs a pending recomputation now.
func (e *Engine) Flush(ctx context.Context) bool { return e.debouncer.Flush(ctx) }

// Close releases subscriptions and stops the debounce timer.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	unsubs := e.unsubs
	e.unsubs = nil
	e.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
	e.debouncer.Stop()
}

// start runs once, on behalf of the first Init. The first computation uses
// the engine's own context so a cancelled Init cannot leave reports
// unpublished for later callers.
func (e *Engine) start(context.Context) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if e.cfg.Messages != nil {
		e.unsubs = append(e.unsubs, e.cfg.Messages.Subscribe(func(messages.Snapshot) { e.Trigger() }))
	}
	if e.cfg.Settings != nil {
		e.unsubs = append(e.unsubs, e.cfg.Settings.Subscribe(func(settings.Settings) { e.Trigger() }))
	}
	e.mu.Unlock()

	e.debouncer.Trigger()
	e.debouncer.Flush(e.ctx)
}

func (e *Engine) recompute(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	in := Input{
		Rules:        e.cfg.Rules,
		SourcePolicy: e.cfg.SourcePolicy,
	}
	if e.cfg.Messages != nil {
		in.Messages = e.cfg.Messages.GetAll()
	}
	if e.cfg.Settings != nil {
		in.Settings = e.cfg.Settings.Get()
	}
	started := time.Now()
	res := Run(ctx, in)
	if ctx.Err() != nil {
		return
	}
	ctxlog.FromContext(ctx).Debug("lint finished",
		"reports", len(res.Reports),
		"rule_errors", len(res.Errors),
		"elapsed", time.Since(started))
	for _, re := range res.Errors {
		ctxlog.FromContext(ctx).Warn("lint rule failed", "rule", re.RuleID, "message", re.MessageID, "error", re.Err)
	}
	e.ruleErrors.Set(res.Errors)
	e.reports.Set(res.Reports)
}
