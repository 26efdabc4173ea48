package module

import (
	"context"
	"sync/atomic"

	"polyglot/internal/messages"
)

type metaOnly struct{ meta Meta }

func (m metaOnly) Meta() Meta { return m.meta }

type loaderModule struct{ metaOnly }

func (loaderModule) LoadMessages(context.Context, LoadArgs) ([]messages.Message, error) {
	return nil, nil
}

type saverModule struct{ metaOnly }

func (saverModule) SaveMessages(context.Context, SaveArgs) error { return nil }

type fullExtension struct {
	metaOnly
	caps map[string]any
}

func (fullExtension) LoadMessages(context.Context, LoadArgs) ([]messages.Message, error) {
	return nil, nil
}
func (fullExtension) SaveMessages(context.Context, SaveArgs) error { return nil }
func (f fullExtension) Capabilities(context.Context) (map[string]any, error) {
	return f.caps, nil
}

type capModule struct {
	metaOnly
	caps map[string]any
	err  error
}

func (c capModule) Capabilities(context.Context) (map[string]any, error) { return c.caps, c.err }

// countingCaps records how often its capability hook ran.
type countingCaps struct {
	metaOnly
	calls *atomic.Int32
}

func (c countingCaps) Capabilities(context.Context) (map[string]any, error) {
	c.calls.Add(1)
	return map[string]any{"app.counted": true}, nil
}

type panickyCaps struct{ metaOnly }

func (panickyCaps) Capabilities(context.Context) (map[string]any, error) { panic("no caps") }

type ruleModule struct{ metaOnly }

func (ruleModule) Run(context.Context, RunArgs) error { return nil }

type hybridModule struct{ metaOnly }

func (hybridModule) Run(context.Context, RunArgs) error { return nil }
func (hybridModule) SaveMessages(context.Context, SaveArgs) error { return nil }

type panickyMeta struct{}

func (panickyMeta) Meta() Meta { panic("no meta") }
func (panickyMeta) SaveMessages(context.Context, SaveArgs) error { return nil }

func meta(id string, apis ...API) metaOnly {
	return metaOnly{meta: Meta{ID: id, UsedAPIs: apis}}
}
