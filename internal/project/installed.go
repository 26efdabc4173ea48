package project

import (
	"polyglot/internal/lint"
	"polyglot/internal/module"
	"polyglot/internal/settings"
)

type ModuleKind string

const (
	KindExtension ModuleKind = "extension"
	KindRule      ModuleKind = "rule"
)

// InstalledModule describes a module that passed resolution.
type InstalledModule struct {
	Kind        ModuleKind
	ID          string
	Source      string
	DisplayName string
	Description string
	APIs        []module.API
	// Level is the effective lint level; empty for extensions.
	Level settings.Level
}

// Installed lists extensions followed by rules, in configuration order.
func (p *Project) Installed() []InstalledModule {
	cfg := p.settings.Get()
	out := make([]InstalledModule, 0, len(p.resolved.Extensions)+len(p.resolved.Rules))
	for _, e := range p.resolved.Extensions {
		out = append(out, InstalledModule{
			Kind:        KindExtension,
			ID:          e.Meta.ID,
			Source:      e.Source,
			DisplayName: e.Meta.DisplayName,
			Description: e.Meta.Description,
			APIs:        module.Implements(e.Module),
		})
	}
	for _, r := range p.resolved.Rules {
		out = append(out, InstalledModule{
			Kind:        KindRule,
			ID:          r.Meta.ID,
			Source:      r.Source,
			DisplayName: r.Meta.DisplayName,
			Description: r.Meta.Description,
			APIs:        module.Implements(r.Rule),
			Level:       cfg.LevelFor(r.Meta.ID, lint.DefaultLevel),
		})
	}
	return out
}
