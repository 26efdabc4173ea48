// Package builtin resolves the modules that ship with polyglot by id.
package builtin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"polyglot/internal/module"
	"polyglot/internal/plugins/jsonfile"
	"polyglot/internal/rules"
)

// Factory creates a fresh module instance per project load.
type Factory func() module.Module

// Registry is a module.Resolver over registered factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Default returns a registry holding the JSON plugin and the standard rules.
func Default() *Registry {
	r := NewRegistry()
	r.Register(jsonfile.ID, func() module.Module { return jsonfile.New() })
	for _, rule := range rules.All() {
		r.Register(rule.Meta().ID, func() module.Module { return rule })
	}
	return r
}

// Register adds or replaces the factory for id.
func (r *Registry) Register(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
}

func (r *Registry) Resolve(_ context.Context, id string) (module.Module, error) {
	r.mu.RLock()
	f, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("builtin %q: %w", id, module.ErrNotFound)
	}
	return f(), nil
}

// IDs lists registered module ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
