package module

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by resolvers that do not know an identifier.
var ErrNotFound = errors.New("module not found")

// Resolver turns a configured identifier into a loaded module.
type Resolver interface {
	Resolve(ctx context.Context, id string) (Module, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, id string) (Module, error)

func (f ResolverFunc) Resolve(ctx context.Context, id string) (Module, error) {
	return f(ctx, id)
}

// MapResolver is a deterministic in-memory mapping, mostly used in tests.
type MapResolver map[string]Module

func (r MapResolver) Resolve(_ context.Context, id string) (Module, error) {
	m, ok := r[id]
	if !ok {
		return nil, fmt.Errorf("resolve %q: %w", id, ErrNotFound)
	}
	return m, nil
}

// ChainResolver asks each resolver in turn. Only ErrNotFound moves on to the
// next one; any other failure is returned as is.
type ChainResolver []Resolver

func (c ChainResolver) Resolve(ctx context.Context, id string) (Module, error) {
	for _, r := range c {
		if r == nil {
			continue
		}
		m, err := r.Resolve(ctx, id)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("resolve %q: %w", id, ErrNotFound)
}
