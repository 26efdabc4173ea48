package luamodule

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"polyglot/internal/ctxlog"
	"polyglot/internal/module"
	"polyglot/internal/storage"
)

// Extension is the identifier suffix this resolver answers for.
const Extension = ".lua"

const defaultCacheSize = 64

// Resolver resolves identifiers ending in .lua to scripts read from
// storage. Compiled scripts are reused while their source is unchanged.
type Resolver struct {
	fs    storage.Storage
	cache *lru.Cache[string, *Script]
}

func NewResolver(fs storage.Storage, cacheSize int) (*Resolver, error) {
	if fs == nil {
		return nil, errors.New("luamodule: storage is required")
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, *Script](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("luamodule: create cache: %w", err)
	}
	return &Resolver{fs: fs, cache: cache}, nil
}

func (r *Resolver) Resolve(ctx context.Context, id string) (module.Module, error) {
	if !strings.HasSuffix(id, Extension) {
		return nil, fmt.Errorf("resolve %q: %w", id, module.ErrNotFound)
	}
	source, err := r.fs.ReadFile(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("resolve %q: %w", id, module.ErrNotFound)
		}
		return nil, fmt.Errorf("resolve %q: %w", id, err)
	}

	sum := sha256.Sum256(source)
	key := id + "@" + hex.EncodeToString(sum[:])
	if s, ok := r.cache.Get(key); ok {
		return s.Module(), nil
	}
	s, err := Compile(id, source)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, s)
	ctxlog.FromContext(ctx).Debug("lua module compiled", "module", id, "id", s.meta.ID)
	return s.Module(), nil
}

// Cached reports how many compiled scripts are held.
func (r *Resolver) Cached() int { return r.cache.Len() }
