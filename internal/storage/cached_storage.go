package storage

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type CacheConfig struct {
	MaxEntries int
	TTL        time.Duration
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxEntries: 512,
		TTL:        5 * time.Minute,
	}
}

type MetricsSnapshot struct {
	Hits           uint64
	Misses         uint64
	OriginReads    uint64
	OriginWrites   uint64
	OriginReadErr  uint64
	OriginWriteErr uint64
}

type metrics struct {
	hits           atomic.Uint64
	misses         atomic.Uint64
	originReads    atomic.Uint64
	originWrites   atomic.Uint64
	originReadErr  atomic.Uint64
	originWriteErr atomic.Uint64
}

// CachedStorage is a read-through, write-through LRU in front of a slower
// origin (S3, SQL). Missing files are never cached.
type CachedStorage struct {
	origin  Storage
	cache   *expirable.LRU[string, []byte]
	metrics metrics
}

func NewCachedStorage(origin Storage, cfg CacheConfig) *CachedStorage {
	def := DefaultCacheConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	return &CachedStorage{
		origin: origin,
		cache:  expirable.NewLRU[string, []byte](cfg.MaxEntries, nil, cfg.TTL),
	}
}

func (s *CachedStorage) ReadFile(ctx context.Context, p string) ([]byte, error) {
	key, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	if raw, ok := s.cache.Get(key); ok {
		s.metrics.hits.Add(1)
		return append([]byte(nil), raw...), nil
	}
	s.metrics.misses.Add(1)
	s.metrics.originReads.Add(1)

	raw, err := s.origin.ReadFile(ctx, key)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return nil, err
	}
	s.cache.Add(key, append([]byte(nil), raw...))
	return raw, nil
}

func (s *CachedStorage) WriteFile(ctx context.Context, p string, data []byte) error {
	key, err := CleanPath(p)
	if err != nil {
		return err
	}
	s.metrics.originWrites.Add(1)
	if err := s.origin.WriteFile(ctx, key, data); err != nil {
		s.metrics.originWriteErr.Add(1)
		s.cache.Remove(key)
		return err
	}
	s.cache.Add(key, append([]byte(nil), data...))
	return nil
}

func (s *CachedStorage) Metrics() MetricsSnapshot {
	if s == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Hits:           s.metrics.hits.Load(),
		Misses:         s.metrics.misses.Load(),
		OriginReads:    s.metrics.originReads.Load(),
		OriginWrites:   s.metrics.originWrites.Load(),
		OriginReadErr:  s.metrics.originReadErr.Load(),
		OriginWriteErr: s.metrics.originWriteErr.Load(),
	}
}
