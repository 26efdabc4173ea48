package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Options selects and configures a backend for Open.
type Options struct {
	Backend string // dir | memory | s3 | postgres | sqlite
	Root    string
	S3      S3Config
	DSN     string
	Cache   CacheConfig
}

// Open builds the configured backend. Remote backends are wrapped in a
// CachedStorage. The returned closer is never nil.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Storage, io.Closer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	switch backend {
	case "", "dir", "fs":
		root := opts.Root
		if strings.TrimSpace(root) == "" {
			root = "."
		}
		s, err := NewDirStorage(root)
		if err != nil {
			return nil, nopCloser{}, err
		}
		logger.Debug("storage: using directory", "root", s.Root())
		return s, nopCloser{}, nil
	case "memory":
		logger.Debug("storage: using in-memory files")
		return NewMemoryStorage(), nopCloser{}, nil
	case "s3":
		s, err := NewS3Storage(opts.S3)
		if err != nil {
			return nil, nopCloser{}, fmt.Errorf("failed to initialize s3 storage: %w", err)
		}
		logger.Info("storage: using s3", "bucket", opts.S3.Bucket, "endpoint", opts.S3.Endpoint)
		return NewCachedStorage(s, opts.Cache), nopCloser{}, nil
	case "postgres", "sqlite":
		dialect, err := DialectByName(backend)
		if err != nil {
			return nil, nopCloser{}, err
		}
		if strings.TrimSpace(opts.DSN) == "" {
			return nil, nopCloser{}, fmt.Errorf("%s storage requires a dsn", backend)
		}
		s, err := OpenSQL(ctx, dialect, opts.DSN)
		if err != nil {
			return nil, nopCloser{}, err
		}
		logger.Info("storage: using sql", "dialect", dialect.Name)
		return NewCachedStorage(s, opts.Cache), s, nil
	default:
		return nil, nopCloser{}, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
