package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCleanPath(t *testing.T) {
	cases := map[string]string{
		"./project.json":      "project.json",
		"/messages/en.json":   "messages/en.json",
		"a/../b.json":         "b.json",
		`messages\de.json`:    "messages/de.json",
		"  spaced/path.json ": "spaced/path.json",
	}
	for in, want := range cases {
		got, err := CleanPath(in)
		if err != nil {
			t.Fatalf("CleanPath(%q) error = %v", in, err)
		}
		if got != want {
			t.Fatalf("CleanPath(%q) = %q, want %q", in, got, want)
		}
	}
	for _, bad := range []string{"", "..", "../secret", "a/../../b", "."} {
		if _, err := CleanPath(bad); err == nil {
			t.Fatalf("CleanPath(%q) expected error", bad)
		}
	}
}

func exerciseStorage(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.ReadFile(ctx, "missing.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ReadFile(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.WriteFile(ctx, "./messages/en.json", []byte(`{"a":"b"}`)); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, err := s.ReadFile(ctx, "messages/en.json")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != `{"a":"b"}` {
		t.Fatalf("ReadFile() = %q", got)
	}
	if err := s.WriteFile(ctx, "messages/en.json", []byte("second")); err != nil {
		t.Fatalf("overwrite error = %v", err)
	}
	got, err = s.ReadFile(ctx, "/messages/en.json")
	if err != nil || string(got) != "second" {
		t.Fatalf("ReadFile() after overwrite = %q, %v", got, err)
	}
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()
	exerciseStorage(t, s)
	if paths := s.Paths(); len(paths) != 1 || paths[0] != "messages/en.json" {
		t.Fatalf("Paths() = %v", paths)
	}
}

func TestDirStorage(t *testing.T) {
	s, err := NewDirStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStorage() error = %v", err)
	}
	exerciseStorage(t, s)
}

func TestDirStorageRejectsSymlinkEscape(t *testing.T) {
	root, outside := t.TempDir(), t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	s, err := NewDirStorage(root)
	if err != nil {
		t.Fatalf("NewDirStorage() error = %v", err)
	}
	ctx := context.Background()
	if _, err := s.ReadFile(ctx, "link/secret.json"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("ReadFile through escaping link: err = %v", err)
	}
	if err := s.WriteFile(ctx, "link/new.json", []byte("{}")); err == nil {
		t.Fatalf("WriteFile through escaping link should fail")
	}
	if err := s.WriteFile(ctx, "fresh/dir/file.json", []byte("{}")); err != nil {
		t.Fatalf("WriteFile into new directory: %v", err)
	}
}

func TestSQLStorageWithSQLite(t *testing.T) {
	s, err := OpenSQL(context.Background(), SQLite, ":memory:")
	if err != nil {
		t.Fatalf("OpenSQL() error = %v", err)
	}
	defer s.Close()
	exerciseStorage(t, s)
}

func TestDialectByName(t *testing.T) {
	if d, err := DialectByName("PostgreSQL"); err != nil || d.Driver != "pgx" {
		t.Fatalf("DialectByName(postgres) = %+v, %v", d, err)
	}
	if d, err := DialectByName("sqlite"); err != nil || d.Driver != "sqlite" {
		t.Fatalf("DialectByName(sqlite) = %+v, %v", d, err)
	}
	if _, err := DialectByName("oracle"); err == nil {
		t.Fatalf("expected unknown dialect error")
	}
}

type fakeOrigin struct {
	mu        sync.Mutex
	data      map[string][]byte
	reads     int
	writes    int
	failWrite bool
}

func newFakeOrigin() *fakeOrigin {
	return &fakeOrigin{data: map[string][]byte{}}
}

func (f *fakeOrigin) ReadFile(_ context.Context, p string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	raw, ok := f.data[p]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}

func (f *fakeOrigin) WriteFile(_ context.Context, p string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.failWrite {
		return fmt.Errorf("write failed")
	}
	f.data[p] = append([]byte(nil), data...)
	return nil
}

func TestCachedStorageReadThroughAndMetrics(t *testing.T) {
	origin := newFakeOrigin()
	origin.data["a.json"] = []byte("hello")
	s := NewCachedStorage(origin, CacheConfig{MaxEntries: 8, TTL: time.Minute})

	for i := 0; i < 2; i++ {
		got, err := s.ReadFile(context.Background(), "./a.json")
		if err != nil || string(got) != "hello" {
			t.Fatalf("ReadFile() = %q, %v", got, err)
		}
	}
	if origin.reads != 1 {
		t.Fatalf("expected one origin read, got %d", origin.reads)
	}
	m := s.Metrics()
	if m.Hits != 1 || m.Misses != 1 || m.OriginReads != 1 {
		t.Fatalf("unexpected metrics: %+v", m)
	}

	if _, err := s.ReadFile(context.Background(), "missing.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.ReadFile(context.Background(), "missing.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if origin.reads != 3 {
		t.Fatalf("misses must not be cached, origin reads = %d", origin.reads)
	}
}

func TestCachedStorageWriteThrough(t *testing.T) {
	origin := newFakeOrigin()
	s := NewCachedStorage(origin, DefaultCacheConfig())

	if err := s.WriteFile(context.Background(), "a.json", []byte("new")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, err := s.ReadFile(context.Background(), "a.json")
	if err != nil || string(got) != "new" {
		t.Fatalf("ReadFile() = %q, %v", got, err)
	}
	if origin.reads != 0 {
		t.Fatalf("expected cached read after write, origin reads = %d", origin.reads)
	}

	origin.failWrite = true
	if err := s.WriteFile(context.Background(), "a.json", []byte("bad")); err == nil {
		t.Fatalf("expected write error")
	}
	got, err = s.ReadFile(context.Background(), "a.json")
	if err != nil || string(got) != "new" {
		t.Fatalf("failed write must not change content, got %q, %v", got, err)
	}
	if s.Metrics().OriginWriteErr != 1 {
		t.Fatalf("expected one origin write error, got %+v", s.Metrics())
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	s, closer, err := Open(context.Background(), Options{Backend: "memory"}, nil)
	if err != nil {
		t.Fatalf("Open(memory) error = %v", err)
	}
	defer closer.Close()
	if _, ok := s.(*MemoryStorage); !ok {
		t.Fatalf("expected MemoryStorage, got %T", s)
	}

	s, closer, err = Open(context.Background(), Options{Backend: "sqlite", DSN: ":memory:"}, nil)
	if err != nil {
		t.Fatalf("Open(sqlite) error = %v", err)
	}
	defer closer.Close()
	if _, ok := s.(*CachedStorage); !ok {
		t.Fatalf("expected CachedStorage, got %T", s)
	}
	exerciseStorage(t, s)

	if _, _, err := Open(context.Background(), Options{Backend: "postgres"}, nil); err == nil {
		t.Fatalf("expected missing dsn error")
	}
	if _, _, err := Open(context.Background(), Options{Backend: "tape"}, nil); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}

func TestS3ConfigNormalization(t *testing.T) {
	cfg := S3Config{Endpoint: " https://minio.local:9000/ ", Bucket: " msgs ", Prefix: "/proj/", AccessKey: "a", SecretKey: "s"}.normalized()
	if cfg.Endpoint != "minio.local:9000" || !cfg.UseSSL {
		t.Fatalf("endpoint = %q, ssl = %v", cfg.Endpoint, cfg.UseSSL)
	}
	if cfg.Bucket != "msgs" || cfg.Prefix != "proj" || cfg.Region != "us-east-1" {
		t.Fatalf("unexpected normalized config %+v", cfg)
	}
	if cfg := (S3Config{Endpoint: "http://localhost:9000", UseSSL: true}).normalized(); cfg.UseSSL {
		t.Fatalf("http endpoint must disable ssl")
	}
}

func TestNewS3StorageRejectsIncompleteConfig(t *testing.T) {
	_, err := NewS3Storage(S3Config{Endpoint: "localhost:9000", AccessKey: "  ", Bucket: "msgs"})
	if err == nil {
		t.Fatalf("expected incomplete config error")
	}
	if !strings.Contains(err.Error(), "access key, secret key") {
		t.Fatalf("error should name missing fields, got %v", err)
	}
	if (S3Config{Endpoint: "e", AccessKey: "a", SecretKey: "s"}).CanUse() {
		t.Fatalf("config without bucket must not be usable")
	}

	s, err := NewS3Storage(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "msgs", Prefix: "p/"})
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}
	if key, _ := s.objectKey("messages/en.json"); key != "p/messages/en.json" {
		t.Fatalf("objectKey = %q", key)
	}
}
