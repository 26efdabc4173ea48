package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect holds the driver name and statements for one SQL engine.
type Dialect struct {
	Name   string
	Driver string
	schema string
	upsert string
	get    string
}

var (
	Postgres = Dialect{
		Name:   "postgres",
		Driver: "pgx",
		schema: `
CREATE TABLE IF NOT EXISTS project_files (
    path TEXT PRIMARY KEY,
    content BYTEA NOT NULL DEFAULT ''::bytea,
    size BIGINT NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);`,
		upsert: `
INSERT INTO project_files (path, content, size, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (path)
DO UPDATE SET content=EXCLUDED.content, size=EXCLUDED.size, updated_at=EXCLUDED.updated_at`,
		get: `SELECT content FROM project_files WHERE path=$1`,
	}

	SQLite = Dialect{
		Name:   "sqlite",
		Driver: "sqlite",
		schema: `
CREATE TABLE IF NOT EXISTS project_files (
    path TEXT PRIMARY KEY,
    content BLOB NOT NULL,
    size INTEGER NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`,
		upsert: `
INSERT INTO project_files (path, content, size, updated_at)
VALUES (?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (path)
DO UPDATE SET content=excluded.content, size=excluded.size, updated_at=excluded.updated_at`,
		get: `SELECT content FROM project_files WHERE path=?`,
	}
)

// DialectByName maps "postgres"/"sqlite" to a Dialect.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unknown sql dialect %q", name)
	}
}

// SQLStorage stores project files as rows of a single table.
type SQLStorage struct {
	db      *sql.DB
	dialect Dialect

	schemaOnce sync.Once
	schemaErr  error
}

// OpenSQL opens and pings a database for the given dialect.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*SQLStorage, error) {
	db, err := sql.Open(dialect.Driver, strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	if dialect.Name == SQLite.Name {
		// one connection keeps ":memory:" databases coherent
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}
	return NewSQLStorage(db, dialect), nil
}

func NewSQLStorage(db *sql.DB, dialect Dialect) *SQLStorage {
	return &SQLStorage{db: db, dialect: dialect}
}

func (s *SQLStorage) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, s.dialect.schema)
	})
	return s.schemaErr
}

func (s *SQLStorage) ReadFile(ctx context.Context, p string) ([]byte, error) {
	key, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	var content []byte
	err = s.db.QueryRowContext(ctx, s.dialect.get, key).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return content, nil
}

func (s *SQLStorage) WriteFile(ctx context.Context, p string, data []byte) error {
	key, err := CleanPath(p)
	if err != nil {
		return err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.upsert, key, data, int64(len(data))); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *SQLStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
