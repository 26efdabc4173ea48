// Package config reads the CLI configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"polyglot/internal/storage"
)

type Config struct {
	LogLevel  string `env:"POLYGLOT_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"POLYGLOT_LOG_FORMAT" envDefault:"text"`

	// SettingsPath is relative to the storage root.
	SettingsPath string        `env:"POLYGLOT_SETTINGS"     envDefault:"project.polyglot.json"`
	Debounce     time.Duration `env:"POLYGLOT_DEBOUNCE"     envDefault:"500ms"`
	SourcePolicy string        `env:"POLYGLOT_SOURCE_POLICY" envDefault:"include"`
	Concurrency  int           `env:"POLYGLOT_RESOLVE_CONCURRENCY"`
	LuaCacheSize int           `env:"POLYGLOT_LUA_CACHE" envDefault:"64"`

	Storage StorageConfig
	Gemini  GeminiConfig

	OTelEndpoint string `env:"POLYGLOT_OTEL_ENDPOINT"`
}

type StorageConfig struct {
	Backend string `env:"POLYGLOT_STORAGE" envDefault:"dir"`
	Root    string `env:"POLYGLOT_ROOT"    envDefault:"."`
	DSN     string `env:"POLYGLOT_DSN"`

	CacheEntries int           `env:"POLYGLOT_CACHE_ENTRIES" envDefault:"512"`
	CacheTTL     time.Duration `env:"POLYGLOT_CACHE_TTL"     envDefault:"5m"`

	S3Endpoint  string `env:"POLYGLOT_S3_ENDPOINT"`
	S3Region    string `env:"POLYGLOT_S3_REGION"     envDefault:"us-east-1"`
	S3AccessKey string `env:"POLYGLOT_S3_ACCESS_KEY"`
	S3SecretKey string `env:"POLYGLOT_S3_SECRET_KEY"`
	S3Bucket    string `env:"POLYGLOT_S3_BUCKET"     envDefault:"polyglot-projects"`
	S3Prefix    string `env:"POLYGLOT_S3_PREFIX"`
	S3UseSSL    bool   `env:"POLYGLOT_S3_USE_SSL"    envDefault:"true"`
}

type GeminiConfig struct {
	APIKey    string `env:"GEMINI_API_KEY"`
	Model     string `env:"POLYGLOT_GEMINI_MODEL"   envDefault:"gemini-2.5-flash"`
	BatchSize int    `env:"POLYGLOT_TRANSLATE_BATCH" envDefault:"50"`
	Retries   int    `env:"POLYGLOT_TRANSLATE_RETRIES" envDefault:"3"`
}

// Load reads dotenvFiles (".env" when none are given; missing files are
// ignored) and then parses the environment.
func Load(dotenvFiles ...string) (Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// StorageOptions converts the storage section for storage.Open.
func (c Config) StorageOptions() storage.Options {
	s := c.Storage
	return storage.Options{
		Backend: s.Backend,
		Root:    s.Root,
		DSN:     s.DSN,
		Cache:   storage.CacheConfig{MaxEntries: s.CacheEntries, TTL: s.CacheTTL},
		S3: storage.S3Config{
			Endpoint:  s.S3Endpoint,
			Region:    s.S3Region,
			AccessKey: s.S3AccessKey,
			SecretKey: s.S3SecretKey,
			Bucket:    s.S3Bucket,
			Prefix:    s.S3Prefix,
			UseSSL:    s.S3UseSSL,
		},
	}
}
