// Package config handles loading and validating Quill configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/quillhq/quill/internal/storage"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for Quill.
type Config struct {
	Server        ServerConfig         `json:"server" yaml:"server"`
	Storage       *StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"` // nil = SQLite default
	Auth          AuthConfig           `json:"auth" yaml:"auth"`
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
	Scheduler     *SchedulerConfig     `json:"scheduler,omitempty" yaml:"scheduler,omitempty"`         // nil = background sweeps disabled
	Logging       LoggingConfig        `json:"logging" yaml:"logging"`
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // Default: ~/.quill/data. Override: QUILL_DATA_DIR env var.
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string `json:"addr" yaml:"addr"`                           // Default: ":8080"
	ReadTimeoutS    int    `json:"read_timeout_s" yaml:"read_timeout_s"`       // Default: 30
	WriteTimeoutS   int    `json:"write_timeout_s" yaml:"write_timeout_s"`     // Default: 30
	RateLimitPerMin int    `json:"rate_limit_per_min" yaml:"rate_limit_per_min"` // 0 = unlimited
}

// ListenAddr returns the configured address, defaulting to ":8080".
func (s ServerConfig) ListenAddr() string {
	if s.Addr != "" {
		return s.Addr
	}
	return ":8080"
}

// StorageConfig configures the persistence backend.
// When nil, defaults to SQLite with the database path derived from DataDir.
type StorageConfig struct {
	Driver   string                 `json:"driver" yaml:"driver"`                         // "sqlite" (default) or "postgres".
	SQLite   *SQLiteStorageConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`     // SQLite-specific settings.
	Postgres *PostgresStorageConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"` // PostgreSQL-specific settings.
}

// StorageDriver returns the configured driver, defaulting to "sqlite".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return storage.DriverSQLite
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: derived from DataDir.
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
type PostgresStorageConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 25
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 5
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800 (30 min)
}

// StorageSettings resolves the storage section into a storage.Config.
func (c *Config) StorageSettings() storage.Config {
	out := storage.Config{Driver: c.Storage.StorageDriver()}
	switch out.Driver {
	case storage.DriverPostgres:
		if c.Storage != nil && c.Storage.Postgres != nil {
			pg := c.Storage.Postgres
			out.DSN = pg.DSN
			out.MaxOpenConns = pg.MaxOpenConns
			out.MaxIdleConns = pg.MaxIdleConns
			out.ConnMaxLifetime = time.Duration(pg.ConnMaxLifetimeS) * time.Second
		}
	default:
		if c.Storage != nil && c.Storage.SQLite != nil && c.Storage.SQLite.Path != "" {
			out.Path = c.Storage.SQLite.Path
		} else {
			out.Path = filepath.Join(c.DataDir, "quill.db")
		}
	}
	return out
}

// AuthConfig configures principal authentication for the HTTP API.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"` // HMAC secret. Override: QUILL_JWT_SECRET env var.
	JWTIssuer string `json:"jwt_issuer" yaml:"jwt_issuer"` // Expected "iss" claim. Default: "quill"
	Provider  string `json:"provider" yaml:"provider"`     // Identity provider label stamped on accounts. Default: "jwt"
}

// Issuer returns the expected token issuer, defaulting to "quill".
func (a AuthConfig) Issuer() string {
	if a.JWTIssuer != "" {
		return a.JWTIssuer
	}
	return "quill"
}

// ProviderName returns the identity provider label, defaulting to "jwt".
func (a AuthConfig) ProviderName() string {
	if a.Provider != "" {
		return a.Provider
	}
	return "jwt"
}

// ObservabilityConfig configures metrics, tracing, and health checks.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Health  *HealthConfig  `json:"health,omitempty" yaml:"health,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "quill"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// HealthConfig configures dependency health checks for readiness probes.
type HealthConfig struct {
	IncludeDB bool `json:"include_db" yaml:"include_db"`
}

// SchedulerConfig configures background maintenance jobs.
type SchedulerConfig struct {
	Enabled          bool   `json:"enabled" yaml:"enabled"`
	KeyExpirySweep   string `json:"key_expiry_sweep" yaml:"key_expiry_sweep"`     // Cron spec. Default: "@hourly"
	SweepBatchLimit  int    `json:"sweep_batch_limit" yaml:"sweep_batch_limit"`   // Max keys deleted per sweep. Default: 500
}

// LoggingConfig configures structured log output.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // "debug", "info" (default), "warn", "error"
	Format string `json:"format" yaml:"format"` // "text" (default) or "json"
}

// DefaultConfigPath returns the conventional config file location.
func DefaultConfigPath() string {
	return "~/.quill/config.yaml"
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. Secrets can be set in the config file or overridden by
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	cfg.applyEnv()

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DataDir = filepath.Join(home, ".quill", "data")
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Default returns a usable configuration without a config file.
// Intended for local development and tests.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DataDir = filepath.Join(home, ".quill", "data")
		}
	}
	return cfg
}

// applyEnv applies environment variable overrides. Env vars take
// precedence over config file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("QUILL_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("QUILL_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("QUILL_DB_DSN"); v != "" {
		if c.Storage == nil {
			c.Storage = &StorageConfig{Driver: storage.DriverPostgres}
		}
		if c.Storage.Postgres == nil {
			c.Storage.Postgres = &PostgresStorageConfig{}
		}
		c.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("QUILL_LISTEN_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

func (c *Config) validate() error {
	switch driver := c.Storage.StorageDriver(); driver {
	case storage.DriverSQLite:
	case storage.DriverPostgres:
		if c.Storage == nil || c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage driver %q requires a postgres DSN", driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", driver)
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}

	if c.Observability != nil && c.Observability.Tracing != nil && c.Observability.Tracing.Enabled {
		t := c.Observability.Tracing
		if t.Endpoint == "" {
			return fmt.Errorf("tracing enabled without an OTLP endpoint")
		}
		switch t.Protocol {
		case "", "grpc", "http":
		default:
			return fmt.Errorf("unknown tracing protocol %q", t.Protocol)
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			return fmt.Errorf("tracing sample_rate %v out of range [0, 1]", t.SampleRate)
		}
	}
	return nil
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}
