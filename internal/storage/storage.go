// Package storage holds driver selection and connection configuration.
// Two backends are provided: SQLite (default, zero-config) and PostgreSQL
// (production/multi-tenant). Both run the same GORM repositories.
package storage

import (
	"fmt"
	"time"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and configures the storage backend.
type Config struct {
	Driver string `yaml:"driver"` // "sqlite" (default) or "postgres"

	// PostgreSQL.
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`     // Default: 25
	MaxIdleConns    int           `yaml:"max_idle_conns"`     // Default: 5
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`  // Default: 30m
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"` // Default: 10m

	// SQLite.
	Path string `yaml:"path"` // Database file path.
}

// Validate checks the config for the selected driver.
func (c Config) Validate() error {
	switch c.Driver {
	case "", DriverSQLite:
		return nil
	case DriverPostgres:
		if c.DSN == "" {
			return fmt.Errorf("storage: postgres driver requires dsn")
		}
		return nil
	default:
		return fmt.Errorf("storage: unknown driver %q", c.Driver)
	}
}

// ResolvedDriver returns the driver, defaulting to SQLite.
func (c Config) ResolvedDriver() string {
	if c.Driver == "" {
		return DriverSQLite
	}
	return c.Driver
}
