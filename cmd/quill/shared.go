package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/quillhq/quill/internal/auth"
	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/content"
	"github.com/quillhq/quill/internal/observability"
	"github.com/quillhq/quill/internal/organization"
	"github.com/quillhq/quill/internal/storage"
	pgstore "github.com/quillhq/quill/internal/storage/postgres"
	sqlitestore "github.com/quillhq/quill/internal/storage/sqlite"
)

// SharedComponents holds the initialized subsystems the commands share.
// Built once by initShared, torn down by Cleanup.
type SharedComponents struct {
	Config *config.Config
	Logger *slog.Logger
	Store  *pgstore.Store
	Obs    *observability.Observability // nil = observability disabled.

	Authz       *auth.Authorizer
	Provisioner *auth.Provisioner
	Lifecycle   *organization.Lifecycle
	Orgs        *organization.Manager
	Entries     *content.Manager

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// initShared performs the common initialization: observability, storage,
// and the authorization, provisioning, and content subsystems wired over it.
// Callers must call sc.Cleanup() when done.
func initShared(cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		if obs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}
	})

	// Storage (unified: SQLite default, PostgreSQL optional).
	store, err := initStore(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	sc.Store = store
	sc.addCleanup(func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", slog.String("error", err.Error()))
		}
	})
	logger.Debug("storage initialized", slog.String("driver", store.Driver()))

	// Per-subsystem metrics register on the shared registry when enabled.
	var authMetrics *auth.Metrics
	var orgMetrics *organization.Metrics
	if obs != nil && obs.Metrics != nil {
		authMetrics = auth.NewMetrics(obs.Metrics.Registry)
		orgMetrics = organization.NewMetrics(obs.Metrics.Registry)
	}

	// Authorization resolver over the role store, with denial events going
	// to the security audit stream.
	sc.Authz = auth.NewAuthorizer(store.Roles(), store.SecurityAudit(), logger, authMetrics)

	// Organization lifecycle with the content subsystem registered as the
	// cascade delete hook.
	hook := content.NewHook(store.Entries(), logger)
	sc.Lifecycle = organization.NewLifecycle(
		store.Organizations(), store.Roles(), store.DB(), hook,
		logger, orgMetrics, obs.TracerOrNil().Tracer(),
	)

	sc.Orgs = organization.NewManager(sc.Authz, store.Organizations(), store.Roles(), sc.Lifecycle, logger)
	sc.Entries = content.NewManager(sc.Authz, store.Entries(), logger)

	// Account provisioning for first-seen identities.
	sc.Provisioner = auth.NewProvisioner(
		store.Accounts(), store.Organizations(), store.Roles(), store.DB(), nil, logger,
	)

	return sc, nil
}

// initStore opens the configured storage backend and runs migrations.
func initStore(cfg *config.Config, logger *slog.Logger) (*pgstore.Store, error) {
	settings := cfg.StorageSettings()

	switch settings.ResolvedDriver() {
	case storage.DriverPostgres:
		db, err := pgstore.Open(settings, logger)
		if err != nil {
			return nil, err
		}
		return pgstore.NewStore(db, storage.DriverPostgres), nil
	default:
		if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
			return nil, fmt.Errorf("creating data directory %s: %w", cfg.DataDir, err)
		}
		return sqlitestore.Open(settings, logger)
	}
}

// buildLogger constructs the process logger from the logging config.
func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// loadConfig reads the config file, falling back to defaults when the
// conventional path does not exist.
func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("no config file found, using defaults", slog.String("path", path))
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}
