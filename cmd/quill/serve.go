package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/httpapi"
	"github.com/quillhq/quill/internal/ratelimit"
	"github.com/quillhq/quill/internal/scheduler"
)

var (
	serveConfigPath string
	serveAddr       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	// Register flags on both root and serve so that
	// `quill --config path` and `quill serve --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().StringVar(&serveAddr, "addr", "", "override HTTP listen address (e.g. :8080)")
	}
}

// runServe starts the HTTP API server with the background sweeper.
func runServe(_ *cobra.Command, _ []string) error {
	bootLogger := buildLogger(config.LoggingConfig{})

	cfg, err := loadConfig(goutils.Env("QUILL_CONFIG", serveConfigPath), bootLogger)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	logger := buildLogger(cfg.Logging)
	logger.Info("starting quill server", slog.String("addr", cfg.Server.ListenAddr()))

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Readiness depends on the database.
	if sc.Obs != nil && sc.Obs.Health != nil {
		db := sc.Store.DB()
		sc.Obs.Health.AddCheck("db", func(ctx context.Context) error {
			return db.Ping(ctx)
		})
	}

	// API key expiry sweeper (optional).
	var sweeperMetrics *scheduler.Metrics
	if sc.Obs != nil && sc.Obs.Metrics != nil {
		sweeperMetrics = scheduler.NewMetrics(sc.Obs.Metrics.Registry)
	}
	sweeper := scheduler.New(sc.Store.APIKeys(), sweeperMetrics, logger, cfg.Scheduler)
	if sweeper != nil {
		if err := sweeper.Start(ctx); err != nil {
			return err
		}
		defer sweeper.Stop()
		// Clear any backlog accumulated while the process was down.
		sweeper.Sweep(ctx)
	}

	// HTTP gateway.
	gwCfg := httpapi.Config{
		ListenAddr: cfg.Server.ListenAddr(),
		EnableDocs: true,
		JWTSecret:  cfg.Auth.JWTSecret,
		JWTIssuer:  cfg.Auth.Issuer(),
		Provider:   cfg.Auth.ProviderName(),
	}
	if sc.Obs != nil {
		if sc.Obs.Metrics != nil {
			gwCfg.MetricsRegistry = sc.Obs.Metrics.Registry
			gwCfg.Metrics = sc.Obs.Metrics
			if cfg.Observability != nil && cfg.Observability.Metrics != nil {
				gwCfg.MetricsPath = cfg.Observability.Metrics.Path
			}
		}
		if sc.Obs.Tracer != nil {
			gwCfg.Tracer = sc.Obs.Tracer.Tracer()
		}
		gwCfg.HealthChecker = sc.Obs.Health
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.Server.RateLimitPerMin,
	})

	gw := httpapi.NewGateway(gwCfg, sc.Orgs, sc.Entries, limiter, logger).
		WithAccountAuth(sc.Provisioner).
		WithAPIKeyAuth(sc.Store.APIKeys()).
		WithAuditLog(sc.Store.Audit(), sc.Store.SecurityAudit(), sc.Authz)

	errs := make(chan error, 1)
	go func() {
		errs <- gw.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("http gateway exited with error", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return gw.Stop(shutdownCtx)
}
