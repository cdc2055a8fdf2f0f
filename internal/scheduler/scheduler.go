// Package scheduler runs Quill's background maintenance jobs on cron
// schedules. The only job today is the API key expiry sweep, which deletes
// keys past their expiry under a system audit context so every removal
// leaves an audit record like any other mutation.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/quillhq/quill/internal/audit"
	"github.com/quillhq/quill/internal/config"
)

const (
	defaultSweepSpec  = "@hourly"
	defaultBatchLimit = 500
)

// KeyStore is the persistence surface the sweeper needs. A nil tx handle
// means the store opens its own transaction per key.
type KeyStore interface {
	ListExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	DeleteAll(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, actx audit.Context) (int64, error)
}

// Sweeper deletes expired API keys on a cron schedule.
type Sweeper struct {
	keys    KeyStore
	cron    *cron.Cron
	metrics *Metrics
	logger  *slog.Logger
	cfg     *config.SchedulerConfig
	now     func() time.Time
}

// New creates a Sweeper. Returns nil when the scheduler is disabled so
// callers can nil-check instead of branching on config.
func New(keys KeyStore, metrics *Metrics, logger *slog.Logger, cfg *config.SchedulerConfig) *Sweeper {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return &Sweeper{
		keys:    keys,
		cron:    cron.New(),
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Start registers the sweep schedule and starts the cron runner.
func (s *Sweeper) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	spec := s.cfg.KeyExpirySweep
	if spec == "" {
		spec = defaultSweepSpec
	}
	if _, err := s.cron.AddFunc(spec, func() { s.Sweep(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.InfoContext(ctx, "key expiry sweeper started", slog.String("schedule", spec))
	return nil
}

// Stop halts the cron runner and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("key expiry sweeper stopped")
}

// Sweep deletes expired API keys, up to the configured batch limit per run.
// Each deletion is individually audited under a system audit context. Safe to
// call directly, which the serve command does once at startup.
func (s *Sweeper) Sweep(ctx context.Context) {
	if s == nil {
		return
	}
	start := s.now()

	ids, err := s.keys.ListExpired(ctx, start)
	if err != nil {
		s.logger.ErrorContext(ctx, "listing expired api keys", slog.String("error", err.Error()))
		if s.metrics != nil {
			s.metrics.SweepsFailed.Inc()
		}
		return
	}
	limit := s.cfg.SweepBatchLimit
	if limit <= 0 {
		limit = defaultBatchLimit
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	if len(ids) == 0 {
		if s.metrics != nil {
			s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
		}
		return
	}

	actx := audit.BySystem("scheduler.key_expiry").WithMessage("expired api key removed")
	deleted, err := s.keys.DeleteAll(ctx, nil, ids, actx)
	if err != nil {
		s.logger.ErrorContext(ctx, "deleting expired api keys",
			slog.Int("candidates", len(ids)),
			slog.String("error", err.Error()),
		)
		if s.metrics != nil {
			s.metrics.SweepsFailed.Inc()
		}
		return
	}

	s.logger.InfoContext(ctx, "expired api keys removed",
		slog.Int64("deleted", deleted),
		slog.Int("candidates", len(ids)),
	)
	if s.metrics != nil {
		s.metrics.KeysDeleted.Add(float64(deleted))
		s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}
}
