package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillhq/quill/internal/audit"
	"github.com/quillhq/quill/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeKeyStore struct {
	expired []uuid.UUID
	listErr error

	deleted   []uuid.UUID
	deleteErr error
	lastActx  audit.Context
}

func (f *fakeKeyStore) ListExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	return f.expired, f.listErr
}

func (f *fakeKeyStore) DeleteAll(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, actx audit.Context) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.deleted = append(f.deleted, ids...)
	f.lastActx = actx
	return int64(len(ids)), nil
}

func enabledConfig() *config.SchedulerConfig {
	return &config.SchedulerConfig{Enabled: true}
}

func TestNew_DisabledReturnsNil(t *testing.T) {
	if s := New(&fakeKeyStore{}, nil, testLogger(), nil); s != nil {
		t.Fatal("expected nil Sweeper for nil config")
	}
	if s := New(&fakeKeyStore{}, nil, testLogger(), &config.SchedulerConfig{}); s != nil {
		t.Fatal("expected nil Sweeper when disabled")
	}
	// Nil sweeper methods are no-ops.
	var s *Sweeper
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("nil Start: %v", err)
	}
	s.Sweep(context.Background())
	s.Stop()
}

func TestSweep_DeletesExpiredKeys(t *testing.T) {
	store := &fakeKeyStore{expired: []uuid.UUID{uuid.New(), uuid.New()}}
	s := New(store, nil, testLogger(), enabledConfig())

	s.Sweep(context.Background())

	if len(store.deleted) != 2 {
		t.Fatalf("deleted %d keys, want 2", len(store.deleted))
	}
	if !store.lastActx.System {
		t.Error("sweep deletions must carry a system audit context")
	}
	if store.lastActx.Source != "scheduler.key_expiry" {
		t.Errorf("audit source = %q, want scheduler.key_expiry", store.lastActx.Source)
	}
}

func TestSweep_RespectsBatchLimit(t *testing.T) {
	ids := make([]uuid.UUID, 10)
	for i := range ids {
		ids[i] = uuid.New()
	}
	store := &fakeKeyStore{expired: ids}
	cfg := enabledConfig()
	cfg.SweepBatchLimit = 3
	s := New(store, nil, testLogger(), cfg)

	s.Sweep(context.Background())

	if len(store.deleted) != 3 {
		t.Fatalf("deleted %d keys, want batch limit 3", len(store.deleted))
	}
}

func TestSweep_NothingExpired(t *testing.T) {
	store := &fakeKeyStore{}
	s := New(store, nil, testLogger(), enabledConfig())

	s.Sweep(context.Background())

	if len(store.deleted) != 0 {
		t.Fatalf("deleted %d keys, want 0", len(store.deleted))
	}
}

func TestSweep_ListError(t *testing.T) {
	store := &fakeKeyStore{listErr: errors.New("db down")}
	s := New(store, nil, testLogger(), enabledConfig())

	// Must not panic or attempt deletes.
	s.Sweep(context.Background())

	if len(store.deleted) != 0 {
		t.Fatalf("deleted %d keys after list error, want 0", len(store.deleted))
	}
}

func TestStart_BadCronSpec(t *testing.T) {
	cfg := enabledConfig()
	cfg.KeyExpirySweep = "not a cron spec"
	s := New(&fakeKeyStore{}, nil, testLogger(), cfg)

	if err := s.Start(context.Background()); err == nil {
		s.Stop()
		t.Fatal("expected error for invalid cron spec")
	}
}
