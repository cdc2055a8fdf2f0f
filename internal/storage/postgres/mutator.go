package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quillhq/quill/internal/audit"
)

// Mutator pairs every insert/update/delete with exactly one audit record per
// affected entity, written in the same transaction as the mutation. Every
// repository mutation in this package goes through it, which keeps the
// one-record-per-mutation invariant as new collections are added.
//
// All methods accept an optional transaction handle: nil means the Mutator
// opens its own transaction; a non-nil handle nests via SAVEPOINT, so the
// writes stay atomic with the caller's transaction. Storage errors propagate
// unchanged and are never retried here.
type Mutator struct {
	db *gorm.DB
}

// NewMutator creates a Mutator over the base connection.
func NewMutator(db *gorm.DB) *Mutator {
	return &Mutator{db: db}
}

func (m *Mutator) run(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return tx.Transaction(fn)
	}
	return m.db.WithContext(ctx).Transaction(fn)
}

// Create inserts value and its audit record.
func (m *Mutator) Create(ctx context.Context, tx *gorm.DB, entityType string, entityID uuid.UUID, value any, actx audit.Context) error {
	if err := actx.Validate(); err != nil {
		return err
	}
	return m.run(ctx, tx, func(tx *gorm.DB) error {
		if err := tx.Create(value).Error; err != nil {
			return err
		}
		return appendAudit(tx, entityType, entityID, audit.ActionCreate, actx)
	})
}

// CreateIfAbsent inserts value unless a conflicting row exists, reporting
// whether a row was actually inserted. The audit record is written only on
// insert — a lost upsert race leaves no trace.
func (m *Mutator) CreateIfAbsent(ctx context.Context, tx *gorm.DB, entityType string, entityID uuid.UUID, value any, actx audit.Context) (bool, error) {
	if err := actx.Validate(); err != nil {
		return false, err
	}
	inserted := false
	err := m.run(ctx, tx, func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(value)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		inserted = true
		return appendAudit(tx, entityType, entityID, audit.ActionCreate, actx)
	})
	return inserted, err
}

// Update rewrites the row's columns and appends its audit record. The write
// is an explicit UPDATE, never Save: Save falls back to an insert when the
// row is gone, which would resurrect a concurrently deleted entity, and its
// all-fields write would zero created_at.
func (m *Mutator) Update(ctx context.Context, tx *gorm.DB, entityType string, entityID uuid.UUID, value any, actx audit.Context) error {
	if err := actx.Validate(); err != nil {
		return err
	}
	return m.run(ctx, tx, func(tx *gorm.DB) error {
		res := updateColumns(tx, entityID, value)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// The row vanished under us.
			return gorm.ErrRecordNotFound
		}
		return appendAudit(tx, entityType, entityID, audit.ActionUpdate, actx)
	})
}

// updateColumns updates every column of the row except the primary key and
// created_at, which are immutable once written. Zero-valued fields are
// written too; partial updates are the caller's job.
func updateColumns(tx *gorm.DB, entityID uuid.UUID, value any) *gorm.DB {
	return tx.Model(value).
		Where("id = ?", entityID).
		Select("*").
		Omit("id", "created_at").
		Updates(value)
}

// Delete removes the row with the given primary key and writes its audit
// record. model selects the table (e.g. &RoleModel{}).
func (m *Mutator) Delete(ctx context.Context, tx *gorm.DB, entityType string, entityID uuid.UUID, model any, actx audit.Context) error {
	if err := actx.Validate(); err != nil {
		return err
	}
	return m.run(ctx, tx, func(tx *gorm.DB) error {
		res := tx.Where("id = ?", entityID).Delete(model)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return appendAudit(tx, entityType, entityID, audit.ActionDelete, actx)
	})
}

// DeleteAll removes the rows with the given primary keys, writing one audit
// record per deleted row — not one opaque bulk entry. Rows already gone are
// skipped silently; the returned count is the number actually deleted.
func (m *Mutator) DeleteAll(ctx context.Context, tx *gorm.DB, entityType string, entityIDs []uuid.UUID, model any, actx audit.Context) (int64, error) {
	if err := actx.Validate(); err != nil {
		return 0, err
	}
	if len(entityIDs) == 0 {
		return 0, nil
	}
	var deleted int64
	err := m.run(ctx, tx, func(tx *gorm.DB) error {
		for _, id := range entityIDs {
			res := tx.Where("id = ?", id).Delete(model)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			if err := appendAudit(tx, entityType, id, audit.ActionDelete, actx); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// Upsert inserts value, or on primary-key conflict rewrites the existing
// row's columns (created_at stays), writing a create or update audit record
// accordingly.
func (m *Mutator) Upsert(ctx context.Context, tx *gorm.DB, entityType string, entityID uuid.UUID, value any, actx audit.Context) error {
	if err := actx.Validate(); err != nil {
		return err
	}
	return m.run(ctx, tx, func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(value)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return appendAudit(tx, entityType, entityID, audit.ActionCreate, actx)
		}
		res = updateColumns(tx, entityID, value)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return appendAudit(tx, entityType, entityID, audit.ActionUpdate, actx)
	})
}

// appendAudit writes the paired audit record on the same transaction handle.
func appendAudit(tx *gorm.DB, entityType string, entityID uuid.UUID, action audit.Action, actx audit.Context) error {
	rec := AuditRecordModel{
		ID:               uuid.New(),
		EntityID:         entityID,
		EntityType:       entityType,
		Action:           string(action),
		CtxPrincipalID:   actx.PrincipalID,
		CtxPrincipalType: string(actx.PrincipalType),
		CtxAnonymous:     actx.Anonymous,
		CtxSystem:        actx.System,
		CtxSource:        actx.Source,
		CtxMessage:       actx.Message,
		CreatedAt:        time.Now().UTC(),
	}
	if err := tx.Create(&rec).Error; err != nil {
		return fmt.Errorf("appending audit record for %s %s: %w", entityType, entityID, err)
	}
	return nil
}
