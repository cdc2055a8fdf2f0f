package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillhq/quill/internal/audit"
)

// AuditRepository reads the audit trail. Append-only: writes happen solely
// through the Mutator, inside the transaction of the mutation they record —
// no insert, update or delete methods exist on this type.
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates an AuditRepository.
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// ListForEntity returns the audit records for one entity, oldest first.
func (r *AuditRepository) ListForEntity(ctx context.Context, entityID uuid.UUID) ([]audit.Record, error) {
	var models []AuditRecordModel
	err := r.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing audit records for entity %s: %w", entityID, err)
	}
	return toAuditRecordSlice(models), nil
}

// Query returns audit records, newest first. entityType filters when
// non-empty; limit defaults to 100.
func (r *AuditRepository) Query(ctx context.Context, entityType string, limit int) ([]audit.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if entityType != "" {
		q = q.Where("entity_type = ?", entityType)
	}
	var models []AuditRecordModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	return toAuditRecordSlice(models), nil
}

func toAuditRecordSlice(models []AuditRecordModel) []audit.Record {
	records := make([]audit.Record, len(models))
	for i := range models {
		records[i] = toAuditRecordDomain(&models[i])
	}
	return records
}
