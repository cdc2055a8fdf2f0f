package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillhq/quill/internal/audit"
)

// SecurityAuditRepository is the append-only store for denied authorization
// attempts. Satisfies auth.SecurityLog. Record is the only write method —
// immutability is enforced at the interface level.
//
// Writes run on the base connection, never inside a request transaction:
// a denial must be recorded even though the denied operation itself writes
// nothing.
type SecurityAuditRepository struct {
	db *gorm.DB
}

// NewSecurityAuditRepository creates a SecurityAuditRepository.
func NewSecurityAuditRepository(db *gorm.DB) *SecurityAuditRepository {
	return &SecurityAuditRepository{db: db}
}

// Record appends a single security event.
func (r *SecurityAuditRepository) Record(ctx context.Context, event audit.SecurityEvent) error {
	m := SecurityEventModel{
		ID:            uuid.New(),
		EventType:     string(event.EventType),
		PrincipalID:   event.PrincipalID,
		PrincipalType: string(event.PrincipalType),
		Message:       event.Message,
		Source:        event.Source,
		CreatedAt:     time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("appending security event: %w", err)
	}
	return nil
}

// Query returns security events, newest first. If principalID is non-nil,
// filters to that principal. Limit defaults to 100.
func (r *SecurityAuditRepository) Query(ctx context.Context, principalID *uuid.UUID, limit int) ([]audit.SecurityEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if principalID != nil {
		q = q.Where("principal_id = ?", *principalID)
	}
	var models []SecurityEventModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("querying security events: %w", err)
	}
	events := make([]audit.SecurityEvent, len(models))
	for i := range models {
		events[i] = toSecurityEventDomain(&models[i])
	}
	return events, nil
}
