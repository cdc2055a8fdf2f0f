package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillhq/quill/internal/audit"
	"github.com/quillhq/quill/internal/domain"
)

// EntityEntry is the audit entity type for content entries.
const EntityEntry = "entry"

// EntryRepository manages content entries. Satisfies content.EntryStore.
type EntryRepository struct {
	db      *gorm.DB
	mutator *Mutator
}

// NewEntryRepository creates an EntryRepository.
func NewEntryRepository(db *gorm.DB) *EntryRepository {
	return &EntryRepository{db: db, mutator: NewMutator(db)}
}

// Get retrieves an entry by ID.
func (r *EntryRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Entry, error) {
	var m EntryModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "entry %s", id)
	}
	return toEntryDomain(&m), nil
}

// GetBySlug retrieves an entry by its organization-scoped slug.
func (r *EntryRepository) GetBySlug(ctx context.Context, orgID uuid.UUID, slug string) (*domain.Entry, error) {
	var m EntryModel
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND slug = ?", orgID, slug).
		First(&m).Error
	if err != nil {
		return nil, notFound(err, "entry %s in organization %s", slug, orgID)
	}
	return toEntryDomain(&m), nil
}

// ListForOrganization returns the organization's entries, newest first.
func (r *EntryRepository) ListForOrganization(ctx context.Context, orgID uuid.UUID) ([]domain.Entry, error) {
	var models []EntryModel
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing entries for organization %s: %w", orgID, err)
	}
	entries := make([]domain.Entry, len(models))
	for i := range models {
		entries[i] = *toEntryDomain(&models[i])
	}
	return entries, nil
}

// IDsForOrganization returns the IDs of all entries in the organization.
func (r *EntryRepository) IDsForOrganization(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&EntryModel{}).
		Where("organization_id = ?", orgID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("listing entry ids for organization %s: %w", orgID, err)
	}
	return ids, nil
}

// Create inserts an entry with its audit record.
func (r *EntryRepository) Create(ctx context.Context, tx *gorm.DB, e *domain.Entry, actx audit.Context) error {
	m := toEntryModel(e)
	if err := r.mutator.Create(ctx, tx, EntityEntry, e.ID, &m, actx); err != nil {
		return fmt.Errorf("creating entry %q: %w", e.Slug, err)
	}
	return nil
}

// Update saves an entry with its audit record.
func (r *EntryRepository) Update(ctx context.Context, tx *gorm.DB, e *domain.Entry, actx audit.Context) error {
	m := toEntryModel(e)
	if err := r.mutator.Update(ctx, tx, EntityEntry, e.ID, &m, actx); err != nil {
		return notFound(err, "entry %s", e.ID)
	}
	return nil
}

// Delete removes an entry with its audit record.
func (r *EntryRepository) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID, actx audit.Context) error {
	if err := r.mutator.Delete(ctx, tx, EntityEntry, id, &EntryModel{}, actx); err != nil {
		return notFound(err, "entry %s", id)
	}
	return nil
}

// DeleteAllForOrganization removes every entry in the organization on the
// given transaction handle, one audit record per entry. Used by the
// organization delete hook so entry deletion is atomic with the cascade.
func (r *EntryRepository) DeleteAllForOrganization(ctx context.Context, tx *gorm.DB, orgID uuid.UUID, actx audit.Context) (int64, error) {
	// Read the id set on the transaction handle so the snapshot matches
	// what the deletes will see.
	db := r.db.WithContext(ctx)
	if tx != nil {
		db = tx
	}
	var ids []uuid.UUID
	err := db.Model(&EntryModel{}).
		Where("organization_id = ?", orgID).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("listing entry ids for organization %s: %w", orgID, err)
	}
	return r.mutator.DeleteAll(ctx, tx, EntityEntry, ids, &EntryModel{}, actx)
}
