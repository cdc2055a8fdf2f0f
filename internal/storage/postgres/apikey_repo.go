package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillhq/quill/internal/audit"
	"github.com/quillhq/quill/internal/domain"
)

// EntityAPIKey is the audit entity type for API key records.
const EntityAPIKey = "api_key"

// APIKeyRepository manages API key records. Only the SHA-256 hash of a key
// secret is ever stored or matched.
type APIKeyRepository struct {
	db      *gorm.DB
	mutator *Mutator
}

// NewAPIKeyRepository creates an APIKeyRepository.
func NewAPIKeyRepository(db *gorm.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db, mutator: NewMutator(db)}
}

// Get retrieves an API key by ID.
func (r *APIKeyRepository) Get(ctx context.Context, id uuid.UUID) (*domain.APIKey, error) {
	var m APIKeyModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "api key %s", id)
	}
	return toAPIKeyDomain(&m), nil
}

// GetBySecretHash retrieves an API key by the hash of its secret.
// Used by the gateway's authentication middleware.
func (r *APIKeyRepository) GetBySecretHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	var m APIKeyModel
	if err := r.db.WithContext(ctx).Where("secret_hash = ?", hash).First(&m).Error; err != nil {
		return nil, notFound(err, "api key by hash")
	}
	return toAPIKeyDomain(&m), nil
}

// List returns all API keys, newest first.
func (r *APIKeyRepository) List(ctx context.Context) ([]domain.APIKey, error) {
	var models []APIKeyModel
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	keys := make([]domain.APIKey, len(models))
	for i := range models {
		keys[i] = *toAPIKeyDomain(&models[i])
	}
	return keys, nil
}

// ListExpired returns the IDs of keys whose ExpiresAt is before now.
func (r *APIKeyRepository) ListExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&APIKeyModel{}).
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("listing expired api keys: %w", err)
	}
	return ids, nil
}

// Create inserts an API key with its audit record.
func (r *APIKeyRepository) Create(ctx context.Context, tx *gorm.DB, k *domain.APIKey, actx audit.Context) error {
	m := toAPIKeyModel(k)
	if err := r.mutator.Create(ctx, tx, EntityAPIKey, k.ID, &m, actx); err != nil {
		return fmt.Errorf("creating api key %q: %w", k.Name, err)
	}
	return nil
}

// Delete removes an API key with its audit record.
func (r *APIKeyRepository) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID, actx audit.Context) error {
	if err := r.mutator.Delete(ctx, tx, EntityAPIKey, id, &APIKeyModel{}, actx); err != nil {
		return notFound(err, "api key %s", id)
	}
	return nil
}

// DeleteAll removes the given keys, one audit record per key. Used by the
// expiry sweeper under a system audit context.
func (r *APIKeyRepository) DeleteAll(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, actx audit.Context) (int64, error) {
	return r.mutator.DeleteAll(ctx, tx, EntityAPIKey, ids, &APIKeyModel{}, actx)
}

// TouchLastUsed updates the last-used timestamp without an audit record —
// it is bookkeeping, not a caller mutation.
func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&APIKeyModel{}).
		Where("id = ?", id).
		Update("last_used_at", at).Error
}
