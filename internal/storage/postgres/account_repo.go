package postgres

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillhq/quill/internal/audit"
	"github.com/quillhq/quill/internal/domain"
)

// EntityAccount is the audit entity type for account records.
const EntityAccount = "account"

// AccountRepository manages account records. Satisfies auth.AccountStore.
type AccountRepository struct {
	db      *gorm.DB
	mutator *Mutator
}

// NewAccountRepository creates an AccountRepository.
func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db, mutator: NewMutator(db)}
}

// Get retrieves an account by internal ID.
func (r *AccountRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var m AccountModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "account %s", id)
	}
	return toAccountDomain(&m), nil
}

// GetByExternalID retrieves an account by its identity-provider key.
func (r *AccountRepository) GetByExternalID(ctx context.Context, provider, externalID string) (*domain.Account, error) {
	var m AccountModel
	err := r.db.WithContext(ctx).
		Where("provider = ? AND external_id = ?", provider, externalID).
		First(&m).Error
	if err != nil {
		return nil, notFound(err, "account %s/%s", provider, externalID)
	}
	return toAccountDomain(&m), nil
}

// CreateIfAbsent inserts the account unless the (provider, external_id) pair
// already exists. The unique index makes concurrent provisioning from
// several processes safe; only the winning insert gets an audit record.
func (r *AccountRepository) CreateIfAbsent(ctx context.Context, tx *gorm.DB, a *domain.Account, actx audit.Context) (bool, error) {
	m := toAccountModel(a)
	return r.mutator.CreateIfAbsent(ctx, tx, EntityAccount, a.ID, &m, actx)
}

// Update saves profile fields with an audit record.
func (r *AccountRepository) Update(ctx context.Context, tx *gorm.DB, a *domain.Account, actx audit.Context) error {
	m := toAccountModel(a)
	if err := r.mutator.Update(ctx, tx, EntityAccount, a.ID, &m, actx); err != nil {
		return notFound(err, "account %s", a.ID)
	}
	return nil
}
