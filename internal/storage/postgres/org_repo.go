package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillhq/quill/internal/audit"
	"github.com/quillhq/quill/internal/domain"
)

// OrganizationRepository manages organization records. All mutations go
// through the audited Mutator.
type OrganizationRepository struct {
	db      *gorm.DB
	mutator *Mutator
}

// EntityOrganization is the audit entity type for organization records.
const EntityOrganization = "organization"

// NewOrganizationRepository creates an OrganizationRepository.
func NewOrganizationRepository(db *gorm.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db, mutator: NewMutator(db)}
}

// Get retrieves an organization by ID.
func (r *OrganizationRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Organization, error) {
	var m OrganizationModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "organization %s", id)
	}
	return toOrganizationDomain(&m), nil
}

// List returns all organizations, ordered by creation time.
func (r *OrganizationRepository) List(ctx context.Context) ([]domain.Organization, error) {
	var models []OrganizationModel
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing organizations: %w", err)
	}
	return toOrganizationSlice(models), nil
}

// ListByIDs returns the organizations whose IDs are in ids. An empty id set
// returns an empty slice without touching storage.
func (r *OrganizationRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Organization, error) {
	if len(ids) == 0 {
		return []domain.Organization{}, nil
	}
	var models []OrganizationModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing organizations by ids: %w", err)
	}
	return toOrganizationSlice(models), nil
}

// Create inserts an organization with its audit record. Slug is derived
// from the name when unset; a collision gets the ID prefix appended.
func (r *OrganizationRepository) Create(ctx context.Context, tx *gorm.DB, org *domain.Organization, actx audit.Context) error {
	if org.Slug == "" {
		org.Slug = toSlug(org.Name)
	}
	m := toOrganizationModel(org)
	err := r.mutator.Create(ctx, tx, EntityOrganization, org.ID, &m, actx)
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		m.Slug = fmt.Sprintf("%s-%s", m.Slug, org.ID.String()[:8])
		org.Slug = m.Slug
		err = r.mutator.Create(ctx, tx, EntityOrganization, org.ID, &m, actx)
	}
	if err != nil {
		return fmt.Errorf("creating organization %q: %w", org.Name, err)
	}
	return nil
}

// Update saves the organization with its audit record.
func (r *OrganizationRepository) Update(ctx context.Context, tx *gorm.DB, org *domain.Organization, actx audit.Context) error {
	m := toOrganizationModel(org)
	if err := r.mutator.Update(ctx, tx, EntityOrganization, org.ID, &m, actx); err != nil {
		return notFound(err, "organization %s", org.ID)
	}
	return nil
}

// Delete removes the organization row with its audit record. Called by the
// lifecycle service as the last step inside the cascade transaction.
func (r *OrganizationRepository) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID, actx audit.Context) error {
	if err := r.mutator.Delete(ctx, tx, EntityOrganization, id, &OrganizationModel{}, actx); err != nil {
		return notFound(err, "organization %s", id)
	}
	return nil
}

func toOrganizationSlice(models []OrganizationModel) []domain.Organization {
	orgs := make([]domain.Organization, len(models))
	for i := range models {
		orgs[i] = *toOrganizationDomain(&models[i])
	}
	return orgs
}

func toSlug(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))
}

// notFound maps gorm's record-not-found onto the domain taxonomy, leaving
// other errors wrapped but otherwise intact.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: "+format, append([]any{domain.ErrNotFound}, args...)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
