package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillhq/quill/internal/audit"
	"github.com/quillhq/quill/internal/domain"
)

// EntityRole is the audit entity type for role-assignment records.
const EntityRole = "role"

// RoleRepository provides typed access to role-assignment records. It
// satisfies auth.RoleStore, auth.RoleGrantor and organization.RoleStore.
//
// Roles are never updated in place: a role change is a Revoke followed by a
// Grant, each with its own audit record.
type RoleRepository struct {
	db      *gorm.DB
	mutator *Mutator
}

// NewRoleRepository creates a RoleRepository.
func NewRoleRepository(db *gorm.DB) *RoleRepository {
	return &RoleRepository{db: db, mutator: NewMutator(db)}
}

// ListForPrincipal returns every organization-scoped role the principal
// holds on the organization. The caller must treat the set as a whole —
// several records with distinct role values may exist.
func (r *RoleRepository) ListForPrincipal(ctx context.Context, principalID uuid.UUID, pt domain.PrincipalType, orgID uuid.UUID) ([]domain.Role, error) {
	var models []RoleModel
	err := r.db.WithContext(ctx).
		Where("type = ? AND principal_id = ? AND principal_type = ? AND organization_id = ?",
			string(domain.RoleTypeOrganization), principalID, string(pt), orgID).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("loading roles for principal %s on organization %s: %w", principalID, orgID, err)
	}
	return toRoleSlice(models), nil
}

// ListForOrganization returns all organization-scoped role records for one
// organization, across all principals. Used by the cascade delete.
func (r *RoleRepository) ListForOrganization(ctx context.Context, orgID uuid.UUID) ([]domain.Role, error) {
	var models []RoleModel
	err := r.db.WithContext(ctx).
		Where("type = ? AND organization_id = ?", string(domain.RoleTypeOrganization), orgID).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("loading roles for organization %s: %w", orgID, err)
	}
	return toRoleSlice(models), nil
}

// HasGlobalRole reports whether a global role record with the given value
// exists for the principal.
func (r *RoleRepository) HasGlobalRole(ctx context.Context, principalID uuid.UUID, pt domain.PrincipalType, role domain.RoleName) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&RoleModel{}).
		Where("type = ? AND principal_id = ? AND principal_type = ? AND role = ?",
			string(domain.RoleTypeGlobal), principalID, string(pt), string(role)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking global role for principal %s: %w", principalID, err)
	}
	return count > 0, nil
}

// OrganizationIDs returns the distinct organization IDs the principal holds
// any role on.
func (r *RoleRepository) OrganizationIDs(ctx context.Context, principalID uuid.UUID, pt domain.PrincipalType) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&RoleModel{}).
		Distinct("organization_id").
		Where("type = ? AND principal_id = ? AND principal_type = ?",
			string(domain.RoleTypeOrganization), principalID, string(pt)).
		Pluck("organization_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("loading membership organizations for principal %s: %w", principalID, err)
	}
	return ids, nil
}

// Grant inserts a role-assignment record with its audit record.
func (r *RoleRepository) Grant(ctx context.Context, tx *gorm.DB, role *domain.Role, actx audit.Context) error {
	if err := role.Validate(); err != nil {
		return fmt.Errorf("granting role: %w", err)
	}
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	m := toRoleModel(role)
	if err := r.mutator.Create(ctx, tx, EntityRole, role.ID, &m, actx); err != nil {
		return fmt.Errorf("granting role %s to principal %s: %w", role.Role, role.PrincipalID, err)
	}
	return nil
}

// Revoke deletes a single role-assignment record with its audit record.
func (r *RoleRepository) Revoke(ctx context.Context, tx *gorm.DB, roleID uuid.UUID, actx audit.Context) error {
	if err := r.mutator.Delete(ctx, tx, EntityRole, roleID, &RoleModel{}, actx); err != nil {
		return notFound(err, "role %s", roleID)
	}
	return nil
}

func toRoleSlice(models []RoleModel) []domain.Role {
	roles := make([]domain.Role, len(models))
	for i := range models {
		roles[i] = toRoleDomain(&models[i])
	}
	return roles
}
