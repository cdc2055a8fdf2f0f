package organization

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillhq/quill/internal/audit"
	"github.com/quillhq/quill/internal/auth"
	"github.com/quillhq/quill/internal/domain"
)

// Manager is the principal-facing coordination layer: every operation first
// asks the authorization resolver, applying the tiered NotFound/Forbidden
// denial, then delegates to the lifecycle service or the store.
type Manager struct {
	authz     *auth.Authorizer
	orgs      OrganizationStore
	roles     RoleGrantRevoker
	lifecycle *Lifecycle
	logger    *slog.Logger
}

// RoleGrantRevoker covers the role mutations the manager exposes.
type RoleGrantRevoker interface {
	RoleGrantor
	ListForPrincipal(ctx context.Context, principalID uuid.UUID, pt domain.PrincipalType, orgID uuid.UUID) ([]domain.Role, error)
	Revoke(ctx context.Context, tx *gorm.DB, roleID uuid.UUID, actx audit.Context) error
}

// NewManager creates a Manager.
func NewManager(authz *auth.Authorizer, orgs OrganizationStore, roles RoleGrantRevoker, lifecycle *Lifecycle, logger *slog.Logger) *Manager {
	return &Manager{authz: authz, orgs: orgs, roles: roles, lifecycle: lifecycle, logger: logger}
}

// Find lists the organizations visible to the principal. Global admins see
// everything, unfiltered. Everyone else sees exactly their memberships; a
// principal with zero memberships gets an empty result without the
// organization query ever reaching storage.
func (m *Manager) Find(ctx context.Context, p auth.Principal) ([]domain.Organization, error) {
	admin, err := m.authz.IsGlobalAdmin(ctx, p.ID(), p.Type)
	if err != nil {
		return nil, err
	}
	if admin {
		return m.orgs.List(ctx)
	}

	ids, err := m.authz.MembershipOrganizationIDs(ctx, p)
	if err != nil {
		return nil, err
	}
	return m.orgs.ListByIDs(ctx, ids)
}

// Get returns one organization if the principal holds any membership role
// on it.
func (m *Manager) Get(ctx context.Context, p auth.Principal, orgID uuid.UUID) (*domain.Organization, error) {
	if _, err := m.authz.RequireOrganizationAccess(ctx, p, auth.MembershipRoles, auth.AllPrincipalTypes, orgID, "organization.get"); err != nil {
		return nil, err
	}
	return m.orgs.Get(ctx, orgID)
}

// Create creates an organization owned by the calling principal.
func (m *Manager) Create(ctx context.Context, p auth.Principal, name string) (*domain.Organization, error) {
	actx := audit.ByPrincipal(p.ID(), p.Type).WithSource("organization.create")
	return m.lifecycle.CreateOrganization(ctx, name, p.ID(), p.Type, m.roles, actx)
}

// Update renames an organization. Requires Admin or Owner.
func (m *Manager) Update(ctx context.Context, p auth.Principal, orgID uuid.UUID, name string) (*domain.Organization, error) {
	if _, err := m.authz.RequireOrganizationAccess(ctx, p, auth.AdminRoles, auth.AllPrincipalTypes, orgID, "organization.update"); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: organization name is required", domain.ErrValidation)
	}

	org, err := m.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	org.Name = name

	actx := audit.ByPrincipal(p.ID(), p.Type).WithSource("organization.update")
	if err := m.orgs.Update(ctx, nil, org, actx); err != nil {
		return nil, err
	}
	return org, nil
}

// Delete cascades the organization away. Requires Admin or Owner.
func (m *Manager) Delete(ctx context.Context, p auth.Principal, orgID uuid.UUID) (DeleteResult, error) {
	if _, err := m.authz.RequireOrganizationAccess(ctx, p, auth.AdminRoles, auth.AllPrincipalTypes, orgID, "organization.delete"); err != nil {
		return DeleteResult{}, err
	}
	actx := audit.ByPrincipal(p.ID(), p.Type).WithSource("organization.delete")
	return m.lifecycle.DeleteOrganization(ctx, orgID, actx)
}

// GrantRole grants a role on the organization to another principal.
// Requires Admin or Owner. The role record must be organization-scoped to
// this organization.
func (m *Manager) GrantRole(ctx context.Context, p auth.Principal, role *domain.Role) (*domain.Role, error) {
	if role.Type != domain.RoleTypeOrganization || role.OrganizationID == nil {
		return nil, fmt.Errorf("%w: grant requires an organization-scoped role", domain.ErrValidation)
	}
	if _, err := m.authz.RequireOrganizationAccess(ctx, p, auth.AdminRoles, auth.AllPrincipalTypes, *role.OrganizationID, "organization.grant_role"); err != nil {
		return nil, err
	}
	actx := audit.ByPrincipal(p.ID(), p.Type).WithSource("organization.grant_role")
	if err := m.roles.Grant(ctx, nil, role, actx); err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "role granted",
		slog.String("organization_id", role.OrganizationID.String()),
		slog.String("principal_id", role.PrincipalID.String()),
		slog.String("role", string(role.Role)),
	)
	return role, nil
}

// RevokeRole revokes one role record on the organization. Requires Admin or
// Owner. A role change is a revoke followed by a grant — never an in-place
// update — so both sides land in the audit trail.
func (m *Manager) RevokeRole(ctx context.Context, p auth.Principal, orgID, roleID uuid.UUID) error {
	if _, err := m.authz.RequireOrganizationAccess(ctx, p, auth.AdminRoles, auth.AllPrincipalTypes, orgID, "organization.revoke_role"); err != nil {
		return err
	}
	actx := audit.ByPrincipal(p.ID(), p.Type).WithSource("organization.revoke_role")
	return m.roles.Revoke(ctx, nil, roleID, actx)
}
