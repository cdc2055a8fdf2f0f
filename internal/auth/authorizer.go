package auth

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/quillhq/quill/internal/audit"
	"github.com/quillhq/quill/internal/domain"
)

// Decision is the outcome of resolving a principal against an organization.
// OrganizationRoles is the full set of role records the principal holds for
// the organization, returned regardless of HasAccess, so callers can tell
// "no access at all" apart from "some access but not enough".
type Decision struct {
	HasAccess         bool
	OrganizationRoles []domain.Role
}

// Authorizer computes allow/deny decisions from role-assignment records.
// Denials at the manager level are logged through the SecurityLog before
// the typed error is returned.
type Authorizer struct {
	roles    RoleStore
	security SecurityLog
	logger   *slog.Logger
	metrics  *Metrics
}

// NewAuthorizer creates an Authorizer. metrics may be nil.
func NewAuthorizer(roles RoleStore, security SecurityLog, logger *slog.Logger, metrics *Metrics) *Authorizer {
	return &Authorizer{roles: roles, security: security, logger: logger, metrics: metrics}
}

// ResolveOrganizationAuthorization computes the effective decision for a
// principal on one organization.
//
// A principal-type mismatch short-circuits with an empty role set — type
// mismatches never leak role information. Otherwise all role records for
// (principal, organization) are loaded and HasAccess is true iff at least
// one of them carries a role value in roleAllowList. The allow-list match is
// "any", never "highest".
func (a *Authorizer) ResolveOrganizationAuthorization(
	ctx context.Context,
	p Principal,
	roleAllowList []domain.RoleName,
	typeAllowList []domain.PrincipalType,
	orgID uuid.UUID,
) (Decision, error) {
	if !slices.Contains(typeAllowList, p.Type) {
		a.count("denied_type")
		return Decision{HasAccess: false, OrganizationRoles: []domain.Role{}}, nil
	}

	held, err := a.roles.ListForPrincipal(ctx, p.ID(), p.Type, orgID)
	if err != nil {
		return Decision{}, fmt.Errorf("loading roles for principal %s: %w", p.ID(), err)
	}

	hasAccess := false
	for _, r := range held {
		if slices.Contains(roleAllowList, r.Role) {
			hasAccess = true
			break
		}
	}

	if hasAccess {
		a.count("allowed")
	} else {
		a.count("denied_role")
	}
	return Decision{HasAccess: hasAccess, OrganizationRoles: held}, nil
}

// IsGlobalAdmin reports whether the principal holds a global Admin role.
// Global admins bypass organization-level filtering entirely.
func (a *Authorizer) IsGlobalAdmin(ctx context.Context, principalID uuid.UUID, pt domain.PrincipalType) (bool, error) {
	ok, err := a.roles.HasGlobalRole(ctx, principalID, pt, domain.RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("checking global admin for %s: %w", principalID, err)
	}
	return ok, nil
}

// MembershipOrganizationIDs returns the organizations the principal holds
// any role on, used to filter list queries for non-admins.
func (a *Authorizer) MembershipOrganizationIDs(ctx context.Context, p Principal) ([]uuid.UUID, error) {
	ids, err := a.roles.OrganizationIDs(ctx, p.ID(), p.Type)
	if err != nil {
		return nil, fmt.Errorf("loading memberships for %s: %w", p.ID(), err)
	}
	return ids, nil
}

// RequireOrganizationAccess resolves the decision and applies tiered denial.
//
// On denial the externally visible error depends on what the principal holds:
// any role at all on the organization means it may know the organization
// exists, so the error is ErrForbidden; zero roles means existence is not
// disclosed and the error is ErrNotFound. This asymmetry is an intentional
// information-hiding policy — do not collapse the two cases.
//
// Every denial writes one SecurityEvent describing the attempted operation
// before the error is returned. The write is best-effort.
func (a *Authorizer) RequireOrganizationAccess(
	ctx context.Context,
	p Principal,
	roleAllowList []domain.RoleName,
	typeAllowList []domain.PrincipalType,
	orgID uuid.UUID,
	operation string,
) ([]domain.Role, error) {
	decision, err := a.ResolveOrganizationAuthorization(ctx, p, roleAllowList, typeAllowList, orgID)
	if err != nil {
		return nil, err
	}
	if decision.HasAccess {
		return decision.OrganizationRoles, nil
	}

	a.recordDenial(ctx, p, orgID, operation)

	if len(decision.OrganizationRoles) > 0 {
		return nil, fmt.Errorf("%w: %s on organization %s", domain.ErrForbidden, operation, orgID)
	}
	return nil, fmt.Errorf("%w: organization %s", domain.ErrNotFound, orgID)
}

// recordDenial writes the security event and logs it. Sink failures are
// logged, never propagated — the denial decision is already made.
func (a *Authorizer) recordDenial(ctx context.Context, p Principal, orgID uuid.UUID, operation string) {
	a.count("security_event")
	event := audit.SecurityEvent{
		EventType:     audit.EventUnauthorizedAccess,
		PrincipalID:   p.ID(),
		PrincipalType: p.Type,
		Message:       fmt.Sprintf("denied %s on organization %s", operation, orgID),
		Source:        operation,
	}
	if err := a.security.Record(ctx, event); err != nil {
		a.logger.ErrorContext(ctx, "writing security audit event failed",
			slog.String("principal_id", p.ID().String()),
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
	}
	a.logger.WarnContext(ctx, "authorization denied",
		slog.String("principal_id", p.ID().String()),
		slog.String("principal_type", string(p.Type)),
		slog.String("organization_id", orgID.String()),
		slog.String("operation", operation),
	)
}

func (a *Authorizer) count(result string) {
	if a.metrics != nil {
		a.metrics.ChecksTotal.WithLabelValues(result).Inc()
	}
}
