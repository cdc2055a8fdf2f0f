package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/quillhq/quill/internal/audit"
	"github.com/quillhq/quill/internal/domain"
)

// RoleStore provides read access to role-assignment records.
// Implementations must be safe for concurrent use.
type RoleStore interface {
	// ListForPrincipal returns every organization-scoped role the principal
	// holds on the given organization. Multiple records may exist when the
	// principal holds several distinct role values.
	ListForPrincipal(ctx context.Context, principalID uuid.UUID, pt domain.PrincipalType, orgID uuid.UUID) ([]domain.Role, error)

	// HasGlobalRole reports whether a global-type role record with the given
	// role value exists for the principal.
	HasGlobalRole(ctx context.Context, principalID uuid.UUID, pt domain.PrincipalType, role domain.RoleName) (bool, error)

	// OrganizationIDs returns the distinct set of organization IDs the
	// principal holds any role on.
	OrganizationIDs(ctx context.Context, principalID uuid.UUID, pt domain.PrincipalType) ([]uuid.UUID, error)
}

// SecurityLog is the append-only sink for denied authorization attempts.
// Writes are best-effort and happen outside the request transaction.
type SecurityLog interface {
	Record(ctx context.Context, event audit.SecurityEvent) error
}
