// Package organization implements the organization lifecycle — in
// particular the transactional cascade delete — and the principal-facing
// manager that gates every operation through the authorization resolver.
package organization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/quillhq/quill/internal/audit"
	"github.com/quillhq/quill/internal/domain"
)

// OrganizationStore is the persistence contract for organization records.
type OrganizationStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Organization, error)
	List(ctx context.Context) ([]domain.Organization, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Organization, error)
	Create(ctx context.Context, tx *gorm.DB, org *domain.Organization, actx audit.Context) error
	Update(ctx context.Context, tx *gorm.DB, org *domain.Organization, actx audit.Context) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID, actx audit.Context) error
}

// RoleStore is the slice of role persistence the cascade delete needs.
type RoleStore interface {
	ListForOrganization(ctx context.Context, orgID uuid.UUID) ([]domain.Role, error)
	Revoke(ctx context.Context, tx *gorm.DB, roleID uuid.UUID, actx audit.Context) error
}

// TxRunner opens the cascade transaction: commit on nil return, full
// rollback on error.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// DeleteHook lets another subsystem delete its organization-scoped data as
// part of the cascade. It is invoked exactly once per DeleteOrganization
// call, on the same transaction handle as every other write — a returned
// error aborts the whole deletion.
//
// The hook runs after the role deletions and before the organization row is
// removed, but it must not depend on the roles being gone: the three steps
// are sequential yet logically independent.
type DeleteHook interface {
	OnOrganizationDelete(ctx context.Context, org *domain.Organization, actx audit.Context, tx *gorm.DB) error
}

// DeleteResult reports what a successful cascade removed.
type DeleteResult struct {
	OrganizationDeleted bool
	RolesDeleted        int
}

// Lifecycle orchestrates the all-or-nothing deletion of an organization,
// its role assignments and hook-owned dependent data.
type Lifecycle struct {
	orgs    OrganizationStore
	roles   RoleStore
	tx      TxRunner
	hook    DeleteHook // nil = no hook registered.
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer // nil = tracing disabled.
}

// NewLifecycle creates a Lifecycle. hook, metrics and tracer may be nil.
func NewLifecycle(orgs OrganizationStore, roles RoleStore, tx TxRunner, hook DeleteHook, logger *slog.Logger, metrics *Metrics, tracer trace.Tracer) *Lifecycle {
	return &Lifecycle{
		orgs:    orgs,
		roles:   roles,
		tx:      tx,
		hook:    hook,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
	}
}

// DeleteOrganization removes the organization, every role assignment on it
// and hook-owned dependent data in one transaction.
//
// Roles are deleted individually, not in bulk, so the audit trail records
// who lost which role. Any failure — storage error or hook rejection —
// rolls the transaction back in full and surfaces as ErrInternal; the
// caller may retry the whole logical operation. A missing organization
// fails with ErrNotFound before any transaction is opened, which also makes
// the operation idempotent at the business level.
func (l *Lifecycle) DeleteOrganization(ctx context.Context, orgID uuid.UUID, actx audit.Context) (DeleteResult, error) {
	if l.tracer != nil {
		var span trace.Span
		ctx, span = l.tracer.Start(ctx, "organization.delete",
			trace.WithAttributes(attribute.String("organization.id", orgID.String())))
		defer span.End()
	}

	org, err := l.orgs.Get(ctx, orgID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return DeleteResult{}, err
		}
		return DeleteResult{}, fmt.Errorf("loading organization %s: %w", orgID, err)
	}

	// Read-only snapshot of the role set, outside the transaction.
	roles, err := l.roles.ListForOrganization(ctx, orgID)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("loading roles for organization %s: %w", orgID, err)
	}

	err = l.tx.WithTransaction(ctx, func(tx *gorm.DB) error {
		for _, role := range roles {
			if err := l.roles.Revoke(ctx, tx, role.ID, actx); err != nil {
				return fmt.Errorf("revoking role %s: %w", role.ID, err)
			}
		}
		if l.hook != nil {
			if err := l.hook.OnOrganizationDelete(ctx, org, actx, tx); err != nil {
				return fmt.Errorf("organization delete hook: %w", err)
			}
		}
		if err := l.orgs.Delete(ctx, tx, orgID, actx); err != nil {
			return fmt.Errorf("deleting organization record: %w", err)
		}
		return nil
	})
	if err != nil {
		l.logger.ErrorContext(ctx, "organization cascade delete rolled back",
			slog.String("organization_id", orgID.String()),
			slog.String("error", err.Error()),
		)
		if l.metrics != nil {
			l.metrics.DeletesTotal.WithLabelValues("rolled_back").Inc()
		}
		return DeleteResult{}, fmt.Errorf("%w: deleting organization %s: %v", domain.ErrInternal, orgID, err)
	}

	l.logger.InfoContext(ctx, "organization deleted",
		slog.String("organization_id", orgID.String()),
		slog.String("name", org.Name),
		slog.Int("roles_deleted", len(roles)),
	)
	if l.metrics != nil {
		l.metrics.DeletesTotal.WithLabelValues("committed").Inc()
		l.metrics.RolesDeleted.Add(float64(len(roles)))
	}
	return DeleteResult{OrganizationDeleted: true, RolesDeleted: len(roles)}, nil
}

// CreateOrganization creates an organization and grants the creating
// principal the Owner role, in one transaction.
func (l *Lifecycle) CreateOrganization(ctx context.Context, name string, principalID uuid.UUID, pt domain.PrincipalType, grantor RoleGrantor, actx audit.Context) (*domain.Organization, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: organization name is required", domain.ErrValidation)
	}
	org := &domain.Organization{ID: uuid.New(), Name: name}
	err := l.tx.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := l.orgs.Create(ctx, tx, org, actx); err != nil {
			return err
		}
		role := &domain.Role{
			ID:             uuid.New(),
			Type:           domain.RoleTypeOrganization,
			PrincipalID:    principalID,
			PrincipalType:  pt,
			OrganizationID: &org.ID,
			Role:           domain.RoleOwner,
		}
		return grantor.Grant(ctx, tx, role, actx)
	})
	if err != nil {
		return nil, fmt.Errorf("creating organization %q: %w", name, err)
	}
	return org, nil
}

// RoleGrantor inserts role-assignment records; the concrete role repository
// satisfies it.
type RoleGrantor interface {
	Grant(ctx context.Context, tx *gorm.DB, role *domain.Role, actx audit.Context) error
}
