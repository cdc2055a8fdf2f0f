package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/quillhq/quill/internal/audit"
	"github.com/quillhq/quill/internal/domain"
)

// ExternalIdentity is what the identity-provider handshake hands us:
// a stable subject at a named provider, plus profile fields.
type ExternalIdentity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

// GuardHook is invoked exactly once per first-seen identity, inside the
// provisioning transaction once the insert has won the uniqueness race.
// Returning false aborts authentication with an internal error and rolls
// the account back.
type GuardHook interface {
	OnAccount(ctx context.Context, account *domain.Account) (bool, error)
}

// TxRunner opens a transaction that commits on nil return and rolls back
// on error. Satisfied by the storage drivers.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// AccountStore is the persistence contract provisioning needs.
type AccountStore interface {
	GetByExternalID(ctx context.Context, provider, externalID string) (*domain.Account, error)
	// CreateIfAbsent inserts the account unless a record with the same
	// (provider, external_id) already exists. Reports whether a row was
	// inserted; the audit record is written only on actual insert.
	CreateIfAbsent(ctx context.Context, tx *gorm.DB, a *domain.Account, actx audit.Context) (bool, error)
	// Update saves profile fields with an audit record.
	Update(ctx context.Context, tx *gorm.DB, a *domain.Account, actx audit.Context) error
}

// OrganizationCreator creates the personal organization for a new account.
type OrganizationCreator interface {
	Create(ctx context.Context, tx *gorm.DB, org *domain.Organization, actx audit.Context) error
}

// RoleGrantor inserts role-assignment records.
type RoleGrantor interface {
	Grant(ctx context.Context, tx *gorm.DB, role *domain.Role, actx audit.Context) error
}

// Provisioner turns external identities into account principals, creating
// the account, its personal organization and the Owner role grant on first
// sight.
//
// Concurrent first requests for the same identity are collapsed through a
// per-identity singleflight, and the insert itself is an upsert against the
// (provider, external_id) unique index so concurrent processes cannot
// double-create either. The guard hook runs only for the insert that won,
// so it fires once per identity no matter how many processes race.
type Provisioner struct {
	accounts AccountStore
	orgs     OrganizationCreator
	roles    RoleGrantor
	tx       TxRunner
	guard    GuardHook // nil = no guard registered.
	logger   *slog.Logger

	flight singleflight.Group
}

// NewProvisioner creates a Provisioner. guard may be nil.
func NewProvisioner(accounts AccountStore, orgs OrganizationCreator, roles RoleGrantor, tx TxRunner, guard GuardHook, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		accounts: accounts,
		orgs:     orgs,
		roles:    roles,
		tx:       tx,
		guard:    guard,
		logger:   logger,
	}
}

// ResolveAccount returns the account for the identity, provisioning it on
// first sight.
func (p *Provisioner) ResolveAccount(ctx context.Context, ident ExternalIdentity) (*domain.Account, error) {
	if ident.Provider == "" || ident.Subject == "" {
		return nil, fmt.Errorf("%w: identity requires provider and subject", domain.ErrValidation)
	}

	existing, err := p.accounts.GetByExternalID(ctx, ident.Provider, ident.Subject)
	if err == nil {
		return p.refreshProfile(ctx, existing, ident), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("looking up account %s/%s: %w", ident.Provider, ident.Subject, err)
	}

	key := ident.Provider + "/" + ident.Subject
	v, err, _ := p.flight.Do(key, func() (any, error) {
		return p.provision(ctx, ident)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Account), nil
}

func (p *Provisioner) provision(ctx context.Context, ident ExternalIdentity) (*domain.Account, error) {
	// Another request in this flight window may have won already.
	if existing, err := p.accounts.GetByExternalID(ctx, ident.Provider, ident.Subject); err == nil {
		return existing, nil
	}

	account := &domain.Account{
		ID:         uuid.New(),
		Provider:   ident.Provider,
		ExternalID: ident.Subject,
		Email:      ident.Email,
		Name:       ident.Name,
	}

	actx := audit.ByPrincipal(account.ID, domain.PrincipalAccount).WithSource("auth.provision")

	created := false
	err := p.tx.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		created, err = p.accounts.CreateIfAbsent(ctx, tx, account, actx)
		if err != nil {
			return fmt.Errorf("creating account: %w", err)
		}
		if !created {
			return nil
		}

		// The guard sees only the insert that won the uniqueness race;
		// rejection rolls the row back.
		if p.guard != nil {
			ok, err := p.guard.OnAccount(ctx, account)
			if err != nil {
				return fmt.Errorf("%w: auth guard hook: %v", domain.ErrInternal, err)
			}
			if !ok {
				return fmt.Errorf("%w: auth guard rejected identity %s/%s", domain.ErrInternal, ident.Provider, ident.Subject)
			}
		}

		org := &domain.Organization{
			ID:   uuid.New(),
			Name: personalOrgName(ident),
		}
		if err := p.orgs.Create(ctx, tx, org, actx); err != nil {
			return fmt.Errorf("creating personal organization: %w", err)
		}

		role := &domain.Role{
			ID:             uuid.New(),
			Type:           domain.RoleTypeOrganization,
			PrincipalID:    account.ID,
			PrincipalType:  domain.PrincipalAccount,
			OrganizationID: &org.ID,
			Role:           domain.RoleOwner,
		}
		if err := p.roles.Grant(ctx, tx, role, actx); err != nil {
			return fmt.Errorf("granting owner role: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !created {
		// Lost the cross-process race; the winner's row is what counts.
		return p.accounts.GetByExternalID(ctx, ident.Provider, ident.Subject)
	}

	p.logger.InfoContext(ctx, "account provisioned",
		slog.String("account_id", account.ID.String()),
		slog.String("provider", ident.Provider),
	)
	return account, nil
}

// refreshProfile carries changed identity-provider profile fields onto the
// stored account. Best effort: a failed refresh keeps the stale row and
// authentication still succeeds.
func (p *Provisioner) refreshProfile(ctx context.Context, account *domain.Account, ident ExternalIdentity) *domain.Account {
	if (ident.Email == "" || ident.Email == account.Email) &&
		(ident.Name == "" || ident.Name == account.Name) {
		return account
	}

	updated := *account
	if ident.Email != "" {
		updated.Email = ident.Email
	}
	if ident.Name != "" {
		updated.Name = ident.Name
	}
	actx := audit.ByPrincipal(account.ID, domain.PrincipalAccount).WithSource("auth.refresh")
	if err := p.accounts.Update(ctx, nil, &updated, actx); err != nil {
		p.logger.WarnContext(ctx, "profile refresh failed",
			slog.String("account_id", account.ID.String()),
			slog.String("error", err.Error()),
		)
		return account
	}
	return &updated
}

func personalOrgName(ident ExternalIdentity) string {
	if ident.Name != "" {
		return ident.Name
	}
	return ident.Subject
}
