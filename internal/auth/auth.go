// Package auth implements principal resolution and organization-scoped
// authorization with default-deny semantics and tiered denial.
package auth

import (
	"github.com/google/uuid"

	"github.com/quillhq/quill/internal/domain"
)

// Principal is the authenticated actor behind a request: exactly one of
// Account or APIKey is set, matching Type. Identity for authorization
// purposes is the (ID(), Type) pair.
type Principal struct {
	Type    domain.PrincipalType
	Account *domain.Account
	APIKey  *domain.APIKey
}

// AccountPrincipal wraps an account as a Principal.
func AccountPrincipal(a *domain.Account) Principal {
	return Principal{Type: domain.PrincipalAccount, Account: a}
}

// APIKeyPrincipal wraps an API key as a Principal.
func APIKeyPrincipal(k *domain.APIKey) Principal {
	return Principal{Type: domain.PrincipalAPIKey, APIKey: k}
}

// ID returns the principal's entity ID, or uuid.Nil for a malformed principal.
func (p Principal) ID() uuid.UUID {
	switch p.Type {
	case domain.PrincipalAccount:
		if p.Account != nil {
			return p.Account.ID
		}
	case domain.PrincipalAPIKey:
		if p.APIKey != nil {
			return p.APIKey.ID
		}
	}
	return uuid.Nil
}

// Name returns a display name for logging.
func (p Principal) Name() string {
	switch p.Type {
	case domain.PrincipalAccount:
		if p.Account != nil {
			return p.Account.Name
		}
	case domain.PrincipalAPIKey:
		if p.APIKey != nil {
			return p.APIKey.Name
		}
	}
	return ""
}

// Role allow-lists shared by the managers. Membership means any role that
// makes the organization visible at all.
var (
	AdminRoles      = []domain.RoleName{domain.RoleOwner, domain.RoleAdmin}
	WriterRoles     = []domain.RoleName{domain.RoleOwner, domain.RoleAdmin, domain.RoleUser}
	MembershipRoles = []domain.RoleName{domain.RoleOwner, domain.RoleAdmin, domain.RoleUser, domain.RoleReader}

	AllPrincipalTypes = []domain.PrincipalType{domain.PrincipalAccount, domain.PrincipalAPIKey}
	AccountsOnly      = []domain.PrincipalType{domain.PrincipalAccount}
)
