// Package domain defines cross-cutting entity types used across the system.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// PrincipalType distinguishes the two kinds of callers the system knows about.
type PrincipalType string

const (
	PrincipalAccount PrincipalType = "account"
	PrincipalAPIKey  PrincipalType = "api_key"
)

// Organization is a tenant. It is owned by no single principal — access is
// mediated entirely through Role records.
type Organization struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Account represents a human identity provisioned from an external identity
// provider. Provider plus ExternalID is the unique external key.
type Account struct {
	ID         uuid.UUID
	Provider   string // Identity provider name (e.g. "oidc", "github").
	ExternalID string // Subject ID at the provider.
	Email      string
	Name       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// APIKey is a machine principal. The secret is never stored — only its
// SHA-256 hash. Prefix is the first characters of the key, kept for display.
type APIKey struct {
	ID         uuid.UUID
	Name       string
	Prefix     string
	SecretHash string
	CreatedAt  time.Time
	ExpiresAt  *time.Time // nil = never expires.
	LastUsedAt *time.Time
}

// RoleType scopes a role assignment.
type RoleType string

const (
	RoleTypeOrganization RoleType = "organization"
	RoleTypeGlobal       RoleType = "global"
)

// RoleName is the granted role value. Custom names beyond the predefined
// set are stored as opaque strings; allow-lists are supplied by callers,
// so custom roles participate without any registry.
type RoleName string

const (
	RoleOwner     RoleName = "owner"
	RoleAdmin     RoleName = "admin"
	RoleUser      RoleName = "user"
	RoleReader    RoleName = "reader"
	RoleAnonymous RoleName = "anonymous"
)

// Role is a persisted grant of a role value to a principal, either globally
// or scoped to one organization.
//
// Invariant: Type == RoleTypeOrganization requires OrganizationID non-nil;
// Type == RoleTypeGlobal requires it nil. Multiple Role records may exist
// for the same (principal, organization) pair as long as their Role values
// differ — consumers must treat the set as a whole.
//
// A role change is never an in-place update: it is a delete followed by an
// insert, each independently audited.
type Role struct {
	ID             uuid.UUID
	Type           RoleType
	PrincipalID    uuid.UUID
	PrincipalType  PrincipalType
	OrganizationID *uuid.UUID
	Role           RoleName
	CreatedAt      time.Time
}

// Validate checks the role-type/organization-id pairing invariant.
func (r Role) Validate() error {
	switch r.Type {
	case RoleTypeOrganization:
		if r.OrganizationID == nil {
			return ErrValidation
		}
	case RoleTypeGlobal:
		if r.OrganizationID != nil {
			return ErrValidation
		}
	default:
		return ErrValidation
	}
	return nil
}

// EntryStatus is the publication state of a content entry.
type EntryStatus string

const (
	EntryDraft     EntryStatus = "draft"
	EntryPublished EntryStatus = "published"
	EntryArchived  EntryStatus = "archived"
)

// Entry is a content document scoped to one organization.
type Entry struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Slug           string
	Title          string
	Body           string
	Status         EntryStatus
	CreatedBy      uuid.UUID // Principal ID of the creator.
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
