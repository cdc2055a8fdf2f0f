package postgres

import (
	"time"

	"github.com/google/uuid"
)

// OrganizationModel maps to the "organizations" table.
type OrganizationModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"not null"`
	Slug      string    `gorm:"not null;uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (OrganizationModel) TableName() string { return "organizations" }

// AccountModel maps to the "accounts" table. The (provider, external_id)
// unique index backs the provisioning upsert.
type AccountModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Provider   string    `gorm:"not null;uniqueIndex:idx_accounts_identity"`
	ExternalID string    `gorm:"not null;uniqueIndex:idx_accounts_identity"`
	Email      string
	Name       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (AccountModel) TableName() string { return "accounts" }

// APIKeyModel maps to the "api_keys" table. Only the SHA-256 hash of the
// secret is stored.
type APIKeyModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name       string    `gorm:"not null"`
	Prefix     string    `gorm:"not null;index"`
	SecretHash string    `gorm:"not null;uniqueIndex"`
	CreatedAt  time.Time
	ExpiresAt  *time.Time `gorm:"index"`
	LastUsedAt *time.Time
}

func (APIKeyModel) TableName() string { return "api_keys" }

// RoleModel maps to the "roles" table. OrganizationID is NULL exactly when
// Type is "global".
type RoleModel struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Type           string     `gorm:"not null;index"`
	PrincipalID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_roles_principal"`
	PrincipalType  string     `gorm:"not null;index:idx_roles_principal"`
	OrganizationID *uuid.UUID `gorm:"type:uuid;index"`
	Role           string     `gorm:"not null"`
	CreatedAt      time.Time
}

func (RoleModel) TableName() string { return "roles" }

// EntryModel maps to the "entries" table.
type EntryModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_entries_org_slug"`
	Slug           string    `gorm:"not null;uniqueIndex:idx_entries_org_slug"`
	Title          string    `gorm:"not null"`
	Body           string
	Status         string    `gorm:"not null;default:'draft'"`
	CreatedBy      uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (EntryModel) TableName() string { return "entries" }

// AuditRecordModel maps to the "audit_records" table. Append-only.
// The audit context is flattened into columns for queryability.
type AuditRecordModel struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	EntityID         uuid.UUID `gorm:"type:uuid;not null;index"`
	EntityType       string    `gorm:"not null;index"`
	Action           string    `gorm:"not null"`
	CtxPrincipalID   *uuid.UUID `gorm:"type:uuid;column:ctx_principal_id"`
	CtxPrincipalType string     `gorm:"column:ctx_principal_type"`
	CtxAnonymous     bool       `gorm:"not null;default:false;column:ctx_anonymous"`
	CtxSystem        bool       `gorm:"not null;default:false;column:ctx_system"`
	CtxSource        string     `gorm:"column:ctx_source"`
	CtxMessage       string     `gorm:"column:ctx_message"`
	CreatedAt        time.Time  `gorm:"index"`
}

func (AuditRecordModel) TableName() string { return "audit_records" }

// SecurityEventModel maps to the "security_events" table. Append-only.
type SecurityEventModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	EventType     string    `gorm:"not null;index"`
	PrincipalID   uuid.UUID `gorm:"type:uuid;not null;index"`
	PrincipalType string    `gorm:"not null"`
	Message       string
	Source        string
	CreatedAt     time.Time `gorm:"index"`
}

func (SecurityEventModel) TableName() string { return "security_events" }
