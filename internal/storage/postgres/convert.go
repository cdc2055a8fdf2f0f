package postgres

import (
	"github.com/quillhq/quill/internal/audit"
	"github.com/quillhq/quill/internal/domain"
)

func toOrganizationDomain(m *OrganizationModel) *domain.Organization {
	return &domain.Organization{
		ID:        m.ID,
		Name:      m.Name,
		Slug:      m.Slug,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func toOrganizationModel(o *domain.Organization) OrganizationModel {
	return OrganizationModel{
		ID:        o.ID,
		Name:      o.Name,
		Slug:      o.Slug,
		CreatedAt: o.CreatedAt,
	}
}

func toAccountDomain(m *AccountModel) *domain.Account {
	return &domain.Account{
		ID:         m.ID,
		Provider:   m.Provider,
		ExternalID: m.ExternalID,
		Email:      m.Email,
		Name:       m.Name,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func toAccountModel(a *domain.Account) AccountModel {
	return AccountModel{
		ID:         a.ID,
		Provider:   a.Provider,
		ExternalID: a.ExternalID,
		Email:      a.Email,
		Name:       a.Name,
		CreatedAt:  a.CreatedAt,
	}
}

func toAPIKeyDomain(m *APIKeyModel) *domain.APIKey {
	return &domain.APIKey{
		ID:         m.ID,
		Name:       m.Name,
		Prefix:     m.Prefix,
		SecretHash: m.SecretHash,
		CreatedAt:  m.CreatedAt,
		ExpiresAt:  m.ExpiresAt,
		LastUsedAt: m.LastUsedAt,
	}
}

func toAPIKeyModel(k *domain.APIKey) APIKeyModel {
	return APIKeyModel{
		ID:         k.ID,
		Name:       k.Name,
		Prefix:     k.Prefix,
		SecretHash: k.SecretHash,
		CreatedAt:  k.CreatedAt,
		ExpiresAt:  k.ExpiresAt,
		LastUsedAt: k.LastUsedAt,
	}
}

func toRoleDomain(m *RoleModel) domain.Role {
	return domain.Role{
		ID:             m.ID,
		Type:           domain.RoleType(m.Type),
		PrincipalID:    m.PrincipalID,
		PrincipalType:  domain.PrincipalType(m.PrincipalType),
		OrganizationID: m.OrganizationID,
		Role:           domain.RoleName(m.Role),
		CreatedAt:      m.CreatedAt,
	}
}

func toRoleModel(r *domain.Role) RoleModel {
	return RoleModel{
		ID:             r.ID,
		Type:           string(r.Type),
		PrincipalID:    r.PrincipalID,
		PrincipalType:  string(r.PrincipalType),
		OrganizationID: r.OrganizationID,
		Role:           string(r.Role),
		CreatedAt:      r.CreatedAt,
	}
}

func toEntryDomain(m *EntryModel) *domain.Entry {
	return &domain.Entry{
		ID:             m.ID,
		OrganizationID: m.OrganizationID,
		Slug:           m.Slug,
		Title:          m.Title,
		Body:           m.Body,
		Status:         domain.EntryStatus(m.Status),
		CreatedBy:      m.CreatedBy,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func toEntryModel(e *domain.Entry) EntryModel {
	return EntryModel{
		ID:             e.ID,
		OrganizationID: e.OrganizationID,
		Slug:           e.Slug,
		Title:          e.Title,
		Body:           e.Body,
		Status:         string(e.Status),
		CreatedBy:      e.CreatedBy,
		CreatedAt:      e.CreatedAt,
	}
}

func toAuditRecordDomain(m *AuditRecordModel) audit.Record {
	return audit.Record{
		ID:         m.ID,
		EntityID:   m.EntityID,
		EntityType: m.EntityType,
		Action:     audit.Action(m.Action),
		Context: audit.Context{
			PrincipalID:   m.CtxPrincipalID,
			PrincipalType: domain.PrincipalType(m.CtxPrincipalType),
			Anonymous:     m.CtxAnonymous,
			System:        m.CtxSystem,
			Source:        m.CtxSource,
			Message:       m.CtxMessage,
		},
		CreatedAt: m.CreatedAt,
	}
}

func toSecurityEventDomain(m *SecurityEventModel) audit.SecurityEvent {
	return audit.SecurityEvent{
		EventType:     audit.EventType(m.EventType),
		PrincipalID:   m.PrincipalID,
		PrincipalType: domain.PrincipalType(m.PrincipalType),
		Message:       m.Message,
		Source:        m.Source,
		CreatedAt:     m.CreatedAt,
	}
}
