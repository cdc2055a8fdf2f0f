// Package content manages organization-scoped content entries and supplies
// the organization delete hook that removes them during a cascade.
package content

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillhq/quill/internal/audit"
	"github.com/quillhq/quill/internal/auth"
	"github.com/quillhq/quill/internal/domain"
)

// EntryStore is the persistence contract for content entries.
type EntryStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Entry, error)
	GetBySlug(ctx context.Context, orgID uuid.UUID, slug string) (*domain.Entry, error)
	ListForOrganization(ctx context.Context, orgID uuid.UUID) ([]domain.Entry, error)
	Create(ctx context.Context, tx *gorm.DB, e *domain.Entry, actx audit.Context) error
	Update(ctx context.Context, tx *gorm.DB, e *domain.Entry, actx audit.Context) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID, actx audit.Context) error
	DeleteAllForOrganization(ctx context.Context, tx *gorm.DB, orgID uuid.UUID, actx audit.Context) (int64, error)
}

// Manager gates entry operations through the authorization resolver:
// membership roles may read, writer roles may mutate. Denials follow the
// same tiered NotFound/Forbidden policy as the organization manager.
type Manager struct {
	authz   *auth.Authorizer
	entries EntryStore
	logger  *slog.Logger
}

// NewManager creates a content Manager.
func NewManager(authz *auth.Authorizer, entries EntryStore, logger *slog.Logger) *Manager {
	return &Manager{authz: authz, entries: entries, logger: logger}
}

// List returns the organization's entries for any member.
func (m *Manager) List(ctx context.Context, p auth.Principal, orgID uuid.UUID) ([]domain.Entry, error) {
	if _, err := m.authz.RequireOrganizationAccess(ctx, p, auth.MembershipRoles, auth.AllPrincipalTypes, orgID, "entry.list"); err != nil {
		return nil, err
	}
	return m.entries.ListForOrganization(ctx, orgID)
}

// Get returns one entry by slug for any member.
func (m *Manager) Get(ctx context.Context, p auth.Principal, orgID uuid.UUID, slug string) (*domain.Entry, error) {
	if _, err := m.authz.RequireOrganizationAccess(ctx, p, auth.MembershipRoles, auth.AllPrincipalTypes, orgID, "entry.get"); err != nil {
		return nil, err
	}
	return m.entries.GetBySlug(ctx, orgID, slug)
}

// Create inserts a draft entry. Requires a writer role.
func (m *Manager) Create(ctx context.Context, p auth.Principal, orgID uuid.UUID, title, body string) (*domain.Entry, error) {
	if _, err := m.authz.RequireOrganizationAccess(ctx, p, auth.WriterRoles, auth.AllPrincipalTypes, orgID, "entry.create"); err != nil {
		return nil, err
	}
	if title == "" {
		return nil, fmt.Errorf("%w: entry title is required", domain.ErrValidation)
	}

	entry := &domain.Entry{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Slug:           slugify(title),
		Title:          title,
		Body:           body,
		Status:         domain.EntryDraft,
		CreatedBy:      p.ID(),
	}
	actx := audit.ByPrincipal(p.ID(), p.Type).WithSource("entry.create")
	if err := m.entries.Create(ctx, nil, entry, actx); err != nil {
		return nil, err
	}
	return entry, nil
}

// Update saves title, body and status. Requires a writer role.
func (m *Manager) Update(ctx context.Context, p auth.Principal, orgID, entryID uuid.UUID, title, body string, status domain.EntryStatus) (*domain.Entry, error) {
	if _, err := m.authz.RequireOrganizationAccess(ctx, p, auth.WriterRoles, auth.AllPrincipalTypes, orgID, "entry.update"); err != nil {
		return nil, err
	}

	entry, err := m.entries.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.OrganizationID != orgID {
		// Cross-organization probing gets the same answer as a missing entry.
		return nil, fmt.Errorf("%w: entry %s", domain.ErrNotFound, entryID)
	}

	if title != "" {
		entry.Title = title
	}
	if body != "" {
		entry.Body = body
	}
	if status != "" {
		entry.Status = status
	}

	actx := audit.ByPrincipal(p.ID(), p.Type).WithSource("entry.update")
	if err := m.entries.Update(ctx, nil, entry, actx); err != nil {
		return nil, err
	}
	return entry, nil
}

// Delete removes one entry. Requires a writer role.
func (m *Manager) Delete(ctx context.Context, p auth.Principal, orgID, entryID uuid.UUID) error {
	if _, err := m.authz.RequireOrganizationAccess(ctx, p, auth.WriterRoles, auth.AllPrincipalTypes, orgID, "entry.delete"); err != nil {
		return err
	}

	entry, err := m.entries.Get(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.OrganizationID != orgID {
		return fmt.Errorf("%w: entry %s", domain.ErrNotFound, entryID)
	}

	actx := audit.ByPrincipal(p.ID(), p.Type).WithSource("entry.delete")
	return m.entries.Delete(ctx, nil, entryID, actx)
}

func slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_':
			return '-'
		default:
			return -1
		}
	}, s)
	return strings.Trim(s, "-")
}
