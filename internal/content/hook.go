package content

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/quillhq/quill/internal/audit"
	"github.com/quillhq/quill/internal/domain"
)

// Hook deletes an organization's entries as part of the cascade delete.
// It implements organization.DeleteHook: the deletions run on the cascade's
// transaction handle, one audit record per entry, and any failure aborts
// the whole cascade.
type Hook struct {
	entries EntryStore
	logger  *slog.Logger
}

// NewHook creates the delete hook over the entry store.
func NewHook(entries EntryStore, logger *slog.Logger) *Hook {
	return &Hook{entries: entries, logger: logger}
}

// OnOrganizationDelete removes every entry belonging to the organization.
func (h *Hook) OnOrganizationDelete(ctx context.Context, org *domain.Organization, actx audit.Context, tx *gorm.DB) error {
	deleted, err := h.entries.DeleteAllForOrganization(ctx, tx, org.ID, actx)
	if err != nil {
		return fmt.Errorf("deleting entries for organization %s: %w", org.ID, err)
	}
	h.logger.InfoContext(ctx, "organization entries deleted",
		slog.String("organization_id", org.ID.String()),
		slog.Int64("entries_deleted", deleted),
	)
	return nil
}
