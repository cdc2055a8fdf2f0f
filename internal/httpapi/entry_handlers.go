package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jkaninda/okapi"

	"github.com/quillhq/quill/internal/domain"
)

// EntryRequest is the JSON body for creating or updating a content entry.
type EntryRequest struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Status string `json:"status,omitempty"` // "draft", "published", "archived". Ignored on create.
}

// EntryResponse is the JSON representation of a content entry.
type EntryResponse struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Slug           string    `json:"slug"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	Status         string    `json:"status"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func entryResponse(e *domain.Entry) EntryResponse {
	return EntryResponse{
		ID:             e.ID.String(),
		OrganizationID: e.OrganizationID.String(),
		Slug:           e.Slug,
		Title:          e.Title,
		Body:           e.Body,
		Status:         string(e.Status),
		CreatedBy:      e.CreatedBy.String(),
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func (g *Gateway) handleEntryList(c *okapi.Context) error {
	p, err := principalFrom(c)
	if err != nil {
		return c.AbortUnauthorized("Unauthorized")
	}
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid organization id")
	}

	entries, err := g.entries.List(c.Context(), p, orgID)
	if err != nil {
		return g.domainError(c, err)
	}

	out := make([]EntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, entryResponse(&entries[i]))
	}
	return c.OK(out)
}

func (g *Gateway) handleEntryCreate(c *okapi.Context) error {
	p, err := principalFrom(c)
	if err != nil {
		return c.AbortUnauthorized("Unauthorized")
	}
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid organization id")
	}

	var req EntryRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Title == "" {
		return c.AbortBadRequest("title is required")
	}

	entry, err := g.entries.Create(c.Context(), p, orgID, req.Title, req.Body)
	if err != nil {
		return g.domainError(c, err)
	}
	return c.JSON(http.StatusCreated, entryResponse(entry))
}

func (g *Gateway) handleEntryGet(c *okapi.Context) error {
	p, err := principalFrom(c)
	if err != nil {
		return c.AbortUnauthorized("Unauthorized")
	}
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid organization id")
	}
	slug := c.Param("slug")
	if slug == "" {
		return c.AbortBadRequest("slug is required")
	}

	entry, err := g.entries.Get(c.Context(), p, orgID, slug)
	if err != nil {
		return g.domainError(c, err)
	}
	return c.OK(entryResponse(entry))
}

func (g *Gateway) handleEntryUpdate(c *okapi.Context) error {
	p, err := principalFrom(c)
	if err != nil {
		return c.AbortUnauthorized("Unauthorized")
	}
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid organization id")
	}
	entryID, err := uuid.Parse(c.Param("entryID"))
	if err != nil {
		return c.AbortBadRequest("invalid entry id")
	}

	var req EntryRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	status := domain.EntryStatus(req.Status)
	switch status {
	case "", domain.EntryDraft, domain.EntryPublished, domain.EntryArchived:
	default:
		return c.AbortBadRequest("unknown status")
	}

	entry, err := g.entries.Update(c.Context(), p, orgID, entryID, req.Title, req.Body, status)
	if err != nil {
		return g.domainError(c, err)
	}
	return c.OK(entryResponse(entry))
}

func (g *Gateway) handleEntryDelete(c *okapi.Context) error {
	p, err := principalFrom(c)
	if err != nil {
		return c.AbortUnauthorized("Unauthorized")
	}
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid organization id")
	}
	entryID, err := uuid.Parse(c.Param("entryID"))
	if err != nil {
		return c.AbortBadRequest("invalid entry id")
	}

	if err := g.entries.Delete(c.Context(), p, orgID, entryID); err != nil {
		return g.domainError(c, err)
	}
	return c.OK(okapi.M{"status": "deleted"})
}
