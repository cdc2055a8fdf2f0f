package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jkaninda/okapi"

	"github.com/quillhq/quill/internal/audit"
)

// AuditRecordResponse is the JSON representation of one audit trail entry.
type AuditRecordResponse struct {
	ID            string    `json:"id"`
	EntityID      string    `json:"entity_id"`
	EntityType    string    `json:"entity_type"`
	Action        string    `json:"action"`
	PrincipalID   string    `json:"principal_id,omitempty"`
	PrincipalType string    `json:"principal_type,omitempty"`
	Anonymous     bool      `json:"anonymous,omitempty"`
	System        bool      `json:"system,omitempty"`
	Source        string    `json:"source,omitempty"`
	Message       string    `json:"message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// SecurityEventResponse is the JSON representation of one security event.
type SecurityEventResponse struct {
	EventType     string    `json:"event_type"`
	PrincipalID   string    `json:"principal_id"`
	PrincipalType string    `json:"principal_type"`
	Message       string    `json:"message,omitempty"`
	Source        string    `json:"source,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func auditRecordResponse(r *audit.Record) AuditRecordResponse {
	out := AuditRecordResponse{
		ID:         r.ID.String(),
		EntityID:   r.EntityID.String(),
		EntityType: r.EntityType,
		Action:     string(r.Action),
		Anonymous:  r.Context.Anonymous,
		System:     r.Context.System,
		Source:     r.Context.Source,
		Message:    r.Context.Message,
		CreatedAt:  r.CreatedAt,
	}
	if r.Context.PrincipalID != nil {
		out.PrincipalID = r.Context.PrincipalID.String()
		out.PrincipalType = string(r.Context.PrincipalType)
	}
	return out
}

// requireGlobalAdmin aborts with 403 unless the caller holds a global admin
// role. Audit data spans tenants, so membership alone is not enough.
func (g *Gateway) requireGlobalAdmin(c *okapi.Context) error {
	p, err := principalFrom(c)
	if err != nil {
		return c.AbortUnauthorized("Unauthorized")
	}
	ok, err := g.adminCheck.IsGlobalAdmin(c.Context(), p.ID(), p.Type)
	if err != nil {
		return g.domainError(c, err)
	}
	if !ok {
		return c.JSON(http.StatusForbidden, okapi.M{"error": "global admin role required"})
	}
	return nil
}

func (g *Gateway) handleAuditQuery(c *okapi.Context) error {
	if err := g.requireGlobalAdmin(c); err != nil {
		return err
	}

	records, err := g.audits.Query(c.Context(), c.Request().URL.Query().Get("entity_type"), queryLimit(c))
	if err != nil {
		return g.domainError(c, err)
	}

	out := make([]AuditRecordResponse, 0, len(records))
	for i := range records {
		out = append(out, auditRecordResponse(&records[i]))
	}
	return c.OK(out)
}

func (g *Gateway) handleAuditEntity(c *okapi.Context) error {
	if err := g.requireGlobalAdmin(c); err != nil {
		return err
	}
	entityID, err := uuid.Parse(c.Param("entityID"))
	if err != nil {
		return c.AbortBadRequest("invalid entity id")
	}

	records, err := g.audits.ListForEntity(c.Context(), entityID)
	if err != nil {
		return g.domainError(c, err)
	}

	out := make([]AuditRecordResponse, 0, len(records))
	for i := range records {
		out = append(out, auditRecordResponse(&records[i]))
	}
	return c.OK(out)
}

func (g *Gateway) handleSecurityAuditQuery(c *okapi.Context) error {
	if err := g.requireGlobalAdmin(c); err != nil {
		return err
	}

	var principalID *uuid.UUID
	if raw := c.Request().URL.Query().Get("principal_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.AbortBadRequest("principal_id must be a UUID")
		}
		principalID = &id
	}

	events, err := g.security.Query(c.Context(), principalID, queryLimit(c))
	if err != nil {
		return g.domainError(c, err)
	}

	out := make([]SecurityEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, SecurityEventResponse{
			EventType:     string(e.EventType),
			PrincipalID:   e.PrincipalID.String(),
			PrincipalType: string(e.PrincipalType),
			Message:       e.Message,
			Source:        e.Source,
			CreatedAt:     e.CreatedAt,
		})
	}
	return c.OK(out)
}

func queryLimit(c *okapi.Context) int {
	n, err := strconv.Atoi(c.Request().URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return 0 // store default
	}
	return n
}
