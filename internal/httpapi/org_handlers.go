package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jkaninda/okapi"

	"github.com/quillhq/quill/internal/domain"
)

// OrganizationRequest is the JSON body for creating or renaming an organization.
type OrganizationRequest struct {
	Name string `json:"name"`
}

// OrganizationResponse is the JSON representation of an organization.
type OrganizationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrgDeleteResponse reports the outcome of a cascade delete.
type OrgDeleteResponse struct {
	Deleted      bool `json:"deleted"`
	RolesDeleted int  `json:"roles_deleted"`
}

func orgResponse(o *domain.Organization) OrganizationResponse {
	return OrganizationResponse{
		ID:        o.ID.String(),
		Name:      o.Name,
		Slug:      o.Slug,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func (g *Gateway) handleOrgList(c *okapi.Context) error {
	p, err := principalFrom(c)
	if err != nil {
		return c.AbortUnauthorized("Unauthorized")
	}

	orgs, err := g.orgs.Find(c.Context(), p)
	if err != nil {
		return g.domainError(c, err)
	}

	out := make([]OrganizationResponse, 0, len(orgs))
	for i := range orgs {
		out = append(out, orgResponse(&orgs[i]))
	}
	return c.OK(out)
}

func (g *Gateway) handleOrgCreate(c *okapi.Context) error {
	p, err := principalFrom(c)
	if err != nil {
		return c.AbortUnauthorized("Unauthorized")
	}

	var req OrganizationRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("name is required")
	}
	if req.Name == "" {
		return c.AbortBadRequest("name is required")
	}

	org, err := g.orgs.Create(c.Context(), p, req.Name)
	if err != nil {
		return g.domainError(c, err)
	}
	return c.JSON(http.StatusCreated, orgResponse(org))
}

func (g *Gateway) handleOrgGet(c *okapi.Context) error {
	p, err := principalFrom(c)
	if err != nil {
		return c.AbortUnauthorized("Unauthorized")
	}
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid organization id")
	}

	org, err := g.orgs.Get(c.Context(), p, orgID)
	if err != nil {
		return g.domainError(c, err)
	}
	return c.OK(orgResponse(org))
}

func (g *Gateway) handleOrgUpdate(c *okapi.Context) error {
	p, err := principalFrom(c)
	if err != nil {
		return c.AbortUnauthorized("Unauthorized")
	}
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid organization id")
	}

	var req OrganizationRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("name is required")
	}

	org, err := g.orgs.Update(c.Context(), p, orgID, req.Name)
	if err != nil {
		return g.domainError(c, err)
	}
	return c.OK(orgResponse(org))
}

func (g *Gateway) handleOrgDelete(c *okapi.Context) error {
	p, err := principalFrom(c)
	if err != nil {
		return c.AbortUnauthorized("Unauthorized")
	}
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid organization id")
	}

	g.logger.Info("organization delete requested",
		slog.String("correlation_id", c.GetString(ctxCorrelationID)),
		slog.String("org_id", orgID.String()),
		slog.String("principal_id", p.ID().String()),
	)

	result, err := g.orgs.Delete(c.Context(), p, orgID)
	if err != nil {
		return g.domainError(c, err)
	}
	return c.OK(OrgDeleteResponse{
		Deleted:      result.OrganizationDeleted,
		RolesDeleted: result.RolesDeleted,
	})
}

// RoleGrantRequest is the JSON body for granting a role.
type RoleGrantRequest struct {
	PrincipalID   string `json:"principal_id"`
	PrincipalType string `json:"principal_type"` // "account" or "api_key"
	Role          string `json:"role"`           // e.g. "admin", "user", "reader"
}

// RoleResponse is the JSON representation of a role assignment.
type RoleResponse struct {
	ID             string    `json:"id"`
	PrincipalID    string    `json:"principal_id"`
	PrincipalType  string    `json:"principal_type"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}

func (g *Gateway) handleRoleGrant(c *okapi.Context) error {
	p, err := principalFrom(c)
	if err != nil {
		return c.AbortUnauthorized("Unauthorized")
	}
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid organization id")
	}

	var req RoleGrantRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	principalID, err := uuid.Parse(req.PrincipalID)
	if err != nil {
		return c.AbortBadRequest("principal_id must be a UUID")
	}
	pt := domain.PrincipalType(req.PrincipalType)
	if pt != domain.PrincipalAccount && pt != domain.PrincipalAPIKey {
		return c.AbortBadRequest("principal_type must be \"account\" or \"api_key\"")
	}
	if req.Role == "" {
		return c.AbortBadRequest("role is required")
	}

	role := &domain.Role{
		Type:           domain.RoleTypeOrganization,
		PrincipalID:    principalID,
		PrincipalType:  pt,
		OrganizationID: &orgID,
		Role:           domain.RoleName(req.Role),
	}
	granted, err := g.orgs.GrantRole(c.Context(), p, role)
	if err != nil {
		return g.domainError(c, err)
	}

	resp := RoleResponse{
		ID:            granted.ID.String(),
		PrincipalID:   granted.PrincipalID.String(),
		PrincipalType: string(granted.PrincipalType),
		Role:          string(granted.Role),
		CreatedAt:     granted.CreatedAt,
	}
	if granted.OrganizationID != nil {
		resp.OrganizationID = granted.OrganizationID.String()
	}
	return c.JSON(http.StatusCreated, resp)
}

func (g *Gateway) handleRoleRevoke(c *okapi.Context) error {
	p, err := principalFrom(c)
	if err != nil {
		return c.AbortUnauthorized("Unauthorized")
	}
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid organization id")
	}
	roleID, err := uuid.Parse(c.Param("roleID"))
	if err != nil {
		return c.AbortBadRequest("invalid role id")
	}

	if err := g.orgs.RevokeRole(c.Context(), p, orgID, roleID); err != nil {
		return g.domainError(c, err)
	}
	return c.OK(okapi.M{"status": "revoked"})
}

// domainError maps the error taxonomy onto HTTP statuses. Tiered denial is
// preserved: ErrNotFound hides the resource from non-members while
// ErrForbidden tells members they lack the role.
func (g *Gateway) domainError(c *okapi.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, okapi.M{"error": "not found"})
	case errors.Is(err, domain.ErrForbidden):
		return c.JSON(http.StatusForbidden, okapi.M{"error": "forbidden"})
	case errors.Is(err, domain.ErrUnauthorized):
		return c.AbortUnauthorized("Unauthorized")
	case errors.Is(err, domain.ErrValidation):
		return c.AbortBadRequest(err.Error())
	default:
		g.logger.Error("request failed",
			slog.String("correlation_id", c.GetString(ctxCorrelationID)),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("internal error")
	}
}
