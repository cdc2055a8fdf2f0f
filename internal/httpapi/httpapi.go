// Package httpapi implements the HTTP API gateway for Quill.
//
// Security:
//   - Principal authentication on every /v1 request (JWT bearer for
//     accounts, X-API-Key for service keys)
//   - Per-principal rate limiting via token bucket
//   - Tiered denial responses: non-members receive 404, members without
//     sufficient role receive 403
//   - All requests logged with correlation IDs
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/okapi"

	"github.com/quillhq/quill/internal/audit"
	"github.com/quillhq/quill/internal/auth"
	"github.com/quillhq/quill/internal/content"
	"github.com/quillhq/quill/internal/domain"
	"github.com/quillhq/quill/internal/observability"
	"github.com/quillhq/quill/internal/organization"
	"github.com/quillhq/quill/internal/ratelimit"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr string // e.g., ":8080"
	EnableDocs bool

	// JWT bearer authentication for account principals.
	JWTSecret string
	JWTIssuer string
	Provider  string // Identity provider label stamped on provisioned accounts.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// AccountResolver turns a verified external identity into an account,
// provisioning on first sight.
type AccountResolver interface {
	ResolveAccount(ctx context.Context, ident auth.ExternalIdentity) (*domain.Account, error)
}

// KeyStore authenticates API key principals by secret hash.
type KeyStore interface {
	GetBySecretHash(ctx context.Context, hash string) (*domain.APIKey, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}

// AuditReader queries the immutable audit trail.
type AuditReader interface {
	ListForEntity(ctx context.Context, entityID uuid.UUID) ([]audit.Record, error)
	Query(ctx context.Context, entityType string, limit int) ([]audit.Record, error)
}

// SecurityAuditReader queries the security event stream.
type SecurityAuditReader interface {
	Query(ctx context.Context, principalID *uuid.UUID, limit int) ([]audit.SecurityEvent, error)
}

// GlobalAdminChecker gates the audit endpoints to global administrators.
type GlobalAdminChecker interface {
	IsGlobalAdmin(ctx context.Context, principalID uuid.UUID, pt domain.PrincipalType) (bool, error)
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	config  Config
	orgs    *organization.Manager
	entries *content.Manager
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	server  *http.Server

	accounts AccountResolver // nil = JWT auth disabled.
	keys     KeyStore        // nil = API key auth disabled.

	audits        AuditReader         // nil = audit endpoints disabled.
	security      SecurityAuditReader
	adminCheck    GlobalAdminChecker

	okapi *okapi.Okapi
	group *okapi.Group
}

// NewGateway creates an HTTP API gateway.
func NewGateway(cfg Config, orgs *organization.Manager, entries *content.Manager, rl *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	return &Gateway{
		config:  cfg,
		orgs:    orgs,
		entries: entries,
		limiter: rl,
		logger:  logger,
		okapi:   okapi.New(okapi.WithMaxMultipartMemory(defaultMaxRequestSize)),
	}
}

// WithAccountAuth enables JWT bearer authentication backed by the resolver.
func (g *Gateway) WithAccountAuth(r AccountResolver) *Gateway {
	g.accounts = r
	return g
}

// WithAPIKeyAuth enables X-API-Key authentication backed by the key store.
func (g *Gateway) WithAPIKeyAuth(ks KeyStore) *Gateway {
	g.keys = ks
	return g
}

// WithAuditLog mounts the audit trail endpoints, restricted to global admins.
func (g *Gateway) WithAuditLog(ar AuditReader, sr SecurityAuditReader, ac GlobalAdminChecker) *Gateway {
	g.audits = ar
	g.security = sr
	g.adminCheck = ac
	return g
}

// WithOpenAPIDocs enables the generated OpenAPI documentation endpoint.
func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "Quill",
			Version: "v0.1.0",
		},
	)
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	middlewares := []okapi.Middleware{}
	if g.config.Metrics != nil || g.config.Tracer != nil {
		middlewares = append(middlewares, observability.MetricsMiddleware(g.config.Metrics, g.config.Tracer))
	}
	middlewares = append(middlewares, g.authenticate)

	g.group = g.okapi.Group("/v1", middlewares...)

	// Organization endpoints.
	g.group.Get("/organizations", g.handleOrgList,
		okapi.DocSummary("List organizations visible to the caller"),
		okapi.DocTags("Organizations"),
		okapi.DocResponse([]OrganizationResponse{}),
	)
	g.group.Post("/organizations", g.handleOrgCreate,
		okapi.DocSummary("Create an organization"),
		okapi.DocTags("Organizations"),
		okapi.DocRequestBody(OrganizationRequest{}),
		okapi.DocResponse(http.StatusCreated, OrganizationResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
	)
	g.group.Get("/organizations/{id}", g.handleOrgGet,
		okapi.DocSummary("Get an organization by ID"),
		okapi.DocTags("Organizations"),
		okapi.DocPathParam("id", "string", "Organization ID (UUID)"),
		okapi.DocResponse(OrganizationResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Put("/organizations/{id}", g.handleOrgUpdate,
		okapi.DocSummary("Rename an organization"),
		okapi.DocTags("Organizations"),
		okapi.DocPathParam("id", "string", "Organization ID (UUID)"),
		okapi.DocRequestBody(OrganizationRequest{}),
		okapi.DocResponse(OrganizationResponse{}),
		okapi.DocResponse(http.StatusForbidden, ErrorBody{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Delete("/organizations/{id}", g.handleOrgDelete,
		okapi.DocSummary("Delete an organization and its dependent records"),
		okapi.DocTags("Organizations"),
		okapi.DocPathParam("id", "string", "Organization ID (UUID)"),
		okapi.DocResponse(OrgDeleteResponse{}),
		okapi.DocResponse(http.StatusForbidden, ErrorBody{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	// Role grant endpoints.
	g.group.Post("/organizations/{id}/roles", g.handleRoleGrant,
		okapi.DocSummary("Grant a role in an organization"),
		okapi.DocTags("Roles"),
		okapi.DocPathParam("id", "string", "Organization ID (UUID)"),
		okapi.DocRequestBody(RoleGrantRequest{}),
		okapi.DocResponse(http.StatusCreated, RoleResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusForbidden, ErrorBody{}),
	)
	g.group.Delete("/organizations/{id}/roles/{roleID}", g.handleRoleRevoke,
		okapi.DocSummary("Revoke a role assignment"),
		okapi.DocTags("Roles"),
		okapi.DocPathParam("id", "string", "Organization ID (UUID)"),
		okapi.DocPathParam("roleID", "string", "Role assignment ID (UUID)"),
		okapi.DocResponse(map[string]string{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	// Entry endpoints.
	g.group.Get("/organizations/{id}/entries", g.handleEntryList,
		okapi.DocSummary("List entries in an organization"),
		okapi.DocTags("Entries"),
		okapi.DocPathParam("id", "string", "Organization ID (UUID)"),
		okapi.DocResponse([]EntryResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Post("/organizations/{id}/entries", g.handleEntryCreate,
		okapi.DocSummary("Create a content entry"),
		okapi.DocTags("Entries"),
		okapi.DocPathParam("id", "string", "Organization ID (UUID)"),
		okapi.DocRequestBody(EntryRequest{}),
		okapi.DocResponse(http.StatusCreated, EntryResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusForbidden, ErrorBody{}),
	)
	g.group.Get("/organizations/{id}/entries/{slug}", g.handleEntryGet,
		okapi.DocSummary("Get an entry by slug"),
		okapi.DocTags("Entries"),
		okapi.DocPathParam("id", "string", "Organization ID (UUID)"),
		okapi.DocPathParam("slug", "string", "Entry slug"),
		okapi.DocResponse(EntryResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Put("/organizations/{id}/entries/{entryID}", g.handleEntryUpdate,
		okapi.DocSummary("Update a content entry"),
		okapi.DocTags("Entries"),
		okapi.DocPathParam("id", "string", "Organization ID (UUID)"),
		okapi.DocPathParam("entryID", "string", "Entry ID (UUID)"),
		okapi.DocRequestBody(EntryRequest{}),
		okapi.DocResponse(EntryResponse{}),
		okapi.DocResponse(http.StatusForbidden, ErrorBody{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Delete("/organizations/{id}/entries/{entryID}", g.handleEntryDelete,
		okapi.DocSummary("Delete a content entry"),
		okapi.DocTags("Entries"),
		okapi.DocPathParam("id", "string", "Organization ID (UUID)"),
		okapi.DocPathParam("entryID", "string", "Entry ID (UUID)"),
		okapi.DocResponse(map[string]string{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	// Audit endpoints (global admin only).
	if g.audits != nil {
		g.group.Get("/audit", g.handleAuditQuery,
			okapi.DocSummary("Query the audit trail by entity type"),
			okapi.DocTags("Audit"),
			okapi.DocResponse([]AuditRecordResponse{}),
			okapi.DocResponse(http.StatusForbidden, ErrorBody{}),
		)
		g.group.Get("/audit/entity/{entityID}", g.handleAuditEntity,
			okapi.DocSummary("List audit records for one entity"),
			okapi.DocTags("Audit"),
			okapi.DocPathParam("entityID", "string", "Entity ID (UUID)"),
			okapi.DocResponse([]AuditRecordResponse{}),
			okapi.DocResponse(http.StatusForbidden, ErrorBody{}),
		)
		g.group.Get("/audit/security", g.handleSecurityAuditQuery,
			okapi.DocSummary("Query the security event stream"),
			okapi.DocTags("Audit"),
			okapi.DocResponse([]SecurityEventResponse{}),
			okapi.DocResponse(http.StatusForbidden, ErrorBody{}),
		)
	}

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting", slog.String("addr", g.config.ListenAddr))
	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// HealthResponse is the JSON response for the health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
