package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jkaninda/okapi"

	"github.com/quillhq/quill/internal/auth"
	"github.com/quillhq/quill/internal/domain"
)

const (
	ctxPrincipalID   = "principalID"
	ctxPrincipalType = "principalType"
	ctxCorrelationID = "correlationID"
)

// authenticate resolves the caller to a principal. Accounts present a JWT
// bearer token; API keys present the raw secret in X-API-Key. The resolved
// principal id and type are stored on the request context for handlers.
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		c.Set(ctxCorrelationID, newCorrelationID())

		if rawKey := c.Header("X-API-Key"); rawKey != "" {
			return g.authenticateAPIKey(c, next, rawKey)
		}

		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing credentials")
		}
		return g.authenticateJWT(c, next, strings.TrimPrefix(authHeader, "Bearer "))
	}
}

func (g *Gateway) authenticateJWT(c *okapi.Context, next okapi.HandlerFunc, token string) error {
	if g.accounts == nil || g.config.JWTSecret == "" {
		return c.AbortUnauthorized("bearer authentication not configured")
	}

	ident, err := g.verifyToken(token)
	if err != nil {
		g.logger.Warn("jwt rejected",
			slog.String("correlation_id", c.GetString(ctxCorrelationID)),
			slog.String("error", err.Error()),
		)
		return c.AbortUnauthorized("invalid token")
	}

	account, err := g.accounts.ResolveAccount(c.Context(), *ident)
	if err != nil {
		g.logger.Error("account resolution failed",
			slog.String("correlation_id", c.GetString(ctxCorrelationID)),
			slog.String("provider", ident.Provider),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("authentication failed")
	}

	if g.limiter != nil {
		if err := g.limiter.Allow(account.ID.String()); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	c.Set(ctxPrincipalID, account.ID.String())
	c.Set(ctxPrincipalType, string(domain.PrincipalAccount))
	return next(c)
}

func (g *Gateway) authenticateAPIKey(c *okapi.Context, next okapi.HandlerFunc, rawKey string) error {
	if g.keys == nil {
		return c.AbortUnauthorized("api key authentication not configured")
	}

	sum := sha256.Sum256([]byte(rawKey))
	key, err := g.keys.GetBySecretHash(c.Context(), hex.EncodeToString(sum[:]))
	if err != nil {
		g.logger.Warn("api key rejected",
			slog.String("correlation_id", c.GetString(ctxCorrelationID)),
		)
		return c.AbortUnauthorized("invalid API key")
	}
	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		return c.AbortUnauthorized("API key expired")
	}

	// Bookkeeping, not auditing. A failed touch never blocks the request.
	if err := g.keys.TouchLastUsed(c.Context(), key.ID, time.Now().UTC()); err != nil {
		g.logger.Warn("touching api key last_used failed", slog.String("error", err.Error()))
	}

	if g.limiter != nil {
		if err := g.limiter.Allow(key.ID.String()); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	c.Set(ctxPrincipalID, key.ID.String())
	c.Set(ctxPrincipalType, string(domain.PrincipalAPIKey))
	return next(c)
}

// verifyToken validates the bearer token signature and claims and extracts
// the external identity.
func (g *Gateway) verifyToken(raw string) (*auth.ExternalIdentity, error) {
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(g.config.JWTSecret), nil
	},
		jwt.WithIssuer(g.config.JWTIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type %T", parsed.Claims)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	ident := &auth.ExternalIdentity{
		Provider: g.config.Provider,
		Subject:  sub,
	}
	if email, ok := claims["email"].(string); ok {
		ident.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		ident.Name = name
	}
	return ident, nil
}

// principalFrom rebuilds the caller's principal from the values the
// authenticate middleware stored on the context.
func principalFrom(c *okapi.Context) (auth.Principal, error) {
	id, err := uuid.Parse(c.GetString(ctxPrincipalID))
	if err != nil {
		return auth.Principal{}, fmt.Errorf("no authenticated principal on request")
	}
	if c.GetString(ctxPrincipalType) == string(domain.PrincipalAPIKey) {
		return auth.APIKeyPrincipal(&domain.APIKey{ID: id}), nil
	}
	return auth.AccountPrincipal(&domain.Account{ID: id}), nil
}
