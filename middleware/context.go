package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/upb/sqlpilot/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// PrincipalKey is the context key for the authenticated principal
	PrincipalKey contextKey = "principal"

	// TokenKey is the context key for the verbatim bearer token
	TokenKey contextKey = "bearer_token"
)

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// GetPrincipalFromContext retrieves the authenticated principal from context
func GetPrincipalFromContext(ctx context.Context) *models.Principal {
	if val := ctx.Value(PrincipalKey); val != nil {
		if p, ok := val.(*models.Principal); ok {
			return p
		}
	}
	return nil
}

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// GetUserIDFromContext returns the principal's user ID, or uuid.Nil
func GetUserIDFromContext(ctx context.Context) uuid.UUID {
	if p := GetPrincipalFromContext(ctx); p != nil {
		return p.UserID
	}
	return uuid.Nil
}

// GetTokenFromContext retrieves the bearer token the request was authenticated with
func GetTokenFromContext(ctx context.Context) string {
	if val := ctx.Value(TokenKey); val != nil {
		if token, ok := val.(string); ok {
			return token
		}
	}
	return ""
}

// WithToken adds the bearer token to the context
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, TokenKey, token)
}
