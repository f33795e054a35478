package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/upb/sqlpilot/models"
	"github.com/upb/sqlpilot/services"
	"github.com/upb/sqlpilot/utils"
	"go.uber.org/zap"
)

// Authenticator resolves a bearer token to a principal
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Principal, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	authenticator Authenticator
	logger        *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(authenticator Authenticator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: authenticator,
		logger:        logger,
	}
}

// RequireAuth rejects requests without a valid bearer token. Every
// authentication failure gets the same response body.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := extractBearerToken(r)
		if token == "" {
			m.logger.Debug("missing bearer token", zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "unauthorized")
			return
		}

		principal, err := m.authenticator.Authenticate(ctx, token)
		if err != nil {
			if !services.IsUnauthorizedError(err) {
				m.logger.Error("authentication error",
					zap.String("request_id", requestID),
					zap.Error(err))
				_ = utils.WriteInternalServerError(w, "An internal error occurred")
				return
			}
			m.logger.Debug("authentication rejected",
				zap.String("request_id", requestID),
				zap.String("code", services.GetErrorCode(err)))
			_ = utils.WriteUnauthorized(w, "unauthorized")
			return
		}

		ctx = WithPrincipal(ctx, principal)
		ctx = WithToken(ctx, token)

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("user_id", principal.UserID.String()))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
