package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/upb/sqlpilot/middleware"
	"github.com/upb/sqlpilot/models"
	authsvc "github.com/upb/sqlpilot/services/auth"
	"github.com/upb/sqlpilot/utils"
	"go.uber.org/zap"
)

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LogoutAllResponse reports how many sessions were revoked
type LogoutAllResponse struct {
	Message string `json:"message"`
	Revoked int64  `json:"revoked"`
}

// AuthService defines the auth gateway operations used over HTTP
type AuthService interface {
	Login(ctx context.Context, email, password string) (*authsvc.LoginResult, error)
	Logout(ctx context.Context, token string) error
	LogoutAll(ctx context.Context, userID uuid.UUID) (int64, error)
}

// AuthHandler handles login and session revocation
type AuthHandler struct {
	auth   AuthService
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(auth AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		logger: logger,
	}
}

// HandleLogin handles POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, result); err != nil {
		h.logger.Error("failed to write login response", zap.Error(err))
	}
}

// HandleLogout handles POST /api/auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.auth.Logout(ctx, middleware.GetTokenFromContext(ctx)); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteMessage(w, http.StatusOK, "Successfully logged out.")
}

// HandleLogoutAll handles POST /api/auth/logout-all
func (h *AuthHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	n, err := h.auth.LogoutAll(ctx, middleware.GetUserIDFromContext(ctx))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, LogoutAllResponse{
		Message: "All sessions revoked.",
		Revoked: n,
	})
}

// HandleMe handles GET /api/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		_ = utils.WriteUnauthorized(w, "unauthorized")
		return
	}
	_ = utils.WriteOK(w, principalView(principal))
}

func principalView(p *models.Principal) map[string]interface{} {
	return map[string]interface{}{
		"user_id":    p.UserID,
		"email":      p.Email,
		"expires_at": p.ExpiresAt,
	}
}
