// Package auth implements login, the session ledger and the bearer-token
// guard. A token is honoured only while its signature and exp claim are
// valid AND its ledger row exists with expires_at in the future.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	tokens "github.com/upb/sqlpilot/internal/auth"
	"github.com/upb/sqlpilot/models"
	"github.com/upb/sqlpilot/repositories"
	"github.com/upb/sqlpilot/services"
	"go.uber.org/zap"
)

// TokenIssuer mints and verifies signed bearer tokens
type TokenIssuer interface {
	Mint(userID uuid.UUID, now time.Time) (string, time.Time, error)
	Verify(token string, now time.Time) (*tokens.Claims, error)
}

// CredentialVerifier checks an email/password pair
type CredentialVerifier interface {
	Verify(ctx context.Context, email, password string) (*models.User, bool, error)
}

// LoginResult is returned by a successful login
type LoginResult struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Service is the auth gateway
type Service struct {
	credentials CredentialVerifier
	tokens      TokenIssuer
	sessions    repositories.SessionRepository
	users       repositories.UserRepository
	ttl         time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an auth gateway. ttl is the ledger lifetime of new sessions.
func NewService(
	credentials CredentialVerifier,
	issuer TokenIssuer,
	sessions repositories.SessionRepository,
	users repositories.UserRepository,
	ttl time.Duration,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		credentials: credentials,
		tokens:      issuer,
		sessions:    sessions,
		users:       users,
		ttl:         ttl,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login verifies credentials, mints a token and records a new session.
// Earlier sessions of the same user stay valid.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, ok, err := s.credentials.Verify(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn("login rejected", zap.String("reason", services.ErrInvalidCredentials.Code))
		return nil, services.ErrInvalidCredentials
	}

	now := s.now()
	token, _, err := s.tokens.Mint(user.ID, now)
	if err != nil {
		return nil, services.WrapInternal("failed to mint token", err)
	}

	session := models.NewSession(user.ID, token, now, s.ttl)
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, services.WrapInternal("failed to record session", err)
	}

	s.logger.Info("user logged in",
		zap.String("user_id", user.ID.String()),
		zap.String("session_id", session.ID.String()),
	)

	return &LoginResult{
		Token:     token,
		TokenType: "bearer",
		ExpiresAt: session.ExpiresAt,
		User:      user,
	}, nil
}

// Authenticate resolves a bearer token to a principal. Checks run in
// order: token signature and claims, ledger row presence, ledger expiry,
// user existence. It never writes to the ledger.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.Principal, error) {
	now := s.now()

	claims, err := s.tokens.Verify(token, now)
	if err != nil {
		if errors.Is(err, tokens.ErrTokenExpired) {
			return nil, s.reject(services.ErrTokenExpired, err)
		}
		return nil, s.reject(services.ErrInvalidToken, err)
	}
	subject, err := claims.UserID()
	if err != nil {
		return nil, s.reject(services.ErrInvalidToken, err)
	}

	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, s.reject(services.ErrSessionRevoked, err)
		}
		return nil, services.WrapInternal("failed to read session", err)
	}
	if session.IsExpired(now) {
		return nil, s.reject(services.ErrSessionExpired, nil)
	}
	if session.UserID != subject {
		return nil, s.reject(services.ErrInvalidToken, errors.New("token subject does not match session owner"))
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, s.reject(services.ErrPrincipalNotFound, err)
		}
		return nil, services.WrapInternal("failed to read user", err)
	}

	return &models.Principal{
		UserID:    user.ID,
		Email:     user.Email,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Logout revokes the session holding token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	n, err := s.sessions.DeleteByToken(ctx, token)
	if err != nil {
		return services.WrapInternal("failed to revoke session", err)
	}
	s.logger.Info("session revoked", zap.Int64("sessions", n))
	return nil
}

// LogoutAll revokes every session of a user
func (s *Service) LogoutAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.sessions.DeleteByUserID(ctx, userID)
	if err != nil {
		return 0, services.WrapInternal("failed to revoke sessions", err)
	}
	s.logger.Info("all sessions revoked", zap.String("user_id", userID.String()), zap.Int64("sessions", n))
	return n, nil
}

// PurgeExpired deletes ledger rows that can no longer authenticate
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, services.WrapInternal("failed to purge expired sessions", err)
	}
	return n, nil
}

// RunJanitor purges expired sessions every interval until ctx is done
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				s.logger.Error("session janitor failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("expired sessions purged", zap.Int64("sessions", n))
			}
		}
	}
}

func (s *Service) reject(sentinel *services.DomainError, cause error) error {
	s.logger.Warn("authentication rejected", zap.String("reason", sentinel.Code), zap.Error(cause))
	return sentinel.Wrap(cause)
}
