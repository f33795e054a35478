package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/upb/sqlpilot/models"
	"github.com/upb/sqlpilot/repositories"
	"github.com/upb/sqlpilot/services"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the work factor used for stored password hashes
const DefaultBcryptCost = 12

// CredentialStore verifies email/password pairs against bcrypt hashes
type CredentialStore struct {
	users  repositories.UserRepository
	cost   int
	logger *zap.Logger

	// dummyHash keeps the unknown-email path as slow as a real compare
	dummyHash []byte
}

// NewCredentialStore creates a credential store
func NewCredentialStore(users repositories.UserRepository, cost int, logger *zap.Logger) *CredentialStore {
	if cost < bcrypt.MinCost {
		cost = DefaultBcryptCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("sqlpilot-dummy-password"), cost)
	return &CredentialStore{
		users:     users,
		cost:      cost,
		logger:    logger,
		dummyHash: dummy,
	}
}

// Verify returns the user when the password matches. Unknown emails and
// wrong passwords both return ok=false.
func (s *CredentialStore) Verify(ctx context.Context, email, password string) (*models.User, bool, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, false, nil
		}
		return nil, false, services.WrapInternal("failed to look up user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, false, nil
	}
	return user, true, nil
}

// CreateUser hashes the password and inserts a new user. Used only by
// out-of-band provisioning.
func (s *CredentialStore) CreateUser(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, services.Validation("email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.NewUser(email, string(hash))
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, services.ErrDuplicateEmail.Wrap(err)
		}
		return nil, services.WrapInternal("failed to create user", err)
	}

	s.logger.Info("user created", zap.String("user_id", user.ID.String()), zap.String("email", email))
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
