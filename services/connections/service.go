// Package connections is the per-user registry of named warehouse credentials.
package connections

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/upb/sqlpilot/models"
	"github.com/upb/sqlpilot/repositories"
	"github.com/upb/sqlpilot/services"
	"go.uber.org/zap"
)

// MaxNameLength bounds connection names
const MaxNameLength = 100

// Tester checks a stored connection against the live warehouse
type Tester interface {
	TestConnection(ctx context.Context, userID, connectionID uuid.UUID) error
}

// Service is the connection registry
type Service struct {
	connections repositories.ConnectionRepository
	txManager   repositories.TransactionManager
	tester      Tester
	logger      *zap.Logger
}

// NewService creates a connection registry
func NewService(
	connections repositories.ConnectionRepository,
	txManager repositories.TransactionManager,
	tester Tester,
	logger *zap.Logger,
) *Service {
	return &Service{
		connections: connections,
		txManager:   txManager,
		tester:      tester,
		logger:      logger,
	}
}

// Register stores a new named connection for userID. The name check and
// insert share one transaction; a unique violation from a concurrent
// insert is reported the same way as a name found by the check.
func (s *Service) Register(ctx context.Context, userID uuid.UUID, name string, payload json.RawMessage) (uuid.UUID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return uuid.Nil, services.Validation("connection_name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return uuid.Nil, services.Validation("connection_name must be at most 100 characters")
	}
	if err := validatePayload(payload); err != nil {
		return uuid.Nil, err
	}

	conn := models.NewConnection(userID, name, payload)
	err := services.WithTransaction(ctx, s.txManager, func(ctx context.Context) error {
		exists, err := s.connections.ExistsByName(ctx, userID, name)
		if err != nil {
			return err
		}
		if exists {
			return services.ErrNameConflict
		}
		return s.connections.Create(ctx, conn)
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNameConflict), errors.Is(err, repositories.ErrDuplicate):
			s.logger.Info("connection name conflict", zap.String("user_id", userID.String()), zap.String("name", name))
			return uuid.Nil, services.ErrNameConflict.Wrap(err)
		default:
			return uuid.Nil, services.WrapInternal("failed to register connection", err)
		}
	}

	s.logger.Info("connection registered",
		zap.String("user_id", userID.String()),
		zap.String("connection_id", conn.ID.String()),
	)
	return conn.ID, nil
}

// Delete removes a connection owned by userID together with its catalog.
// A connection of another user is reported exactly like a missing one.
func (s *Service) Delete(ctx context.Context, userID, connectionID uuid.UUID) error {
	if err := s.connections.DeleteForUser(ctx, userID, connectionID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrNotFoundOrForbidden.Wrap(err)
		}
		return services.WrapInternal("failed to delete connection", err)
	}

	s.logger.Info("connection deleted",
		zap.String("user_id", userID.String()),
		zap.String("connection_id", connectionID.String()),
	)
	return nil
}

// Get returns a connection owned by userID
func (s *Service) Get(ctx context.Context, userID, connectionID uuid.UUID) (*models.Connection, error) {
	conn, err := s.connections.GetForUser(ctx, userID, connectionID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrNotFoundOrForbidden.Wrap(err)
		}
		return nil, services.WrapInternal("failed to get connection", err)
	}
	return conn, nil
}

// List returns the user's connections ordered by name
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]*models.Connection, error) {
	conns, err := s.connections.ListByUser(ctx, userID)
	if err != nil {
		return nil, services.WrapInternal("failed to list connections", err)
	}
	return conns, nil
}

// Test checks that the stored credentials reach the warehouse
func (s *Service) Test(ctx context.Context, userID, connectionID uuid.UUID) error {
	return s.tester.TestConnection(ctx, userID, connectionID)
}

// validatePayload accepts a non-empty JSON object
func validatePayload(payload json.RawMessage) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return services.ErrInvalidCredentialPayload.Wrap(errors.New("gcp_key_json must be a JSON object"))
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return services.ErrInvalidCredentialPayload.Wrap(err)
	}
	if len(obj) == 0 {
		return services.ErrInvalidCredentialPayload.Wrap(errors.New("gcp_key_json is empty"))
	}
	return nil
}
