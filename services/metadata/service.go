// Package metadata maintains the locally curated catalog of warehouse
// objects and their fields. Writes merge into existing rows: a description
// is replaced only when the caller sent one, and fields are never removed.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/upb/sqlpilot/models"
	"github.com/upb/sqlpilot/repositories"
	"github.com/upb/sqlpilot/services"
	"go.uber.org/zap"
)

// MaxNameLength bounds object and field names, in characters
const MaxNameLength = 255

// Service is the schema metadata store
type Service struct {
	connections repositories.ConnectionRepository
	metadata    repositories.MetadataRepository
	txManager   repositories.TransactionManager
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a metadata store
func NewService(
	connections repositories.ConnectionRepository,
	metadata repositories.MetadataRepository,
	txManager repositories.TransactionManager,
	logger *zap.Logger,
) *Service {
	return &Service{
		connections: connections,
		metadata:    metadata,
		txManager:   txManager,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// UpsertObjectMetadata merges one object and its fields into the catalog
// and returns the object id. Either every row is written or none is.
func (s *Service) UpsertObjectMetadata(ctx context.Context, req models.ObjectUpsert) (uuid.UUID, error) {
	name := strings.TrimSpace(req.ObjectName)
	if name == "" {
		return uuid.Nil, services.ErrMissingObjectName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return uuid.Nil, services.Validation(fmt.Sprintf("object_name must be at most %d characters", MaxNameLength))
	}
	for i, f := range req.Fields {
		field := strings.TrimSpace(f.Name)
		if field == "" {
			return uuid.Nil, services.ErrMissingFieldName.Wrap(fmt.Errorf("field %d has no field_name", i))
		}
		if utf8.RuneCountInString(field) > MaxNameLength {
			return uuid.Nil, services.Validation(fmt.Sprintf("field %d: field_name must be at most %d characters", i, MaxNameLength))
		}
	}

	now := s.now()
	objectID, err := services.WithTransactionResult(ctx, s.txManager, func(ctx context.Context) (uuid.UUID, error) {
		if _, err := s.connections.GetForUser(ctx, req.UserID, req.ConnectionID); err != nil {
			return uuid.Nil, err
		}

		objectID, err := s.metadata.UpsertObject(ctx, req.UserID, req.ConnectionID, name,
			req.Description.Value, req.Description.Set, now)
		if err != nil {
			return uuid.Nil, err
		}

		for _, f := range req.Fields {
			if _, err := s.metadata.UpsertField(ctx, objectID, strings.TrimSpace(f.Name),
				f.Description.Value, f.Description.Set); err != nil {
				return uuid.Nil, err
			}
		}
		return objectID, nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return uuid.Nil, services.ErrNotFoundOrForbidden.Wrap(err)
		}
		return uuid.Nil, services.WrapInternal("failed to upsert object metadata", err)
	}

	s.logger.Info("object metadata upserted",
		zap.String("user_id", req.UserID.String()),
		zap.String("connection_id", req.ConnectionID.String()),
		zap.String("object_name", name),
		zap.Int("fields", len(req.Fields)),
	)
	return objectID, nil
}

// ListObjectsWithFields returns the user's whole catalog
func (s *Service) ListObjectsWithFields(ctx context.Context, userID uuid.UUID) ([]*models.ObjectWithFields, error) {
	objects, err := s.metadata.ListByUser(ctx, userID)
	if err != nil {
		return nil, services.WrapInternal("failed to list objects", err)
	}
	return objects, nil
}
