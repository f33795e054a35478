// Package assembler builds the context document that describes a user's
// curated objects to SQL generation.
package assembler

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/sqlpilot/models"
	"github.com/upb/sqlpilot/repositories"
	"github.com/upb/sqlpilot/services"
	"go.uber.org/zap"
)

// Service assembles context documents. It never writes.
type Service struct {
	metadata repositories.MetadataRepository
	logger   *zap.Logger
}

// NewService creates a context assembler
func NewService(metadata repositories.MetadataRepository, logger *zap.Logger) *Service {
	return &Service{
		metadata: metadata,
		logger:   logger,
	}
}

// AssembleContext describes the requested objects of one connection.
//
// With names, the result has one entry per distinct name in request order,
// and names missing from the catalog come back with a nil description and
// no fields. Without names, every object of the connection is returned
// ordered by name.
func (s *Service) AssembleContext(ctx context.Context, userID, connectionID uuid.UUID, names []string) ([]models.ObjectContext, error) {
	requested := dedupe(names)

	objects, err := s.metadata.ListByConnection(ctx, userID, connectionID, requested)
	if err != nil {
		return nil, services.WrapInternal("failed to assemble context", err)
	}

	if len(requested) == 0 {
		out := make([]models.ObjectContext, 0, len(objects))
		for _, obj := range objects {
			out = append(out, toContext(obj))
		}
		return out, nil
	}

	byName := make(map[string]*models.ObjectWithFields, len(objects))
	for _, obj := range objects {
		byName[obj.Name] = obj
	}

	out := make([]models.ObjectContext, 0, len(requested))
	missing := 0
	for _, name := range requested {
		obj, ok := byName[name]
		if !ok {
			missing++
			out = append(out, models.ObjectContext{Name: name, Fields: []models.FieldContext{}})
			continue
		}
		out = append(out, toContext(obj))
	}

	if missing > 0 {
		s.logger.Debug("context requested for uncatalogued objects",
			zap.String("connection_id", connectionID.String()),
			zap.Int("missing", missing),
		)
	}
	return out, nil
}

// dedupe drops blank and repeated names keeping first occurrences
func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func toContext(obj *models.ObjectWithFields) models.ObjectContext {
	desc := obj.Description
	fields := make([]models.FieldContext, 0, len(obj.Fields))
	for _, f := range obj.Fields {
		fd := f.Description
		fields = append(fields, models.FieldContext{Name: f.Name, Description: &fd})
	}
	return models.ObjectContext{
		Name:        obj.Name,
		Description: &desc,
		Fields:      fields,
	}
}
