package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/upb/sqlpilot/models"
	"github.com/upb/sqlpilot/repositories"
	"go.uber.org/zap"
)

// MetadataRepository implements the repositories.MetadataRepository interface
type MetadataRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewMetadataRepository creates a new metadata repository
func NewMetadataRepository(db *DB, logger *zap.Logger) repositories.MetadataRepository {
	return &MetadataRepository{
		db:     db,
		logger: logger,
	}
}

const upsertObjectQuery = `
	INSERT INTO objects (id, user_id, connection_id, object_name, description, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $6)
	ON CONFLICT (user_id, connection_id, object_name) DO UPDATE SET
		description = CASE WHEN $7::boolean THEN EXCLUDED.description ELSE objects.description END,
		updated_at = EXCLUDED.updated_at
	RETURNING id
`

const upsertFieldQuery = `
	INSERT INTO fields (id, object_id, field_name, description)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (object_id, field_name) DO UPDATE SET
		description = CASE WHEN $5::boolean THEN EXCLUDED.description ELSE fields.description END
	RETURNING id
`

// UpsertObject creates or merges one object row
func (r *MetadataRepository) UpsertObject(ctx context.Context, userID, connectionID uuid.UUID, name string, description *string, overwrite bool, now time.Time) (uuid.UUID, error) {
	executor := GetExecutor(ctx, r.db)

	var id uuid.UUID
	err := executor.QueryRowContext(ctx, upsertObjectQuery,
		uuid.New(),
		userID,
		connectionID,
		name,
		description,
		now,
		overwrite,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, wrapError("failed to upsert object", err)
	}

	r.logger.Debug("object upserted",
		zap.String("id", id.String()),
		zap.String("object_name", name),
		zap.Bool("description_set", overwrite),
	)
	return id, nil
}

// UpsertField creates or merges one field row
func (r *MetadataRepository) UpsertField(ctx context.Context, objectID uuid.UUID, name string, description *string, overwrite bool) (uuid.UUID, error) {
	executor := GetExecutor(ctx, r.db)

	var id uuid.UUID
	err := executor.QueryRowContext(ctx, upsertFieldQuery,
		uuid.New(),
		objectID,
		name,
		description,
		overwrite,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, wrapError("failed to upsert field", err)
	}
	return id, nil
}

const listObjectsSelect = `
	SELECT o.id, o.connection_id, o.object_name, COALESCE(o.description, ''),
		f.field_name, COALESCE(f.description, '')
	FROM objects o
	LEFT JOIN fields f ON f.object_id = o.id
`

// ListByUser returns every object of the user across connections
func (r *MetadataRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.ObjectWithFields, error) {
	query := listObjectsSelect + `
	WHERE o.user_id = $1
	ORDER BY o.connection_id, o.object_name, f.field_name
	`
	return r.list(ctx, query, userID)
}

// ListByConnection returns objects of one connection, optionally restricted to names
func (r *MetadataRepository) ListByConnection(ctx context.Context, userID, connectionID uuid.UUID, names []string) ([]*models.ObjectWithFields, error) {
	if len(names) == 0 {
		query := listObjectsSelect + `
		WHERE o.user_id = $1 AND o.connection_id = $2
		ORDER BY o.object_name, f.field_name
		`
		return r.list(ctx, query, userID, connectionID)
	}

	query := listObjectsSelect + `
	WHERE o.user_id = $1 AND o.connection_id = $2 AND o.object_name = ANY($3)
	ORDER BY o.object_name, f.field_name
	`
	return r.list(ctx, query, userID, connectionID, pq.Array(names))
}

// list folds the object/field join into nested objects. Rows arrive
// grouped by object because every query orders by object first.
func (r *MetadataRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.ObjectWithFields, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError("failed to list objects", err)
	}
	defer rows.Close()

	objects := make([]*models.ObjectWithFields, 0)
	var current *models.ObjectWithFields
	for rows.Next() {
		var (
			obj       models.ObjectWithFields
			fieldName sql.NullString
			fieldDesc string
		)
		if err := rows.Scan(&obj.ID, &obj.ConnectionID, &obj.Name, &obj.Description, &fieldName, &fieldDesc); err != nil {
			return nil, fmt.Errorf("failed to scan object: %w", err)
		}

		if current == nil || current.ID != obj.ID {
			obj.Fields = make([]models.FieldSummary, 0)
			current = &obj
			objects = append(objects, current)
		}
		if fieldName.Valid {
			current.Fields = append(current.Fields, models.FieldSummary{
				Name:        fieldName.String,
				Description: fieldDesc,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating objects: %w", err)
	}

	return objects, nil
}
