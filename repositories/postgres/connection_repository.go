package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/sqlpilot/models"
	"github.com/upb/sqlpilot/repositories"
	"go.uber.org/zap"
)

// ConnectionRepository implements the repositories.ConnectionRepository interface
type ConnectionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewConnectionRepository creates a new connection repository
func NewConnectionRepository(db *DB, logger *zap.Logger) repositories.ConnectionRepository {
	return &ConnectionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a connection
func (r *ConnectionRepository) Create(ctx context.Context, conn *models.Connection) error {
	query := `
		INSERT INTO connections (id, user_id, name, credentials, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		conn.ID,
		conn.UserID,
		conn.Name,
		[]byte(conn.Credentials),
		conn.CreatedAt,
	)
	if err != nil {
		return wrapError("failed to create connection", err)
	}

	r.logger.Debug("connection created",
		zap.String("id", conn.ID.String()),
		zap.String("user_id", conn.UserID.String()),
		zap.String("name", conn.Name),
	)
	return nil
}

// ExistsByName reports whether the user already has a connection named name
func (r *ConnectionRepository) ExistsByName(ctx context.Context, userID uuid.UUID, name string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM connections WHERE user_id = $1 AND name = $2)`

	var exists bool
	executor := GetExecutor(ctx, r.db)
	if err := executor.QueryRowContext(ctx, query, userID, name).Scan(&exists); err != nil {
		return false, wrapError("failed to check connection name", err)
	}
	return exists, nil
}

// GetForUser retrieves a connection owned by userID
func (r *ConnectionRepository) GetForUser(ctx context.Context, userID, id uuid.UUID) (*models.Connection, error) {
	query := `
		SELECT id, user_id, name, credentials, created_at
		FROM connections
		WHERE id = $1 AND user_id = $2
	`

	executor := GetExecutor(ctx, r.db)
	conn := &models.Connection{}
	var credentials []byte

	err := executor.QueryRowContext(ctx, query, id, userID).Scan(
		&conn.ID,
		&conn.UserID,
		&conn.Name,
		&credentials,
		&conn.CreatedAt,
	)
	if err != nil {
		return nil, wrapError("failed to get connection", err)
	}
	conn.Credentials = credentials

	return conn, nil
}

// ListByUser retrieves all connections of a user ordered by name
func (r *ConnectionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Connection, error) {
	query := `
		SELECT id, user_id, name, created_at
		FROM connections
		WHERE user_id = $1
		ORDER BY name
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, wrapError("failed to list connections", err)
	}
	defer rows.Close()

	conns := make([]*models.Connection, 0)
	for rows.Next() {
		conn := &models.Connection{}
		if err := rows.Scan(&conn.ID, &conn.UserID, &conn.Name, &conn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, conn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}

	return conns, nil
}

// DeleteForUser deletes a connection owned by userID. Objects and fields
// go with it through ON DELETE CASCADE.
func (r *ConnectionRepository) DeleteForUser(ctx context.Context, userID, id uuid.UUID) error {
	query := `DELETE FROM connections WHERE id = $1 AND user_id = $2`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, userID)
	if err != nil {
		return wrapError("failed to delete connection", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("connection %s: %w", id, repositories.ErrNotFound)
	}

	r.logger.Debug("connection deleted", zap.String("id", id.String()))
	return nil
}
