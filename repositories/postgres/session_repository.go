package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/upb/sqlpilot/models"
	"github.com/upb/sqlpilot/repositories"
	"go.uber.org/zap"
)

// SessionRepository implements the repositories.SessionRepository interface
type SessionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB, logger *zap.Logger) repositories.SessionRepository {
	return &SessionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new session row
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, token, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		session.Token,
		session.CreatedAt,
		session.ExpiresAt,
	)
	if err != nil {
		return wrapError("failed to create session", err)
	}

	r.logger.Debug("session created",
		zap.String("id", session.ID.String()),
		zap.String("user_id", session.UserID.String()),
		zap.Time("expires_at", session.ExpiresAt),
	)
	return nil
}

// GetByToken looks a session up by its verbatim token
func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	query := `
		SELECT id, user_id, token, created_at, expires_at
		FROM sessions
		WHERE token = $1
	`

	executor := GetExecutor(ctx, r.db)
	session := &models.Session{}

	err := executor.QueryRowContext(ctx, query, token).Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.CreatedAt,
		&session.ExpiresAt,
	)
	if err != nil {
		return nil, wrapError("failed to get session", err)
	}

	return session, nil
}

// DeleteByToken revokes one session
func (r *SessionRepository) DeleteByToken(ctx context.Context, token string) (int64, error) {
	return r.delete(ctx, "failed to delete session", `DELETE FROM sessions WHERE token = $1`, token)
}

// DeleteByUserID revokes every session of a user
func (r *SessionRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	return r.delete(ctx, "failed to delete user sessions", `DELETE FROM sessions WHERE user_id = $1`, userID)
}

// DeleteExpired removes sessions whose expiry is not after now
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.delete(ctx, "failed to delete expired sessions", `DELETE FROM sessions WHERE expires_at <= $1`, now)
}

func (r *SessionRepository) delete(ctx context.Context, op, query string, arg interface{}) (int64, error) {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, arg)
	if err != nil {
		return 0, wrapError(op, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, wrapError(op, err)
	}
	return n, nil
}
