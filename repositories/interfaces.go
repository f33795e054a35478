package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/sqlpilot/models"
)

var (
	// ErrNotFound is returned when no row matches. Ownership-filtered
	// lookups return it for rows owned by another user as well.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction.
	// The ctx passed to fn carries the transaction; repositories called
	// with it participate in the transaction.
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository handles user data operations
type UserRepository interface {
	// Create creates a new user. Returns ErrDuplicate for a taken email.
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail retrieves a user by email
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// SessionRepository is the session ledger, keyed by token
type SessionRepository interface {
	// Create inserts a new session row
	Create(ctx context.Context, session *models.Session) error

	// GetByToken looks a session up by its verbatim token
	GetByToken(ctx context.Context, token string) (*models.Session, error)

	// DeleteByToken revokes one session. Deleting a missing token is not an error.
	DeleteByToken(ctx context.Context, token string) (int64, error)

	// DeleteByUserID revokes every session of a user
	DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error)

	// DeleteExpired removes sessions whose expires_at is not after now
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ConnectionRepository handles warehouse connection data operations.
// Every read and delete is filtered by owner.
type ConnectionRepository interface {
	// Create inserts a connection. Returns ErrDuplicate when (user_id, name) is taken.
	Create(ctx context.Context, conn *models.Connection) error

	// ExistsByName reports whether the user already has a connection with this name
	ExistsByName(ctx context.Context, userID uuid.UUID, name string) (bool, error)

	// GetForUser retrieves a connection owned by userID
	GetForUser(ctx context.Context, userID, id uuid.UUID) (*models.Connection, error)

	// ListByUser retrieves all connections of a user ordered by name
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Connection, error)

	// DeleteForUser deletes a connection owned by userID. Returns ErrNotFound
	// when nothing matched.
	DeleteForUser(ctx context.Context, userID, id uuid.UUID) error
}

// MetadataRepository handles the object/field catalog
type MetadataRepository interface {
	// UpsertObject creates the object or, when it exists, replaces its
	// description only if overwrite is set. Returns the object id.
	UpsertObject(ctx context.Context, userID, connectionID uuid.UUID, name string, description *string, overwrite bool, now time.Time) (uuid.UUID, error)

	// UpsertField creates the field or, when it exists, replaces its
	// description only if overwrite is set. Returns the field id.
	UpsertField(ctx context.Context, objectID uuid.UUID, name string, description *string, overwrite bool) (uuid.UUID, error)

	// ListByUser returns every object of the user with its fields,
	// descriptions normalized to empty strings.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.ObjectWithFields, error)

	// ListByConnection returns objects of one connection ordered by name.
	// A nil or empty names slice returns every object of the connection.
	ListByConnection(ctx context.Context, userID, connectionID uuid.UUID, names []string) ([]*models.ObjectWithFields, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users       UserRepository
	Sessions    SessionRepository
	Connections ConnectionRepository
	Metadata    MetadataRepository
}
