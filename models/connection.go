package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Connection is a named warehouse credential owned by one user.
// (UserID, Name) is unique.
type Connection struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	UserID      uuid.UUID       `json:"user_id" db:"user_id"`
	Name        string          `json:"connection_name" db:"name"`
	Credentials json.RawMessage `json:"-" db:"credentials"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// NewConnection creates a new Connection instance
func NewConnection(userID uuid.UUID, name string, credentials json.RawMessage) *Connection {
	return &Connection{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        name,
		Credentials: credentials,
		CreatedAt:   time.Now().UTC(),
	}
}
