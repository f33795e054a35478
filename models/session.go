package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is one issued bearer token. A session is valid while the row
// exists and now < ExpiresAt; deleting the row revokes the token.
type Session struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Token     string    `json:"-" db:"token"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

// NewSession creates a session that expires ttl after now
func NewSession(userID uuid.UUID, token string, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired reports whether the ledger expiry has passed at the given time
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
