package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/upb/sqlpilot/repositories"
)

const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a PostgreSQL unique_violation
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// wrapError maps driver errors onto repository sentinels
func wrapError(op string, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, repositories.ErrNotFound)
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, repositories.ErrDuplicate)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
