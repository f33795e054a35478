package warehouse

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/upb/sqlpilot/models"
)

var (
	// ErrBadCredentials is returned by a ClientFactory when the stored
	// payload cannot produce a client. No network call has been made.
	ErrBadCredentials = errors.New("malformed credential payload")
	// ErrNotFound is returned by a Client when the warehouse reports the
	// addressed dataset or table does not exist.
	ErrNotFound = errors.New("warehouse object not found")
)

// Client is one short-lived warehouse session built for a single call
type Client interface {
	// TableSchema returns the column layout of dataset.table
	TableSchema(ctx context.Context, dataset, table string) ([]models.FieldDescriptor, error)
	// DryRun validates sql and returns the bytes it would scan
	DryRun(ctx context.Context, sql string) (int64, error)
	// Query runs sql to completion and returns every row
	Query(ctx context.Context, sql string) ([]map[string]interface{}, error)
	// Ping performs the cheapest authenticated call available
	Ping(ctx context.Context) error
	Close() error
}

// ClientFactory builds a Client from a stored credential payload
type ClientFactory interface {
	NewClient(ctx context.Context, credentials json.RawMessage) (Client, error)
}
