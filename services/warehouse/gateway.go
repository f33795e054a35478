// Package warehouse runs schema lookups, dry runs and queries against a
// user's stored warehouse connection. Every call builds its own client
// and closes it afterwards; nothing is retried.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/sqlpilot/models"
	"github.com/upb/sqlpilot/repositories"
	"github.com/upb/sqlpilot/services"
	"go.uber.org/zap"
)

// Gateway is the query gateway
type Gateway struct {
	connections repositories.ConnectionRepository
	factory     ClientFactory
	logger      *zap.Logger
}

// NewGateway creates a query gateway
func NewGateway(connections repositories.ConnectionRepository, factory ClientFactory, logger *zap.Logger) *Gateway {
	return &Gateway{
		connections: connections,
		factory:     factory,
		logger:      logger,
	}
}

// ParseQualifiedName splits "dataset.table". Anything other than exactly
// two non-empty segments is rejected.
func ParseQualifiedName(name string) (string, string, error) {
	parts := strings.Split(strings.TrimSpace(name), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", services.ErrInvalidQualifiedName.Wrap(fmt.Errorf("got %q", name))
	}
	return parts[0], parts[1], nil
}

// FetchSchema returns the live schema of a warehouse table
func (g *Gateway) FetchSchema(ctx context.Context, userID, connectionID uuid.UUID, qualifiedName string) ([]models.FieldDescriptor, error) {
	dataset, table, err := ParseQualifiedName(qualifiedName)
	if err != nil {
		return nil, err
	}

	var fields []models.FieldDescriptor
	err = g.withClient(ctx, userID, connectionID, "fetch_schema", func(c Client) error {
		var err error
		fields, err = c.TableSchema(ctx, dataset, table)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fields, nil
}

// DryRun estimates the bytes sql would process without running it
func (g *Gateway) DryRun(ctx context.Context, userID, connectionID uuid.UUID, sql string) (*models.DryRunResult, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, services.Validation("query is required")
	}

	var bytes int64
	err := g.withClient(ctx, userID, connectionID, "dry_run", func(c Client) error {
		var err error
		bytes, err = c.DryRun(ctx, sql)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &models.DryRunResult{
		BytesProcessed: bytes,
		GBProcessed:    models.GigabytesFromBytes(bytes),
	}, nil
}

// Execute runs sql and materializes the full result set
func (g *Gateway) Execute(ctx context.Context, userID, connectionID uuid.UUID, sql string) (*models.QueryResult, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, services.Validation("query is required")
	}

	var rows []map[string]interface{}
	err := g.withClient(ctx, userID, connectionID, "execute", func(c Client) error {
		var err error
		rows, err = c.Query(ctx, sql)
		return err
	})
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = make([]map[string]interface{}, 0)
	}
	return &models.QueryResult{Rows: rows}, nil
}

// TestConnection checks that the stored credentials can reach the warehouse
func (g *Gateway) TestConnection(ctx context.Context, userID, connectionID uuid.UUID) error {
	return g.withClient(ctx, userID, connectionID, "test_connection", func(c Client) error {
		return c.Ping(ctx)
	})
}

// withClient resolves the owned connection, builds a client, runs fn and
// closes the client. The connection row is read outside any transaction.
func (g *Gateway) withClient(ctx context.Context, userID, connectionID uuid.UUID, op string, fn func(Client) error) error {
	conn, err := g.connections.GetForUser(ctx, userID, connectionID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrNotFoundOrForbidden.Wrap(err)
		}
		return services.WrapInternal("failed to load connection", err)
	}

	client, err := g.factory.NewClient(ctx, conn.Credentials)
	if err != nil {
		return classify(err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			g.logger.Warn("failed to close warehouse client", zap.String("op", op), zap.Error(cerr))
		}
	}()

	if err := fn(client); err != nil {
		g.logger.Warn("warehouse call failed",
			zap.String("op", op),
			zap.String("connection_id", connectionID.String()),
			zap.Error(err),
		)
		return classify(err)
	}
	return nil
}

// classify maps client errors onto the domain taxonomy
func classify(err error) error {
	switch {
	case errors.Is(err, ErrBadCredentials):
		return services.ErrInvalidCredentialPayload.Wrap(err)
	case errors.Is(err, ErrNotFound):
		return services.ErrObjectNotFound.Wrap(err)
	default:
		return services.ErrUpstream.Wrap(err)
	}
}
