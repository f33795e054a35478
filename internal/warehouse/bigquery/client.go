// Package bigquery implements the warehouse client on Google BigQuery.
package bigquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/upb/sqlpilot/models"
	"github.com/upb/sqlpilot/services/warehouse"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// serviceAccountKey holds the fields read from a service account key
type serviceAccountKey struct {
	Type      string `json:"type"`
	ProjectID string `json:"project_id"`
}

// Factory builds BigQuery clients from service account keys
type Factory struct {
	opts []option.ClientOption
}

// NewFactory creates a Factory. Extra options are appended to every
// client, e.g. option.WithEndpoint for an emulator.
func NewFactory(opts ...option.ClientOption) *Factory {
	return &Factory{opts: opts}
}

// ProjectID extracts the project of a service account key
func ProjectID(credentials json.RawMessage) (string, error) {
	var key serviceAccountKey
	if err := json.Unmarshal(credentials, &key); err != nil {
		return "", fmt.Errorf("%w: %v", warehouse.ErrBadCredentials, err)
	}
	if key.ProjectID == "" {
		return "", fmt.Errorf("%w: project_id is missing", warehouse.ErrBadCredentials)
	}
	return key.ProjectID, nil
}

// NewClient parses the key and constructs a client. No request is sent.
func (f *Factory) NewClient(ctx context.Context, credentials json.RawMessage) (warehouse.Client, error) {
	projectID, err := ProjectID(credentials)
	if err != nil {
		return nil, err
	}

	opts := append([]option.ClientOption{option.WithCredentialsJSON(credentials)}, f.opts...)
	bq, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", warehouse.ErrBadCredentials, err)
	}
	return &Client{bq: bq}, nil
}

// Client adapts *bigquery.Client to warehouse.Client
type Client struct {
	bq *bigquery.Client
}

// TableSchema reads table metadata. A 404 becomes warehouse.ErrNotFound.
func (c *Client) TableSchema(ctx context.Context, dataset, table string) ([]models.FieldDescriptor, error) {
	md, err := c.bq.Dataset(dataset).Table(table).Metadata(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s.%s: %v", warehouse.ErrNotFound, dataset, table, err)
		}
		return nil, fmt.Errorf("table metadata %s.%s: %w", dataset, table, err)
	}
	return convertSchema(md.Schema), nil
}

// DryRun submits sql as a dry-run job with the query cache disabled
func (c *Client) DryRun(ctx context.Context, sql string) (int64, error) {
	q := c.bq.Query(sql)
	q.DryRun = true
	q.DisableQueryCache = true

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("dry run: %w", err)
	}
	status := job.LastStatus()
	if status == nil {
		return 0, errors.New("dry run: no job status returned")
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("dry run: %w", err)
	}
	if status.Statistics == nil {
		return 0, nil
	}
	return status.Statistics.TotalBytesProcessed, nil
}

// Query runs sql, waits for the job and reads every row
func (c *Client) Query(ctx context.Context, sql string) ([]map[string]interface{}, error) {
	it, err := c.bq.Query(sql).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	rows := make([]map[string]interface{}, 0, it.TotalRows)
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read rows: %w", err)
		}

		out := make(map[string]interface{}, len(row))
		for k, v := range row {
			out[k] = v
		}
		rows = append(rows, out)
	}
	return rows, nil
}

// Ping lists at most one dataset
func (c *Client) Ping(ctx context.Context) error {
	it := c.bq.Datasets(ctx)
	it.PageInfo().MaxSize = 1
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("list datasets: %w", err)
	}
	return nil
}

// Close releases the underlying connection
func (c *Client) Close() error {
	return c.bq.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

func convertSchema(schema bigquery.Schema) []models.FieldDescriptor {
	fields := make([]models.FieldDescriptor, 0, len(schema))
	for _, fs := range schema {
		if fs == nil {
			continue
		}
		fd := models.FieldDescriptor{
			Name:        fs.Name,
			Type:        string(fs.Type),
			Mode:        mode(fs),
			Description: fs.Description,
		}
		if len(fs.Schema) > 0 {
			fd.Fields = convertSchema(fs.Schema)
		}
		fields = append(fields, fd)
	}
	return fields
}

func mode(fs *bigquery.FieldSchema) string {
	switch {
	case fs.Repeated:
		return "REPEATED"
	case fs.Required:
		return "REQUIRED"
	default:
		return "NULLABLE"
	}
}
