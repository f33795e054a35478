package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/upb/sqlpilot/middleware"
	"github.com/upb/sqlpilot/models"
	"github.com/upb/sqlpilot/utils"
	"go.uber.org/zap"
)

// QueryRequest is the body of POST /api/dry-run and POST /api/query
type QueryRequest struct {
	ID    string `json:"id" validate:"required"`
	Query string `json:"query" validate:"required"`
}

// TableSchemaRequest is the body of POST /api/table_schema
type TableSchemaRequest struct {
	ConnectionID string `json:"connection_id" validate:"required"`
	ObjectName   string `json:"object_name" validate:"required"`
}

// DryRunResponse reports the estimated scan of a query
type DryRunResponse struct {
	Message string `json:"message"`
	*models.DryRunResult
}

// QueryResponse carries materialized rows
type QueryResponse struct {
	Message string                   `json:"message"`
	Data    []map[string]interface{} `json:"data"`
}

// TableSchemaResponse carries the live schema of one table
type TableSchemaResponse struct {
	ObjectName string                   `json:"object_name"`
	Schema     []models.FieldDescriptor `json:"schema"`
}

// WarehouseService defines the query gateway operations used over HTTP
type WarehouseService interface {
	FetchSchema(ctx context.Context, userID, connectionID uuid.UUID, qualifiedName string) ([]models.FieldDescriptor, error)
	DryRun(ctx context.Context, userID, connectionID uuid.UUID, sql string) (*models.DryRunResult, error)
	Execute(ctx context.Context, userID, connectionID uuid.UUID, sql string) (*models.QueryResult, error)
}

// QueryHandler handles warehouse schema lookups and queries
type QueryHandler struct {
	warehouse WarehouseService
	logger    *zap.Logger
}

// NewQueryHandler creates a new QueryHandler
func NewQueryHandler(warehouse WarehouseService, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		warehouse: warehouse,
		logger:    logger,
	}
}

// DryRunMessage formats the estimate the way the warehouse console does
func DryRunMessage(gb float64) string {
	return fmt.Sprintf("Query dry run successful. Estimated data to be processed: %.4f GB.", gb)
}

// HandleTableSchema handles POST /api/table_schema
func (h *QueryHandler) HandleTableSchema(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req TableSchemaRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	connID, err := utils.ParseUUID(req.ConnectionID, "connection_id")
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	schema, err := h.warehouse.FetchSchema(ctx, middleware.GetUserIDFromContext(ctx), connID, req.ObjectName)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, TableSchemaResponse{ObjectName: req.ObjectName, Schema: schema})
}

// HandleDryRun handles POST /api/dry-run
func (h *QueryHandler) HandleDryRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	connID, query, ok := h.decodeQuery(w, r)
	if !ok {
		return
	}

	result, err := h.warehouse.DryRun(ctx, middleware.GetUserIDFromContext(ctx), connID, query)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, DryRunResponse{
		Message:      DryRunMessage(result.GBProcessed),
		DryRunResult: result,
	})
}

// HandleQuery handles POST /api/query
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	connID, query, ok := h.decodeQuery(w, r)
	if !ok {
		return
	}

	result, err := h.warehouse.Execute(ctx, middleware.GetUserIDFromContext(ctx), connID, query)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	rows := result.Rows
	if rows == nil {
		rows = []map[string]interface{}{}
	}
	h.logger.Debug("query executed",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.Int("rows", len(rows)))

	if err := utils.WriteOK(w, QueryResponse{
		Message: "Query executed successfully.",
		Data:    rows,
	}); err != nil {
		h.logger.Error("failed to write query response", zap.Error(err))
	}
}

func (h *QueryHandler) decodeQuery(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	var req QueryRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return uuid.Nil, "", false
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return uuid.Nil, "", false
	}
	id, err := utils.ParseUUID(req.ID, "id")
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return uuid.Nil, "", false
	}
	return id, req.Query, true
}
