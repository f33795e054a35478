package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/upb/sqlpilot/middleware"
	"github.com/upb/sqlpilot/models"
	"github.com/upb/sqlpilot/utils"
	"go.uber.org/zap"
)

// FieldUpdate is one field of a schema update request
type FieldUpdate struct {
	Name        string                   `json:"field_name"`
	Description models.Optional[*string] `json:"field_description"`
}

// SchemaUpdateRequest is the body of POST /api/table_schema_update.
// Absent descriptions keep their stored value; null or "" clears it.
type SchemaUpdateRequest struct {
	ConnectionID string                   `json:"connection_id" validate:"required"`
	ObjectName   string                   `json:"object_name" validate:"required"`
	Description  models.Optional[*string] `json:"object_description"`
	Fields       []FieldUpdate            `json:"fields"`
}

// ContextRequest is the body of POST /api/context
type ContextRequest struct {
	ConnectionID string   `json:"connection_id" validate:"required"`
	ObjectNames  []string `json:"object_names"`
}

// MetadataService defines the catalog operations used over HTTP
type MetadataService interface {
	UpsertObjectMetadata(ctx context.Context, req models.ObjectUpsert) (uuid.UUID, error)
	ListObjectsWithFields(ctx context.Context, userID uuid.UUID) ([]*models.ObjectWithFields, error)
}

// ContextAssembler builds the context document for a connection
type ContextAssembler interface {
	AssembleContext(ctx context.Context, userID, connectionID uuid.UUID, names []string) ([]models.ObjectContext, error)
}

// MetadataHandler handles the object/field catalog
type MetadataHandler struct {
	metadata    MetadataService
	connections ConnectionLookup
	assembler   ContextAssembler
	logger      *zap.Logger
}

// NewMetadataHandler creates a new MetadataHandler
func NewMetadataHandler(
	metadata MetadataService,
	connections ConnectionLookup,
	assembler ContextAssembler,
	logger *zap.Logger,
) *MetadataHandler {
	return &MetadataHandler{
		metadata:    metadata,
		connections: connections,
		assembler:   assembler,
		logger:      logger,
	}
}

// HandleUpsert handles POST /api/table_schema_update
func (h *MetadataHandler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SchemaUpdateRequest
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

	upsert := models.ObjectUpsert{
		UserID:       middleware.GetUserIDFromContext(ctx),
		ConnectionID: connID,
		ObjectName:   req.ObjectName,
		Description:  req.Description,
		Fields:       make([]models.FieldInput, len(req.Fields)),
	}
	for i, f := range req.Fields {
		upsert.Fields[i] = models.FieldInput{Name: f.Name, Description: f.Description}
	}

	id, err := h.metadata.UpsertObjectMetadata(ctx, upsert)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, CreatedResponse{
		Message: "Object metadata saved successfully.",
		ID:      id,
	})
}

// HandleListObjects handles GET /api/objects
func (h *MetadataHandler) HandleListObjects(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	objects, err := h.metadata.ListObjectsWithFields(ctx, middleware.GetUserIDFromContext(ctx))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if objects == nil {
		objects = []*models.ObjectWithFields{}
	}
	_ = utils.WriteOK(w, objects)
}

// HandleContext handles POST /api/context
func (h *MetadataHandler) HandleContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ContextRequest
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

	userID := middleware.GetUserIDFromContext(ctx)
	if _, err := h.connections.Get(ctx, userID, connID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	contexts, err := h.assembler.AssembleContext(ctx, userID, connID, req.ObjectNames)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if contexts == nil {
		contexts = []models.ObjectContext{}
	}
	_ = utils.WriteOK(w, contexts)
}
