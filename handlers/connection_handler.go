package handlers

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/sqlpilot/middleware"
	"github.com/upb/sqlpilot/models"
	"github.com/upb/sqlpilot/utils"
	"go.uber.org/zap"
)

// CreateConnectionRequest is the JSON body of POST /api/config
type CreateConnectionRequest struct {
	Name       string          `json:"connection_name"`
	Credential json.RawMessage `json:"gcp_key_json"`
}

// ConnectionIDRequest carries a connection id in the body
type ConnectionIDRequest struct {
	ID string `json:"id" validate:"required"`
}

// CreatedResponse reports a newly stored resource
type CreatedResponse struct {
	Message string    `json:"message"`
	ID      uuid.UUID `json:"id"`
}

// ConnectionResponse is a connection without its credential
type ConnectionResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"connection_name"`
	CreatedAt string    `json:"created_at"`
}

// ConnectionService defines the registry operations used over HTTP
type ConnectionService interface {
	Register(ctx context.Context, userID uuid.UUID, name string, payload json.RawMessage) (uuid.UUID, error)
	List(ctx context.Context, userID uuid.UUID) ([]*models.Connection, error)
	Delete(ctx context.Context, userID, connectionID uuid.UUID) error
	Test(ctx context.Context, userID, connectionID uuid.UUID) error
}

// ConnectionHandler handles warehouse connection requests
type ConnectionHandler struct {
	connections ConnectionService
	logger      *zap.Logger
}

// NewConnectionHandler creates a new ConnectionHandler
func NewConnectionHandler(connections ConnectionService, logger *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		connections: connections,
		logger:      logger,
	}
}

// HandleCreate handles POST /api/config. The credential arrives either as
// a JSON field or as an uploaded key file.
func (h *ConnectionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserIDFromContext(ctx)

	var (
		name    string
		payload json.RawMessage
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var req CreateConnectionRequest
		if err := utils.DecodeJSON(w, r, &req); err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}
		name, payload = req.Name, req.Credential

	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, utils.MaxBodyBytes)
		if err := r.ParseMultipartForm(utils.MaxBodyBytes); err != nil {
			_ = utils.WriteBadRequest(w, "invalid multipart body", nil)
			return
		}
		file, _, err := r.FormFile("gcp_key_file")
		if err != nil {
			_ = utils.WriteBadRequest(w, "gcp_key_file is required", nil)
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			_ = utils.WriteBadRequest(w, "failed to read gcp_key_file", nil)
			return
		}
		name, payload = r.FormValue("connection_name"), json.RawMessage(data)

	default:
		_ = utils.WriteUnsupportedMediaType(w,
			"use multipart/form-data with gcp_key_file and connection_name, or application/json with gcp_key_json and connection_name")
		return
	}

	id, err := h.connections.Register(ctx, userID, name, payload)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("connection registered",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("connection_id", id.String()))

	if err := utils.WriteCreated(w, CreatedResponse{
		Message: "BigQuery configuration saved successfully.",
		ID:      id,
	}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleList handles GET /api/connections
func (h *ConnectionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conns, err := h.connections.List(ctx, middleware.GetUserIDFromContext(ctx))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	responses := make([]ConnectionResponse, len(conns))
	for i, c := range conns {
		responses[i] = ConnectionResponse{
			ID:        c.ID,
			Name:      c.Name,
			CreatedAt: c.CreatedAt.Format(time.RFC3339),
		}
	}
	_ = utils.WriteOK(w, responses)
}

// HandleDelete handles DELETE /api/connections/{id}
func (h *ConnectionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := h.connections.Delete(ctx, middleware.GetUserIDFromContext(ctx), id); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteMessage(w, http.StatusOK, "Connection deleted.")
}

// HandleTest handles POST /api/config_test
func (h *ConnectionHandler) HandleTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := decodeConnectionID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.connections.Test(ctx, middleware.GetUserIDFromContext(ctx), id); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteMessage(w, http.StatusOK, "Connection successful.")
}

func decodeConnectionID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	var req ConnectionIDRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return uuid.Nil, false
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, logger)
		return uuid.Nil, false
	}
	id, err := utils.ParseUUID(req.ID, "id")
	if err != nil {
		HandleValidationError(w, err, logger)
		return uuid.Nil, false
	}
	return id, true
}
