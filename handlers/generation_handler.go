package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/upb/sqlpilot/middleware"
	"github.com/upb/sqlpilot/models"
	"github.com/upb/sqlpilot/services"
	"github.com/upb/sqlpilot/services/generation"
	"github.com/upb/sqlpilot/utils"
	"go.uber.org/zap"
)

// GenerateRequest is the body of POST /api/generate_sql_from_natural_language
type GenerateRequest struct {
	UserRequest  string   `json:"user_request" validate:"required"`
	ConnectionID string   `json:"connection_id" validate:"required"`
	ObjectNames  []string `json:"object_names"`
	DryRun       bool     `json:"dry_run"`
}

// GenerateResponse carries the generated query and the prompt behind it
type GenerateResponse struct {
	Message      string               `json:"message"`
	GeneratedSQL string               `json:"generated_sql"`
	FullPrompt   string               `json:"full_prompt"`
	Provider     string               `json:"provider,omitempty"`
	DryRun       *models.DryRunResult `json:"dry_run,omitempty"`
	DryRunError  string               `json:"dry_run_error,omitempty"`
}

// ConnectionLookup resolves a connection owned by the caller
type ConnectionLookup interface {
	Get(ctx context.Context, userID, connectionID uuid.UUID) (*models.Connection, error)
}

// QueryGenerator turns a request and context document into a query
type QueryGenerator interface {
	Generate(ctx context.Context, request string, contexts []models.ObjectContext) (*generation.Result, error)
}

// DryRunner estimates the cost of a query
type DryRunner interface {
	DryRun(ctx context.Context, userID, connectionID uuid.UUID, sql string) (*models.DryRunResult, error)
}

// GenerationHandler handles natural-language query generation
type GenerationHandler struct {
	connections ConnectionLookup
	assembler   ContextAssembler
	generator   QueryGenerator
	dryRunner   DryRunner
	logger      *zap.Logger
}

// NewGenerationHandler creates a new GenerationHandler
func NewGenerationHandler(
	connections ConnectionLookup,
	assembler ContextAssembler,
	generator QueryGenerator,
	dryRunner DryRunner,
	logger *zap.Logger,
) *GenerationHandler {
	return &GenerationHandler{
		connections: connections,
		assembler:   assembler,
		generator:   generator,
		dryRunner:   dryRunner,
		logger:      logger,
	}
}

// HandleGenerate handles POST /api/generate_sql_from_natural_language
func (h *GenerationHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserIDFromContext(ctx)

	var req GenerateRequest
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

	if _, err := h.connections.Get(ctx, userID, connID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	contexts, err := h.assembler.AssembleContext(ctx, userID, connID, req.ObjectNames)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	result, err := h.generator.Generate(ctx, req.UserRequest, contexts)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if result.Query == "" {
		HandleServiceError(w, services.ErrNoQueryGenerated.Wrap(nil).WithDetail("full_prompt", result.Prompt), h.logger)
		return
	}

	resp := GenerateResponse{
		Message:      "SQL query generated successfully.",
		GeneratedSQL: result.Query,
		FullPrompt:   result.Prompt,
		Provider:     result.Provider,
	}

	// a failed estimate does not discard the generated query
	if req.DryRun {
		estimate, err := h.dryRunner.DryRun(ctx, userID, connID, result.Query)
		if err != nil {
			h.logger.Info("dry run of generated query failed",
				zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
				zap.Error(err))
			resp.DryRunError = upstreamMessage(err)
		} else {
			resp.DryRun = estimate
		}
	}

	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write generation response", zap.Error(err))
	}
}
