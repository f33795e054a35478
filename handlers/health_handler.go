package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/upb/sqlpilot/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db         *sql.DB
	generation interface{ Available() bool }
	logger     *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. generation may be nil.
func NewHealthHandler(db *sql.DB, generation interface{ Available() bool }, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:         db,
		generation: generation,
		logger:     logger,
	}
}

// HandleLiveness handles GET /healthz
// Always returns 200 while the process is serving
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleHealth handles GET /health
// Validates the database; generation is reported but never fails the check
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if err := h.checkDatabase(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		allHealthy = false
	} else {
		checks["database"] = "healthy"
	}

	if h.generation != nil && h.generation.Available() {
		checks["generation"] = "configured"
	} else {
		checks["generation"] = "not_configured"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, response); err != nil {
		h.logger.Error("failed to write health response", zap.Error(err))
	}
}

// checkDatabase checks database connectivity
func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return nil
	}

	if err := h.db.PingContext(ctx); err != nil {
		return err
	}

	var result int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}
