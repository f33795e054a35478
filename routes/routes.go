package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/sqlpilot/app"
	"github.com/upb/sqlpilot/middleware"
	"github.com/upb/sqlpilot/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout(deps)))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := deps.Handlers

	// Health check endpoints
	r.Get("/healthz", h.Health.HandleLiveness)
	r.Get("/health", h.Health.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Auth.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)

			r.Route("/auth", func(r chi.Router) {
				r.Post("/logout", h.Auth.HandleLogout)
				r.Post("/logout-all", h.Auth.HandleLogoutAll)
				r.Get("/me", h.Auth.HandleMe)
			})

			// Connection registry
			r.Get("/connections", h.Connections.HandleList)
			r.Delete("/connections/{id}", h.Connections.HandleDelete)
			r.Post("/config", h.Connections.HandleCreate)
			r.Post("/config_test", h.Connections.HandleTest)

			// Metadata catalog
			r.Post("/table_schema_update", h.Metadata.HandleUpsert)
			r.Get("/objects", h.Metadata.HandleListObjects)
			r.Post("/context", h.Metadata.HandleContext)

			// Warehouse
			r.Post("/table_schema", h.Query.HandleTableSchema)
			r.Post("/dry-run", h.Query.HandleDryRun)
			r.Post("/query", h.Query.HandleQuery)

			r.Post("/generate_sql_from_natural_language", h.Generation.HandleGenerate)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}

// requestTimeout bounds a request; warehouse queries may run for minutes
func requestTimeout(deps *app.Dependencies) time.Duration {
	if deps.Config != nil && deps.Config.Server.WriteTimeout > 0 {
		return deps.Config.Server.WriteTimeout
	}
	return 60 * time.Second
}
