package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/upb/sqlpilot/config"
	"github.com/upb/sqlpilot/handlers"
	"github.com/upb/sqlpilot/internal/auth"
	"github.com/upb/sqlpilot/internal/warehouse/bigquery"
	"github.com/upb/sqlpilot/middleware"
	"github.com/upb/sqlpilot/repositories"
	"github.com/upb/sqlpilot/repositories/postgres"
	"github.com/upb/sqlpilot/services/assembler"
	authsvc "github.com/upb/sqlpilot/services/auth"
	"github.com/upb/sqlpilot/services/connections"
	"github.com/upb/sqlpilot/services/generation"
	"github.com/upb/sqlpilot/services/metadata"
	"github.com/upb/sqlpilot/services/prompt"
	"github.com/upb/sqlpilot/services/providers"
	"github.com/upb/sqlpilot/services/providers/gemini"
	"github.com/upb/sqlpilot/services/providers/openai"
	"github.com/upb/sqlpilot/services/warehouse"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users       repositories.UserRepository
	Sessions    repositories.SessionRepository
	Connections repositories.ConnectionRepository
	Metadata    repositories.MetadataRepository
	TxManager   repositories.TransactionManager

	// Services
	Credentials *authsvc.CredentialStore
	Auth        *authsvc.Service
	Registry    *connections.Service
	Catalog     *metadata.Service
	Assembler   *assembler.Service
	Warehouse   *warehouse.Gateway
	Providers   *providers.Registry
	Generation  *generation.Service

	// HTTP
	AuthMiddleware *middleware.AuthMiddleware
	Handlers       Handlers
}

// Handlers groups the HTTP handlers mounted by the router
type Handlers struct {
	Health      *handlers.HealthHandler
	Auth        *handlers.AuthHandler
	Connections *handlers.ConnectionHandler
	Metadata    *handlers.MetadataHandler
	Query       *handlers.QueryHandler
	Generation  *handlers.GenerationHandler
}

// providerBuilders maps GENERATION_PROVIDER values to adapter constructors
var providerBuilders = map[string]providers.Builder{
	"gemini": gemini.New,
	"openai": openai.New,
}

// NewDependencies opens the database and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := newDependencies(ctx, cfg, factory, warehouseFactory(), logger)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// NewDependenciesFromDB wires dependencies over an already opened pool
func NewDependenciesFromDB(ctx context.Context, cfg *config.Config, db *sql.DB, clients warehouse.ClientFactory, logger *zap.Logger) (*Dependencies, error) {
	factory := postgres.NewRepositoryFactoryFromDB(postgres.WrapDB(db, logger), logger)
	return newDependencies(ctx, cfg, factory, clients, logger)
}

func newDependencies(
	ctx context.Context,
	cfg *config.Config,
	factory *postgres.RepositoryFactory,
	clients warehouse.ClientFactory,
	logger *zap.Logger,
) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initRepositories()

	if err := deps.initServices(cfg, clients); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.initHTTP()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase creates the schema when enabled
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if !cfg.Database.InitSchema {
		return nil
	}
	if err := d.RepoFactory.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	d.Logger.Info("database schema ready")
	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Users = repos.Users
	d.Sessions = repos.Sessions
	d.Connections = repos.Connections
	d.Metadata = repos.Metadata
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initServices(cfg *config.Config, clients warehouse.ClientFactory) error {
	issuer := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.SessionTTL)
	d.Credentials = authsvc.NewCredentialStore(d.Users, authsvc.DefaultBcryptCost, d.Logger.Named("credentials"))
	d.Auth = authsvc.NewService(d.Credentials, issuer, d.Sessions, d.Users, cfg.Auth.SessionTTL, d.Logger.Named("auth"))

	d.Warehouse = warehouse.NewGateway(d.Connections, clients, d.Logger.Named("warehouse"))
	d.Registry = connections.NewService(d.Connections, d.TxManager, d.Warehouse, d.Logger.Named("connections"))
	d.Catalog = metadata.NewService(d.Connections, d.Metadata, d.TxManager, d.Logger.Named("metadata"))
	d.Assembler = assembler.NewService(d.Metadata, d.Logger.Named("assembler"))

	registry, err := providers.Build(providerBuilders, map[string]providers.Config{
		"gemini": providerConfig(cfg.Generation.Gemini),
		"openai": providerConfig(cfg.Generation.OpenAI),
	})
	if err != nil {
		return err
	}
	d.Providers = registry

	active, err := registry.Get(cfg.Generation.Provider)
	if err != nil {
		d.Logger.Warn("generation provider not configured, natural language queries disabled",
			zap.String("provider", cfg.Generation.Provider),
			zap.Strings("available", registry.Names()))
		active = nil
	}
	d.Generation = generation.NewService(active, d.Logger.Named("generation"),
		generation.WithRedactor(prompt.NewRedactor()),
	)

	d.Logger.Info("services initialized", zap.Bool("generation", d.Generation.Available()))
	return nil
}

func (d *Dependencies) initHTTP() {
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Auth, d.Logger.Named("http"))

	d.Handlers = Handlers{
		Health:      handlers.NewHealthHandler(d.DB.DB, d.Generation, d.Logger),
		Auth:        handlers.NewAuthHandler(d.Auth, d.Logger),
		Connections: handlers.NewConnectionHandler(d.Registry, d.Logger),
		Metadata:    handlers.NewMetadataHandler(d.Catalog, d.Registry, d.Assembler, d.Logger),
		Query:       handlers.NewQueryHandler(d.Warehouse, d.Logger),
		Generation:  handlers.NewGenerationHandler(d.Registry, d.Assembler, d.Generation, d.Warehouse, d.Logger),
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}

func providerConfig(c config.ProviderConfig) providers.Config {
	return providers.Config{
		APIKey:  c.APIKey,
		BaseURL: c.BaseURL,
		Model:   c.Model,
		Timeout: c.Timeout,
	}
}

func warehouseFactory() warehouse.ClientFactory {
	return bigquery.NewFactory()
}
