// Command create-user provisions a login out of band. Flags take
// precedence over INITIAL_ADMIN_EMAIL and INITIAL_ADMIN_PASSWORD.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/upb/sqlpilot/config"
	"github.com/upb/sqlpilot/internal/observability"
	"github.com/upb/sqlpilot/repositories"
	"github.com/upb/sqlpilot/repositories/postgres"
	"github.com/upb/sqlpilot/services"
	authsvc "github.com/upb/sqlpilot/services/auth"
	"go.uber.org/zap"
)

// UserCreator creates a user from an email and plaintext password
type UserCreator interface {
	CreateUser(ctx context.Context, email, password string) error
}

type options struct {
	email    string
	password string
	cost     int
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "create-user: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := config.New(ctx)
	if err != nil {
		return err
	}

	opts, err := parseFlags(args, cfg.Bootstrap)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return err
	}
	defer factory.Close()

	if cfg.Database.InitSchema {
		if err := factory.InitSchema(ctx); err != nil {
			return err
		}
	}

	repos := factory.NewRepositories()
	return createUser(ctx, newCreator(repos, opts.cost, logger), opts, out)
}

func parseFlags(args []string, bootstrap config.BootstrapConfig) (options, error) {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	opts := options{}
	fs.StringVar(&opts.email, "email", bootstrap.AdminEmail, "login email")
	fs.StringVar(&opts.password, "password", bootstrap.AdminPassword, "login password")
	fs.IntVar(&opts.cost, "cost", authsvc.DefaultBcryptCost, "bcrypt cost")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.email == "" || opts.password == "" {
		return options{}, errors.New("email and password are required (flags or INITIAL_ADMIN_EMAIL/INITIAL_ADMIN_PASSWORD)")
	}
	return opts, nil
}

// createUser treats an existing email as success so provisioning can rerun
func createUser(ctx context.Context, creator UserCreator, opts options, out io.Writer) error {
	err := creator.CreateUser(ctx, opts.email, opts.password)
	switch {
	case err == nil:
		fmt.Fprintf(out, "created user %s\n", opts.email)
		return nil
	case errors.Is(err, services.ErrDuplicateEmail):
		fmt.Fprintf(out, "user %s already exists\n", opts.email)
		return nil
	default:
		return err
	}
}

type storeCreator struct {
	store *authsvc.CredentialStore
}

func newCreator(repos *repositories.Repositories, cost int, logger *zap.Logger) UserCreator {
	return storeCreator{store: authsvc.NewCredentialStore(repos.Users, cost, logger)}
}

func (c storeCreator) CreateUser(ctx context.Context, email, password string) error {
	_, err := c.store.CreateUser(ctx, email, password)
	return err
}
