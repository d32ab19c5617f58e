package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpapi "github.com/openfedid/fedid/internal/idp/http"
	"github.com/openfedid/fedid/internal/idp/service"
	"github.com/openfedid/fedid/internal/idp/store"
	"github.com/openfedid/fedid/internal/idp/store/drivers/sqlite"
	"github.com/openfedid/fedid/pkg/oidcrp"
	"github.com/openfedid/fedid/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application wires the identity provider together: storage, the token
// service, the relying-party toolkit, housekeeping, and the HTTP server.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db store.Store

	tokenService        *service.TokenService
	bootstrapService    *service.BootstrapService
	housekeepingService *service.HousekeepingService
	validator           *oidcrp.Validator
	resolver            *oidcrp.Resolver

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "fedid",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("fedid starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully stops the server, the background sweeper, and the
// database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down fedid...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("fedid stopped")
	return nil
}

func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initServices() {
	app.tokenService = &service.TokenService{
		Store:                         app.db,
		DefaultAccessValiditySeconds:  app.cfg.DefaultAccessValiditySeconds,
		DefaultRefreshValiditySeconds: app.cfg.DefaultRefreshValiditySeconds,
	}

	app.bootstrapService = &service.BootstrapService{
		Store: app.db,
		Token: app.cfg.BootstrapToken,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)

	remoteClient := &http.Client{Timeout: app.cfg.RemoteTimeout}

	// Only wired when this instance also acts as a relying party against a
	// remote authority.
	if app.cfg.IntrospectionEndpoint != "" {
		app.validator = &oidcrp.Validator{
			Endpoint:     app.cfg.IntrospectionEndpoint,
			ClientID:     app.cfg.IntrospectionClientID,
			ClientSecret: app.cfg.IntrospectionClientSecret,
			HTTPClient:   remoteClient,
		}
		app.logger.Info("remote introspection validator enabled",
			"endpoint", app.cfg.IntrospectionEndpoint)
	}

	app.resolver = &oidcrp.Resolver{
		HTTPClient:    remoteClient,
		Allowlist:     app.cfg.IssuerAllowlist,
		Denylist:      app.cfg.IssuerDenylist,
		ParameterName: app.cfg.IdentifierParameter,
		LoginPageURL:  app.cfg.LoginPageURL,
		CacheTTL:      app.cfg.IssuerCacheTTL,
	}
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)
	router.TokenService = app.tokenService
	router.BootstrapService = app.bootstrapService
	router.Resolver = app.resolver
	router.Validator = app.validator
	router.ApplyRoutes()

	app.router = router
	app.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.cfg.Port),
		Handler: router,
	}
}
