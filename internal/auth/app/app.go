package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aussiebroadwan/tokensmith/internal/auth/cache"
	"github.com/aussiebroadwan/tokensmith/internal/auth/domain"
	httpapi "github.com/aussiebroadwan/tokensmith/internal/auth/http"
	"github.com/aussiebroadwan/tokensmith/internal/auth/service"
	"github.com/aussiebroadwan/tokensmith/internal/auth/store"
	"github.com/aussiebroadwan/tokensmith/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/tokensmith/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/tokensmith/pkg/cryptox"
	"github.com/aussiebroadwan/tokensmith/pkg/jwtx"
	"github.com/aussiebroadwan/tokensmith/pkg/policy"
	"github.com/aussiebroadwan/tokensmith/pkg/slogx"
)

// BuildVersion is overridden at build time via ldflags.
var BuildVersion = "v0.1.0"

// Application encapsulates the authorization server with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         store.Store
	cache      cache.Cache
	keyManager *jwtx.KeyManager
	sealer     jwtx.KeySealer
	hasher     *cryptox.SecretHasher
	codec      *jwtx.Codec
	metrics    *httpapi.Metrics

	// Services
	authorizationService *service.AuthorizationService
	clientService        *service.ClientService
	keyRotationService   *service.KeyRotationService
	housekeepingService  *service.HousekeepingService
	housekeepingStarted  bool

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
// The logger may be nil, in which case one is built from cfg.
func New(cfg Config, logger *slog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slogx.New(slogx.Config{
			Service: "tokensmith",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		})
	}

	app := &Application{cfg: cfg, logger: logger}

	if err := app.init(context.Background()); err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

func (app *Application) init(ctx context.Context) error {
	// Database first, persistent keys live in it.
	if err := app.initDatabase(); err != nil {
		return err
	}

	c, err := cache.New(cache.Config{
		Driver:        app.cfg.CacheDriver,
		TTL:           app.cfg.CacheTTL,
		RedisAddr:     app.cfg.RedisAddr,
		RedisPassword: app.cfg.RedisPassword,
		RedisDB:       app.cfg.RedisDB,
		Prefix:        app.cfg.RedisPrefix,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	app.cache = c

	pepper, err := cryptox.LoadOrCreatePepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}
	if app.hasher, err = cryptox.NewSecretHasher(pepper); err != nil {
		return fmt.Errorf("failed to initialize secret hasher: %w", err)
	}

	if app.keyManager, app.sealer, err = InitAuthKeys(ctx, app.cfg, app.db, app.logger); err != nil {
		return fmt.Errorf("failed to initialize signing keys: %w", err)
	}
	if app.codec, err = jwtx.NewCodec(app.keyManager, jwtx.CodecOptions{
		Issuer:    app.cfg.Issuer,
		ClockSkew: app.cfg.ClockSkew,
	}); err != nil {
		return fmt.Errorf("failed to initialize token codec: %w", err)
	}

	if app.metrics, err = httpapi.NewMetrics(prometheus.NewRegistry()); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	if err := app.metrics.TrackSigningKeys(app.keyManager); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := app.initServices(); err != nil {
		return err
	}
	if err := app.seedTrustedClient(ctx); err != nil {
		return err
	}

	app.initHTTP()
	return nil
}

// Handler exposes the router, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()
	app.housekeepingStarted = true

	app.logger.Info("authorization server starting",
		"port", app.cfg.Port,
		"issuer", app.cfg.Issuer,
		"key_source", app.cfg.KeySource,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.close()
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

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down authorization server...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if err := app.close(); err != nil {
		return err
	}

	app.logger.Info("authorization server stopped")
	return nil
}

// close releases everything but the HTTP server.
func (app *Application) close() error {
	if app.housekeepingStarted {
		app.housekeepingService.Stop()
		app.housekeepingStarted = false
	}

	var errs []error
	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			app.logger.Error("error closing cache", "error", err)
			errs = append(errs, err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// initDatabase opens the configured store and applies migrations
func (app *Application) initDatabase() error {
	switch app.cfg.StoreDriver {
	case StoreMemory:
		app.db = memory.NewStore()
		app.logger.Warn("using the in-memory store, clients and keys are lost on restart")
		return nil
	default:
		dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
		db, err := sqlite.NewStore(dsn)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		app.db = db

		if err := db.ApplyMigrations(); err != nil {
			return fmt.Errorf("failed to apply database migrations: %w", err)
		}
		app.logger.Info("database migrations applied successfully", "file", app.cfg.DatabaseFile)
		return nil
	}
}

// initServices initializes the business logic services
func (app *Application) initServices() error {
	introspect, err := policy.Compile(app.cfg.IntrospectPolicy)
	if err != nil {
		return fmt.Errorf("introspect policy: %w", err)
	}
	tokenKey, err := policy.Compile(app.cfg.TokenKeyPolicy)
	if err != nil {
		return fmt.Errorf("token key policy: %w", err)
	}

	clients := store.NewCachedClients(app.db.Clients(), app.cache, app.cfg.CacheTTL, app.logger)

	app.authorizationService = &service.AuthorizationService{
		Clients:          clients,
		Secrets:          app.hasher,
		Tokens:           app.codec,
		Verifier:         app.metrics.Verifier(app.codec),
		Keys:             app.keyManager,
		Issuer:           app.cfg.Issuer,
		DefaultValidity:  app.cfg.TokenValidity,
		IntrospectPolicy: introspect,
		TokenKeyPolicy:   tokenKey,
		Observer:         app.metrics,
	}

	app.clientService = &service.ClientService{
		Clients: clients,
		Hasher:  app.hasher,
	}

	app.keyRotationService = &service.KeyRotationService{
		KeyManager: app.keyManager,
		Static:     app.cfg.KeySource == KeySourceStatic,
		Algorithm:  app.cfg.Algorithm,
		RSABits:    app.cfg.RSABits,
		Overlap:    app.cfg.KeyOverlap,
	}
	if app.cfg.KeySource == KeySourcePersistent {
		app.keyRotationService.Store = app.db
		app.keyRotationService.Sealer = app.sealer
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.keyManager,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	return nil
}

// seedTrustedClient makes sure the bootstrap client exists with the
// configured secret.
func (app *Application) seedTrustedClient(ctx context.Context) error {
	_, err := app.clientService.SeedClient(ctx, service.NewClient{
		ID:          app.cfg.TrustedClientID,
		Name:        "Trusted client",
		Authorities: []string{domain.AuthorityTrustedClient},
		Scopes:      app.cfg.TrustedClientScopes,
	}, app.cfg.TrustedClientSecret)
	if err != nil {
		return fmt.Errorf("failed to seed trusted client: %w", err)
	}
	app.logger.Info("trusted client ready", "client_id", app.cfg.TrustedClientID)
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager,
		app.authorizationService.Verifier,
		BuildVersion,
		app.db,
		app.metrics,
		app.logger,
	)

	router.AuthorizationService = app.authorizationService
	router.ClientService = app.clientService
	router.KeyRotationService = app.keyRotationService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
