package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"serialgate/internal/activation"
	"serialgate/internal/auth"
	"serialgate/internal/config"
	"serialgate/internal/infrastructure"
	"serialgate/internal/inventory"
	customMiddleware "serialgate/internal/middleware"
	"serialgate/internal/store"
	handlers "serialgate/internal/transport/http"
	"serialgate/internal/version"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

const (
	VERSION = "1.0.0"
	AppName = "SerialGate - Serial Activation Service"
)

// Application represents the main application container.
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Store         store.Store
	Engine        *activation.Engine
	Gate          *version.Gate
	Authority     *auth.Authority
	Inventory     *inventory.Manager
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
}

// NewApplication creates a new application instance with dependency injection.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", VERSION),
		slog.String("store_driver", cfg.Database.Driver))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices initializes the store and the domain services.
func (a *Application) initializeServices() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	a.Store = st

	if err := a.bootstrapAdmin(ctx); err != nil {
		return fmt.Errorf("failed to bootstrap admin user: %w", err)
	}

	a.Engine = activation.NewEngine(a.Store, a.Logger)
	a.Gate = version.NewGate(a.Store, a.Logger)
	a.Inventory = inventory.NewManager(a.Store, a.Logger)

	authority, err := auth.NewAuthority(a.Store, []byte(a.Config.Auth.JWTSecret), a.Logger,
		auth.WithTTL(a.Config.Auth.TokenTTL))
	if err != nil {
		return fmt.Errorf("failed to initialize session authority: %w", err)
	}
	a.Authority = authority

	return nil
}

// openStore connects the configured store driver.
func (a *Application) openStore(ctx context.Context) (store.Store, error) {
	switch a.Config.Database.Driver {
	case "postgres":
		pg, err := store.Connect(ctx, a.Config.Database.DSN, a.Config.Database.MaxConns, a.Logger)
		if err != nil {
			return nil, err
		}
		if err := pg.RunMigrations(ctx); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return pg, nil
	case "memory":
		mem := store.NewMemoryStore()
		if v := a.Config.Database.SeedVersion; v != "" {
			mem.SeedVersion(v)
		}
		a.Logger.Warn("Using in-memory store, data will not survive a restart")
		return mem, nil
	default:
		return nil, fmt.Errorf("unknown database driver: %q", a.Config.Database.Driver)
	}
}

// bootstrapAdmin seeds a single administrator account when the users
// table is empty and bootstrap credentials are configured.
func (a *Application) bootstrapAdmin(ctx context.Context) error {
	if a.Config.Auth.BootstrapUser == "" || a.Config.Auth.BootstrapPassword == "" {
		return nil
	}

	count, err := a.Store.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := auth.HashPassword(a.Config.Auth.BootstrapPassword, a.Config.Auth.BcryptCost)
	if err != nil {
		return err
	}

	id, err := a.Store.CreateUser(ctx, a.Config.Auth.BootstrapUser, hash)
	if err != nil {
		return err
	}

	a.Logger.Info("Bootstrap admin user created",
		slog.Int64("user_id", id),
		slog.String("username", a.Config.Auth.BootstrapUser))
	return nil
}

// setupRouter configures the HTTP router with all routes.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	r.Group(func(r chi.Router) {
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(middleware.Timeout(a.Config.Server.ReadTimeout))

		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(a.getCORSConfig()))
		}

		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r)
	})

	// Prometheus metrics endpoint outside the middleware group
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// setupAPIRoutes configures the API endpoints.
func (a *Application) setupAPIRoutes(r chi.Router) {
	activationHandler := handlers.NewActivationHandler(a.Engine, a.Gate, a.Logger)
	authHandler := handlers.NewAuthHandler(a.Authority, a.Logger)
	inventoryHandler := handlers.NewInventoryHandler(a.Inventory, a.Logger)
	healthHandler := handlers.NewHealthHandler(a.Store, VERSION, a.Logger)

	r.Post("/login", authHandler.Login)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		// Client-facing endpoints, no bearer token required
		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/verify_serial", activationHandler.VerifySerial)
		r.Get("/version", activationHandler.Version)
		r.Get("/computer_usage", activationHandler.ComputerUsage)

		// Inventory endpoints behind the session authority
		r.Group(func(r chi.Router) {
			bearer := customMiddleware.NewBearerAuth(a.Authority, a.Logger)
			r.Use(bearer.Handler)

			r.Post("/adddata", inventoryHandler.AddSerial)
			r.Put("/updatedata/{id}", inventoryHandler.UpdateSerial)
			r.Delete("/deletedata/{id}", inventoryHandler.DeleteSerial)
			r.Get("/getdata", inventoryHandler.GetData)
			r.Get("/getused", inventoryHandler.GetUsed)
		})
	})
}

// getCORSConfig returns the CORS configuration.
func (a *Application) getCORSConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
			"mac_address",
			"version",
		},
		ExposedHeaders: []string{
			"X-Request-ID",
		},
		AllowCredentials: true,
		MaxAge:           300,
		Logger:           a.Logger,
	}
}

// createServer creates the HTTP server.
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start starts the HTTP server.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", AppName),
		slog.String("version", VERSION),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "Application started",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))

	return nil
}

// Stop gracefully stops the application.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if closer, ok := a.Store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.Logger.ErrorContext(ctx, "Error closing store", slog.String("error", err.Error()))
		}
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")

	// Last so the shutdown messages above still reach the file output.
	if err := infrastructure.CloseLogFile(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}

// Run runs the application until interrupted.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal")
	case <-ctx.Done():
	}

	return a.Stop(context.Background())
}
