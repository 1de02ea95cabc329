package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	gws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"sprcli/internal/config"
	apierrors "sprcli/internal/errors"
	"sprcli/internal/infrastructure"
	"sprcli/internal/license"
	"sprcli/internal/middleware"
	"sprcli/internal/resilience"
	"sprcli/internal/security"
	transport "sprcli/internal/transport/http"
	ws "sprcli/internal/websocket"
)

// Version is stamped at build time.
var Version = "dev"

// Application is the assembled license service.
type Application struct {
	cfg    *config.Config
	logger *slog.Logger

	store     license.Store
	resilient *license.ResilientStore
	authority *license.Authority
	tokens    *security.TokenManager

	hub        *ws.Hub
	authorizer *ws.SessionAuthorizer
	upgrader   gws.Upgrader

	otel   *infrastructure.OTelProviders
	server *http.Server
}

// New assembles the application from configuration. In production a store
// that cannot be opened is fatal; in development the service falls back to
// an in-memory store so the rest of the stack stays usable.
func New(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	otelProviders, err := infrastructure.InitializeOTel("sprd", Version, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics pipeline: %w", err)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	breaker := resilience.NewBreaker("license-store", resilience.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
		CallTimeout:      cfg.Breaker.CallTimeout,
	}, logger)
	invoker := resilience.NewInvoker(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, logger)
	resilientStore := license.NewResilientStore(store, breaker, invoker)

	cache := license.NewCache(cfg.License.CacheTTL, cfg.License.CacheMaxSize)
	authority := license.NewAuthority(resilientStore, cache, logger)

	if metrics, err := license.NewMetrics(); err != nil {
		logger.Warn("license metrics disabled", slog.String("error", err.Error()))
	} else {
		authority.SetMetrics(metrics)
	}

	tokens, err := security.NewTokenManager(cfg.Security.TokenSecret, cfg.Security.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token manager: %w", err)
	}

	hub := ws.NewHub()
	authorizer := ws.NewSessionAuthorizer(authority, tokens, cfg.License.ReauthInterval)

	app := &Application{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		resilient:  resilientStore,
		authority:  authority,
		tokens:     tokens,
		hub:        hub,
		authorizer: authorizer,
		otel:       otelProviders,
		upgrader: gws.Upgrader{
			ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
			WriteBufferSize: cfg.WebSocket.WriteBufferSize,
			CheckOrigin:     originChecker(cfg.Security.AllowedOrigins),
		},
	}

	app.server = &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        app.routes(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	return app, nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (license.Store, error) {
	store, err := license.NewSQLiteStore(cfg.Database.DSN, logger)
	if err == nil {
		return store, nil
	}

	if cfg.IsProduction() {
		return nil, fmt.Errorf("license store unavailable: %w", err)
	}

	logger.Warn("license store unavailable, using in-memory store",
		slog.String("dsn", cfg.Database.DSN),
		slog.String("error", err.Error()))
	return license.NewSQLiteStore(":memory:", logger)
}

// routes builds the HTTP surface. The access gate guards everything under
// /api except its own allowlist; the WebSocket handshake runs its own
// authorization.
func (a *Application) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(middleware.StructuredLogger(a.logger))
	r.Use(middleware.Recoverer(a.logger))
	r.Use(middleware.CORS(a.cfg.Security.AllowedOrigins))

	errHandler := apierrors.NewErrorHandler(a.logger, !a.cfg.IsProduction())
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		errHandler.HandleError(w, req, apierrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		errHandler.HandleError(w, req, apierrors.New(http.StatusMethodNotAllowed,
			apierrors.CodeInvalidRequest, "Method not allowed"))
	})

	gate := middleware.NewAccessGate(a.authority, a.tokens,
		a.cfg.IsProduction(), a.cfg.License.DefaultClient, a.logger)

	healthHandler := transport.NewHealthHandler(Version, func(ctx context.Context) error {
		_, err := a.store.FindActive(ctx, a.cfg.License.DefaultClient)
		return err
	})
	licenseHandler := transport.NewLicenseHandler(a.authority, a.resilient,
		a.cfg.License.DefaultClient, a.logger)
	authHandler := transport.NewAuthHandler(a.tokens, a.authority,
		a.cfg.Security.TokenTTL, a.cfg.License.DefaultClient, a.logger)

	r.Route("/api", func(api chi.Router) {
		api.Use(gate.Handler)

		api.Get("/health", healthHandler.Health)
		api.Get("/health/live", healthHandler.Live)
		api.Get("/health/ready", healthHandler.Ready)
		api.Mount("/auth", authHandler.Routes())

		var activateLimit func(http.Handler) http.Handler
		if a.cfg.Security.RateLimit.Enabled {
			limiter := middleware.NewRateLimiter(
				a.cfg.Security.RateLimit.RPS,
				a.cfg.Security.RateLimit.Burst,
				a.logger)
			activateLimit = limiter.Handler
		}
		api.Mount("/license", licenseHandler.Routes(activateLimit))
	})

	r.Get("/ws", a.handleWebSocket)
	r.Handle("/metrics", promhttp.HandlerFor(a.otel.Registry, promhttp.HandlerOpts{}))

	return r
}

// handleWebSocket authorizes and upgrades a session, then starts its pumps
// and license watcher.
func (a *Application) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientID, err := a.authorizer.Authorize(r)
	if err != nil {
		a.logger.WarnContext(r.Context(), "websocket handshake rejected",
			slog.String("error", err.Error()))
		_ = render.Render(w, r, apierrors.ErrUnauthorized)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		a.logger.ErrorContext(r.Context(), "websocket upgrade failed",
			slog.String("error", err.Error()))
		return
	}

	client := ws.NewClient(a.hub, ws.WrapConnection(conn), clientID)
	a.hub.Register(client)

	go a.authorizer.Watch(context.Background(), client)
	go client.WritePump()
	go client.ReadPump()

	client.Send(ws.NewMessage(ws.TypeConnected, map[string]string{
		"client_id": clientID,
	}))
}

// Run starts the service and blocks until the context is cancelled or a
// termination signal arrives, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		a.logger.Info("server starting",
			slog.String("addr", a.server.Addr),
			slog.String("mode", a.cfg.Mode),
			slog.String("version", Version))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

func (a *Application) shutdown() error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown failed", slog.String("error", err.Error()))
		firstErr = err
	}

	a.hub.Stop()
	a.authority.Close()

	if err := a.store.Close(); err != nil {
		a.logger.Error("store close failed", slog.String("error", err.Error()))
		if firstErr == nil {
			firstErr = err
		}
	}

	if err := a.otel.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("metrics shutdown failed", slog.String("error", err.Error()))
	}
	_ = infrastructure.CloseLogFile()

	a.logger.Info("shutdown complete")
	return firstErr
}

func originChecker(allowed []string) func(r *http.Request) bool {
	allowedSet := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		allowedSet[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients send no Origin header.
		return origin == "" || allowedSet[origin]
	}
}
