// PM role-play trainer server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ashureev/pm-roleplay/internal/agent"
	"github.com/ashureev/pm-roleplay/internal/api"
	"github.com/ashureev/pm-roleplay/internal/config"
	"github.com/ashureev/pm-roleplay/internal/events"
	"github.com/ashureev/pm-roleplay/internal/gemini"
	"github.com/ashureev/pm-roleplay/internal/grpchealth"
	"github.com/ashureev/pm-roleplay/internal/identity"
	"github.com/ashureev/pm-roleplay/internal/middleware"
	"github.com/ashureev/pm-roleplay/internal/resource"
	"github.com/ashureev/pm-roleplay/internal/scenario"
	"github.com/ashureev/pm-roleplay/internal/store"
	"github.com/ashureev/pm-roleplay/internal/telemetry"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "storage", cfg.Storage.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage.
	kv, err := store.Open(cfg.Storage)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := kv.Close(); closeErr != nil {
			slog.Error("Failed to close storage", "error", closeErr)
		}
	}()

	if err := kv.Ping(ctx); err != nil {
		slog.Error("Storage health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Storage connected")

	// Pointer change events fan out across instances through Redis when it is the backend.
	var bridge events.Bridge
	if rs, ok := kv.(*store.RedisStore); ok {
		bridge = events.NewRedisBridge(rs.Client(), logger)
	}
	hub := events.NewHub(bridge, logger)

	catalog, err := scenario.Load(cfg.ScenariosFile)
	if err != nil {
		slog.Error("Failed to load scenario catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("Scenario catalog loaded", "scenarios", len(catalog.List()))

	gen, err := gemini.NewClient(ctx, gemini.Options{
		APIKey:       cfg.Gemini.APIKey,
		BaseURL:      cfg.Gemini.BaseURL,
		DefaultModel: scenario.DefaultModel,
	})
	if err != nil {
		slog.Error("Failed to initialize generative client", "error", err)
		os.Exit(1)
	}
	if !gen.Configured() {
		slog.Warn("GEMINI_API_KEY not set; agent replies will fail and mission detection will return nothing")
	}

	var tracker telemetry.Tracker = telemetry.Noop{}
	if cfg.Telemetry.Enabled {
		ndjson, err := telemetry.NewNDJSONTracker(telemetry.Config{
			Path:       cfg.Telemetry.Path,
			QueueSize:  cfg.Telemetry.QueueSize,
			MaxSizeMB:  cfg.Telemetry.MaxSizeMB,
			MaxBackups: cfg.Telemetry.MaxBackups,
		}, logger)
		if err != nil {
			slog.Error("Failed to initialize telemetry", "error", err)
			os.Exit(1)
		}
		tracker = ndjson
	}
	defer func() {
		if err := tracker.Close(); err != nil {
			slog.Warn("failed to close telemetry", "error", err)
		}
	}()

	var remote resource.Remote
	if cfg.BackendAPIURL != "" {
		remote = resource.NewHTTPRemote(cfg.BackendAPIURL, nil)
		slog.Info("Resource cache falls back to backend", "url", cfg.BackendAPIURL)
	}
	resources := resource.New(kv, remote)

	limiter := agent.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer limiter.Close()

	// Initialize handlers.
	agentHandler := agent.NewHandler(
		agent.NewService(gen, catalog, cfg.Gemini.Model),
		resources, limiter, tracker, cfg.Storage.Prefix,
	)
	healthHandler := api.NewHealthHandler(kv)
	configHandler := api.NewConfigHandler(gen.Configured(), cfg.Storage.Driver)
	scenarioHandler := api.NewScenarioHandler(catalog)
	pointerHandler := api.NewPointerHandler(kv, hub, tracker, cfg.Storage.Prefix)
	sessionHandler := api.NewSessionHandler(resources, cfg.Storage.Prefix)
	wsHandler := events.NewWebSocketHandler(hub, func(r *http.Request) string {
		return identity.Namespace(r.Context(), cfg.Storage.Prefix).String()
	}, originPatterns(cfg), cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Agent routes answer with their own status codes, so a stale token
	// degrades to the anonymous identity instead of a 401.
	r.Group(func(r chi.Router) {
		r.Use(identity.LenientMiddleware(cfg.AuthJWTSecret, cfg.IsDevelopment()))
		agentHandler.RegisterRoutes(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(cfg.AuthJWTSecret, cfg.IsDevelopment()))

		configHandler.RegisterRoutes(r)
		scenarioHandler.RegisterRoutes(r)
		pointerHandler.RegisterRoutes(r)
		sessionHandler.RegisterRoutes(r)

		// WebSocket endpoint.
		r.Get("/ws/pointers", wsHandler.ServeHTTP)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // generation calls and the websocket feed are long-lived
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(gctx)
	})

	if cfg.GRPCHealthAddr != "" {
		g.Go(func() error {
			return grpchealth.New(kv, logger).Serve(gctx, cfg.GRPCHealthAddr)
		})
	}

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// originPatterns converts ALLOWED_ORIGINS into websocket origin host patterns.
func originPatterns(cfg *config.Config) []string {
	patterns := make([]string, 0, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if _, host, ok := strings.Cut(o, "://"); ok {
			o = host
		}
		patterns = append(patterns, o)
	}
	return patterns
}
