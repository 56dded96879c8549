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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"golang.org/x/time/rate"

	"github.com/gatewise/gatehub/internal/api/handlers"
	"github.com/gatewise/gatehub/internal/api/middleware"
	"github.com/gatewise/gatehub/internal/config"
	"github.com/gatewise/gatehub/internal/observability"
	"github.com/gatewise/gatehub/internal/plate"
	"github.com/gatewise/gatehub/internal/repository"
	"github.com/gatewise/gatehub/internal/service"
	"github.com/gatewise/gatehub/internal/vision"
	"github.com/gatewise/gatehub/internal/workers"
	"github.com/gatewise/gatehub/pkg/database"
)

// maxRequestBodyBytes bounds uploads; gate camera frames stay well under this.
const maxRequestBodyBytes = 16 << 20

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.LogLevel)

	// Metrics (optional)
	var (
		metrics        observability.GateMetrics
		metricsHandler http.Handler
	)

	if cfg.MetricsEnabled {
		provider, handler, m, err := observability.NewMeterProvider(ctx, observability.MeterProviderConfig{})
		if err != nil {
			slog.Error("Failed to initialize metrics", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				slog.Error("Failed to shut down meter provider", "error", err)
			}
		}()

		metrics = m
		metricsHandler = handler
	}

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, database.WithVectorTypes())
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Repositories
	identitiesRepo := repository.NewIdentitiesRepository(db)
	invitationsRepo := repository.NewInvitationsRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	vehiclesRepo := repository.NewVehiclesRepository(db)
	webhooksRepo := repository.NewWebhooksRepository(db)

	// Outbound notifications via River
	webhookSender := service.NewSigningWebhookSender(webhooksRepo)

	riverClient, err := initRiver(ctx, db, cfg, webhooksRepo, webhookSender, metrics)
	if err != nil {
		slog.Error("Failed to initialize River job queue", "error", err)
		os.Exit(1)
	}

	notifier := service.NewGateNotifier(service.NotifierParams{
		Webhooks:    webhooksRepo,
		Inserter:    riverClient,
		MaxAttempts: cfg.NotifyMaxAttempts,
		MaxFanOut:   cfg.NotifyMaxConcurrent,
		Metrics:     metrics,
	})

	// Vision collaborators
	embedder := newEmbedder(cfg)

	// Core services
	ledger := service.NewInvitationLedger(service.LedgerParams{
		Invitations: invitationsRepo,
		History:     historyRepo,
		DefaultTTL:  cfg.InvitationTTL,
	})

	accessService := service.NewAccessService(service.AccessParams{
		Identities: identitiesRepo,
		Ledger:     ledger,
		Embedder:   embedder,
		Threshold:  cfg.MatchThreshold,
		Publisher:  notifier,
		Metrics:    metrics,
	})

	var debugSink plate.DebugSink

	if cfg.DebugDir != "" {
		sink, err := plate.NewDirSink(cfg.DebugDir)
		if err != nil {
			slog.Warn("Failed to create debug image directory, debug composites disabled",
				"dir", cfg.DebugDir, "error", err)
		} else {
			debugSink = sink
		}
	}

	assembler := plate.NewAssembler(debugSink, slog.Default())

	plateService := service.NewPlateService(service.PlateParams{
		Reader:    vision.NewHTTPPlateReader(cfg.PlateReaderURL),
		Assembler: assembler,
		Vehicles:  vehiclesRepo,
		Publisher: notifier,
		Metrics:   metrics,
	})

	webhooksService := service.NewWebhooksService(webhooksRepo)

	// Handlers
	accessHandler := handlers.NewAccessHandler(accessService)
	identitiesHandler := handlers.NewIdentitiesHandler(accessService)
	invitationsHandler := handlers.NewInvitationsHandler(ledger)
	platesHandler := handlers.NewPlatesHandler(plateService)
	webhooksHandler := handlers.NewWebhooksHandler(webhooksService)
	healthHandler := handlers.NewHealthHandler()

	// Public endpoints (no authentication required)
	publicMux := http.NewServeMux()
	publicMux.HandleFunc("GET /health", healthHandler.Check)

	if metricsHandler != nil {
		publicMux.Handle("GET /metrics", metricsHandler)
	}

	// Protected endpoints (authentication required)
	protectedMux := http.NewServeMux()
	protectedMux.HandleFunc("POST /v1/access/resolve", accessHandler.Resolve)

	protectedMux.HandleFunc("POST /v1/identities", identitiesHandler.Enroll)
	protectedMux.HandleFunc("GET /v1/identities", identitiesHandler.List)
	protectedMux.HandleFunc("GET /v1/identities/{id}", identitiesHandler.Get)
	protectedMux.HandleFunc("DELETE /v1/identities/{id}", identitiesHandler.Delete)

	protectedMux.HandleFunc("POST /v1/identities/{id}/invitations", invitationsHandler.Create)
	protectedMux.HandleFunc("GET /v1/identities/{id}/invitations", invitationsHandler.List)
	protectedMux.HandleFunc("GET /v1/identities/{id}/history", invitationsHandler.GetHistory)
	protectedMux.HandleFunc("PATCH /v1/invitations/{id}", invitationsHandler.Transition)

	protectedMux.HandleFunc("POST /v1/plates/recognize", platesHandler.Recognize)
	protectedMux.HandleFunc("POST /v1/vehicles", platesHandler.RegisterVehicle)
	protectedMux.HandleFunc("GET /v1/identities/{id}/vehicles", platesHandler.ListVehicles)

	protectedMux.HandleFunc("POST /v1/webhooks", webhooksHandler.Create)
	protectedMux.HandleFunc("GET /v1/webhooks", webhooksHandler.List)
	protectedMux.HandleFunc("GET /v1/webhooks/{id}", webhooksHandler.Get)
	protectedMux.HandleFunc("PATCH /v1/webhooks/{id}", webhooksHandler.Update)
	protectedMux.HandleFunc("DELETE /v1/webhooks/{id}", webhooksHandler.Delete)

	var protectedHandler http.Handler = protectedMux
	protectedHandler = middleware.MaxBody(maxRequestBodyBytes)(protectedHandler)
	protectedHandler = middleware.Auth(cfg.APIKey)(protectedHandler)

	mainMux := http.NewServeMux()
	mainMux.Handle("/v1/", protectedHandler)
	mainMux.Handle("/", publicMux)

	var handler http.Handler = mainMux
	handler = middleware.Logging(handler)
	handler = middleware.Metrics(metrics)(handler)
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("Starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1. Stop accepting new HTTP requests
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	// 2. Stop River (waits for in-flight deliveries to complete)
	if riverClient != nil {
		slog.Info("Stopping River job queue...")
		if err := riverClient.Stop(shutdownCtx); err != nil {
			slog.Error("River forced to shutdown", "error", err)
		}
		slog.Info("River job queue stopped")
	}

	slog.Info("Server exited")
}

// newEmbedder selects the face embedder: the HTTP sidecar when configured,
// otherwise the deterministic in-process embedder (dev mode). Either way the
// result is wrapped in the caching layer.
func newEmbedder(cfg *config.Config) vision.Embedder {
	var inner vision.Embedder
	if cfg.EmbedderURL != "" {
		inner = vision.NewHTTPEmbedder(cfg.EmbedderURL)
	} else {
		slog.Info("EMBEDDER_URL not set, using deterministic embedder")
		inner = vision.NewMockEmbedderWithDimensions(cfg.EmbeddingDim)
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.EmbedderRateLimit), 1)

	cached, err := vision.NewCachingEmbedder(inner, cfg.EmbedderCacheSize, limiter)
	if err != nil {
		slog.Warn("Failed to create embedding cache, using uncached embedder", "error", err)

		return inner
	}

	return cached
}

// initRiver initializes the River job queue client and delivery workers.
func initRiver(
	ctx context.Context,
	db *pgxpool.Pool,
	cfg *config.Config,
	webhooksRepo *repository.WebhooksRepository,
	sender service.WebhookSender,
	metrics observability.GateMetrics,
) (*river.Client[pgx.Tx], error) {
	dispatchWorker := workers.NewGateEventDispatchWorker(webhooksRepo, sender, metrics)

	riverWorkers := river.NewWorkers()
	river.AddWorker(riverWorkers, dispatchWorker)

	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.NotifyMaxConcurrent},
		},
		Workers:     riverWorkers,
		JobTimeout:  workers.DeliveryTimeout,
		MaxAttempts: cfg.NotifyMaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	if err := riverClient.Start(ctx); err != nil {
		return nil, err
	}

	return riverClient, nil
}

// setupLogging configures slog with the specified log level and the trace
// context handler.
func setupLogging(level string) {
	var logLevel slog.Level

	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	inner := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(observability.NewTraceContextHandler(inner)))
}
