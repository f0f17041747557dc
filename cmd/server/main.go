// Debate bot request-resilience server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashureev/debatebot/internal/api"
	"github.com/ashureev/debatebot/internal/config"
	"github.com/ashureev/debatebot/internal/conversation"
	"github.com/ashureev/debatebot/internal/convlog"
	"github.com/ashureev/debatebot/internal/fallback"
	"github.com/ashureev/debatebot/internal/language"
	"github.com/ashureev/debatebot/internal/llm"
	"github.com/ashureev/debatebot/internal/middleware"
	"github.com/ashureev/debatebot/internal/pipeline"
	"github.com/ashureev/debatebot/internal/position"
	"github.com/ashureev/debatebot/internal/ratelimit"
	"github.com/ashureev/debatebot/internal/retry"
	"github.com/ashureev/debatebot/internal/session"
	"github.com/ashureev/debatebot/internal/store"
	"github.com/ashureev/debatebot/internal/validator"
	"github.com/ashureev/debatebot/internal/wschat"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "1.0.0"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	for _, file := range config.EnvFiles(os.Getenv("ENVIRONMENT")) {
		if err := godotenv.Load(file); err != nil {
			slog.Debug("env file not loaded", "file", file)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting Debate Bot API",
		"version", version,
		"port", cfg.Port,
		"environment", cfg.Environment,
		"log_level", cfg.LogLevel,
		"rate_limit_per_minute", cfg.RateLimit.PerMinute,
	)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	conversationLogger, err := convlog.New(convlog.Config{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	// Initialize services.
	llmClient := llm.New(llm.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
		Timeout: cfg.OpenAI.Timeout,
	}, logger)
	probeLLM(llmClient, cfg.OpenAI.Timeout)

	caller := retry.NewCaller(retry.Config{
		MaxAttempts: cfg.Retry.MaxRetries,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		Jitter:      cfg.Retry.Jitter,
	}, llm.ClassifyError, logger)

	detector := language.NewHybrid(llmClient, caller, logger)
	assigner := position.NewAssigner(llmClient, caller, detector, logger)
	sessions := session.NewManager(repo, assigner, logger)

	replies := pipeline.New(pipeline.Deps{
		Generator: llmClient,
		Checker:   llmClient,
		Validator: validator.New(validator.DefaultConfig()),
		Fallback:  fallback.New(nil),
		Caller:    caller,
	}, pipeline.Config{
		MaxAttempts:       cfg.Pipeline.MaxAttempts,
		HistoryWindow:     cfg.Pipeline.HistoryWindow,
		ConsistencyWindow: cfg.Pipeline.ConsistencyWindow,
	}, logger)

	chatService := conversation.NewService(sessions, replies, conversationLogger, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := ratelimit.New(cfg.RateLimit.PerMinute, cfg.RateLimit.Window)
	limiter.Start(ctx)
	defer limiter.Stop()

	// Initialize handlers.
	origins := middleware.ParseOrigins(cfg.AllowedOrigins)
	chatHandler := api.NewChatHandler(chatService, cfg.MaxMessageLength, cfg.IsProduction(), logger)
	healthHandler := api.NewHealthHandler(repo, version)
	wsConns := wschat.NewRegistry()
	wsHandler := wschat.NewHandler(chatHandler, limiter, wsConns, origins, cfg.RequestTimeout, logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(origins))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", promhttp.Handler())

	// Chat routes are admitted per client IP and bounded by the request timeout.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter, middleware.DefaultExcludedPaths, logger))
		r.Use(chiMiddleware.Timeout(cfg.RequestTimeout))
		chatHandler.RegisterRoutes(r)
	})

	// WebSocket endpoint. Admission is applied per frame.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      0, // websocket connections are long-lived
		IdleTimeout:       120 * time.Second,
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")
	wsConns.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// probeLLM checks the backend credentials once. Failure is logged, not fatal.
func probeLLM(c *llm.Client, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		slog.Error("OpenAI API key validation failed", "error", err, "class", llm.ClassifyError(err))
		return
	}
	slog.Info("OpenAI API key validated successfully")
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
