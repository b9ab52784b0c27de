package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/ksu-assistant/backend/internal/api/handlers"
	cacheredis "github.com/ksu-assistant/backend/internal/cache/redis"
	"github.com/ksu-assistant/backend/internal/knowledge"
	"github.com/ksu-assistant/backend/internal/llm"
	"github.com/ksu-assistant/backend/internal/metrics"
	"github.com/ksu-assistant/backend/internal/middleware/ratelimit"
	"github.com/ksu-assistant/backend/internal/middleware/security"
	"github.com/ksu-assistant/backend/internal/middleware/validation"
	"github.com/ksu-assistant/backend/internal/query"
	"github.com/ksu-assistant/backend/internal/storage/sqlite"
	respvalidation "github.com/ksu-assistant/backend/internal/validation"
	"github.com/ksu-assistant/backend/pkg/config"
	appLogger "github.com/ksu-assistant/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting KSU admissions assistant API server")

	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	doc, err := knowledge.LoadFile(cfg.Knowledge.Path)
	if err != nil {
		if !errors.Is(err, knowledge.ErrNotFound) {
			appLogger.Fatal("Failed to load knowledge document", zap.Error(err))
		}
		appLogger.Warn("Knowledge document missing, answering without context", zap.String("path", cfg.Knowledge.Path))
	} else {
		appLogger.Info("Knowledge document loaded",
			zap.String("path", cfg.Knowledge.Path),
			zap.Strings("sections", doc.Names()),
		)
	}

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	negotiateCtx, negotiateCancel := context.WithTimeout(ctx, time.Duration(cfg.LLM.HealthTimeoutSec)*time.Second)
	backend := llm.NewBackend(negotiateCtx, llm.BackendConfig{
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		Protocol: llm.Protocol(cfg.LLM.Protocol),
	}, &http.Client{Timeout: time.Duration(cfg.LLM.HealthTimeoutSec) * time.Second})
	negotiateCancel()

	llmClient := llm.NewClient(backend, llm.Config{
		Timeout:       time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		StreamTimeout: time.Duration(cfg.LLM.StreamTimeoutSec) * time.Second,
		HealthTimeout: time.Duration(cfg.LLM.HealthTimeoutSec) * time.Second,
		MaxAttempts:   cfg.LLM.MaxAttempts,
		RetryBackoff:  time.Duration(cfg.LLM.RetryBackoffMs) * time.Millisecond,
	})

	collector := metrics.NewCollector(cfg.Metrics.WindowSize, cfg.Metrics.QueueSize, sqliteClient)
	go collector.Run(ctx)
	go cleanupMetrics(ctx, sqliteClient, time.Duration(cfg.Metrics.RetentionDays)*24*time.Hour)

	checks := map[string]handlers.Pinger{
		"llm":    llmClient,
		"sqlite": sqliteClient,
	}
	opts := []query.Option{
		query.WithHistory(sqliteClient),
		query.WithCollector(collector),
	}

	if cfg.Redis.Enabled {
		redisClient, err := cacheredis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, shared cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			opts = append(opts, query.WithSharedCache(redisClient))
			checks["redis"] = redisClient
		}
	}

	queryEngine := query.NewEngine(knowledge.NewStaticProvider(doc), llmClient, query.Config{
		Parallel:            cfg.LLM.Parallel,
		Candidates:          cfg.LLM.Candidates,
		MaxRegenerations:    cfg.Validation.MaxRegenerations,
		MinCriticalLength:   cfg.Validation.MinCriticalLength,
		CriticalKinds:       respvalidation.ParseKinds(cfg.Validation.CriticalKinds),
		CacheSize:           cfg.Cache.MaxSize,
		CacheTTL:            time.Duration(cfg.Cache.TTLHours) * time.Hour,
		SimilarityThreshold: cfg.Cache.SimilarityThreshold,
		ContextBudget:       cfg.Context.Budget,
		SoftOverflow:        cfg.Context.SoftOverflow,
		FallbackPhones:      cfg.Contacts.FallbackPhones,
	}, opts...)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Logger:            appLogger.GetLogger(),
	})
	defer limiter.Stop()

	queryHandler := handlers.NewQueryHandler(queryEngine, sqliteClient)
	wsHandler := handlers.NewWebSocketHandler(queryEngine)
	adminHandler := handlers.NewAdminHandler(queryEngine, sqliteClient)
	feedbackHandler := handlers.NewFeedbackHandler(sqliteClient)
	healthHandler := handlers.NewHealthHandler(checks, time.Duration(cfg.LLM.HealthTimeoutSec)*time.Second)

	api := app.Group("/api/v1")
	api.Use(validation.Middleware(validation.Config{
		MaxQueryLength: cfg.RateLimit.MaxQueryLength,
		QueryPaths:     []string{"/api/v1/query"},
		Logger:         appLogger.GetLogger(),
	}))

	api.Post("/query", limiter.Middleware(), queryHandler.HandleQuery)
	api.Get("/query/history", queryHandler.GetQueryHistory)
	api.Post("/feedback", feedbackHandler.SubmitFeedback)

	api.Get("/stats", adminHandler.GetStats)
	api.Post("/cache/clear", adminHandler.ClearCache)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws", limiter.Middleware(), websocket.New(wsHandler.HandleConnection))

	api.Get("/health", healthHandler.Health)
	api.Get("/ready", healthHandler.Ready)

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting",
		zap.String("address", addr),
		zap.String("protocol", llmClient.Protocol()),
		zap.Bool("shared_cache", cfg.Redis.Enabled),
	)

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	cancel()
	appLogger.Info("Server stopped", zap.Int("unsaved_metrics", collector.Pending()))
}

// cleanupMetrics deletes request metrics older than retention once a day.
func cleanupMetrics(ctx context.Context, store *sqlite.Client, retention time.Duration) {
	if retention <= 0 {
		return
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		deleted, err := store.CleanupOldMetrics(ctx, retention)
		if err != nil {
			appLogger.Error("Failed to clean up old metrics", zap.Error(err))
		} else if deleted > 0 {
			appLogger.Info("Old metrics removed", zap.Int64("deleted", deleted))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
