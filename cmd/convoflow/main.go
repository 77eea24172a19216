// ConvoFlow server — multi-tenant customer chat with intent routing,
// tool-using agents, and human escalation.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/convoflow/convoflow/pkg/agentrun"
	"github.com/convoflow/convoflow/pkg/api"
	"github.com/convoflow/convoflow/pkg/cache"
	"github.com/convoflow/convoflow/pkg/classifier"
	"github.com/convoflow/convoflow/pkg/config"
	"github.com/convoflow/convoflow/pkg/database"
	"github.com/convoflow/convoflow/pkg/escalation"
	"github.com/convoflow/convoflow/pkg/events"
	"github.com/convoflow/convoflow/pkg/models"
	"github.com/convoflow/convoflow/pkg/permissions"
	"github.com/convoflow/convoflow/pkg/rag"
	"github.com/convoflow/convoflow/pkg/services"
	"github.com/convoflow/convoflow/pkg/store"
	"github.com/convoflow/convoflow/pkg/supervisor"
	"github.com/convoflow/convoflow/pkg/tools"
	"github.com/joho/godotenv"
)

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	defaultDir := os.Getenv("CONFIG_DIR")
	if defaultDir == "" {
		defaultDir = "./deploy/config"
	}
	configDir := flag.String("config-dir", defaultDir, "Path to configuration directory")
	flag.Parse()

	// .env is optional; real deployments inject the environment directly.
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("No .env file loaded", "path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	logger := slog.Default()
	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		fatal("Failed to initialize configuration", err)
	}

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		fatal("Failed to load database config", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		fatal("Failed to connect to database", err)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL database")

	st := store.NewPostgres(dbClient.Pool())

	// Permission cache: Redis when configured, in-process otherwise.
	var permCache cache.Cache
	if cfg.Cache.RedisAddr != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.Cache.RedisAddr, os.Getenv("REDIS_PASSWORD"), 0)
		if err != nil {
			fatal("Failed to connect to Redis", err)
		}
		permCache = redisCache
		slog.Info("Permission cache using Redis", "addr", cfg.Cache.RedisAddr)
	} else {
		permCache = cache.NewMemory()
		slog.Info("Permission cache in-process")
	}
	resolver := permissions.NewResolver(st, permCache, cfg.Cache.TTL, logger)

	cls := classifier.NewOpenAI(cfg.LLM.APIKey(), cfg.LLM.BaseURL, cfg.LLM.Model, cfg.Routing.HistoryLimit, logger)

	retriever := rag.NewPostgresRetriever(dbClient.Pool())
	engine := tools.NewEngine(map[models.ToolType]tools.Runner{
		models.ToolTypeHTTP:   tools.NewHTTPRunner(&http.Client{Timeout: cfg.Tools.HTTPTimeout}),
		models.ToolTypeRAG:    tools.NewRAGRunner(retriever),
		models.ToolTypeCustom: tools.NewCustomRunner(),
	}, logger)

	executor := agentrun.NewExecutor(resolver, engine, cls, cfg.Routing.HistoryLimit, logger)
	router := supervisor.NewRouter(resolver, executor, cls, cfg.Routing.ConfidenceThreshold, logger)

	// Event fan-out: the publisher writes the outbox, the listener feeds
	// the websocket connection manager from pg_notify.
	eventPublisher := events.NewEventPublisher(dbClient.DB())
	catchupQuerier := events.NewStoreCatchupAdapter(st)
	connManager := events.NewConnectionManager(catchupQuerier, 10*time.Second)

	notifyListener := events.NewNotifyListener(dbConfig.DSN(), connManager)
	if err := notifyListener.Start(ctx); err != nil {
		fatal("Failed to start NotifyListener", err)
	}
	defer notifyListener.Stop(ctx)
	connManager.SetListener(notifyListener)

	escalations := escalation.NewService(st, eventPublisher, logger)
	detector := escalation.NewDetector(cfg.Escalation.Keywords)
	sessionService := services.NewSessionService(st)
	chatService := services.NewChatService(st, router, escalations, detector, eventPublisher, cfg.Routing.HistoryLimit, logger)
	adminService := services.NewAdminService(st, resolver, logger)

	httpServer := api.NewServer(dbClient, sessionService, chatService, adminService, escalations, resolver, connManager)
	httpServer.SetAllowedWSOrigins(cfg.Server.AllowedWSOrigins)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Server.ListenAddr)
		if err := httpServer.Start(cfg.Server.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("ConvoFlow started", "model", cfg.LLM.Model, "config_dir", *configDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	slog.Info("Shutdown complete")
}
