package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"go.uber.org/zap"

	"github.com/partsbench/partsbench-engine/pkg/bus"
	"github.com/partsbench/partsbench-engine/pkg/config"
	"github.com/partsbench/partsbench-engine/pkg/database"
	"github.com/partsbench/partsbench-engine/pkg/handlers"
	"github.com/partsbench/partsbench-engine/pkg/llm"
	"github.com/partsbench/partsbench-engine/pkg/logging"
	"github.com/partsbench/partsbench-engine/pkg/repositories"
	"github.com/partsbench/partsbench-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("ai_provider", cfg.AI.Provider))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := runMigrations(cfg, logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	itemRepo := repositories.NewItemRepository(db)
	projectRepo := repositories.NewProjectRepository(db)

	healthTracker := services.NewHealthTracker(
		time.Duration(cfg.Health.WindowSeconds)*time.Second, cfg.Health.ErrorThreshold)
	persister := services.NewPersister(itemRepo, projectRepo, healthTracker, logger)
	updateBus := bus.New(logger)

	ledger := services.NewLedgerService(itemRepo, projectRepo, persister, updateBus, logger)
	if err := ledger.Load(ctx); err != nil {
		logger.Fatal("failed to load ledger", zap.Error(err))
	}

	recommendations := services.NewRecommendationService(
		ledger,
		services.NewHeuristicScorer(),
		services.NewFallbackAdvisor(),
		healthTracker,
		updateBus,
		cfg.Recommendations.SuggestionThreshold,
		logger,
	)
	ledger.SetInvalidator(recommendations)

	analytics := services.NewAnalyticsService(ledger, updateBus, logger)

	aiClient, err := llm.NewFromConfig(cfg.AI, logger)
	if err != nil {
		logger.Fatal("failed to configure ai client", zap.Error(err))
	}
	insights := services.NewInsightService(aiClient, ledger, services.NewFallbackAdvisor(), healthTracker, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, healthTracker, logger).RegisterRoutes(mux)
	handlers.NewItemHandler(ledger, analytics, logger).RegisterRoutes(mux)
	handlers.NewProjectHandler(ledger, logger).RegisterRoutes(mux)
	handlers.NewRecommendationHandler(recommendations, logger).RegisterRoutes(mux)
	handlers.NewAnalyticsHandler(analytics, insights, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting partsbench-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", zap.Error(err))
	}

	// Drain pending storage writes before the pool closes.
	persister.Close()
	logger.Info("shutdown complete")
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// runMigrations applies pending schema migrations over a short-lived
// database/sql connection; the pgx pool stays dedicated to repositories.
func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()

	return database.RunMigrations(sqlDB, cfg.MigrationsPath, logger)
}
