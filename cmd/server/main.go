package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-server/internal/api"
	"github.com/pharmaguard-server/internal/config"
	"github.com/pharmaguard-server/internal/database"
	"github.com/pharmaguard-server/internal/domain"
	"github.com/pharmaguard-server/internal/service"
	"github.com/pharmaguard-server/internal/store"
	"github.com/pharmaguard-server/pkg/external"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := newLogger(cfg.Logging)

	logger.WithFields(logrus.Fields{
		"host":  cfg.Server.Host,
		"port":  cfg.Server.Port,
		"store": cfg.Store.Driver,
	}).Info("Starting PharmaGuard server")

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := newStore(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize analysis store")
	}
	if st != nil {
		defer st.Close()
	}

	explainer := newExplainer(cfg, logger)
	if explainer != nil {
		defer explainer.Close()
	}

	// The analyzer tolerates nil collaborators: no explainer means fallback
	// narratives, no store means no persistence.
	var explainerIface service.ExplanationGenerator
	if explainer != nil {
		explainerIface = explainer
	}
	var storeIface service.AnalysisStore
	if st != nil {
		storeIface = st
	}
	analyzer := service.NewAnalyzerService(logger, cfg.Analysis, explainerIface, storeIface)

	server := api.NewServer(cfg, logger, analyzer, st)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	// Start server
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

// newLogger builds the process logger from the logging configuration.
func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.ToLower(cfg.Format) == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.Output == "stderr" {
		logger.SetOutput(os.Stderr)
	} else {
		logger.SetOutput(os.Stdout)
	}

	return logger
}

// newStore selects and initializes the persistence backend. Returns nil when
// persistence is disabled.
func newStore(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (store.Store, error) {
	switch strings.ToLower(cfg.Store.Driver) {
	case "sqlite":
		return store.NewSQLiteStore(cfg.Store.SQLitePath)
	case "postgres":
		// Run schema migrations, then verify the pool before handing the
		// connection URL to the store.
		runner, err := database.NewMigrationRunner(cfg.Database.URL(), cfg.Database.MigrationsPath, logger)
		if err != nil {
			return nil, err
		}
		defer runner.Close()
		if err := runner.Up(); err != nil {
			return nil, err
		}

		db, err := database.NewConnection(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		db.Close()

		return store.NewPostgresStoreFromURL(cfg.Database.URL())
	case "none":
		logger.Warn("Analysis persistence disabled")
		return nil, nil
	default:
		return store.NewSQLiteStore(cfg.Store.SQLitePath)
	}
}

// newExplainer wires the explanation client behind its circuit breaker and
// caches. Returns nil when no API key is configured; the analyzer then uses
// deterministic fallback narratives.
func newExplainer(cfg *domain.Config, logger *logrus.Logger) *external.ResilientExplainer {
	if cfg.Explain.APIKey == "" {
		logger.Warn("Explanation model API key not configured, using fallback narratives")
		return nil
	}

	client := external.NewExplainClient(cfg.Explain)

	var cache *external.CacheClient
	if cfg.Cache.Enabled {
		var err error
		cache, err = external.NewCacheClient(cfg.Cache)
		if err != nil {
			logger.WithError(err).Warn("Redis explanation cache unavailable, continuing without it")
			cache = nil
		}
	}

	explainer, err := external.NewResilientExplainer(logger, client, cache, cfg.Cache.MemorySize)
	if err != nil {
		logger.WithError(err).Warn("Failed to build resilient explainer, using fallback narratives")
		return nil
	}
	return explainer
}
