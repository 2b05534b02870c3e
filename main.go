// Package main provides the main entry point for the document numbering service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/amirphl/docnum/app/handlers"
	"github.com/amirphl/docnum/app/router"
	businessflow "github.com/amirphl/docnum/business_flow"
	"github.com/amirphl/docnum/config"
	"github.com/amirphl/docnum/migrations"
	"github.com/amirphl/docnum/repository"
	"github.com/amirphl/docnum/utils"
	"github.com/cockroachdb/pebble"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	logger    hclog.Logger
	metrics   *http.Server
	stopFuncs []func()
}

func main() {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := utils.NewLogger(utils.LogOptions{
		Name:       "docnum",
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	})
	logger.Info("starting document numbering service", "sequence_backend", cfg.Sequence.Backend)

	app, err := initializeApplication(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		logger.Info("server starting", "address", address)
		serverErr <- app.router.Start(address)
	}()

	if app.metrics != nil {
		go func() {
			logger.Info("metrics server starting", "address", app.metrics.Addr)
			if err := app.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	select {
	case sig := <-sigChan:
		logger.Info("shutting down gracefully", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			logger.Error("server stopped unexpectedly", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.router.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
	}
	if app.metrics != nil {
		if err := app.metrics.Shutdown(shutdownCtx); err != nil {
			logger.Error("error stopping metrics server", "error", err)
		}
	}

	// Release resources in reverse order of acquisition
	for i := len(app.stopFuncs) - 1; i >= 0; i-- {
		app.stopFuncs[i]()
	}

	logger.Info("server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig, logger hclog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.New(
			logger.Named("gorm").StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true}),
			gormlogger.Config{
				SlowThreshold:             cfg.SlowQueryTime,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		"max_open_conns", cfg.MaxOpenConns,
		"max_idle_conns", cfg.MaxIdleConns,
	)

	return db, nil
}

// migrateDatabase applies the embedded schema over a dedicated lib/pq connection
func migrateDatabase(cfg config.DatabaseConfig, logger hclog.Logger) error {
	db, err := migrations.Open(cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()
	return migrations.Apply(db, logger.Named("migrations"))
}

// initializeCache initializes the redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig, required bool, logger hclog.Logger) (*redis.Client, error) {
	if !cfg.Enabled && !required {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis connection established", "db", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor periodically pings redis so connectivity loss shows up in the logs
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration, logger hclog.Logger) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					logger.Warn("redis healthcheck failed", "error", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeSequenceStore selects the counter and history backend
func initializeSequenceStore(cfg *config.ProductionConfig, db *gorm.DB, rc *redis.Client) (repository.SequenceStore, func(), error) {
	switch cfg.Sequence.Backend {
	case config.BackendRedis:
		return repository.NewRedisSequenceStore(rc, cfg.Cache.RedisPrefix+":"), func() {}, nil
	case config.BackendPebble:
		if err := os.MkdirAll(filepath.Dir(cfg.Sequence.PebbleDir), 0o750); err != nil {
			return nil, nil, fmt.Errorf("failed to create pebble directory: %w", err)
		}
		store, err := repository.OpenPebbleSequenceStore(cfg.Sequence.PebbleDir, &pebble.Options{})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return repository.NewSQLSequenceStore(db), func() {}, nil
	}
}

// initializeAuditSink writes audit events to the database and, when brokers are configured, to Kafka
func initializeAuditSink(cfg config.EventsConfig, repo repository.AuditLogRepository, logger hclog.Logger) (businessflow.AuditSink, func(), error) {
	dbSink := businessflow.NewRepositoryAuditSink(repo)
	if !cfg.Enabled() {
		return dbSink, func() {}, nil
	}

	kafkaSink, err := businessflow.NewKafkaAuditSink(cfg.Brokers, cfg.Topic, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize kafka audit sink: %w", err)
	}
	return businessflow.NewMultiAuditSink(dbSink, kafkaSink), kafkaSink.Close, nil
}

func initializeApplication(cfg *config.ProductionConfig, logger hclog.Logger) (*Application, error) {
	app := &Application{config: cfg, logger: logger}

	utils.SetLocalLocation(utils.LoadLocation(cfg.Locale.Timezone, utils.DefaultTimezoneOffset))
	logger.Info("business timezone configured", "timezone", utils.LocalLocation().String())

	if cfg.Database.AutoMigrate {
		if err := migrateDatabase(cfg.Database, logger); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	db, err := initializeDatabase(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	app.stopFuncs = append(app.stopFuncs, func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	rc, err := initializeCache(cfg.Cache, cfg.Sequence.Backend == config.BackendRedis, logger)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		app.stopFuncs = append(app.stopFuncs,
			startCacheHealthMonitor(context.Background(), rc, 30*time.Second, logger),
			func() { _ = rc.Close() },
		)
	}

	store, closeStore, err := initializeSequenceStore(cfg, db, rc)
	if err != nil {
		return nil, err
	}
	app.stopFuncs = append(app.stopFuncs, closeStore)

	documentTypeRepo := repository.NewDocumentTypeRepository(db)

	if cfg.DocumentTypes.Seed != "" {
		seeds, err := businessflow.ParseDocumentTypeSeeds(cfg.DocumentTypes.Seed)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		created, err := businessflow.SeedDocumentTypes(ctx, db, documentTypeRepo, seeds, logger)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to seed document types: %w", err)
		}
		logger.Info("document types seeded", "created", created, "configured", len(seeds))
	}

	// Only the registry cache uses redis when the cache is enabled
	var registryCache *redis.Client
	if cfg.Cache.Enabled {
		registryCache = rc
	}
	registry := businessflow.NewDocumentTypeRegistry(documentTypeRepo, businessflow.DocumentTypeRegistryOptions{
		Cache:       registryCache,
		CachePrefix: cfg.Cache.RedisPrefix,
		CacheTTL:    cfg.Cache.DocumentTypeTTL,
		Logger:      logger,
	})

	auditRepo := repository.NewAuditLogRepository(db)
	audit, closeAudit, err := initializeAuditSink(cfg.Events, auditRepo, logger)
	if err != nil {
		return nil, err
	}
	app.stopFuncs = append(app.stopFuncs, closeAudit)

	numberFlow := businessflow.NewNumberFlow(store, registry, businessflow.NumberFlowOptions{
		MaxAttempts:     cfg.Sequence.MaxAttempts,
		RetryBackoff:    cfg.Sequence.RetryBackoff,
		RetryBackoffMax: cfg.Sequence.RetryBackoffMax,
		MinYear:         cfg.Locale.MinYear,
		MaxYear:         cfg.Locale.MaxYear,
		Logger:          logger,
		Audit:           audit,
	})
	historyFlow := businessflow.NewHistoryFlow(store, businessflow.HistoryFlowOptions{
		DefaultPageSize: cfg.History.DefaultPageSize,
		MaxPageSize:     cfg.History.MaxPageSize,
		ExportLimit:     cfg.History.ExportLimit,
		Logger:          logger,
	})

	health := map[string]router.HealthChecker{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if rc != nil {
		health["redis"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
	}

	app.router = router.NewFiberRouter(
		router.Config{
			BodyLimit:      cfg.Server.BodyLimit,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			IdleTimeout:    cfg.Server.IdleTimeout,
			AllowOrigins:   cfg.Server.AllowedOrigins,
			APIRateLimit:   cfg.Server.GlobalRateLimit,
			GenerateLimit:  cfg.Server.GenerateLimit,
			GenerateWindow: cfg.Server.GenerateWindow,
			AccessLog:      cfg.Logging.EnableAccessLog,
		},
		router.Handlers{
			Numbers:       handlers.NewNumberHandler(numberFlow, logger),
			History:       handlers.NewHistoryHandler(historyFlow, logger),
			DocumentTypes: handlers.NewDocumentTypeHandler(registry, logger),
			Audit:         handlers.NewAuditHandler(businessflow.NewAuditFlow(auditRepo), logger),
		},
		health,
		logger,
	)

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		app.metrics = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return app, nil
}
