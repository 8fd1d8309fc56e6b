package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"services/price-ingest-service/internal/client"
	"services/price-ingest-service/internal/config"
	"services/price-ingest-service/internal/events"
	"services/price-ingest-service/internal/handler"
	"services/price-ingest-service/internal/middleware"
	"services/price-ingest-service/internal/quota"
	"services/price-ingest-service/internal/repository"
	"services/price-ingest-service/internal/scheduler"
	"services/price-ingest-service/internal/service"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

func main() {
	// Load configuration; invalid configuration fails here, before any
	// scheduler job is registered
	cfg, err := config.LoadConfig("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Set up logger
	logger, err := createLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Connect to database
	db, err := connectToDB(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	loc := cfg.Ingest.Location()

	// Initialize repositories and ensure schema once at startup
	priceRepo := repository.NewPriceBarRepository(db, logger)
	usageRepo := repository.NewUsageRepository(db, cfg.Provider.EODSource, loc, logger)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()
	if err := priceRepo.EnsureSchema(startupCtx); err != nil {
		logger.Fatal("Failed to ensure price bar schema", zap.Error(err))
	}
	if err := usageRepo.EnsureSchema(startupCtx); err != nil {
		logger.Fatal("Failed to ensure usage schema", zap.Error(err))
	}

	// Select the quota policy
	var governor quota.Governor
	switch cfg.Quota.Policy {
	case "bucket":
		governor = quota.NewTokenBucket(cfg.Quota.MaxCallsPerMinute, cfg.Quota.MaxCallsPerDay)
	default:
		governor = quota.NewLedgerGuard(usageRepo, cfg.Quota.MaxCallsPerDay, cfg.Quota.Buffer)
	}
	logger.Info("Quota governor configured",
		zap.String("policy", cfg.Quota.Policy),
		zap.Int("daily_limit", cfg.Quota.MaxCallsPerDay),
		zap.Int("buffer", cfg.Quota.Buffer))

	// Initialize provider client
	tiingoClient := client.NewTiingoClient(cfg.Provider, logger)

	// Initialize services
	retryPolicy := service.DefaultRetryPolicy()
	eodService := service.NewEODService(priceRepo, usageRepo, tiingoClient, governor, service.EODConfig{
		Symbols:       cfg.Ingest.Symbols,
		Source:        cfg.Provider.EODSource,
		InitStartDate: cfg.Ingest.InitStart(),
		PacingDelay:   cfg.Ingest.PacingDelay,
		Location:      loc,
		Retry:         retryPolicy,
	}, logger)

	intervalSec, err := cfg.Ingest.ResampleSeconds()
	if err != nil {
		intervalSec = 60
	}
	intradayService := service.NewIntradayService(priceRepo, usageRepo, tiingoClient, governor, service.IntradayConfig{
		Symbols:     cfg.Ingest.Symbols,
		Source:      cfg.Provider.IntradaySource,
		Resample:    cfg.Ingest.IntradayResample,
		IntervalSec: intervalSec,
		Window:      cfg.Ingest.IntradayWindow,
		Retry:       retryPolicy,
	}, logger)

	usageService := service.NewUsageService(usageRepo, cfg.Quota.MaxCallsPerDay, cfg.Quota.Buffer, logger)
	priceQueryService := service.NewPriceQueryService(
		priceRepo,
		cfg.Ingest.Symbols,
		cfg.Provider.EODSource,
		cfg.Provider.IntradaySource,
		intervalSec,
		logger,
	)

	// Optional run-report publishing
	publisher := events.NewPublisher(cfg.Kafka.BrokerList(), cfg.Kafka.ClientID, cfg.Kafka.RunReportsTopic, logger)
	defer publisher.Close()

	// Set up the scheduler
	sched := scheduler.New(loc, logger)

	eodJob := func() {
		report, err := eodService.RunCycle(context.Background())
		if err != nil {
			logger.Error("Scheduled EOD cycle aborted", zap.Error(err))
		}
		if report != nil {
			logger.Info("Scheduled EOD cycle finished",
				zap.Int("inserted", report.TotalInserted()),
				zap.Strings("failed", report.Failed()))
			publisher.PublishRunReport(context.Background(), report)
		}
	}
	if cfg.Ingest.EODCron != "" {
		if err := sched.ScheduleCron(scheduler.JobEOD, cfg.Ingest.EODCron, eodJob); err != nil {
			logger.Fatal("Failed to schedule EOD job", zap.Error(err))
		}
	} else {
		if err := sched.ScheduleEvery(scheduler.JobEOD, cfg.Ingest.EODInterval, eodJob); err != nil {
			logger.Fatal("Failed to schedule EOD job", zap.Error(err))
		}
	}

	intradayInterval := service.IntradayInterval(service.CadencePolicy{
		SymbolCount: len(cfg.Ingest.Symbols),
		HourlyLimit: cfg.Quota.MaxCallsPerHour,
		DailyLimit:  cfg.Quota.MaxCallsPerDay,
		Buffer:      cfg.Quota.Buffer,
		Floor:       cfg.Ingest.IntradayInterval,
	})
	startIntraday := func() error {
		return sched.ScheduleEvery(scheduler.JobIntraday, intradayInterval, func() {
			report, err := intradayService.RunCycle(context.Background(), nil)
			if err != nil {
				logger.Error("Scheduled intraday cycle aborted", zap.Error(err))
			}
			if report != nil {
				publisher.PublishRunReport(context.Background(), report)
			}
		})
	}
	if cfg.Ingest.IntradayEnabled {
		if err := startIntraday(); err != nil {
			logger.Fatal("Failed to schedule intraday job", zap.Error(err))
		}
		logger.Info("Intraday polling scheduled",
			zap.Duration("interval", intradayInterval),
			zap.Int("symbols", len(cfg.Ingest.Symbols)))
	} else {
		logger.Info("Intraday polling disabled")
	}

	sched.Start()

	// Initialize handlers
	ingestHandler := handler.NewIngestHandler(eodService, intradayService, sched, startIntraday, logger)
	priceHandler := handler.NewPriceHandler(priceQueryService, logger)
	statusHandler := handler.NewStatusHandler(priceRepo, usageService, eodService, governor, sched, logger)

	// Set up HTTP server with Gin
	router := setupRouter(ingestHandler, priceHandler, statusHandler, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop triggering new cycles; in-flight cycles are abandoned, the
	// idempotent upserts make their replay safe on next start
	sched.Stop()

	// Create a deadline for server shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited properly")
}

func createLogger(level string) (*zap.Logger, error) {
	// Parse log level
	var zapLevel zap.AtomicLevel
	switch level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	// Create logger config
	config := zap.Config{
		Level:            zapLevel,
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}

func connectToDB(dbConfig config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.DBName,
		dbConfig.SSLMode,
	)

	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(dbConfig.MaxOpenConns)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	return db, nil
}

func setupRouter(
	ingestHandler *handler.IngestHandler,
	priceHandler *handler.PriceHandler,
	statusHandler *handler.StatusHandler,
	logger *zap.Logger,
) *gin.Engine {
	router := gin.New()

	// Use middlewares
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	// Health and observability
	router.GET("/healthz", statusHandler.Healthz)
	router.GET("/usage", statusHandler.GetUsage)
	router.GET("/limits", statusHandler.GetLimits)

	prices := router.Group("/prices")
	{
		prices.POST("/sync", ingestHandler.SyncEOD)
		prices.POST("/intraday/sync", ingestHandler.SyncIntraday)

		prices.GET("/latest", priceHandler.GetLatest)
		prices.GET("/history", priceHandler.GetHistory)
		prices.GET("/intraday/history", priceHandler.GetIntradayHistory)
	}

	// Intraday daemon control
	daemon := router.Group("/daemon")
	{
		daemon.POST("/start", ingestHandler.StartDaemon)
		daemon.POST("/stop", ingestHandler.StopDaemon)
		daemon.GET("/status", ingestHandler.DaemonStatus)
	}

	return router
}
