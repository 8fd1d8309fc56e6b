// services/price-ingest-service/cmd/tools/run_ingest.go

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"services/price-ingest-service/internal/client"
	"services/price-ingest-service/internal/config"
	"services/price-ingest-service/internal/model"
	"services/price-ingest-service/internal/quota"
	"services/price-ingest-service/internal/repository"
	"services/price-ingest-service/internal/service"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "../../config/config.yaml", "path to config file")
	mode := flag.String("mode", "eod", "ingestion mode: eod or intraday")
	windowMinutes := flag.Int("window", 0, "intraday lookback window in minutes (0 uses watermark/config)")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
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

	// Initialize repositories
	priceRepo := repository.NewPriceBarRepository(db, logger)
	usageRepo := repository.NewUsageRepository(db, cfg.Provider.EODSource, loc, logger)

	ctx := context.Background()
	if err := priceRepo.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure price bar schema", zap.Error(err))
	}
	if err := usageRepo.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure usage schema", zap.Error(err))
	}

	// One-shot runs share the provider budget with the running service,
	// so the same quota policy applies here
	var governor quota.Governor
	switch cfg.Quota.Policy {
	case "bucket":
		governor = quota.NewTokenBucket(cfg.Quota.MaxCallsPerMinute, cfg.Quota.MaxCallsPerDay)
	default:
		governor = quota.NewLedgerGuard(usageRepo, cfg.Quota.MaxCallsPerDay, cfg.Quota.Buffer)
	}

	tiingoClient := client.NewTiingoClient(cfg.Provider, logger)

	switch *mode {
	case "eod":
		eodService := service.NewEODService(priceRepo, usageRepo, tiingoClient, governor, service.EODConfig{
			Symbols:       cfg.Ingest.Symbols,
			Source:        cfg.Provider.EODSource,
			InitStartDate: cfg.Ingest.InitStart(),
			PacingDelay:   cfg.Ingest.PacingDelay,
			Location:      loc,
		}, logger)

		report, err := eodService.RunCycle(ctx)
		if err != nil {
			logger.Fatal("EOD cycle aborted", zap.Error(err))
		}
		logReport(logger, report.Results)
		logger.Info("EOD cycle finished", zap.Int("inserted", report.TotalInserted()))

	case "intraday":
		intervalSec, err := cfg.Ingest.ResampleSeconds()
		if err != nil {
			logger.Fatal("Invalid intraday resample", zap.Error(err))
		}
		intradayService := service.NewIntradayService(priceRepo, usageRepo, tiingoClient, governor, service.IntradayConfig{
			Symbols:     cfg.Ingest.Symbols,
			Source:      cfg.Provider.IntradaySource,
			Resample:    cfg.Ingest.IntradayResample,
			IntervalSec: intervalSec,
			Window:      cfg.Ingest.IntradayWindow,
		}, logger)

		var windowOverride *time.Duration
		if *windowMinutes > 0 {
			window := time.Duration(*windowMinutes) * time.Minute
			windowOverride = &window
		}

		report, err := intradayService.RunCycle(ctx, windowOverride)
		if err != nil {
			logger.Fatal("Intraday cycle aborted", zap.Error(err))
		}
		logReport(logger, report.Results)
		logger.Info("Intraday cycle finished", zap.Int("inserted", report.TotalInserted()))

	default:
		logger.Fatal("Unknown mode, expected eod or intraday", zap.String("mode", *mode))
	}
}

func logReport(logger *zap.Logger, results map[string]model.SymbolOutcome) {
	for symbol, outcome := range results {
		fields := []zap.Field{
			zap.String("symbol", symbol),
			zap.Int("inserted", outcome.Inserted),
		}
		if outcome.Skipped {
			fields = append(fields, zap.String("reason", outcome.Reason))
		}
		if outcome.Error != "" {
			fields = append(fields, zap.String("error", outcome.Error))
		}
		logger.Info("Symbol result", fields...)
	}
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
		Encoding:         "console", // Use console encoding for human-readable output
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
