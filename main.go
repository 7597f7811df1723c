package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/martforge/martforge/pkg/apperrors"
	"github.com/martforge/martforge/pkg/config"
	"github.com/martforge/martforge/pkg/database"
	"github.com/martforge/martforge/pkg/logging"
	"github.com/martforge/martforge/pkg/repositories"
	"github.com/martforge/martforge/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("warehouse", logging.SanitizeConnectionString(cfg.Warehouse.URL())),
		zap.String("erp_driver", cfg.Sources.ERPDriver))

	// Cancel the run on SIGINT/SIGTERM; aborts take effect between stages and
	// never leave the published output partial.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, logger))
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) int {
	db, err := database.NewConnection(ctx, cfg.Warehouse.URL(), cfg.Warehouse.MaxConnections)
	if err != nil {
		logger.Error("Failed to connect to warehouse", zap.String("error", logging.SanitizeError(err)))
		return 1
	}
	defer db.Close()

	// Migrations run over database/sql; the pipeline itself uses pgx.
	migrationDB, err := sql.Open("pgx", cfg.Warehouse.URL())
	if err != nil {
		logger.Error("Failed to open migration connection", zap.String("error", logging.SanitizeError(err)))
		return 1
	}
	defer migrationDB.Close()
	if err := database.RunMigrations(migrationDB, cfg.Pipeline.MigrationsPath, logger); err != nil {
		logger.Error("Failed to run migrations", zap.String("error", logging.SanitizeError(err)))
		return 1
	}

	var erpDB *sql.DB
	if cfg.Sources.ERPDriver == "sqlserver" {
		erpDB, err = sql.Open("sqlserver", cfg.Sources.ERPDSN)
		if err != nil {
			logger.Error("Failed to open ERP connection", zap.String("error", logging.SanitizeError(err)))
			return 1
		}
		defer erpDB.Close()
	}

	rawStore := repositories.NewRawStoreRepository(db, erpDB)
	warehouse := repositories.NewWarehouseRepository(db, cfg.Pipeline.StagingSuffix)
	runs := repositories.NewRunRepository(db)

	pipeline, err := services.NewPipelineService(db, rawStore, warehouse, runs, cfg.Pipeline.LockKey, logger)
	if err != nil {
		logger.Error("Failed to build pipeline", zap.Error(err))
		return 1
	}

	report, err := pipeline.Run(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrRunInProgress) {
			logger.Error("Another pipeline run holds the lock; refusing to start")
			return 2
		}
		logger.Error("Pipeline run failed to start", zap.String("error", logging.SanitizeError(err)))
		return 1
	}

	if !report.Succeeded() {
		return 1
	}
	return 0
}
