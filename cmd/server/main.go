package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/finflow/expense-approval/internal/approval"
	"github.com/finflow/expense-approval/internal/categorization"
	"github.com/finflow/expense-approval/internal/config"
	"github.com/finflow/expense-approval/internal/excelimport"
	"github.com/finflow/expense-approval/internal/importer"
	"github.com/finflow/expense-approval/internal/notification"
	"github.com/finflow/expense-approval/internal/repository"
	"github.com/finflow/expense-approval/internal/server"
	"github.com/finflow/expense-approval/internal/worker"
	"github.com/finflow/expense-approval/pkg/database"
	"github.com/finflow/expense-approval/pkg/utils"
)

func main() {
	// Pick up a local .env before viper reads the environment.
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting expense approval service",
		zap.Int("port", cfg.Server.Port))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Repositories
	userRepo := repository.NewUserRepository(db.DB, logger)
	requestRepo := repository.NewRequestRepository(db.DB, logger)
	importRepo := repository.NewImportRepository(db.DB, logger)
	keywordRepo := repository.NewKeywordRepository(db.DB, logger)
	notificationRepo := repository.NewNotificationRepository(db.DB, logger)

	// Excel parsing
	parser, err := excelimport.NewParser(cfg.Import.Timezone, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Excel parser", zap.Error(err))
	}

	// Services
	dispatcher := notification.NewDispatcher(
		notificationRepo, userRepo, requestRepo, cfg.Notification.BatchWindow, logger)

	categorizer := categorization.NewService(requestRepo, keywordRepo, logger)

	importService := importer.NewService(
		importRepo, requestRepo, userRepo, db, parser, keywordRepo, dispatcher,
		importer.Config{
			MaxFileSize:      cfg.Import.MaxFileSize,
			MaxRows:          cfg.Import.MaxRows,
			MaxFilesPerBatch: cfg.Import.MaxFilesPerBatch,
		}, logger)

	approvalService := approval.NewService(requestRepo, categorizer, dispatcher, logger)

	// Background workers
	retryWorker := worker.NewImportRetryWorker(
		importService.NotifyImport, importRepo,
		cfg.Import.RetryAttempts, cfg.Import.RetryBackoff, logger)
	importService.SetRetryQueue(retryWorker)

	workerManager := worker.NewManager(logger)
	workerManager.Register(retryWorker)
	workerManager.Register(worker.NewImportCleanupWorker(
		importRepo, 30*24*time.Hour, 24*time.Hour, logger))
	if err := workerManager.StartAll(context.Background()); err != nil {
		logger.Fatal("Failed to start background workers", zap.Error(err))
	}

	// HTTP server
	handlers := server.NewHandlers(
		importService, approvalService, categorizer, parser,
		importRepo, requestRepo, notificationRepo,
		cfg.Import.ValidateMaxRows, cfg.Import.ValidateMaxTotal, logger)

	srv := server.New(server.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, handlers, userRepo, logger)

	// Start blocks until the context is cancelled by a shutdown signal.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.Error("Server failed", zap.Error(err))
	}

	workerManager.StopAll()
	logger.Info("Shutdown complete")
}
