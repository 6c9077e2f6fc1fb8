package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/go-identity/internal/credentials"
	"github.com/hugh/go-identity/internal/database"
	"github.com/hugh/go-identity/internal/mail"
	"github.com/hugh/go-identity/internal/tasks"
	"github.com/hugh/go-identity/pkg/config"
	"github.com/hugh/go-identity/pkg/queue"
	"github.com/hugh/go-identity/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting identity worker")

	nextSweep, err := util.NextCronTime(cfg.Sweep.Cron, time.Now())
	if err != nil {
		logger.Error("invalid TOKEN_SWEEP_CRON", "cron", cfg.Sweep.Cron, "error", err)
		os.Exit(1)
	}

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var sender mail.Sender = mail.LogSender{Logger: logger}
	if cfg.Mail.ServiceURL != "" {
		sender = mail.NewHTTPSender(cfg.Mail.ServiceURL, nil)
	}

	// Sweeping only deletes rows, so the store needs no sealer.
	handler := tasks.NewHandler(sender, credentials.NewGormStore(db), logger)

	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	srv := queue.NewServer(&cfg.Redis, 10, logger)
	if err := srv.Start(mux); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	scheduler := queue.NewScheduler(&cfg.Redis, logger)
	entryID, err := scheduler.Register(cfg.Sweep.Cron, tasks.NewSweepTokensTask())
	if err != nil {
		logger.Error("failed to register token sweep", "error", err)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	logger.Info("worker started, waiting for tasks...",
		"sweep_cron", cfg.Sweep.Cron,
		"sweep_entry", entryID,
		"next_sweep", nextSweep,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker...")
	scheduler.Shutdown()
	srv.Shutdown()

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
