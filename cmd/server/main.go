package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/go-identity/internal/api"
	"github.com/hugh/go-identity/internal/api/middleware"
	"github.com/hugh/go-identity/internal/auth"
	"github.com/hugh/go-identity/internal/credentials"
	"github.com/hugh/go-identity/internal/database"
	"github.com/hugh/go-identity/internal/directory"
	"github.com/hugh/go-identity/internal/mail"
	"github.com/hugh/go-identity/internal/tasks"
	"github.com/hugh/go-identity/pkg/config"
	"github.com/hugh/go-identity/pkg/crypto"
	"github.com/hugh/go-identity/pkg/queue"
	"github.com/hugh/go-identity/pkg/util"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
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

	logger.Info("starting identity server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}
	if err := database.SeedGroups(context.Background(), db); err != nil {
		logger.Error("failed to seed groups", "error", err)
		os.Exit(1)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis, tokens are served from the database only", "error", err)
		redisClient.Close()
		redisClient = nil
	}

	// Token storage: database rows, optionally sealed, fronted by Redis when available
	var storeOpts []credentials.Option
	if cfg.Auth.EncryptionKey != "" {
		sealer, err := crypto.NewSealer(cfg.Auth.EncryptionKey)
		if err != nil {
			logger.Error("failed to create sealer", "error", err)
			os.Exit(1)
		}
		storeOpts = append(storeOpts, credentials.WithSealer(sealer))
	}
	gormStore := credentials.NewGormStore(db, storeOpts...)

	var tokens credentials.Store = gormStore
	dirOpts := []directory.Option{
		directory.WithBcryptCost(cfg.Auth.BcryptCost),
		directory.WithLogger(logger),
	}
	if redisClient != nil {
		cache := credentials.NewRedisCache(gormStore, redisClient, logger)
		tokens = cache
		dirOpts = append(dirOpts, directory.WithEvicter(cache))
	}
	users := directory.New(db, dirOpts...)

	// Mail goes through the worker when both Redis and a mail service are configured
	var mailer mail.Sender = mail.LogSender{Logger: logger}
	var asynqClient *asynq.Client
	switch {
	case cfg.Mail.ServiceURL != "" && redisClient != nil:
		asynqClient = queue.NewClient(&cfg.Redis)
		mailer = tasks.NewMailQueue(asynqClient)
	case cfg.Mail.ServiceURL != "":
		mailer = mail.NewHTTPSender(cfg.Mail.ServiceURL, nil)
	default:
		logger.Warn("MAIL_SERVICE_URL not set, emails are only logged")
	}

	// Initialize services
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(users, tokens, jwtService,
		auth.WithMailer(mailer),
		auth.WithLogger(logger),
		auth.WithResetExpiry(cfg.Auth.ForgotPasswordExpiry()),
		auth.WithBcryptCost(cfg.Auth.BcryptCost),
		auth.WithDefaultCompany(cfg.Auth.DefaultCompanyID),
		auth.WithInviteLink(cfg.Mail.StartWorkingHost),
	)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.WindowSeconds)

	// Create router
	router := api.NewRouter(api.RouterConfig{
		DB:             db,
		Redis:          redisClient,
		Logger:         logger,
		AuthService:    authService,
		Verifier:       authService,
		Users:          users,
		AllowedOrigins: cfg.CORS.Origins,
		RateLimiter:    limiter,
		TrustProxy:     cfg.Server.TrustProxy,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Drop idle rate limiter buckets
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.RateLimit.WindowSeconds) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Prune()
			}
		}
	}()

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if asynqClient != nil {
		asynqClient.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}
