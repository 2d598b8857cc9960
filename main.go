package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/catscratch/catbot/environments"
	"github.com/catscratch/catbot/handlers"
	"github.com/catscratch/catbot/internal/clock"
	"github.com/catscratch/catbot/internal/poll"
	"github.com/catscratch/catbot/internal/repository"
	"github.com/catscratch/catbot/internal/scheduler"
	"github.com/catscratch/catbot/internal/service"
	"github.com/catscratch/catbot/internal/session"
	"github.com/catscratch/catbot/pkg/chat"
	"github.com/catscratch/catbot/pkg/database"
	"github.com/catscratch/catbot/pkg/logger"
	"github.com/catscratch/catbot/pkg/redis"
	"github.com/catscratch/catbot/pkg/validator"
	"github.com/catscratch/catbot/routes"

	_ "github.com/catscratch/catbot/docs" // swagger docs
)

// @title Catbot Scheduler API
// @version 1.0
// @description Scheduling and poll-voting service for chat-platform messages

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @schemes http https
func main() {
	logger.Init()

	// Load config
	cfg := environments.Load()

	// Hard-fail if required secrets are missing
	if cfg.Chat.BotToken == "" {
		logger.Fatalf("CHAT_BOT_TOKEN is required but not set")
	}
	if cfg.Auth.MessagesAPIKey == "" {
		logger.Fatalf("MESSAGES_API_KEY is required but not set")
	}
	if cfg.Auth.SchedulerAPIKey == "" {
		logger.Fatalf("SCHEDULER_API_KEY is required but not set")
	}
	if cfg.Auth.EventsAPIKey == "" {
		logger.Fatalf("EVENTS_API_KEY is required but not set")
	}

	logger.Infof("Starting Catbot Scheduler...")

	// All schedule math happens in the reference timezone.
	clk, err := clock.New(cfg.Schedule.Timezone)
	if err != nil {
		logger.Fatalf("Failed to load reference timezone: %v", err)
	}

	// Init DB; an unreachable database degrades to an in-memory store
	// instead of refusing to boot.
	var db *sqlx.DB
	var repo repository.Store

	db, err = database.NewMySQLDB(cfg.Database)
	if err != nil {
		logger.Warnf("Database not available, falling back to in-memory store: %v", err)
		db = nil
		repo = repository.NewMemoryRepository()
	} else {
		if err := database.RunMigrations(db); err != nil {
			logger.Fatalf("Failed to run migrations: %v", err)
		}
		if os.Getenv("SEED_DATA") == "true" {
			if err := database.SeedTestData(db); err != nil {
				logger.Warnf("Failed to seed test data: %v", err)
			}
		}
		repo = repository.NewMessageRepository(db)
	}

	// Init redis; caching is optional.
	redisClient, err := redis.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Warnf("Redis not available, caching disabled: %v", err)
		redisClient = nil
	}

	// Chat platform client
	chatClient := chat.NewClient(cfg.Chat)
	logger.Infof("Chat API configured: %s", chatClient.GetURL())

	// Vote tracker and draft sessions
	tracker := poll.NewTracker(repo)
	drafts := session.NewStore(cfg.Session.TTL)

	// Service and schedule engine reference each other; wire the engine in
	// after construction.
	messageService := service.NewMessageService(
		repo,
		chatClient,
		redisClient,
		tracker,
		drafts,
		clk,
		cfg.Schedule.DeliveryTimeout,
	)

	engine := scheduler.NewEngine(clk, messageService, repo)
	messageService.SetEngine(engine)

	// Rebuild timers from the store.
	rehydrateCtx, rehydrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := engine.RehydrateAll(rehydrateCtx); err != nil {
		logger.Errorf("Rehydration failed: %v", err)
	}
	rehydrateCancel()

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, redisClient)
	messageHandler := handlers.NewMessageHandler(messageService)
	schedulerHandler := handlers.NewSchedulerHandler(engine)
	interactionHandler := handlers.NewInteractionHandler(messageService)

	e := echo.New()
	e.HideBanner = true
	e.Validator = validator.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			"x-catbot-key",
		},
	}))

	// Setup routes
	routes.RegisterRoutes(e, healthHandler, messageHandler, schedulerHandler, interactionHandler, cfg)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Infof("Server starting on http://localhost%s", addr)
		logger.Infof("Swagger docs available at http://localhost%s/swagger/index.html", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down gracefully...")

	// Stop the schedule engine first so no delivery fires mid-shutdown.
	logger.Infof("Stopping schedule engine...")
	engine.Stop()

	// Stop the session janitor.
	drafts.Close()

	// Shutdown HTTP server (with timeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Infof("Shutting down HTTP server...")
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	} else {
		logger.Infof("HTTP server stopped successfully")
	}

	// Close database connection
	if db != nil {
		logger.Infof("Closing database connection...")
		if err := db.Close(); err != nil {
			logger.Errorf("Error closing database: %v", err)
		}
	}

	// Close Redis connection
	if redisClient != nil {
		logger.Infof("Closing Redis connection...")
		if err := redisClient.Close(); err != nil {
			logger.Errorf("Error closing Redis: %v", err)
		}
	}

	logger.Infof("Graceful shutdown completed")
}
