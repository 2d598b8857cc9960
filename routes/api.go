package routes

import (
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/catscratch/catbot/environments"
	"github.com/catscratch/catbot/handlers"
	"github.com/catscratch/catbot/internal/middlewares"
)

// RegisterRoutes registers all API routes with middleware
func RegisterRoutes(
	e *echo.Echo,
	healthHandler *handlers.HealthHandler,
	messageHandler *handlers.MessageHandler,
	schedulerHandler *handlers.SchedulerHandler,
	interactionHandler *handlers.InteractionHandler,
	cfg *environments.Config,
) {
	e.GET("/health", healthHandler.Health)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// API v1 base group
	v1 := e.Group("/api/v1")

	// Message routes with their own API key
	messages := v1.Group("/messages", middlewares.APIKeyAuth(cfg.Auth.MessagesAPIKey))

	messages.GET("", messageHandler.GetAllMessages)
	messages.POST("", messageHandler.CreateMessage)
	messages.GET("/stats", messageHandler.GetStats)
	messages.GET("/:id", messageHandler.GetMessage)
	messages.PUT("/:id", messageHandler.UpdateMessage)
	messages.DELETE("/:id", messageHandler.DeleteMessage)
	messages.POST("/:id/send", messageHandler.SendMessageNow)
	messages.GET("/:id/tally", messageHandler.GetTally)

	// Inbound platform events with their own API key
	interactions := v1.Group("/interactions", middlewares.APIKeyAuth(cfg.Auth.EventsAPIKey))

	interactions.POST("", interactionHandler.HandleInteraction)

	// Scheduler routes with their own API key
	schedulerGroup := v1.Group("/scheduler", middlewares.APIKeyAuth(cfg.Auth.SchedulerAPIKey))

	schedulerGroup.GET("/status", schedulerHandler.GetStatus)
	schedulerGroup.POST("/rehydrate", schedulerHandler.Rehydrate)
}
