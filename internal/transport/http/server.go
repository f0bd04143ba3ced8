package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/medchat/medchat-server/internal/auth"
	"github.com/medchat/medchat-server/internal/chat"
	"github.com/medchat/medchat-server/internal/config"
	"github.com/medchat/medchat-server/internal/realtime"
	"github.com/medchat/medchat-server/internal/store"
)

// NewServer builds the HTTP server with REST and websocket routes.
func NewServer(chatService *chat.Service, registry *realtime.Registry, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	apiHandlers := NewAPIHandlers(authService, logger)
	userHandlers := NewUserHandlers(st, logger)
	messageHandlers := NewMessageHandlers(chatService, logger)

	authLimiter := newRateLimiter(cfg.AuthRateLimit)

	api := router.Group("/api")
	{
		credentials := api.Group("", RateLimitMiddleware(authLimiter))
		credentials.POST("/register", apiHandlers.Register)
		credentials.POST("/login", apiHandlers.Login)

		authorized := api.Group("")
		authorized.Use(AuthMiddleware(authService, logger))
		{
			authorized.GET("/users/search", userHandlers.SearchUsers)
			authorized.POST("/messages", messageHandlers.SendMessage)
			authorized.GET("/messages/:userID", messageHandlers.GetHistory)
			authorized.GET("/conversations", messageHandlers.ListConversations)
		}
	}

	router.GET("/ws", gin.WrapH(NewWSHandler(registry, authService, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
