package http

import (
	"github.com/gin-gonic/gin"

	"github.com/layer-3/authgate/service"
)

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	// Create handlers
	handlers := NewAuthHandlers(authService)

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.POST("/challenge", handlers.Challenge)
		auth.POST("/authenticate", handlers.Authenticate)
		auth.POST("/logout", handlers.Logout)
	}

	// Protected routes
	users := router.Group("/users")
	users.Use(AuthMiddleware(authService))
	{
		users.GET("/me", handlers.Me)
	}

	return router
}
