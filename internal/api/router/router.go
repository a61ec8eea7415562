package router

import (
	"github.com/gin-gonic/gin"
	"github.com/llmquality/verbatim-api/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	healthHandler := handler.NewHealthHandler(deps)
	r.GET("/health", healthHandler.Check)

	verbatimHandler := handler.NewVerbatimHandler(deps)
	wsHandler := handler.NewWSHandler(deps)

	authRequired := AuthMiddleware(deps.Verifier, deps.Logger)

	// Live notification connection; token arrives as a query param
	// since browsers cannot set headers on a WebSocket handshake
	r.GET("/ws", authRequired, wsHandler.Serve)

	// API v1 routes
	v1 := r.Group("/api/v1", authRequired)
	{
		verbatims := v1.Group("/verbatims")
		{
			// GET /api/v1/verbatims - List with filtering and pagination
			verbatims.GET("", verbatimHandler.ListVerbatims)

			// GET /api/v1/verbatims/count - Totals by status
			verbatims.GET("/count", verbatimHandler.CountVerbatims)

			// DELETE /api/v1/verbatims - Bulk delete by id
			verbatims.DELETE("", verbatimHandler.DeleteVerbatims)
		}
	}

	return r
}
