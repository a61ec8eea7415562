package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports service health including backing dependencies
type HealthHandler struct {
	logger   *slog.Logger
	database HealthChecker
	broker   ConnectionChecker
}

// NewHealthHandler creates a new HealthHandler instance
func NewHealthHandler(deps *Dependencies) *HealthHandler {
	return &HealthHandler{
		logger:   deps.Logger,
		database: deps.Database,
		broker:   deps.Broker,
	}
}

// Check handles GET /health
func (h *HealthHandler) Check(c *gin.Context) {
	status := http.StatusOK
	dbStatus := "up"
	brokerStatus := "up"

	if h.database != nil {
		if err := h.database.HealthCheck(c.Request.Context()); err != nil {
			h.logger.Error("Database health check failed", slog.String("error", err.Error()))
			dbStatus = "down"
			status = http.StatusServiceUnavailable
		}
	}

	if h.broker != nil && !h.broker.IsConnected() {
		brokerStatus = "down"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":   statusWord(status),
		"service":  "verbatim-api",
		"database": dbStatus,
		"rabbitmq": brokerStatus,
	})
}

func statusWord(code int) string {
	if code == http.StatusOK {
		return "healthy"
	}
	return "unhealthy"
}
