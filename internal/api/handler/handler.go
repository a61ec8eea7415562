package handler

import (
	"context"
	"log/slog"

	"github.com/llmquality/verbatim-api/internal/api/storage"
	"github.com/llmquality/verbatim-api/internal/auth"
	"github.com/llmquality/verbatim-api/internal/config"
	"github.com/llmquality/verbatim-api/internal/hub"
	"github.com/llmquality/verbatim-api/internal/ingest"
)

// HealthChecker reports whether a backing dependency is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConnectionChecker reports whether a long-lived connection is up
type ConnectionChecker interface {
	IsConnected() bool
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Storage   *storage.Storage
	Pipeline  *ingest.Pipeline
	Registry  *hub.Registry
	Verifier  auth.Verifier
	Database  HealthChecker
	Broker    ConnectionChecker
	WebSocket config.WebSocketConfig
}

// VerbatimHandler handles verbatim-related HTTP requests
type VerbatimHandler struct {
	logger  *slog.Logger
	storage *storage.Storage
}

// NewVerbatimHandler creates a new VerbatimHandler instance
func NewVerbatimHandler(deps *Dependencies) *VerbatimHandler {
	return &VerbatimHandler{
		logger:  deps.Logger,
		storage: deps.Storage,
	}
}
