package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/llmquality/verbatim-api/internal/api/handler"
	"github.com/llmquality/verbatim-api/internal/api/router"
	"github.com/llmquality/verbatim-api/internal/api/storage"
	"github.com/llmquality/verbatim-api/internal/auth"
	"github.com/llmquality/verbatim-api/internal/config"
	"github.com/llmquality/verbatim-api/internal/hub"
	"github.com/llmquality/verbatim-api/internal/ingest"
	"github.com/llmquality/verbatim-api/internal/reconcile"
	"github.com/llmquality/verbatim-api/shared/logger"
	"github.com/llmquality/verbatim-api/shared/postgresql"
	"github.com/llmquality/verbatim-api/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting verbatim API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Two broker connections: one for the publish path, one owned
	// by the response consumer loop, so slow reconciliation never
	// blocks job submission
	publishClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ publisher: %w", err)
	}

	consumeClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ consumer: %w", err)
	}

	appLogger.Info("RabbitMQ connections established")

	// Initialize token verifier
	verifier, err := initVerifier(&cfg.Auth, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	// Assemble the core components
	store := storage.NewStorage(dbClient)
	registry := hub.NewRegistry(appLogger.Logger)
	pipeline := ingest.NewPipeline(appLogger.Logger, store, publishClient, cfg.RabbitMQ.Queues.Requests)
	reconciler := reconcile.NewReconciler(appLogger.Logger, store, registry)

	// Start the response consumer loop
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	go consumeClient.ConsumeLoop(consumerCtx, cfg.RabbitMQ.Queues.Responses, reconciler.HandleMessage)

	// Initialize router
	r := initRouter(cfg, &handler.Dependencies{
		Logger:    appLogger.Logger,
		Storage:   store,
		Pipeline:  pipeline,
		Registry:  registry,
		Verifier:  verifier,
		Database:  dbClient,
		Broker:    publishClient,
		WebSocket: cfg.WebSocket,
	})

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("Verbatim API service is running",
		slog.String("address", addr),
		slog.String("requests_queue", cfg.RabbitMQ.Queues.Requests),
		slog.String("responses_queue", cfg.RabbitMQ.Queues.Responses),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)

	// Cleanup function to close all resources
	cleanup := func() {
		cancel()
		stopConsumer()
		if dbClient != nil {
			dbClient.Close()
		}
		if publishClient != nil {
			publishClient.Close()
		}
		if consumeClient != nil {
			consumeClient.Close()
		}
	}
	defer cleanup()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes a RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:              cfg.Host,
		Port:              cfg.Port,
		User:              cfg.User,
		Password:          cfg.Password,
		VHost:             cfg.VHost,
		RetryAttempts:     cfg.Connection.RetryAttempts,
		RetryInterval:     cfg.Connection.RetryInterval,
		Heartbeat:         cfg.Connection.Heartbeat,
		ReconnectInterval: cfg.Connection.ReconnectInterval,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initVerifier initializes the token verifier per the configured mode
func initVerifier(cfg *config.AuthConfig, logger *slog.Logger) (auth.Verifier, error) {
	if cfg.Mode == config.AuthModeMock {
		logger.Warn("Auth running in mock mode - development use only")
		return &auth.StaticVerifier{
			Claims: auth.Claims{Subject: "dev-user", Email: "dev@example.com"},
		}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return auth.NewOIDCVerifier(ctx, auth.OIDCConfig{
		IssuerURL: cfg.IssuerURL,
		ClientID:  cfg.ClientID,
	})
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, deps *handler.Dependencies) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
