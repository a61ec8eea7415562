package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "llm4quality", cfg.Database.Database)
				assert.Equal(t, "worker_requests", cfg.RabbitMQ.Queues.Requests)
				assert.Equal(t, "worker_responses", cfg.RabbitMQ.Queues.Responses)
				assert.Equal(t, 5*time.Second, cfg.RabbitMQ.Connection.ReconnectInterval)
				assert.Equal(t, "verbatim-api", cfg.App.Name)
				assert.Equal(t, "mock", cfg.Auth.Mode)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "llm4quality",
		},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
			Queues: QueuesConfig{
				Requests:  "worker_requests",
				Responses: "worker_responses",
			},
		},
		Auth: AuthConfig{Mode: AuthModeMock},
		Worker: WorkerConfig{
			Concurrency: 4,
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "missing requests queue",
			mutate:    func(c *Config) { c.RabbitMQ.Queues.Requests = "" },
			wantErr:   true,
			errString: "requests queue name is required",
		},
		{
			name:      "missing responses queue",
			mutate:    func(c *Config) { c.RabbitMQ.Queues.Responses = "" },
			wantErr:   true,
			errString: "responses queue name is required",
		},
		{
			name: "oidc mode requires issuer",
			mutate: func(c *Config) {
				c.Auth = AuthConfig{Mode: AuthModeOIDC, ClientID: "verbatim-api"}
			},
			wantErr:   true,
			errString: "auth issuer_url is required",
		},
		{
			name: "oidc mode requires client id",
			mutate: func(c *Config) {
				c.Auth = AuthConfig{Mode: AuthModeOIDC, IssuerURL: "https://idp.example.com"}
			},
			wantErr:   true,
			errString: "auth client_id is required",
		},
		{
			name: "empty auth mode behaves like oidc",
			mutate: func(c *Config) {
				c.Auth = AuthConfig{
					IssuerURL: "https://idp.example.com",
					ClientID:  "verbatim-api",
				}
			},
			wantErr: false,
		},
		{
			name:      "unknown auth mode",
			mutate:    func(c *Config) { c.Auth.Mode = "basic" },
			wantErr:   true,
			errString: "invalid auth mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			wantErr:   true,
			errString: "worker concurrency must be greater than 0",
		},
		{
			name:      "missing rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "missing requests queue",
			mutate:    func(c *Config) { c.RabbitMQ.Queues.Requests = "" },
			wantErr:   true,
			errString: "requests queue name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
