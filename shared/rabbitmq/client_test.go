package rabbitmq

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// deadClient mimics a client whose broker went away after the
// initial dial: no live connection, address unreachable.
func deadClient() *Client {
	return &Client{
		config: &Config{
			Host:          "127.0.0.1",
			Port:          1,
			User:          "guest",
			Password:      "guest",
			VHost:         "/",
			RetryAttempts: 1,
			RetryInterval: 10 * time.Millisecond,
		},
		logger: testLogger(),
	}
}

func TestPublish_RedialsDeadConnection(t *testing.T) {
	client := deadClient()

	err := client.Publish(context.Background(), "worker_requests", []byte(`{}`))

	// The failure must come from a fresh dial attempt, not from
	// giving up on stale connection state: once the broker is back,
	// the next Publish succeeds without a process restart.
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to RabbitMQ")
	assert.False(t, client.IsConnected())
}

func TestPublish_RetriesOnEveryCall(t *testing.T) {
	client := deadClient()

	first := client.Publish(context.Background(), "worker_requests", []byte(`{}`))
	second := client.Publish(context.Background(), "worker_requests", []byte(`{}`))

	require.Error(t, first)
	require.Error(t, second)
	assert.Contains(t, second.Error(), "failed to connect to RabbitMQ")
}

func TestIsConnected_NilConnection(t *testing.T) {
	client := deadClient()
	assert.False(t, client.IsConnected())
}
