package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config holds RabbitMQ connection configuration
type Config struct {
	Host              string
	Port              int
	User              string
	Password          string
	VHost             string
	RetryAttempts     int
	RetryInterval     time.Duration
	Heartbeat         time.Duration
	ReconnectInterval time.Duration
}

// Handler is invoked once per delivered message. Deliveries are
// acknowledged on receipt, so a handler error cannot trigger a
// redelivery; handlers log and absorb their own failures.
type Handler func(ctx context.Context, body []byte)

// Client wraps one AMQP connection used either for publishing job
// requests or for running a consumer loop. Queues live on the
// default exchange and are declared durable, so messages survive a
// broker restart.
type Client struct {
	config *Config
	logger *slog.Logger

	mu          sync.Mutex
	conn        *amqp.Connection
	channel     *amqp.Channel
	isConnected bool
}

// NewClient creates a new RabbitMQ client and connects with retry
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config: config,
		logger: logger,
	}

	if err := client.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

// connect establishes connection to RabbitMQ with retry logic
func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	var (
		conn *amqp.Connection
		err  error
	)

	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		c.config.User,
		c.config.Password,
		c.config.Host,
		c.config.Port,
		c.config.VHost,
	)

	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}

	attempts := c.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		conn, err = amqp.DialConfig(dsn, amqpConfig)
		if err == nil {
			break
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			time.Sleep(c.config.RetryInterval)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	c.conn = conn
	c.channel = channel
	c.isConnected = true

	c.logger.Info("Successfully connected to RabbitMQ",
		slog.String("host", c.config.Host),
		slog.Int("port", c.config.Port),
	)

	return nil
}

// declareQueue declares a durable queue on the default exchange.
// Declaration is idempotent on the broker side.
func (c *Client) declareQueue(name string) error {
	_, err := c.channel.QueueDeclare(
		name,  // name
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return nil
}

// Publish sends one persistent message to the named queue. Failures
// are returned to the caller: job submission integrity depends on
// the publish outcome being visible. A dead connection is re-dialed
// first, so the publish path heals after a broker restart the same
// way the consumer loop does.
func (c *Client) Publish(ctx context.Context, queue string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnected || c.conn == nil || c.conn.IsClosed() {
		if err := c.connectLocked(); err != nil {
			return err
		}
	}

	if err := c.declareQueue(queue); err != nil {
		c.isConnected = false
		return err
	}

	err := c.channel.PublishWithContext(
		ctx,
		"",    // default exchange
		queue, // routing key is the queue name
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)

	if err != nil {
		c.isConnected = false
		c.logger.Error("Failed to publish message to RabbitMQ",
			slog.String("queue", queue),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to publish message: %w", err)
	}

	c.logger.Debug("Message published to RabbitMQ",
		slog.String("queue", queue),
		slog.Int("body_size", len(body)),
	)

	return nil
}

// ConsumeLoop consumes the named queue until ctx is canceled. Every
// connection or channel loss is answered by waiting the reconnect
// interval and dialing again; the loop never gives up on its own.
// Messages are acknowledged on receipt (auto-ack), accepting the
// at-most-once window between delivery and handler completion.
func (c *Client) ConsumeLoop(ctx context.Context, queue string, handler Handler) {
	interval := c.config.ReconnectInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	for {
		if ctx.Err() != nil {
			c.logger.Info("Consumer loop stopped - context canceled",
				slog.String("queue", queue),
			)
			return
		}

		if err := c.consumeOnce(ctx, queue, handler); err != nil {
			c.logger.Warn("RabbitMQ consumer disconnected, retrying",
				slog.String("queue", queue),
				slog.Duration("retry_after", interval),
				slog.Any("error", err),
			)
		} else {
			// consumeOnce returns nil only on ctx cancel
			return
		}

		select {
		case <-ctx.Done():
			c.logger.Info("Consumer loop stopped - context canceled",
				slog.String("queue", queue),
			)
			return
		case <-time.After(interval):
		}
	}
}

// consumeOnce runs a single consume session and returns when the
// delivery channel closes or ctx is canceled.
func (c *Client) consumeOnce(ctx context.Context, queue string, handler Handler) error {
	c.mu.Lock()
	if !c.isConnected || c.conn == nil || c.conn.IsClosed() {
		if err := c.connectLocked(); err != nil {
			c.mu.Unlock()
			return err
		}
	}

	if err := c.declareQueue(queue); err != nil {
		c.isConnected = false
		c.mu.Unlock()
		return err
	}

	deliveries, err := c.channel.Consume(
		queue, // queue
		"",    // consumer tag
		true,  // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	c.mu.Unlock()

	if err != nil {
		c.markDisconnected()
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Started consuming messages from RabbitMQ",
		slog.String("queue", queue),
	)

	for {
		select {
		case <-ctx.Done():
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				c.markDisconnected()
				return fmt.Errorf("delivery channel closed")
			}
			handler(ctx, delivery.Body)
		}
	}
}

func (c *Client) markDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = false
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected && c.conn != nil && !c.conn.IsClosed()
}

// Close closes the RabbitMQ connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("Closing RabbitMQ connection")
	c.isConnected = false

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	return nil
}
