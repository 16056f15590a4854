package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/viper"
	"github.com/streadway/amqp"
)

// ErrNotConfirmed is returned when the broker negatively acknowledges a publishing.
var ErrNotConfirmed = errors.New("publishing was not confirmed by the broker")

// publisher is a channel in confirm mode together with its confirmation stream.
type publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	confirms chan amqp.Confirmation
}

// Client represents a RabbitMQ client.
// Publishing channels are pooled and acquired per operation; consuming uses its own channel.
// A dropped connection is redialed by the next operation that needs a channel.
type Client struct {
	url  string
	conn *amqp.Connection
	pool chan *publisher

	mu       sync.Mutex
	consumer *amqp.Channel
	closed   bool
}

// URL builds the broker URL from configuration.
func URL() string {
	port := viper.GetInt("rabbitmq.port")
	if port == 0 {
		port = 5672
	}

	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d/",
		viper.GetString("rabbitmq.user"),
		viper.GetString("rabbitmq.password"),
		viper.GetString("rabbitmq.host"),
		port,
	)
}

// Dial connects to the broker at url.
func Dial(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	poolSize := viper.GetInt("rabbitmq.channel_pool_size")
	if poolSize == 0 {
		poolSize = 4
	}

	return &Client{
		url:  url,
		conn: conn,
		pool: make(chan *publisher, poolSize),
	}, nil
}

// MustNewClient creates a new RabbitMQ client.
func MustNewClient() *Client {
	client, err := Dial(URL())
	if err != nil {
		panic(err)
	}

	slog.Info("RabbitMQ connected", "host", viper.GetString("rabbitmq.host"))

	return client
}

// DialWithRetry keeps dialing until the broker accepts the connection or ctx is done.
func DialWithRetry(ctx context.Context, url string, interval time.Duration) (*Client, error) {
	for {
		client, err := Dial(url)
		if err == nil {
			return client, nil
		}

		slog.Warn("RabbitMQ is not reachable, retrying", "retry_in", interval, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Connection returns the underlying AMQP connection.
func (r *Client) Connection() *amqp.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.conn
}

// connection returns a live connection, redialing when the current one is closed.
// Pooled channels belong to the old connection and are dropped on redial.
// Callers must hold r.mu.
func (r *Client) connection() (*amqp.Connection, error) {
	if r.closed {
		return nil, amqp.ErrClosed
	}
	if r.conn != nil && !r.conn.IsClosed() {
		return r.conn, nil
	}

	conn, err := amqp.Dial(r.url)
	if err != nil {
		return nil, fmt.Errorf("failed to reconnect to RabbitMQ: %w", err)
	}

	r.drainPool()
	r.consumer = nil
	r.conn = conn
	slog.Info("RabbitMQ reconnected")

	return conn, nil
}

func (r *Client) drainPool() {
	for {
		select {
		case p := <-r.pool:
			_ = p.ch.Close()
		default:
			return
		}
	}
}

// Ping reports whether the connection is usable by opening a throwaway channel.
// A closed connection is redialed first.
func (r *Client) Ping(_ context.Context) error {
	r.mu.Lock()
	conn, err := r.connection()
	r.mu.Unlock()
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	return ch.Close()
}

// Close closes all channels and the connection for graceful shutdown.
func (r *Client) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if r.consumer != nil {
		_ = r.consumer.Close()
		r.consumer = nil
	}
	r.drainPool()

	if r.conn == nil || r.conn.IsClosed() {
		return nil
	}

	return r.conn.Close()
}

func (r *Client) acquire() (*publisher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, err := r.connection()
	if err != nil {
		return nil, err
	}

	for len(r.pool) > 0 {
		p := <-r.pool
		if p.conn == conn {
			return p, nil
		}
		// released after a redial
		_ = p.ch.Close()
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()

		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	return &publisher{
		conn:     conn,
		ch:       ch,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

// release returns a healthy channel to the pool. Broken channels are closed instead.
func (r *Client) release(p *publisher, healthy bool) {
	if healthy {
		select {
		case r.pool <- p:
			return
		default:
		}
	}

	_ = p.ch.Close()
}

// DeclareQueueConfig holds the arguments of a queue declaration.
type DeclareQueueConfig struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	NoWait     bool
	Args       amqp.Table
}

// DeclareQueue declares a queue with the given configuration. Declaring an existing queue
// with the same arguments is a no-op on the broker.
func (r *Client) DeclareQueue(cfg DeclareQueueConfig) (amqp.Queue, error) {
	p, err := r.acquire()
	if err != nil {
		return amqp.Queue{}, err
	}

	queue, err := p.ch.QueueDeclare(
		cfg.Name,
		cfg.Durable,
		cfg.AutoDelete,
		cfg.Exclusive,
		cfg.NoWait,
		cfg.Args,
	)
	r.release(p, err == nil)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to declare queue %s: %w", cfg.Name, err)
	}

	return queue, nil
}

// Publish sends msg to queue through the default exchange and waits for the broker confirm.
func (r *Client) Publish(ctx context.Context, queue string, msg amqp.Publishing) error {
	p, err := r.acquire()
	if err != nil {
		return err
	}

	if err := p.ch.Publish("", queue, false, false, msg); err != nil {
		r.release(p, false)

		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}

	select {
	case confirm, ok := <-p.confirms:
		if !ok {
			r.release(p, false)

			return amqp.ErrClosed
		}
		r.release(p, true)
		if !confirm.Ack {
			return ErrNotConfirmed
		}

		return nil
	case <-ctx.Done():
		// the pending confirm would be read by the next user of this channel
		r.release(p, false)

		return ctx.Err()
	}
}

// ConsumeConfig holds the arguments of a consumer subscription.
type ConsumeConfig struct {
	Queue     string
	Consumer  string
	Prefetch  int
	AutoAck   bool
	Exclusive bool
	NoLocal   bool
	NoWait    bool
	Args      amqp.Table
}

// Consume starts consuming messages from the queue on a dedicated channel.
func (r *Client) Consume(cfg ConsumeConfig) (<-chan amqp.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, err := r.connection()
	if err != nil {
		return nil, err
	}

	if r.consumer == nil {
		ch, err := conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("failed to open a channel: %w", err)
		}
		r.consumer = ch
	}

	if cfg.Prefetch > 0 {
		if err := r.consumer.Qos(cfg.Prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("failed to set prefetch: %w", err)
		}
	}

	return r.consumer.Consume(
		cfg.Queue,
		cfg.Consumer,
		cfg.AutoAck,
		cfg.Exclusive,
		cfg.NoLocal,
		cfg.NoWait,
		cfg.Args,
	)
}

// Cancel stops deliveries for the consumer tag. Unacked messages return to the queue.
func (r *Client) Cancel(consumerTag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.consumer == nil {
		return nil
	}

	return r.consumer.Cancel(consumerTag, false)
}
