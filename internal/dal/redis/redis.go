package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// Client represents a Redis client backed by the go-redis connection pool.
type Client struct {
	rdb *redis.Client
}

// NewClient wraps an existing go-redis client.
func NewClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Addr builds the server address from configuration.
func Addr() string {
	port := viper.GetInt("redis.port")
	if port == 0 {
		port = 6379
	}

	return fmt.Sprintf("%s:%d", viper.GetString("redis.host"), port)
}

// MustNewClient creates a new Redis client. Redis is optional for the catalog,
// so an unreachable server is logged rather than fatal.
func MustNewClient() *Client {
	timeout := time.Duration(viper.GetInt("redis.timeout_ms")) * time.Millisecond
	if timeout == 0 {
		timeout = 2 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         Addr(),
		Password:     viper.GetString("redis.password"),
		DB:           viper.GetInt("redis.db"),
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		PoolSize:     viper.GetInt("redis.pool_size"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("Redis is not reachable, catalog will be served from the database", "addr", Addr(), "error", err)
	} else {
		slog.Info("Redis connected", "addr", Addr())
	}

	return &Client{rdb: rdb}
}

// Redis returns the underlying go-redis client.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Ping checks that the server answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the connection pool for graceful shutdown.
func (c *Client) Close() error {
	return c.rdb.Close()
}
