package config

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/corray333/backend-labs/bakery/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// MustInit loads .env and config.yaml when present, binds environment overrides and sets up logging.
func MustInit() {
	if err := godotenv.Load("./.env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic("error while loading .env file: " + err.Error())
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/bakery")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic("error while reading config file: " + err.Error())
		}
	}

	SetDefaults()
	MustBindEnv()
	SetupLogger()
}

// SetDefaults registers the values used when neither config.yaml nor the environment set a key.
func SetDefaults() {
	viper.SetDefault("server.http.port", "5000")
	viper.SetDefault("server.http.cors.allowed_origins", []string{"*"})
	viper.SetDefault("server.http.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	viper.SetDefault("server.http.cors.allowed_headers", []string{"Content-Type", "X-Request-Id"})

	viper.SetDefault("postgres.migrations_path", "./migrations")
	viper.SetDefault("redis.host", "redis")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("rabbitmq.host", "rabbitmq")
	viper.SetDefault("rabbitmq.port", 5672)
	viper.SetDefault("rabbitmq.user", "guest")
	viper.SetDefault("rabbitmq.password", "guest")
	viper.SetDefault("rabbitmq.queue", "orders")
	viper.SetDefault("rabbitmq.dead_letter_queue", "orders.dead")
	viper.SetDefault("rabbitmq.connect_retry_seconds", 5)

	viper.SetDefault("reconciler.enabled", true)
	viper.SetDefault("reconciler.schedule", "@every 1m")
	viper.SetDefault("reconciler.stale_after", "5m")

	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.level", "info")
}

// MustBindEnv maps the deployment environment variables onto config keys.
func MustBindEnv() {
	bindings := map[string]string{
		"postgres.url":      "DATABASE_URL",
		"redis.host":        "REDIS_HOST",
		"redis.port":        "REDIS_PORT",
		"rabbitmq.host":     "RABBITMQ_HOST",
		"rabbitmq.user":     "RABBITMQ_USER",
		"rabbitmq.password": "RABBITMQ_PASSWORD",
		"server.http.port":  "HTTP_PORT",
		"log.format":        "LOG_FORMAT",
		"log.level":         "LOG_LEVEL",
		"otel.enabled":      "OTEL_ENABLED",
		"otel.jaeger_url":   "JAEGER_ENDPOINT",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			panic("error while binding env " + env + ": " + err.Error())
		}
	}
}

// SetupLogger installs the default slog logger.
func SetupLogger() {
	handler := logger.NewHandler(nil)
	log := slog.New(handler)
	slog.SetDefault(log)
}
