package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corray333/backend-labs/bakery/internal/dal/postgres"
	"github.com/corray333/backend-labs/bakery/internal/dal/rabbitmq"
	"github.com/corray333/backend-labs/bakery/internal/dal/redis"
	orderrepo "github.com/corray333/backend-labs/bakery/internal/dal/repositories/order/postgres"
	orderqueue "github.com/corray333/backend-labs/bakery/internal/dal/repositories/order/rabbitmq"
	productrepo "github.com/corray333/backend-labs/bakery/internal/dal/repositories/product/postgres"
	productcache "github.com/corray333/backend-labs/bakery/internal/dal/repositories/product/redis"
	"github.com/corray333/backend-labs/bakery/internal/otel"
	"github.com/corray333/backend-labs/bakery/internal/service/services/catalogsvc"
	"github.com/corray333/backend-labs/bakery/internal/service/services/healthsvc"
	"github.com/corray333/backend-labs/bakery/internal/service/services/ordersvc"
	httptransport "github.com/corray333/backend-labs/bakery/internal/transport/http"
	"github.com/corray333/backend-labs/bakery/internal/worker/reconcile"
	"github.com/spf13/viper"
)

// APIApp is the HTTP process: order submission, status, catalog, health and the reconciliation sweep.
type APIApp struct {
	transport      *httptransport.HTTPTransport
	reconciler     *reconcile.Worker
	postgresClient *postgres.Client
	redisClient    *redis.Client
	rabbitMqClient *rabbitmq.Client
	otelController *otel.OtelController
}

// MustNewAPIApp creates a new API application.
func MustNewAPIApp() *APIApp {
	otelController := otel.MustInitOtel("bakery-api")
	postgresClient := postgres.MustNewClient()
	redisClient := redis.MustNewClient()
	rabbitMqClient := rabbitmq.MustNewClient()

	orderRepository := orderrepo.NewOrderRepository(postgresClient)
	orderQueue := orderqueue.MustNewOrderQueue(rabbitMqClient)

	orderSvc := ordersvc.MustNewOrderService(
		ordersvc.WithOrderRepository(orderRepository),
		ordersvc.WithOrderQueue(orderQueue),
	)

	catalogSvc := catalogsvc.MustNewCatalogService(
		catalogsvc.WithProductRepository(productrepo.NewProductRepository(postgresClient)),
		catalogsvc.WithProductCache(productcache.NewProductCache(redisClient)),
	)

	healthSvc := healthsvc.MustNewHealthService(
		healthsvc.WithDatabase(postgresClient),
		healthsvc.WithRedis(redisClient),
		healthsvc.WithRabbitMQ(rabbitMqClient),
	)

	transport := httptransport.NewHTTPTransport(orderSvc, catalogSvc, healthSvc)
	transport.RegisterRoutes()

	var reconciler *reconcile.Worker
	if viper.GetBool("reconciler.enabled") {
		reconciler = reconcile.NewWorker(orderRepository, orderQueue)
	}

	return &APIApp{
		transport:      transport,
		reconciler:     reconciler,
		postgresClient: postgresClient,
		redisClient:    redisClient,
		rabbitMqClient: rabbitMqClient,
		otelController: otelController,
	}
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *APIApp) Run() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		slog.Info("Starting HTTP server")
		if err := a.transport.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			stop <- syscall.SIGTERM
		}
	}()

	if a.reconciler != nil {
		if err := a.reconciler.Start(ctx); err != nil {
			slog.Error("Reconciliation worker not started", "error", err)
			a.reconciler = nil
		}
	}

	<-stop
	slog.Info("Shutdown signal received")
	cancel()

	a.gracefulShutdown()
}

// gracefulShutdown stops the HTTP server first so no new orders arrive, then the sweep,
// then the pools and the tracer.
func (a *APIApp) gracefulShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.transport.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}

	if a.reconciler != nil {
		a.reconciler.Stop()
	}

	if err := a.rabbitMqClient.Close(); err != nil {
		slog.Error("RabbitMQ connection close error", "error", err)
	} else {
		slog.Info("RabbitMQ connection closed gracefully")
	}

	if err := a.redisClient.Close(); err != nil {
		slog.Error("Redis connection close error", "error", err)
	} else {
		slog.Info("Redis connection closed gracefully")
	}

	a.postgresClient.Close()
	slog.Info("Database connection closed gracefully")

	if err := a.otelController.Shutdown(ctx); err != nil {
		slog.Error("Otel trace provider shutdown error", "error", err)
	}

	slog.Info("Application shutdown complete")
}
