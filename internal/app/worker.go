package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corray333/backend-labs/bakery/internal/dal/postgres"
	"github.com/corray333/backend-labs/bakery/internal/dal/rabbitmq"
	orderrepo "github.com/corray333/backend-labs/bakery/internal/dal/repositories/order/postgres"
	orderqueue "github.com/corray333/backend-labs/bakery/internal/dal/repositories/order/rabbitmq"
	"github.com/corray333/backend-labs/bakery/internal/otel"
	"github.com/corray333/backend-labs/bakery/internal/service/retry"
	"github.com/corray333/backend-labs/bakery/internal/service/services/fulfillmentsvc"
	"github.com/corray333/backend-labs/bakery/internal/transport/consumer"
	"github.com/spf13/viper"
)

// WorkerApp is the consumer process that fulfills queued orders.
type WorkerApp struct {
	fulfillmentSvc *fulfillmentsvc.FulfillmentService
	postgresClient *postgres.Client
	otelController *otel.OtelController
	tracker        *retry.Tracker
	policy         retry.Policy
	connectRetry   time.Duration
}

// MustNewWorkerApp creates a new worker application. The broker connection is
// established in Run so that the worker can wait for RabbitMQ to come up.
func MustNewWorkerApp() *WorkerApp {
	otelController := otel.MustInitOtel("bakery-worker")
	postgresClient := postgres.MustNewClient()

	fulfillmentSvc := fulfillmentsvc.MustNewFulfillmentService(
		fulfillmentsvc.WithOrderRepository(orderrepo.NewOrderRepository(postgresClient)),
		fulfillmentsvc.WithFulfiller(fulfillmentsvc.SimulatedBakeryFromConfig()),
	)

	connectRetry := time.Duration(viper.GetInt("rabbitmq.connect_retry_seconds")) * time.Second
	if connectRetry == 0 {
		connectRetry = 5 * time.Second
	}

	return &WorkerApp{
		fulfillmentSvc: fulfillmentSvc,
		postgresClient: postgresClient,
		otelController: otelController,
		tracker:        retry.TrackerFromConfig(),
		policy:         retry.PolicyFromConfig(),
		connectRetry:   connectRetry,
	}
}

// Run consumes until an interrupt signal arrives, reconnecting whenever the broker drops.
func (a *WorkerApp) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting worker",
		"max_attempts", a.policy.MaxAttempts,
		"base_delay", a.policy.BaseDelay,
		"max_delay", a.policy.MaxDelay,
	)

	for {
		err := a.consumeOnce(ctx)
		if ctx.Err() != nil {
			break
		}

		slog.Warn("Consumer stopped, reconnecting", "error", err, "retry_in", a.connectRetry)

		select {
		case <-ctx.Done():
		case <-time.After(a.connectRetry):
		}
	}

	slog.Info("Shutdown signal received")
	a.gracefulShutdown()
}

// consumeOnce runs one broker session until ctx is done or the connection drops.
func (a *WorkerApp) consumeOnce(ctx context.Context) error {
	client, err := rabbitmq.DialWithRetry(ctx, rabbitmq.URL(), a.connectRetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			slog.Warn("RabbitMQ connection close error", "error", err)
		}
	}()
	slog.Info("RabbitMQ connected", "host", viper.GetString("rabbitmq.host"))

	queue := orderqueue.NewOrderQueue(client,
		viper.GetString("rabbitmq.queue"),
		viper.GetString("rabbitmq.dead_letter_queue"),
	)
	if err := queue.Declare(); err != nil {
		return err
	}

	c := consumer.NewConsumer(client, queue.Queue(), a.fulfillmentSvc,
		consumer.WithDeadLetter(queue),
		consumer.WithRetryPolicy(a.policy),
		consumer.WithTracker(a.tracker),
	)

	return c.Run(ctx)
}

func (a *WorkerApp) gracefulShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a.postgresClient.Close()
	slog.Info("Database connection closed gracefully")

	if err := a.otelController.Shutdown(ctx); err != nil {
		slog.Error("Otel trace provider shutdown error", "error", err)
	}

	slog.Info("Worker shutdown complete")
}
