package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/corray333/backend-labs/bakery/internal/dal/rabbitmq"
	"github.com/corray333/backend-labs/bakery/internal/service/errs"
	"github.com/corray333/backend-labs/bakery/internal/service/models/message"
	"github.com/spf13/viper"
	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
)

// ReasonHeader carries why a message was dead-lettered.
const ReasonHeader = "x-dead-letter-reason"

// OrderQueue publishes order ids to the durable work queue and parks exhausted
// messages on the dead-letter queue.
type OrderQueue struct {
	client     *rabbitmq.Client
	queue      string
	deadLetter string
}

// NewOrderQueue creates a new order queue publisher for the given queue names.
func NewOrderQueue(client *rabbitmq.Client, queue, deadLetter string) *OrderQueue {
	return &OrderQueue{
		client:     client,
		queue:      queue,
		deadLetter: deadLetter,
	}
}

// MustNewOrderQueue creates an order queue from configuration and declares its queues.
func MustNewOrderQueue(client *rabbitmq.Client) *OrderQueue {
	q := NewOrderQueue(client, viper.GetString("rabbitmq.queue"), viper.GetString("rabbitmq.dead_letter_queue"))
	if q.queue == "" {
		panic("rabbitmq.queue is not set in config")
	}

	if err := q.Declare(); err != nil {
		panic(err)
	}

	return q
}

// Queue returns the work queue name.
func (q *OrderQueue) Queue() string {
	return q.queue
}

// Declare idempotently declares the work queue and, if configured, the dead-letter queue.
func (q *OrderQueue) Declare() error {
	names := []string{q.queue}
	if q.deadLetter != "" {
		names = append(names, q.deadLetter)
	}

	for _, name := range names {
		_, err := q.client.DeclareQueue(rabbitmq.DeclareQueueConfig{
			Name:    name,
			Durable: true,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// Publish sends a persistent {"order_id": id} message and waits for the broker confirm.
func (q *OrderQueue) Publish(ctx context.Context, orderID int64) error {
	ctx, span := otel.Tracer("order-queue").Start(ctx, "OrderQueue.Publish")
	defer span.End()

	body, err := message.OrderQueued{OrderID: orderID}.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode order message: %w", err)
	}

	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, rabbitmq.HeaderCarrier(headers))

	err = q.client.Publish(ctx, q.queue, amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		span.RecordError(err)

		return errs.NewTransientError("publish order", err)
	}

	return nil
}

// DeadLetter stores the raw message body on the dead-letter queue together with the reason.
func (q *OrderQueue) DeadLetter(ctx context.Context, body []byte, reason string) error {
	if q.deadLetter == "" {
		return errors.New("dead-letter queue is not configured")
	}

	err := q.client.Publish(ctx, q.deadLetter, amqp.Publishing{
		Headers:      amqp.Table{ReasonHeader: reason},
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return errs.NewTransientError("dead-letter order message", err)
	}

	return nil
}
