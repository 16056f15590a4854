package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/bakery/internal/dal/rabbitmq"
	"github.com/corray333/backend-labs/bakery/internal/service/errs"
	"github.com/corray333/backend-labs/bakery/internal/service/models/message"
	"github.com/corray333/backend-labs/bakery/internal/service/retry"
	"github.com/spf13/viper"
	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ErrDeliveriesClosed is returned when the broker closes the delivery channel,
// usually because the connection dropped.
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// service represents the service layer interface.
type service interface {
	Process(ctx context.Context, orderID int64) error
}

// deadLetterer parks messages that ran out of retries.
type deadLetterer interface {
	DeadLetter(ctx context.Context, body []byte, reason string) error
}

// Consumer reads order messages one at a time and acknowledges them only after
// the order has been completed.
type Consumer struct {
	client     *rabbitmq.Client
	queue      string
	service    service
	deadLetter deadLetterer
	policy     retry.Policy
	tracker    *retry.Tracker
}

type option func(*Consumer)

// NewConsumer creates a new Consumer.
func NewConsumer(client *rabbitmq.Client, queue string, service service, opts ...option) *Consumer {
	c := &Consumer{
		client:  client,
		queue:   queue,
		service: service,
		policy:  retry.PolicyFromConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.tracker == nil {
		c.tracker = retry.NewTracker()
	}

	return c
}

// WithDeadLetter sets where exhausted messages go.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithDeadLetter(dl deadLetterer) option {
	return func(c *Consumer) {
		c.deadLetter = dl
	}
}

// WithRetryPolicy overrides the configured retry policy.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithRetryPolicy(p retry.Policy) option {
	return func(c *Consumer) {
		c.policy = p
	}
}

// WithTracker shares attempt counts across consumers, e.g. between reconnects.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithTracker(t *retry.Tracker) option {
	return func(c *Consumer) {
		c.tracker = t
	}
}

// Run subscribes to the queue with prefetch 1 and serves deliveries until ctx is done
// or the broker closes the channel.
func (c *Consumer) Run(ctx context.Context) error {
	consumerTag := viper.GetString("rabbitmq.consumer_tag")
	if consumerTag == "" {
		consumerTag = "bakery-worker"
	}

	msgs, err := c.client.Consume(rabbitmq.ConsumeConfig{
		Queue:    c.queue,
		Consumer: consumerTag,
		Prefetch: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	slog.Info("Consumer started", "queue", c.queue, "consumer_tag", consumerTag)

	err = c.Serve(ctx, msgs)
	if errors.Is(err, ErrDeliveriesClosed) {
		return err
	}

	if cancelErr := c.client.Cancel(consumerTag); cancelErr != nil {
		slog.Warn("Failed to cancel consumer", "error", cancelErr)
	}

	return err
}

// Serve handles deliveries sequentially. It returns nil when ctx is done and
// ErrDeliveriesClosed when msgs is closed.
func (c *Consumer) Serve(ctx context.Context, msgs <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			slog.Info("Consumer shutting down")

			return nil
		case msg, ok := <-msgs:
			if !ok {
				slog.Warn("Message channel closed")

				return ErrDeliveriesClosed
			}

			c.handle(ctx, msg)
		}
	}
}

// handle settles exactly one delivery: ack, nack with requeue, or dead-letter and ack.
func (c *Consumer) handle(ctx context.Context, msg amqp.Delivery) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, rabbitmq.HeaderCarrier(msg.Headers))
	ctx, span := otel.Tracer("consumer").Start(ctx, "Consumer.handle")
	defer span.End()

	key := messageKey(msg)

	m, err := message.DecodeOrderQueued(msg.Body)
	if errors.Is(err, errs.ErrMalformedMessage) {
		slog.WarnContext(ctx, "Dropping malformed message", "delivery_tag", msg.DeliveryTag, "error", err)
		c.ack(ctx, msg, key)

		return
	}
	if err != nil {
		c.retry(ctx, msg, key, err)

		return
	}
	span.SetAttributes(attribute.Int64("order_id", m.OrderID))

	err = c.service.Process(ctx, m.OrderID)
	switch {
	case err == nil:
		c.ack(ctx, msg, key)
	case errors.Is(err, errs.ErrNotFound):
		slog.WarnContext(ctx, "Dropping message for unknown order", "order_id", m.OrderID, "error", err)
		c.ack(ctx, msg, key)
	case ctx.Err() != nil:
		// shutting down: leave the message for another worker without counting an attempt
		c.nack(ctx, msg)
	default:
		span.RecordError(err)
		c.retry(ctx, msg, key, err)
	}
}

func (c *Consumer) retry(ctx context.Context, msg amqp.Delivery, key string, cause error) {
	attempt := c.tracker.Fail(key)

	if c.policy.Exhausted(attempt) && c.deadLetter != nil {
		reason := cause.Error()
		if err := c.deadLetter.DeadLetter(ctx, msg.Body, reason); err != nil {
			slog.ErrorContext(ctx, "Failed to dead-letter message, requeueing", "attempt", attempt, "error", err)
			c.nack(ctx, msg)

			return
		}

		slog.ErrorContext(ctx, "Message dead-lettered after exhausting retries",
			"delivery_tag", msg.DeliveryTag,
			"attempt", attempt,
			"reason", reason,
		)
		c.ack(ctx, msg, key)

		return
	}

	backoff := c.policy.Backoff(attempt)
	slog.WarnContext(ctx, "Failed to process message, will retry",
		"delivery_tag", msg.DeliveryTag,
		"attempt", attempt,
		"backoff", backoff,
		"error", cause,
	)

	if backoff > 0 {
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		timer.Stop()
	}

	c.nack(ctx, msg)
}

func (c *Consumer) ack(ctx context.Context, msg amqp.Delivery, key string) {
	c.tracker.Reset(key)

	if err := msg.Ack(false); err != nil {
		slog.ErrorContext(ctx, "Failed to ack message", "delivery_tag", msg.DeliveryTag, "error", err)
	}
}

func (c *Consumer) nack(ctx context.Context, msg amqp.Delivery) {
	if err := msg.Nack(false, true); err != nil {
		slog.ErrorContext(ctx, "Failed to nack message", "delivery_tag", msg.DeliveryTag, "error", err)
	}
}

// messageKey identifies a message across redeliveries.
func messageKey(msg amqp.Delivery) string {
	if msg.MessageId != "" {
		return msg.MessageId
	}

	return string(msg.Body)
}
