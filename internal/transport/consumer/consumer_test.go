package consumer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/corray333/backend-labs/bakery/internal/service/errs"
	"github.com/corray333/backend-labs/bakery/internal/service/models/message"
	"github.com/corray333/backend-labs/bakery/internal/service/models/order"
	"github.com/corray333/backend-labs/bakery/internal/service/retry"
	"github.com/corray333/backend-labs/bakery/internal/service/services/fulfillmentsvc"
	"github.com/corray333/backend-labs/bakery/internal/service/services/ordersvc"
	"github.com/corray333/backend-labs/bakery/internal/testutil"
	"github.com/corray333/backend-labs/bakery/internal/transport/consumer"
	"github.com/shopspring/decimal"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const waitFor = 2 * time.Second

// acknowledger records how each delivery tag was settled.
type acknowledger struct {
	mu      sync.Mutex
	settled map[uint64]string
}

func newAcknowledger() *acknowledger {
	return &acknowledger{settled: make(map[uint64]string)}
}

func (a *acknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled[tag] = "ack"

	return nil
}

func (a *acknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if requeue {
		a.settled[tag] = "requeue"
	} else {
		a.settled[tag] = "drop"
	}

	return nil
}

func (a *acknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *acknowledger) outcome(tag uint64) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.settled[tag]
}

// instant completes fulfillment immediately.
type instant struct{}

func (instant) Fulfill(context.Context, int64) error { return nil }

type fixture struct {
	repo  *testutil.OrderRepository
	queue *testutil.Queue
	ack   *acknowledger
	msgs  chan amqp.Delivery
	tag   uint64
	c     *consumer.Consumer
}

func newFixture(policy retry.Policy) *fixture {
	repo := testutil.NewOrderRepository(testutil.Catalog())
	queue := &testutil.Queue{}
	svc := fulfillmentsvc.MustNewFulfillmentService(
		fulfillmentsvc.WithOrderRepository(repo),
		fulfillmentsvc.WithFulfiller(instant{}),
	)

	return &fixture{
		repo:  repo,
		queue: queue,
		ack:   newAcknowledger(),
		msgs:  make(chan amqp.Delivery, 16),
		c: consumer.NewConsumer(nil, "orders", svc,
			consumer.WithDeadLetter(queue),
			consumer.WithRetryPolicy(policy),
		),
	}
}

func (f *fixture) deliver(body string) uint64 {
	f.tag++
	f.msgs <- amqp.Delivery{
		Acknowledger: f.ack,
		DeliveryTag:  f.tag,
		Body:         []byte(body),
	}

	return f.tag
}

func (f *fixture) deliverOrder(t *testing.T, id int64) uint64 {
	t.Helper()

	body, err := message.OrderQueued{OrderID: id}.Encode()
	require.NoError(t, err)

	return f.deliver(string(body))
}

// serve runs the consumer until the returned stop function is called.
func (f *fixture) serve(t *testing.T) func() {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.c.Serve(ctx, f.msgs) }()

	return func() {
		cancel()
		assert.NoError(t, <-done)
	}
}

func (f *fixture) settled(t *testing.T, tag uint64, want string) {
	t.Helper()

	assert.Eventually(t, func() bool { return f.ack.outcome(tag) == want }, waitFor, 5*time.Millisecond,
		"delivery %d: want %s, got %q", tag, want, f.ack.outcome(tag))
}

func TestServe_CompletesOrderAndAcks(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(retry.Policy{})
	id, err := f.repo.CreateOrder(context.Background(), "Alice", []int64{1})
	require.NoError(t, err)

	stop := f.serve(t)
	tag := f.deliverOrder(t, id)
	f.settled(t, tag, "ack")
	stop()

	assert.Equal(t, order.StatusCompleted, f.repo.Status(id))
}

func TestServe_EmptyMessageIsAckedAndLoopContinues(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(retry.Policy{})
	id, err := f.repo.CreateOrder(context.Background(), "Alice", []int64{1})
	require.NoError(t, err)

	stop := f.serve(t)
	empty := f.deliver(`{}`)
	next := f.deliverOrder(t, id)
	f.settled(t, empty, "ack")
	f.settled(t, next, "ack")
	stop()

	assert.Equal(t, order.StatusCompleted, f.repo.Status(id))
	assert.Empty(t, f.queue.DeadLetters())
}

func TestServe_UndecodableMessageIsRequeued(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(retry.Policy{})

	stop := f.serve(t)
	tag := f.deliver(`not json`)
	f.settled(t, tag, "requeue")
	stop()
}

func TestServe_StoreFailureIsRequeued(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(retry.Policy{})
	id, err := f.repo.CreateOrder(context.Background(), "Alice", []int64{1})
	require.NoError(t, err)
	f.repo.FailStatusWrites = 1

	stop := f.serve(t)
	first := f.deliverOrder(t, id)
	f.settled(t, first, "requeue")
	second := f.deliverOrder(t, id)
	f.settled(t, second, "ack")
	stop()

	assert.Equal(t, order.StatusCompleted, f.repo.Status(id))
}

func TestServe_DuplicateDeliveryCompletesOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(retry.Policy{})
	id, err := f.repo.CreateOrder(context.Background(), "Alice", []int64{1})
	require.NoError(t, err)

	stop := f.serve(t)
	first := f.deliverOrder(t, id)
	second := f.deliverOrder(t, id)
	f.settled(t, first, "ack")
	f.settled(t, second, "ack")
	stop()

	assert.Equal(t, []order.Status{order.StatusProcessing, order.StatusCompleted}, f.repo.History[id])
}

func TestServe_UnknownOrderIsDropped(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(retry.Policy{})

	stop := f.serve(t)
	tag := f.deliverOrder(t, 404)
	f.settled(t, tag, "ack")
	stop()

	assert.Empty(t, f.queue.DeadLetters())
}

func TestServe_DeadLettersAfterMaxAttempts(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(retry.Policy{MaxAttempts: 2})
	id, err := f.repo.CreateOrder(context.Background(), "Alice", []int64{1})
	require.NoError(t, err)
	f.repo.Err = errs.NewTransientError("advance order status", errors.New("connection refused"))

	stop := f.serve(t)
	first := f.deliverOrder(t, id)
	f.settled(t, first, "requeue")
	second := f.deliverOrder(t, id)
	f.settled(t, second, "ack")
	stop()

	dead := f.queue.DeadLetters()
	require.Len(t, dead, 1)
	assert.JSONEq(t, `{"order_id": 1}`, string(dead[0].Body))
	assert.Contains(t, dead[0].Reason, "connection refused")
	assert.Equal(t, order.StatusPending, f.repo.Status(id))
}

func TestServe_DeadLetterFailureRequeues(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(retry.Policy{MaxAttempts: 1})
	f.queue.DeadLetterErr = errors.New("broker gone")

	stop := f.serve(t)
	tag := f.deliver(`not json`)
	f.settled(t, tag, "requeue")
	stop()
}

func TestServe_ReturnsWhenDeliveriesClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(retry.Policy{})
	close(f.msgs)

	err := f.c.Serve(context.Background(), f.msgs)
	assert.ErrorIs(t, err, consumer.ErrDeliveriesClosed)
}

func TestOrderLifecycle_Alice(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(retry.Policy{})
	orders := ordersvc.MustNewOrderService(
		ordersvc.WithOrderRepository(f.repo),
		ordersvc.WithOrderQueue(f.queue),
	)

	ctx := context.Background()
	submitted, err := orders.Submit(ctx, "Alice", []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, submitted.Status)

	got, err := orders.GetStatus(ctx, submitted.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, got.Status)
	assert.True(t, decimal.RequireFromString("5.75").Equal(got.Total), "total %s", got.Total)

	require.Equal(t, []int64{submitted.OrderID}, f.queue.Published())

	stop := f.serve(t)
	tag := f.deliverOrder(t, submitted.OrderID)
	f.settled(t, tag, "ack")
	stop()

	got, err = orders.GetStatus(ctx, submitted.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, got.Status)
	assert.Equal(t, []order.Status{order.StatusProcessing, order.StatusCompleted}, f.repo.History[submitted.OrderID])
	assert.True(t, decimal.RequireFromString("5.75").Equal(got.Total))
}
