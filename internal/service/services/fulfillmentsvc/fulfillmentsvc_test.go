package fulfillmentsvc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/corray333/backend-labs/bakery/internal/service/errs"
	"github.com/corray333/backend-labs/bakery/internal/service/models/order"
	"github.com/corray333/backend-labs/bakery/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingFulfiller captures the status seen while fulfilling.
type recordingFulfiller struct {
	repo   *testutil.OrderRepository
	seen   []order.Status
	err    error
	called int
	during func()
}

func (f *recordingFulfiller) Fulfill(_ context.Context, orderID int64) error {
	f.called++
	f.seen = append(f.seen, f.repo.Status(orderID))
	if f.during != nil {
		f.during()
	}

	return f.err
}

func setup(t *testing.T) (*FulfillmentService, *testutil.OrderRepository, *recordingFulfiller, int64) {
	t.Helper()

	repo := testutil.NewOrderRepository(testutil.Catalog())
	id, err := repo.CreateOrder(context.Background(), "Alice", []int64{1, 2})
	require.NoError(t, err)

	f := &recordingFulfiller{repo: repo}
	svc := MustNewFulfillmentService(WithOrderRepository(repo), WithFulfiller(f))

	return svc, repo, f, id
}

func TestProcess_PendingToCompleted(t *testing.T) {
	svc, repo, f, id := setup(t)

	require.NoError(t, svc.Process(context.Background(), id))

	assert.Equal(t, []order.Status{order.StatusProcessing}, f.seen)
	assert.Equal(t, order.StatusCompleted, repo.Status(id))
	assert.Equal(t, []order.Status{order.StatusProcessing, order.StatusCompleted}, repo.History[id])
}

func TestProcess_RedeliveryOfCompletedOrder(t *testing.T) {
	svc, repo, f, id := setup(t)
	ctx := context.Background()

	require.NoError(t, svc.Process(ctx, id))
	require.NoError(t, svc.Process(ctx, id))

	assert.Equal(t, 1, f.called)
	assert.Equal(t, order.StatusCompleted, repo.Status(id))
	assert.NotContains(t, repo.History[id][1:], order.StatusProcessing)
}

func TestProcess_RedeliveryWhileProcessing(t *testing.T) {
	svc, repo, f, id := setup(t)
	ctx := context.Background()

	require.NoError(t, repo.UpdateStatus(ctx, id, order.StatusProcessing))
	require.NoError(t, svc.Process(ctx, id))

	assert.Equal(t, 1, f.called)
	assert.Equal(t, order.StatusCompleted, repo.Status(id))
}

func TestProcess_CompletionWriteFails(t *testing.T) {
	svc, repo, f, id := setup(t)
	f.during = func() { repo.FailStatusWrites = 1 }

	err := svc.Process(context.Background(), id)
	assert.ErrorIs(t, err, errs.ErrTransient)
	assert.Equal(t, order.StatusProcessing, repo.Status(id))
}

func TestProcess_FulfillmentFails(t *testing.T) {
	svc, repo, f, id := setup(t)
	f.err = errors.New("oven broke")

	err := svc.Process(context.Background(), id)
	assert.ErrorIs(t, err, f.err)
	assert.Equal(t, order.StatusProcessing, repo.Status(id))
}

func TestProcess_UnknownOrder(t *testing.T) {
	svc, _, f, _ := setup(t)

	err := svc.Process(context.Background(), 404)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Zero(t, f.called)
}

func TestSimulatedBakery_DurationWithinBounds(t *testing.T) {
	b := NewSimulatedBakery(5*time.Second, 15*time.Second)

	b.rand = func(int64) int64 { return 0 }
	assert.Equal(t, 5*time.Second, b.Duration())

	b.rand = func(n int64) int64 { return n - 1 }
	assert.Equal(t, 15*time.Second, b.Duration())

	b = NewSimulatedBakery(time.Second, time.Second)
	assert.Equal(t, time.Second, b.Duration())
}

func TestSimulatedBakery_StopsOnCancel(t *testing.T) {
	b := NewSimulatedBakery(time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, b.Fulfill(ctx, 1), context.Canceled)
}

func TestSimulatedBakery_Fulfills(t *testing.T) {
	b := NewSimulatedBakery(time.Millisecond, 2*time.Millisecond)

	assert.NoError(t, b.Fulfill(context.Background(), 1))
}
