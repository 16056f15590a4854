//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/corray333/backend-labs/bakery/internal/dal/postgres"
	orderrepo "github.com/corray333/backend-labs/bakery/internal/dal/repositories/order/postgres"
	"github.com/corray333/backend-labs/bakery/internal/service/errs"
	"github.com/corray333/backend-labs/bakery/internal/service/models/order"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const migrationsDir = "../../../../../migrations"

type OrderRepositoryIntegrationTestSuite struct {
	suite.Suite
	container  *tcpostgres.PostgresContainer
	client     *postgres.Client
	repository *orderrepo.OrderRepository
}

func TestOrderRepositoryIntegration(t *testing.T) {
	suite.Run(t, new(OrderRepositoryIntegrationTestSuite))
}

func (s *OrderRepositoryIntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("bakery"),
		tcpostgres.WithUsername("bakery"),
		tcpostgres.WithPassword("bakery"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	pool, err := pgxpool.New(ctx, connStr)
	s.Require().NoError(err)
	s.Require().NoError(postgres.Migrate(pool, migrationsDir))

	s.client = postgres.NewClient(pool)
}

func (s *OrderRepositoryIntegrationTestSuite) SetupTest() {
	_, err := s.client.Pool().Exec(context.Background(), "TRUNCATE TABLE order_items, orders RESTART IDENTITY")
	s.Require().NoError(err)

	s.repository = orderrepo.NewOrderRepository(s.client)
}

func (s *OrderRepositoryIntegrationTestSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
	if s.container != nil {
		s.Require().NoError(s.container.Terminate(context.Background()))
	}
}

func (s *OrderRepositoryIntegrationTestSuite) countOrders() int {
	var n int
	err := s.client.Pool().QueryRow(context.Background(), "SELECT count(*) FROM orders").Scan(&n)
	s.Require().NoError(err)

	return n
}

func (s *OrderRepositoryIntegrationTestSuite) TestCreateOrder_AssignsIncreasingIDs() {
	ctx := context.Background()

	first, err := s.repository.CreateOrder(ctx, "Alice", []int64{1})
	s.Require().NoError(err)
	second, err := s.repository.CreateOrder(ctx, "Bob", []int64{2})
	s.Require().NoError(err)

	s.Greater(second, first)
}

func (s *OrderRepositoryIntegrationTestSuite) TestCreateOrder_EmptyProducts() {
	_, err := s.repository.CreateOrder(context.Background(), "Alice", nil)

	s.ErrorIs(err, errs.ErrValidation)
	s.Equal(0, s.countOrders())
}

func (s *OrderRepositoryIntegrationTestSuite) TestCreateOrder_UnknownProductRollsBack() {
	_, err := s.repository.CreateOrder(context.Background(), "Alice", []int64{1, 9999})

	s.ErrorIs(err, errs.ErrValidation)
	s.Equal(0, s.countOrders())
}

func (s *OrderRepositoryIntegrationTestSuite) TestGetOrder_TotalsCurrentPrices() {
	ctx := context.Background()

	id, err := s.repository.CreateOrder(ctx, "Alice", []int64{1, 2})
	s.Require().NoError(err)

	got, err := s.repository.GetOrder(ctx, id)
	s.Require().NoError(err)

	s.Equal("Alice", got.CustomerName)
	s.Equal(order.StatusPending, got.Status)
	s.Require().Len(got.OrderItems, 2)
	s.Equal(int64(1), got.OrderItems[0].ProductID)
	s.Equal("Croissant", got.OrderItems[0].ProductName)
	s.True(decimal.RequireFromString("5.75").Equal(got.Total), "total %s", got.Total)
}

func (s *OrderRepositoryIntegrationTestSuite) TestGetOrder_NotFound() {
	_, err := s.repository.GetOrder(context.Background(), 424242)

	s.ErrorIs(err, errs.ErrNotFound)
}

func (s *OrderRepositoryIntegrationTestSuite) TestUpdateStatus() {
	ctx := context.Background()

	id, err := s.repository.CreateOrder(ctx, "Alice", []int64{1})
	s.Require().NoError(err)

	s.Require().NoError(s.repository.UpdateStatus(ctx, id, order.StatusProcessing))

	got, err := s.repository.GetOrder(ctx, id)
	s.Require().NoError(err)
	s.Equal(order.StatusProcessing, got.Status)

	s.ErrorIs(s.repository.UpdateStatus(ctx, 424242, order.StatusCompleted), errs.ErrNotFound)
}

func (s *OrderRepositoryIntegrationTestSuite) TestAdvanceStatus_NeverMovesBackward() {
	ctx := context.Background()

	id, err := s.repository.CreateOrder(ctx, "Alice", []int64{1})
	s.Require().NoError(err)

	applied, err := s.repository.AdvanceStatus(ctx, id, order.StatusCompleted)
	s.Require().NoError(err)
	s.True(applied)

	applied, err = s.repository.AdvanceStatus(ctx, id, order.StatusProcessing)
	s.Require().NoError(err)
	s.False(applied)

	got, err := s.repository.GetOrder(ctx, id)
	s.Require().NoError(err)
	s.Equal(order.StatusCompleted, got.Status)

	_, err = s.repository.AdvanceStatus(ctx, 424242, order.StatusProcessing)
	s.ErrorIs(err, errs.ErrNotFound)
}

func (s *OrderRepositoryIntegrationTestSuite) TestListStale() {
	ctx := context.Background()

	stale, err := s.repository.CreateOrder(ctx, "Alice", []int64{1})
	s.Require().NoError(err)
	fresh, err := s.repository.CreateOrder(ctx, "Bob", []int64{2})
	s.Require().NoError(err)
	done, err := s.repository.CreateOrder(ctx, "Carol", []int64{2})
	s.Require().NoError(err)
	s.Require().NoError(s.repository.UpdateStatus(ctx, done, order.StatusCompleted))

	_, err = s.client.Pool().Exec(ctx,
		"UPDATE orders SET created_at = now() - interval '1 hour' WHERE id = ANY($1)",
		[]int64{stale, done})
	s.Require().NoError(err)

	got, err := s.repository.ListStale(ctx, order.QueryStaleModel{
		Status:        order.StatusPending,
		CreatedBefore: time.Now().Add(-5 * time.Minute),
		Limit:         10,
	})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(stale, got[0].ID)
	s.NotEqual(fresh, got[0].ID)
}

func (s *OrderRepositoryIntegrationTestSuite) TestListStale_SkipsRecentlyRepublished() {
	ctx := context.Background()
	now := time.Now()

	first, err := s.repository.CreateOrder(ctx, "Alice", []int64{1})
	s.Require().NoError(err)
	second, err := s.repository.CreateOrder(ctx, "Bob", []int64{2})
	s.Require().NoError(err)

	_, err = s.client.Pool().Exec(ctx,
		"UPDATE orders SET created_at = now() - interval '1 hour' WHERE id = ANY($1)",
		[]int64{first, second})
	s.Require().NoError(err)

	query := order.QueryStaleModel{
		Status:            order.StatusPending,
		CreatedBefore:     now.Add(-5 * time.Minute),
		RepublishedBefore: now.Add(-5 * time.Minute),
		Limit:             10,
	}

	s.Require().NoError(s.repository.MarkRepublished(ctx, first, now))

	got, err := s.repository.ListStale(ctx, query)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(second, got[0].ID)

	s.Require().NoError(s.repository.MarkRepublished(ctx, first, now.Add(-10*time.Minute)))

	got, err = s.repository.ListStale(ctx, query)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(second, got[0].ID, "never republished orders come first")
	s.Equal(first, got[1].ID)
}

func (s *OrderRepositoryIntegrationTestSuite) TestMarkRepublished_NotFound() {
	err := s.repository.MarkRepublished(context.Background(), 424242, time.Now())

	s.ErrorIs(err, errs.ErrNotFound)
}
