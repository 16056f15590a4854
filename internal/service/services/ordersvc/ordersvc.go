package ordersvc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/corray333/backend-labs/bakery/internal/dal/interfaces/iorderqueue"
	"github.com/corray333/backend-labs/bakery/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/bakery/internal/service/errs"
	"github.com/corray333/backend-labs/bakery/internal/service/models/order"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// OrderService accepts orders and answers status queries.
// It is the boundary between the synchronous API and the asynchronous worker.
type OrderService struct {
	orderRepo iorderrepo.IOrderRepository
	queue     iorderqueue.IOrderQueue
}

// option is a function that configures the OrderService.
type option func(*OrderService)

// MustNewOrderService creates a new OrderService.
func MustNewOrderService(opts ...option) *OrderService {
	s := &OrderService{}
	for _, opt := range opts {
		opt(s)
	}

	if s.orderRepo == nil {
		panic("ordersvc: order repository is required")
	}
	if s.queue == nil {
		panic("ordersvc: order queue is required")
	}

	return s
}

// WithOrderRepository sets the order store for the OrderService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderRepository(repo iorderrepo.IOrderRepository) option {
	return func(s *OrderService) {
		s.orderRepo = repo
	}
}

// WithOrderQueue sets the work queue publisher for the OrderService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderQueue(queue iorderqueue.IOrderQueue) option {
	return func(s *OrderService) {
		s.queue = queue
	}
}

// Submit validates the input, stores a pending order and enqueues it for fulfillment.
//
// The insert and the publish are not atomic. If the publish fails the order stays pending
// without a message and the error is returned; the reconciliation sweep republishes it later.
func (s *OrderService) Submit(ctx context.Context, customerName string, productIDs []int64) (*order.Submitted, error) {
	ctx, span := otel.Tracer("order-service").Start(ctx, "OrderService.Submit")
	defer span.End()

	if err := validateSubmission(customerName, productIDs); err != nil {
		return nil, err
	}

	orderID, err := s.orderRepo.CreateOrder(ctx, customerName, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	span.SetAttributes(attribute.Int64("order_id", orderID))

	if err := s.queue.Publish(ctx, orderID); err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "Order stored but not enqueued", "order_id", orderID, "error", err)

		return nil, fmt.Errorf("failed to enqueue order %d: %w", orderID, err)
	}

	slog.InfoContext(ctx, "Order submitted", "order_id", orderID, "items", len(productIDs))

	return &order.Submitted{
		OrderID: orderID,
		Status:  order.StatusPending,
	}, nil
}

// GetStatus returns the stored order with its items and total.
func (s *OrderService) GetStatus(ctx context.Context, id int64) (*order.Order, error) {
	ctx, span := otel.Tracer("order-service").Start(ctx, "OrderService.GetStatus")
	defer span.End()

	if id <= 0 {
		return nil, errs.NewNotFoundError("order", id)
	}

	o, err := s.orderRepo.GetOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return o, nil
}

func validateSubmission(customerName string, productIDs []int64) error {
	if strings.TrimSpace(customerName) == "" {
		return errs.NewValidationError("customer_name", "is required")
	}
	if len(productIDs) == 0 {
		return errs.NewValidationError("product_ids", "must not be empty")
	}
	for _, id := range productIDs {
		if id <= 0 {
			return errs.NewValidationError("product_ids", fmt.Sprintf("contain invalid id %d", id))
		}
	}

	return nil
}
