package fulfillmentsvc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/corray333/backend-labs/bakery/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/bakery/internal/service/models/order"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Fulfiller performs the physical work for an order.
type Fulfiller interface {
	Fulfill(ctx context.Context, orderID int64) error
}

// FulfillmentService drives an order through pending, processing and completed.
type FulfillmentService struct {
	orderRepo iorderrepo.IOrderRepository
	fulfiller Fulfiller
}

type option func(*FulfillmentService)

// MustNewFulfillmentService creates a new FulfillmentService.
func MustNewFulfillmentService(opts ...option) *FulfillmentService {
	s := &FulfillmentService{}
	for _, opt := range opts {
		opt(s)
	}

	if s.orderRepo == nil {
		panic("fulfillmentsvc: order repository is required")
	}
	if s.fulfiller == nil {
		s.fulfiller = SimulatedBakeryFromConfig()
	}

	return s
}

// WithOrderRepository sets the order store.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderRepository(repo iorderrepo.IOrderRepository) option {
	return func(s *FulfillmentService) {
		s.orderRepo = repo
	}
}

// WithFulfiller replaces the simulated bakery.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithFulfiller(f Fulfiller) option {
	return func(s *FulfillmentService) {
		s.fulfiller = f
	}
}

// Process moves the order to processing, fulfills it and marks it completed.
//
// Redelivered messages are safe: a processing order is processed again, and a completed
// order is left as is. A nil error means the message can be acknowledged.
func (s *FulfillmentService) Process(ctx context.Context, orderID int64) error {
	ctx, span := otel.Tracer("fulfillment-service").Start(ctx, "FulfillmentService.Process")
	defer span.End()
	span.SetAttributes(attribute.Int64("order_id", orderID))

	applied, err := s.orderRepo.AdvanceStatus(ctx, orderID, order.StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark order processing: %w", err)
	}
	if !applied {
		slog.InfoContext(ctx, "Order already completed, skipping", "order_id", orderID)

		return nil
	}
	slog.InfoContext(ctx, "Order processing", "order_id", orderID)

	if err := s.fulfiller.Fulfill(ctx, orderID); err != nil {
		return fmt.Errorf("failed to fulfill order: %w", err)
	}

	if err := s.orderRepo.UpdateStatus(ctx, orderID, order.StatusCompleted); err != nil {
		return fmt.Errorf("failed to mark order completed: %w", err)
	}
	slog.InfoContext(ctx, "Order completed", "order_id", orderID)

	return nil
}
