package iorderrepo

import (
	"context"
	"time"

	"github.com/corray333/backend-labs/bakery/internal/service/models/order"
)

// IOrderRepository defines the interface for order storage.
type IOrderRepository interface {
	// CreateOrder inserts a pending order and one item per product id in a single transaction
	CreateOrder(ctx context.Context, customerName string, productIDs []int64) (int64, error)

	// UpdateStatus overwrites the order status unconditionally
	UpdateStatus(ctx context.Context, id int64, status order.Status) error

	// AdvanceStatus moves the order to status only if that is not a step backward
	AdvanceStatus(ctx context.Context, id int64, status order.Status) (bool, error)

	// GetOrder returns the order with its items priced at current catalog prices
	GetOrder(ctx context.Context, id int64) (*order.Order, error)

	// ListStale returns orders that have been in a status since before a cutoff
	ListStale(ctx context.Context, query order.QueryStaleModel) ([]order.Order, error)

	// MarkRepublished records when the order id was last put back on the queue
	MarkRepublished(ctx context.Context, id int64, at time.Time) error
}
