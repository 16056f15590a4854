package order

import (
	"time"

	"github.com/corray333/backend-labs/bakery/internal/service/models/orderitem"
	"github.com/shopspring/decimal"
)

// Order represents a customer order together with its items.
type Order struct {
	ID           int64                 `json:"id"`
	CustomerName string                `json:"customerName"`
	Status       Status                `json:"status"`
	CreatedAt    time.Time             `json:"createdAt"`
	OrderItems   []orderitem.OrderItem `json:"orderItems"`
	// Total is the sum of the items' current catalog prices.
	Total decimal.Decimal `json:"total"`
}

// Submitted is what the submission path returns to the caller.
type Submitted struct {
	OrderID int64  `json:"orderId"`
	Status  Status `json:"status"`
}
