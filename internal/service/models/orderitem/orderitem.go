package orderitem

import "github.com/shopspring/decimal"

// OrderItem represents a product line within an order, joined with the product's current data.
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"orderId"`
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Price       decimal.Decimal `json:"price"`
}
