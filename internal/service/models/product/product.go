package product

import "github.com/shopspring/decimal"

// Product represents a bakery catalog entry. Read-only for the order pipeline.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
}
