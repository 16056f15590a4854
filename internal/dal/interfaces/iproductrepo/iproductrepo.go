package iproductrepo

import (
	"context"

	"github.com/corray333/backend-labs/bakery/internal/service/models/product"
)

// IProductRepository is an interface for the product table.
type IProductRepository interface {
	ListProducts(ctx context.Context) ([]product.Product, error)
}
