package iproductcache

import (
	"context"
	"time"

	"github.com/corray333/backend-labs/bakery/internal/service/models/product"
)

// IProductCache is an interface for the cached product list.
type IProductCache interface {
	// Get returns the cached list and whether it was present
	Get(ctx context.Context) ([]product.Product, bool, error)

	// Set stores the list for ttl
	Set(ctx context.Context, products []product.Product, ttl time.Duration) error
}
