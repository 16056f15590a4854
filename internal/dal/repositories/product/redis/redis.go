package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisclient "github.com/corray333/backend-labs/bakery/internal/dal/redis"
	"github.com/corray333/backend-labs/bakery/internal/service/models/product"
	"github.com/redis/go-redis/v9"
)

// ProductsKey is the single cache key holding the full product list.
const ProductsKey = "products"

// ProductCache stores the encoded product list in Redis.
type ProductCache struct {
	client *redisclient.Client
}

// NewProductCache creates a new product cache.
func NewProductCache(client *redisclient.Client) *ProductCache {
	return &ProductCache{
		client: client,
	}
}

// Get returns the cached product list. A missing key is reported as (nil, false, nil).
func (c *ProductCache) Get(ctx context.Context) ([]product.Product, bool, error) {
	raw, err := c.client.Redis().Get(ctx, ProductsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached products: %w", err)
	}

	var products []product.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached products: %w", err)
	}

	return products, true, nil
}

// Set stores the product list with the given expiry.
func (c *ProductCache) Set(ctx context.Context, products []product.Product, ttl time.Duration) error {
	raw, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("failed to encode products: %w", err)
	}

	if err := c.client.Redis().Set(ctx, ProductsKey, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache products: %w", err)
	}

	return nil
}
