package catalogsvc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/bakery/internal/dal/interfaces/iproductcache"
	"github.com/corray333/backend-labs/bakery/internal/dal/interfaces/iproductrepo"
	"github.com/corray333/backend-labs/bakery/internal/service/models/product"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultTTL is how long the product list stays cached.
const DefaultTTL = 300 * time.Second

// CatalogService serves the product list through a read-through cache.
// The cache is optional: any cache failure falls back to the product table.
type CatalogService struct {
	productRepo iproductrepo.IProductRepository
	cache       iproductcache.IProductCache
	ttl         time.Duration
}

type option func(*CatalogService)

// MustNewCatalogService creates a new CatalogService.
func MustNewCatalogService(opts ...option) *CatalogService {
	ttl := time.Duration(viper.GetInt("redis.catalog_ttl_seconds")) * time.Second
	if ttl == 0 {
		ttl = DefaultTTL
	}

	s := &CatalogService{ttl: ttl}
	for _, opt := range opts {
		opt(s)
	}

	if s.productRepo == nil {
		panic("catalogsvc: product repository is required")
	}

	return s
}

// WithProductRepository sets the product table reader.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithProductRepository(repo iproductrepo.IProductRepository) option {
	return func(s *CatalogService) {
		s.productRepo = repo
	}
}

// WithProductCache sets the product cache.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithProductCache(cache iproductcache.IProductCache) option {
	return func(s *CatalogService) {
		s.cache = cache
	}
}

// WithTTL overrides the cache expiry.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithTTL(ttl time.Duration) option {
	return func(s *CatalogService) {
		s.ttl = ttl
	}
}

// GetProducts returns the catalog, from cache when possible.
func (s *CatalogService) GetProducts(ctx context.Context) ([]product.Product, error) {
	ctx, span := otel.Tracer("catalog-service").Start(ctx, "CatalogService.GetProducts")
	defer span.End()

	if s.cache != nil {
		products, ok, err := s.cache.Get(ctx)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "Catalog cache read failed, falling back to database", "error", err)
		case ok:
			span.SetAttributes(attribute.Bool("cache_hit", true))

			return products, nil
		}
	}
	span.SetAttributes(attribute.Bool("cache_hit", false))

	products, err := s.productRepo.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, products, s.ttl); err != nil {
			slog.WarnContext(ctx, "Catalog cache write failed", "error", err)
		}
	}

	return products, nil
}
