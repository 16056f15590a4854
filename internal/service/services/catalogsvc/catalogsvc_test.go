package catalogsvc_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisclient "github.com/corray333/backend-labs/bakery/internal/dal/redis"
	productcache "github.com/corray333/backend-labs/bakery/internal/dal/repositories/product/redis"
	"github.com/corray333/backend-labs/bakery/internal/service/errs"
	"github.com/corray333/backend-labs/bakery/internal/service/services/catalogsvc"
	"github.com/corray333/backend-labs/bakery/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type CatalogServiceTestSuite struct {
	suite.Suite
	mr   *miniredis.Miniredis
	rdb  *redis.Client
	repo *testutil.ProductRepository
	svc  *catalogsvc.CatalogService
}

func TestCatalogService(t *testing.T) {
	suite.Run(t, new(CatalogServiceTestSuite))
}

func (s *CatalogServiceTestSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	s.rdb = redis.NewClient(&redis.Options{
		Addr:        s.mr.Addr(),
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	s.repo = &testutil.ProductRepository{Products: testutil.Catalog()}
	s.svc = catalogsvc.MustNewCatalogService(
		catalogsvc.WithProductRepository(s.repo),
		catalogsvc.WithProductCache(productcache.NewProductCache(redisclient.NewClient(s.rdb))),
		catalogsvc.WithTTL(catalogsvc.DefaultTTL),
	)
}

func (s *CatalogServiceTestSuite) TearDownTest() {
	_ = s.rdb.Close()
}

func (s *CatalogServiceTestSuite) TestMissPopulatesCache() {
	got, err := s.svc.GetProducts(context.Background())
	s.Require().NoError(err)
	s.Len(got, 2)
	s.Equal(1, s.repo.Calls())

	s.True(s.mr.Exists(productcache.ProductsKey))
	s.Equal(catalogsvc.DefaultTTL, s.mr.TTL(productcache.ProductsKey))
}

func (s *CatalogServiceTestSuite) TestHitSkipsDatabase() {
	ctx := context.Background()

	_, err := s.svc.GetProducts(ctx)
	s.Require().NoError(err)

	got, err := s.svc.GetProducts(ctx)
	s.Require().NoError(err)
	s.Len(got, 2)
	s.Equal("Croissant", got[0].Name)
	s.Equal(1, s.repo.Calls())
}

func (s *CatalogServiceTestSuite) TestExpiresAtExactlyTTL() {
	ctx := context.Background()

	_, err := s.svc.GetProducts(ctx)
	s.Require().NoError(err)

	s.mr.FastForward(catalogsvc.DefaultTTL - time.Second)
	_, err = s.svc.GetProducts(ctx)
	s.Require().NoError(err)
	s.Equal(1, s.repo.Calls(), "still cached one second before expiry")

	s.mr.FastForward(time.Second)
	s.False(s.mr.Exists(productcache.ProductsKey))

	_, err = s.svc.GetProducts(ctx)
	s.Require().NoError(err)
	s.Equal(2, s.repo.Calls(), "reloaded at expiry")
}

func (s *CatalogServiceTestSuite) TestCorruptCacheFallsBackToDatabase() {
	s.Require().NoError(s.mr.Set(productcache.ProductsKey, "{broken"))

	got, err := s.svc.GetProducts(context.Background())
	s.Require().NoError(err)
	s.Len(got, 2)
	s.Equal(1, s.repo.Calls())
}

func (s *CatalogServiceTestSuite) TestCacheDownFailsOpen() {
	s.mr.Close()

	got, err := s.svc.GetProducts(context.Background())
	s.Require().NoError(err)
	s.Len(got, 2)
	s.Equal(1, s.repo.Calls())
}

func (s *CatalogServiceTestSuite) TestDatabaseErrorIsReturned() {
	s.repo.Err = errs.NewTransientError("query products", errors.New("connection refused"))

	_, err := s.svc.GetProducts(context.Background())
	s.ErrorIs(err, errs.ErrTransient)
	s.False(s.mr.Exists(productcache.ProductsKey))
}

func TestGetProducts_WithoutCache(t *testing.T) {
	repo := &testutil.ProductRepository{Products: testutil.Catalog()}
	svc := catalogsvc.MustNewCatalogService(catalogsvc.WithProductRepository(repo))

	got, err := svc.GetProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = svc.GetProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.Calls())
}
