package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/bakery/internal/dal/postgres"
	"github.com/corray333/backend-labs/bakery/internal/service/errs"
	"github.com/corray333/backend-labs/bakery/internal/service/models/product"
)

// ProductRepository implements the product repository for PostgreSQL.
type ProductRepository struct {
	client *postgres.Client
}

// NewProductRepository creates a new product repository.
func NewProductRepository(client *postgres.Client) *ProductRepository {
	return &ProductRepository{
		client: client,
	}
}

// ListProducts returns the whole catalog ordered by id.
func (r *ProductRepository) ListProducts(ctx context.Context) ([]product.Product, error) {
	query, args, err := sq.Select("id", "name", "description", "price", "category").
		From("products").
		OrderBy("id ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select products query: %w", err)
	}

	rows, err := r.client.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, errs.NewTransientError("query products", err)
	}
	defer rows.Close()

	products := []product.Product{}
	for rows.Next() {
		var p product.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, errs.NewTransientError("iterate products", err)
	}

	return products, nil
}
