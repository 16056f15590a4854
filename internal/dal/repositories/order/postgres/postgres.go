package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/bakery/internal/dal/postgres"
	"github.com/corray333/backend-labs/bakery/internal/service/errs"
	"github.com/corray333/backend-labs/bakery/internal/service/models/order"
	"github.com/corray333/backend-labs/bakery/internal/service/models/orderitem"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// OrderDal represents order data access layer model.
type OrderDal struct {
	ID           int64
	CustomerName string
	Status       string
	CreatedAt    time.Time
}

// ToModel converts OrderDal to service layer Order model.
func (o *OrderDal) ToModel() (*order.Order, error) {
	status, err := order.ParseStatus(o.Status)
	if err != nil {
		return nil, err
	}

	return &order.Order{
		ID:           o.ID,
		CustomerName: o.CustomerName,
		Status:       status,
		CreatedAt:    o.CreatedAt,
		OrderItems:   []orderitem.OrderItem{},
		Total:        decimal.Zero,
	}, nil
}

// OrderRepository implements the order repository for PostgreSQL.
type OrderRepository struct {
	client *postgres.Client
}

// NewOrderRepository creates a new order repository.
func NewOrderRepository(client *postgres.Client) *OrderRepository {
	return &OrderRepository{
		client: client,
	}
}

// CreateOrder inserts the order and its items atomically and returns the new id.
func (r *OrderRepository) CreateOrder(ctx context.Context, customerName string, productIDs []int64) (int64, error) {
	if customerName == "" {
		return 0, errs.NewValidationError("customer_name", "is required")
	}
	if len(productIDs) == 0 {
		return 0, errs.NewValidationError("product_ids", "must not be empty")
	}

	var orderID int64
	err := r.client.InTx(ctx, func(tx pgx.Tx) error {
		query, args, err := sq.Insert("orders").
			Columns("customer_name", "status").
			Values(customerName, order.StatusPending.String()).
			Suffix("RETURNING id").
			PlaceholderFormat(sq.Dollar).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build insert order query: %w", err)
		}

		if err := tx.QueryRow(ctx, query, args...).Scan(&orderID); err != nil {
			return classify("insert order", err)
		}

		items := sq.Insert("order_items").
			Columns("order_id", "product_id").
			PlaceholderFormat(sq.Dollar)
		for _, productID := range productIDs {
			items = items.Values(orderID, productID)
		}

		query, args, err = items.ToSql()
		if err != nil {
			return fmt.Errorf("failed to build insert order items query: %w", err)
		}

		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return classify("insert order items", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return orderID, nil
}

// UpdateStatus sets the order status regardless of its current value.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status order.Status) error {
	query, args, err := sq.Update("orders").
		Set("status", status.String()).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update status query: %w", err)
	}

	tag, err := r.client.Pool().Exec(ctx, query, args...)
	if err != nil {
		return classify("update order status", err)
	}

	if tag.RowsAffected() == 0 {
		return errs.NewNotFoundError("order", id)
	}

	return nil
}

// AdvanceStatus sets the order status only when the current status precedes or equals it.
// It reports false when the order is already further along.
func (r *OrderRepository) AdvanceStatus(ctx context.Context, id int64, status order.Status) (bool, error) {
	from := order.Predecessors(status)
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, s.String())
	}

	query, args, err := sq.Update("orders").
		Set("status", status.String()).
		Where(sq.Eq{"id": id, "status": allowed}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build advance status query: %w", err)
	}

	tag, err := r.client.Pool().Exec(ctx, query, args...)
	if err != nil {
		return false, classify("advance order status", err)
	}

	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Nothing updated: either the order is gone or it is already past status.
	if _, err := r.getOrderRow(ctx, id); err != nil {
		return false, err
	}

	return false, nil
}

// GetOrder returns the order with its items and total.
//
// Item prices and the total are read from the product table at query time, so a catalog
// price change after submission changes the reported total of existing orders.
func (r *OrderRepository) GetOrder(ctx context.Context, id int64) (*order.Order, error) {
	dal, err := r.getOrderRow(ctx, id)
	if err != nil {
		return nil, err
	}

	model, err := dal.ToModel()
	if err != nil {
		return nil, fmt.Errorf("failed to convert order dal to model: %w", err)
	}

	query, args, err := sq.Select("oi.id", "oi.order_id", "oi.product_id", "p.name", "p.price").
		From("order_items oi").
		Join("products p ON p.id = oi.product_id").
		Where(sq.Eq{"oi.order_id": id}).
		OrderBy("oi.id ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select order items query: %w", err)
	}

	rows, err := r.client.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, classify("query order items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item orderitem.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Price); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		model.OrderItems = append(model.OrderItems, item)
		model.Total = model.Total.Add(item.Price)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("iterate order items", err)
	}

	return model, nil
}

// ListStale returns orders in query.Status created before query.CreatedBefore and not
// republished since query.RepublishedBefore. Orders never republished come first, then the
// ones republished longest ago, so a full batch does not starve newer stale orders.
func (r *OrderRepository) ListStale(ctx context.Context, query order.QueryStaleModel) ([]order.Order, error) {
	builder := sq.Select("id", "customer_name", "status", "created_at").
		From("orders").
		Where(sq.Eq{"status": query.Status.String()}).
		Where(sq.Lt{"created_at": query.CreatedBefore}).
		OrderBy("COALESCE(republished_at, created_at) ASC", "id ASC").
		PlaceholderFormat(sq.Dollar)
	if !query.RepublishedBefore.IsZero() {
		builder = builder.Where(sq.Or{
			sq.Eq{"republished_at": nil},
			sq.Lt{"republished_at": query.RepublishedBefore},
		})
	}
	if query.Limit > 0 {
		builder = builder.Limit(uint64(query.Limit))
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select stale orders query: %w", err)
	}

	rows, err := r.client.Pool().Query(ctx, sql, args...)
	if err != nil {
		return nil, classify("query stale orders", err)
	}
	defer rows.Close()

	var result []order.Order
	for rows.Next() {
		var dal OrderDal
		if err := rows.Scan(&dal.ID, &dal.CustomerName, &dal.Status, &dal.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		model, err := dal.ToModel()
		if err != nil {
			return nil, fmt.Errorf("failed to convert order dal to model: %w", err)
		}
		result = append(result, *model)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("iterate stale orders", err)
	}

	return result, nil
}

// MarkRepublished stamps the order with the time its id was last put back on the queue.
func (r *OrderRepository) MarkRepublished(ctx context.Context, id int64, at time.Time) error {
	query, args, err := sq.Update("orders").
		Set("republished_at", at).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build mark republished query: %w", err)
	}

	tag, err := r.client.Pool().Exec(ctx, query, args...)
	if err != nil {
		return classify("mark order republished", err)
	}

	if tag.RowsAffected() == 0 {
		return errs.NewNotFoundError("order", id)
	}

	return nil
}

func (r *OrderRepository) getOrderRow(ctx context.Context, id int64) (*OrderDal, error) {
	query, args, err := sq.Select("id", "customer_name", "status", "created_at").
		From("orders").
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select order query: %w", err)
	}

	var dal OrderDal
	err = r.client.Pool().QueryRow(ctx, query, args...).
		Scan(&dal.ID, &dal.CustomerName, &dal.Status, &dal.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NewNotFoundError("order", id)
	}
	if err != nil {
		return nil, classify("query order", err)
	}

	return &dal, nil
}

// classify turns constraint violations into validation errors and everything else into
// transient infrastructure errors.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.ForeignKeyViolation:
			return errs.NewValidationError("product_ids", "reference unknown products")
		case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
			field := pgErr.ColumnName
			if field == "" {
				field = pgErr.TableName
			}

			return errs.NewValidationError(field, "violates "+pgErr.ConstraintName)
		}
	}

	return errs.NewTransientError(op, err)
}
