// Package testutil provides in-memory doubles of the storage and queue interfaces.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/corray333/backend-labs/bakery/internal/service/errs"
	"github.com/corray333/backend-labs/bakery/internal/service/models/order"
	"github.com/corray333/backend-labs/bakery/internal/service/models/orderitem"
	"github.com/corray333/backend-labs/bakery/internal/service/models/product"
	"github.com/shopspring/decimal"
)

// Catalog is the seed catalog used across tests.
func Catalog() []product.Product {
	return []product.Product{
		{ID: 1, Name: "Croissant", Description: "Buttery, flaky French pastry", Price: decimal.RequireFromString("3.50"), Category: "Pastry"},
		{ID: 2, Name: "Baguette", Description: "Traditional French bread", Price: decimal.RequireFromString("2.25"), Category: "Bread"},
	}
}

// OrderRepository is an in-memory order store that prices items from Products.
type OrderRepository struct {
	mu       sync.Mutex
	nextID   int64
	orders   map[int64]*order.Order
	items    map[int64][]int64
	products map[int64]product.Product
	// republished holds the last MarkRepublished time per order.
	republished map[int64]time.Time

	// Err, when set, is returned by every call.
	Err error
	// FailStatusWrites makes the next n status writes fail with a transient error.
	FailStatusWrites int
	// History records every status written per order.
	History map[int64][]order.Status
	// Now stamps created orders; defaults to time.Now.
	Now func() time.Time
}

// NewOrderRepository creates an empty store over the given catalog.
func NewOrderRepository(catalog []product.Product) *OrderRepository {
	products := make(map[int64]product.Product, len(catalog))
	for _, p := range catalog {
		products[p.ID] = p
	}

	return &OrderRepository{
		orders:   make(map[int64]*order.Order),
		items:       make(map[int64][]int64),
		products:    products,
		republished: make(map[int64]time.Time),
		History:     make(map[int64][]order.Status),
		Now:         time.Now,
	}
}

// SetPrice changes a catalog price.
func (r *OrderRepository) SetPrice(productID int64, price decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.products[productID]
	p.Price = price
	r.products[productID] = p
}

// Count returns the number of stored orders.
func (r *OrderRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.orders)
}

// Status returns the current status of id.
func (r *OrderRepository) Status(id int64) order.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o, ok := r.orders[id]; ok {
		return o.Status
	}

	return ""
}

// SetCreatedAt backdates an order.
func (r *OrderRepository) SetCreatedAt(id int64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o, ok := r.orders[id]; ok {
		o.CreatedAt = at
	}
}

func (r *OrderRepository) CreateOrder(_ context.Context, customerName string, productIDs []int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return 0, r.Err
	}
	if customerName == "" {
		return 0, errs.NewValidationError("customer_name", "is required")
	}
	if len(productIDs) == 0 {
		return 0, errs.NewValidationError("product_ids", "must not be empty")
	}
	for _, id := range productIDs {
		if _, ok := r.products[id]; !ok {
			return 0, errs.NewValidationError("product_ids", "reference unknown products")
		}
	}

	r.nextID++
	r.orders[r.nextID] = &order.Order{
		ID:           r.nextID,
		CustomerName: customerName,
		Status:       order.StatusPending,
		CreatedAt:    r.Now(),
	}
	r.items[r.nextID] = append([]int64(nil), productIDs...)

	return r.nextID, nil
}

func (r *OrderRepository) writeStatus(id int64, status order.Status) error {
	if r.FailStatusWrites > 0 {
		r.FailStatusWrites--

		return errs.NewTransientError("update order status", context.DeadlineExceeded)
	}

	r.orders[id].Status = status
	r.History[id] = append(r.History[id], status)

	return nil
}

func (r *OrderRepository) UpdateStatus(_ context.Context, id int64, status order.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.orders[id]; !ok {
		return errs.NewNotFoundError("order", id)
	}

	return r.writeStatus(id, status)
}

func (r *OrderRepository) AdvanceStatus(_ context.Context, id int64, status order.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return false, r.Err
	}
	o, ok := r.orders[id]
	if !ok {
		return false, errs.NewNotFoundError("order", id)
	}
	if !order.CanAdvance(o.Status, status) {
		return false, nil
	}

	if err := r.writeStatus(id, status); err != nil {
		return false, err
	}

	return true, nil
}

func (r *OrderRepository) GetOrder(_ context.Context, id int64) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return nil, r.Err
	}
	o, ok := r.orders[id]
	if !ok {
		return nil, errs.NewNotFoundError("order", id)
	}

	out := *o
	out.OrderItems = make([]orderitem.OrderItem, 0, len(r.items[id]))
	out.Total = decimal.Zero
	for i, productID := range r.items[id] {
		p := r.products[productID]
		out.OrderItems = append(out.OrderItems, orderitem.OrderItem{
			ID:          int64(i + 1),
			OrderID:     id,
			ProductID:   productID,
			ProductName: p.Name,
			Price:       p.Price,
		})
		out.Total = out.Total.Add(p.Price)
	}

	return &out, nil
}

func (r *OrderRepository) ListStale(_ context.Context, query order.QueryStaleModel) ([]order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return nil, r.Err
	}

	since := func(o order.Order) time.Time {
		if at, ok := r.republished[o.ID]; ok {
			return at
		}

		return o.CreatedAt
	}

	var out []order.Order
	for _, o := range r.orders {
		if o.Status != query.Status || !o.CreatedAt.Before(query.CreatedBefore) {
			continue
		}
		if at, ok := r.republished[o.ID]; ok && !query.RepublishedBefore.IsZero() && !at.Before(query.RepublishedBefore) {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := since(out[i]), since(out[j])
		if !si.Equal(sj) {
			return si.Before(sj)
		}

		return out[i].ID < out[j].ID
	})
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}

	return out, nil
}

func (r *OrderRepository) MarkRepublished(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.orders[id]; !ok {
		return errs.NewNotFoundError("order", id)
	}
	r.republished[id] = at

	return nil
}

// Queue records published order ids and dead-lettered bodies.
type Queue struct {
	mu          sync.Mutex
	published   []int64
	deadLetters []DeadLetter

	// Err, when set, is returned by Publish.
	Err error
	// DeadLetterErr, when set, is returned by DeadLetter.
	DeadLetterErr error
	// OnPublish is called with every successfully published id.
	OnPublish func(orderID int64)
}

// DeadLetter is a parked message.
type DeadLetter struct {
	Body   []byte
	Reason string
}

func (q *Queue) Publish(_ context.Context, orderID int64) error {
	q.mu.Lock()
	if q.Err != nil {
		q.mu.Unlock()

		return q.Err
	}
	q.published = append(q.published, orderID)
	hook := q.OnPublish
	q.mu.Unlock()

	if hook != nil {
		hook(orderID)
	}

	return nil
}

func (q *Queue) DeadLetter(_ context.Context, body []byte, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.DeadLetterErr != nil {
		return q.DeadLetterErr
	}
	q.deadLetters = append(q.deadLetters, DeadLetter{Body: body, Reason: reason})

	return nil
}

// Published returns the ids published so far.
func (q *Queue) Published() []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	return append([]int64(nil), q.published...)
}

// DeadLetters returns the parked messages so far.
func (q *Queue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()

	return append([]DeadLetter(nil), q.deadLetters...)
}

// ProductRepository serves a fixed catalog and counts reads.
type ProductRepository struct {
	mu       sync.Mutex
	Products []product.Product
	Err      error
	calls    int
}

func (r *ProductRepository) ListProducts(_ context.Context) ([]product.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	if r.Err != nil {
		return nil, r.Err
	}

	return append([]product.Product(nil), r.Products...), nil
}

// Calls returns how many times the table was read.
func (r *ProductRepository) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.calls
}
