package getorder

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/corray333/backend-labs/bakery/internal/service/models/order"
	"github.com/corray333/backend-labs/bakery/internal/transport/http/response"
	"github.com/go-chi/chi/v5"
)

type service interface {
	GetStatus(ctx context.Context, id int64) (*order.Order, error)
}

type itemResponse struct {
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	Price       float64 `json:"price"`
}

type orderResponse struct {
	ID           int64          `json:"id"`
	CustomerName string         `json:"customer_name"`
	Status       string         `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	Items        []itemResponse `json:"items"`
	Total        float64        `json:"total"`
}

func fromModel(o *order.Order) orderResponse {
	items := make([]itemResponse, 0, len(o.OrderItems))
	for _, item := range o.OrderItems {
		items = append(items, itemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Price:       item.Price.InexactFloat64(),
		})
	}

	return orderResponse{
		ID:           o.ID,
		CustomerName: o.CustomerName,
		Status:       o.Status.String(),
		CreatedAt:    o.CreatedAt,
		Items:        items,
		Total:        o.Total.InexactFloat64(),
	}
}

// GetOrder handles GET /api/orders/{id}.
func GetOrder(w http.ResponseWriter, r *http.Request, service service) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "order id must be an integer")

		return
	}

	o, err := service.GetStatus(r.Context(), id)
	if err != nil {
		response.FromError(w, r, err)

		return
	}

	response.JSON(w, r, http.StatusOK, fromModel(o))
}
