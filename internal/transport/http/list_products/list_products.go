package listproducts

import (
	"context"
	"net/http"

	"github.com/corray333/backend-labs/bakery/internal/service/models/product"
	"github.com/corray333/backend-labs/bakery/internal/transport/http/response"
)

type service interface {
	GetProducts(ctx context.Context) ([]product.Product, error)
}

type productResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
}

func fromModel(p product.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.InexactFloat64(),
		Category:    p.Category,
	}
}

// ListProducts handles GET /api/products.
func ListProducts(w http.ResponseWriter, r *http.Request, service service) {
	products, err := service.GetProducts(r.Context())
	if err != nil {
		response.FromError(w, r, err)

		return
	}

	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, fromModel(p))
	}

	response.JSON(w, r, http.StatusOK, resp)
}
