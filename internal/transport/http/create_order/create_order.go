package createorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/corray333/backend-labs/bakery/internal/service/models/order"
	"github.com/corray333/backend-labs/bakery/internal/transport/http/response"
	"github.com/go-playground/validator/v10"
)

// service is an interface for the service layer.
type service interface {
	Submit(ctx context.Context, customerName string, productIDs []int64) (*order.Submitted, error)
}

// MaxBodyBytes caps the size of a create order request body.
const MaxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

// createOrderRequest represents a create order request.
type createOrderRequest struct {
	CustomerName string  `json:"customer_name" validate:"required"`
	ProductIDs   []int64 `json:"product_ids"   validate:"required,min=1,dive,gt=0"`
}

// Validate validates the create order request.
func (r *createOrderRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}

	fe := fieldErrs[0]
	// element errors are reported as product_ids[2]
	field, _, _ := strings.Cut(fe.Field(), "[")
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "min":
		return fmt.Errorf("%s must not be empty", field)
	case "gt":
		return fmt.Errorf("%s must contain positive ids", field)
	default:
		return fmt.Errorf("%s is invalid", field)
	}
}

type createOrderResponse struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

// CreateOrder handles POST /api/orders.
func CreateOrder(w http.ResponseWriter, r *http.Request, service service) {
	req := createOrderRequest{}
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		slog.WarnContext(r.Context(), "Error decoding request body for create order", "error", err)

		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, r, http.StatusRequestEntityTooLarge, "request body too large")

			return
		}
		response.Error(w, r, http.StatusBadRequest, "invalid request body")

		return
	}

	if err := req.Validate(); err != nil {
		slog.WarnContext(r.Context(), "Error validating request body for create order", "error", err)
		response.Error(w, r, http.StatusBadRequest, err.Error())

		return
	}

	submitted, err := service.Submit(r.Context(), req.CustomerName, req.ProductIDs)
	if err != nil {
		response.FromError(w, r, err)

		return
	}

	response.JSON(w, r, http.StatusOK, createOrderResponse{
		OrderID: submitted.OrderID,
		Status:  submitted.Status.String(),
	})
}
