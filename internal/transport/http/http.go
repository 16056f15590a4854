package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/corray333/backend-labs/bakery/internal/service/models/order"
	"github.com/corray333/backend-labs/bakery/internal/service/models/product"
	"github.com/corray333/backend-labs/bakery/internal/service/services/healthsvc"
	createorder "github.com/corray333/backend-labs/bakery/internal/transport/http/create_order"
	getorder "github.com/corray333/backend-labs/bakery/internal/transport/http/get_order"
	"github.com/corray333/backend-labs/bakery/internal/transport/http/health"
	listproducts "github.com/corray333/backend-labs/bakery/internal/transport/http/list_products"
	"github.com/corray333/backend-labs/bakery/pkg/http/middleware/trace"
	"github.com/corray333/backend-labs/bakery/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
)

type orderService interface {
	Submit(ctx context.Context, customerName string, productIDs []int64) (*order.Submitted, error)
	GetStatus(ctx context.Context, id int64) (*order.Order, error)
}

type catalogService interface {
	GetProducts(ctx context.Context) ([]product.Product, error)
}

type healthService interface {
	Check(ctx context.Context) healthsvc.Report
}

type HTTPTransport struct {
	server  *http.Server
	router  *chi.Mux
	orders  orderService
	catalog catalogService
	health  healthService
}

func NewHTTPTransport(orders orderService, catalog catalogService, health healthService) *HTTPTransport {
	router := newRouter()
	server := newServer(router)

	return &HTTPTransport{
		server:  server,
		router:  router,
		orders:  orders,
		catalog: catalog,
		health:  health,
	}
}

// Handler exposes the router, mainly for tests.
func (h *HTTPTransport) Handler() http.Handler {
	return h.router
}

func (h *HTTPTransport) Run() error {
	slog.Info("HTTP server listening", "addr", h.server.Addr)

	return h.server.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (h *HTTPTransport) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// RegisterRoutes registers the routes for the HTTPTransport.
func (h *HTTPTransport) RegisterRoutes() {
	h.router.Get("/health", h.getHealth)
	h.router.Route("/api", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Post("/orders", h.createOrder)
		r.Get("/orders/{id}", h.getOrder)
	})
}

func (h *HTTPTransport) listProducts(w http.ResponseWriter, r *http.Request) {
	listproducts.ListProducts(w, r, h.catalog)
}

func (h *HTTPTransport) createOrder(w http.ResponseWriter, r *http.Request) {
	createorder.CreateOrder(w, r, h.orders)
}

func (h *HTTPTransport) getOrder(w http.ResponseWriter, r *http.Request) {
	getorder.GetOrder(w, r, h.orders)
}

func (h *HTTPTransport) getHealth(w http.ResponseWriter, r *http.Request) {
	health.Health(w, r, h.health)
}

func newRouter() *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(trace.NewTraceMiddleware("bakery-api"))
	router.Use(logger.NewLoggerMiddleware(slog.Default()))

	allowedOrigins := viper.GetStringSlice("server.http.cors.allowed_origins")
	allowedMethods := viper.GetStringSlice("server.http.cors.allowed_methods")
	allowedHeaders := viper.GetStringSlice("server.http.cors.allowed_headers")
	exposedHeaders := viper.GetStringSlice("server.http.cors.exposed_headers")
	allowCredentials := viper.GetBool("server.http.cors.allow_credentials")
	maxAge := viper.GetInt("server.http.cors.max_age")

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   allowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	})

	router.Use(c.Handler)

	return router
}

func newServer(router http.Handler) *http.Server {
	return &http.Server{
		Addr:              "0.0.0.0:" + viper.GetString("server.http.port"),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
