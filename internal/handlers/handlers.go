package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/fulfillment"
	"github.com/imrishuroy/go-storefront/internal/idempotency"
	"github.com/imrishuroy/go-storefront/internal/middleware"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/users"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, in fulfillment.PlaceOrderInput) (*fulfillment.PlaceOrderResult, error)
	UpdateStatus(ctx context.Context, orderID, status string) (*orders.Order, error)
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	ListOrders(ctx context.Context, userID string) ([]orders.Order, error)
	BestSellers(ctx context.Context, limit int) ([]fulfillment.BestSeller, error)
}

type ProductService interface {
	Create(ctx context.Context, in catalog.ProductInput) (*catalog.Product, error)
	Get(ctx context.Context, id string) (*catalog.Product, error)
	List(ctx context.Context, category string) ([]catalog.Product, error)
	Update(ctx context.Context, id string, in catalog.ProductInput) (*catalog.Product, error)
	Delete(ctx context.Context, id string) error
}

type UserService interface {
	Register(ctx context.Context, in users.Input) (*users.User, error)
	Get(ctx context.Context, id string) (*users.User, error)
	List(ctx context.Context) ([]users.User, error)
	Update(ctx context.Context, id string, in users.Input) (*users.User, error)
	Delete(ctx context.Context, id string) error
	SyncFromProvider(ctx context.Context, in users.SyncInput) (*users.User, bool, error)
}

// IdempotencyStore backs the optional Idempotency-Key header on POST /orders.
type IdempotencyStore interface {
	ClaimRequest(ctx context.Context, key, requestHash string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	ReclaimRequest(ctx context.Context, key, requestHash string) (bool, error)
	MarkDone(ctx context.Context, key, orderID, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// HandlerConfig groups dependencies for the route handlers.
type HandlerConfig struct {
	Orders      OrderService
	Products    ProductService
	Users       UserService
	Idempotency IdempotencyStore // nil disables Idempotency-Key handling
	Logger      *zap.Logger
}

const roleAdmin = string(users.RoleAdmin)

// RegisterRoutes registers the storefront API on r.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	admin := middleware.RequireRole(roleAdmin)

	oh := &ordersHandler{svc: cfg.Orders, idem: cfg.Idempotency, v: v, logger: cfg.Logger}
	r.POST("/orders", oh.place)
	r.GET("/orders", oh.list)
	r.GET("/orders/:id", oh.get)
	r.PATCH("/orders/:id/status", oh.updateStatus)
	r.PUT("/orders/:id/status", oh.updateStatus)

	ph := &productsHandler{svc: cfg.Products, orders: cfg.Orders, v: v}
	r.GET("/products", ph.list)
	r.GET("/products/best-sellers", ph.bestSellers)
	r.GET("/products/:id", ph.get)
	r.POST("/products", admin, ph.create)
	r.PUT("/products/:id", admin, ph.update)
	r.DELETE("/products/:id", admin, ph.delete)

	uh := &usersHandler{svc: cfg.Users, v: v}
	r.POST("/users", uh.register)
	r.POST("/users/sync", admin, uh.sync)
	r.GET("/users", admin, uh.list)
	r.GET("/users/:id", uh.get)
	r.PUT("/users/:id", uh.update)
	r.DELETE("/users/:id", uh.delete)
}
