// Package fulfillment places orders against the catalog and moves them
// through their lifecycle.
package fulfillment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/postcommit"
)

// Inventory is the slice of the catalog store that placement needs.
type Inventory interface {
	ProductReader
	SetStock(ctx context.Context, id string, stock int) error
}

// EventPublisher emits domain events (aws.Publisher in production).
type EventPublisher interface {
	PublishJSON(ctx context.Context, eventType string, v any, attributes map[string]string) error
}

// MetricsRecorder emits counters (aws.MetricsPublisher in production).
type MetricsRecorder interface {
	Count(ctx context.Context, name string, value float64, dimensions map[string]string) error
}

// Metric names
const (
	MetricOrdersPlaced        = "OrdersPlaced"
	MetricStockUpdateFailures = "StockUpdateFailures"
)

type Service struct {
	orders   orders.Store
	products Inventory
	after    *postcommit.Runner
	events   EventPublisher
	metrics  MetricsRecorder
	logger   *zap.Logger
	strict   bool
	newID    func() string
	nowFunc  func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithEvents publishes order.placed after every successful placement.
func WithEvents(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// WithMetrics records placement counters.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithStrictTransitions rejects status updates that move an order backwards.
func WithStrictTransitions(strict bool) Option {
	return func(s *Service) { s.strict = strict }
}

func NewService(orderStore orders.Store, products Inventory, after *postcommit.Runner, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		orders:   orderStore,
		products: products,
		after:    after,
		logger:   logger,
		newID:    uuid.NewString,
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Inventory = (*catalog.DynamoStore)(nil)
