package fulfillment

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/money"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

// RequestedItem is a cart entry as received, before normalisation.
type RequestedItem struct {
	ProductID any
	Quantity  any
}

type PlaceOrderInput struct {
	UserID          string
	Items           []RequestedItem
	ShippingAddress map[string]any
	PaymentMethod   string
	PaymentStatus   string
	PaymentDetails  map[string]any
	Status          string
	// Total, when set, replaces the computed total.
	Total *money.Amount
}

type PlaceOrderResult struct {
	Order        orders.Order        `json:"order"`
	StockUpdates []StockUpdateResult `json:"stockUpdates"`
}

// PlaceOrder prices the cart, writes the order and then decrements stock.
// The order write and the stock writes are not atomic: once the order is
// stored, stock failures are reported in the result and the call succeeds.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*PlaceOrderResult, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, apperr.Invalid("userId is required")
	}
	if len(in.Items) == 0 {
		return nil, apperr.Invalid("order must contain at least one product")
	}

	items := make([]LineItem, 0, len(in.Items))
	for i, it := range in.Items {
		id := validation.NormalizeProductID(it.ProductID)
		if id == "" {
			return nil, apperr.Invalid("products[%d].productId is required", i)
		}
		items = append(items, LineItem{ProductID: id, Quantity: validation.CoerceQuantity(it.Quantity)})
	}

	priced, err := PriceLineItems(ctx, s.products, items)
	if err != nil {
		return nil, err
	}

	status := orders.StatusPending
	if in.Status != "" {
		st, ok := orders.ParseStatus(in.Status)
		if !ok {
			return nil, &InvalidStatusError{Value: in.Status}
		}
		status = st
	}

	now := s.nowFunc().UTC()
	order := orders.Order{
		OrderID:         s.newID(),
		UserID:          userID,
		Items:           make([]orders.LineItem, 0, len(priced.Snapshots)),
		Status:          status,
		Total:           priced.Total,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   defaultString(in.PaymentMethod, orders.PaymentMethodCashOnDelivery),
		PaymentStatus:   defaultString(in.PaymentStatus, orders.PaymentStatusPending),
		PaymentDetails:  in.PaymentDetails,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, snap := range priced.Snapshots {
		order.Items = append(order.Items, orders.LineItem{
			ProductID: snap.ProductID,
			Name:      snap.Name,
			Quantity:  snap.OrderQuantity,
			UnitPrice: snap.UnitPrice,
		})
	}
	if in.Total != nil {
		order.Total = *in.Total
		if !in.Total.Equal(priced.Total) {
			// The supplied total is trusted as-is; keep the server figure for audit.
			computed := priced.Total
			order.ComputedTotal = &computed
			s.logger.Warn("caller-supplied total overrides computed total",
				zap.String("order_id", order.OrderID),
				zap.String("user_id", userID),
				zap.String("supplied_total", in.Total.StringFixed()),
				zap.String("computed_total", computed.StringFixed()))
		}
	}

	if err := s.orders.Create(ctx, order); err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, apperr.Persistence(err, "create order")
	}
	s.logger.Info("order placed",
		zap.String("order_id", order.OrderID),
		zap.String("user_id", userID),
		zap.Int("line_items", len(order.Items)),
		zap.String("total", order.Total.StringFixed()))

	updates := s.adjustInventory(ctx, order.OrderID, priced.Snapshots)
	s.afterPlacement(order, updates)

	return &PlaceOrderResult{Order: order, StockUpdates: updates}, nil
}

// afterPlacement schedules the event and metrics; neither affects the response.
func (s *Service) afterPlacement(order orders.Order, updates []StockUpdateResult) {
	fields := []zap.Field{zap.String("order_id", order.OrderID)}
	if s.events != nil {
		evt := newOrderPlacedEvent(order)
		s.after.Go("publish "+EventOrderPlaced, func(ctx context.Context) error {
			return s.events.PublishJSON(ctx, EventOrderPlaced, evt, map[string]string{
				"order_id": order.OrderID,
				"user_id":  order.UserID,
			})
		}, fields...)
	}
	if s.metrics != nil {
		failures := countFailures(updates)
		s.after.Go("placement metrics", func(ctx context.Context) error {
			if err := s.metrics.Count(ctx, MetricOrdersPlaced, 1, nil); err != nil {
				return err
			}
			if failures == 0 {
				return nil
			}
			return s.metrics.Count(ctx, MetricStockUpdateFailures, float64(failures), nil)
		}, fields...)
	}
}

func defaultString(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
