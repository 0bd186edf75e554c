package fulfillment

import (
	"time"

	"github.com/imrishuroy/go-storefront/internal/money"
	"github.com/imrishuroy/go-storefront/internal/orders"
)

// EventOrderPlaced is the event_type attribute of placement messages.
const EventOrderPlaced = "order.placed"

// OrderPlacedEvent is the SQS message body consumed by the worker.
type OrderPlacedEvent struct {
	OrderID  string            `json:"order_id"`
	UserID   string            `json:"user_id"`
	Total    money.Amount      `json:"total"`
	Items    []orders.LineItem `json:"items"`
	PlacedAt time.Time         `json:"placed_at"`
}

func newOrderPlacedEvent(o orders.Order) OrderPlacedEvent {
	return OrderPlacedEvent{
		OrderID:  o.OrderID,
		UserID:   o.UserID,
		Total:    o.Total,
		Items:    o.Items,
		PlacedAt: o.CreatedAt,
	}
}
