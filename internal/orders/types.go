package orders

import (
	"time"

	"github.com/imrishuroy/go-storefront/internal/money"
)

// Payment defaults applied when the caller leaves them unset.
const (
	PaymentMethodCashOnDelivery = "cash_on_delivery"
	PaymentStatusPending        = "pending"
)

// LineItem is one product/quantity pair, with the name and unit price
// captured when the order was placed.
type LineItem struct {
	ProductID string       `dynamodbav:"product_id" json:"productId"`
	Name      string       `dynamodbav:"name,omitempty" json:"name,omitempty"`
	Quantity  int          `dynamodbav:"quantity" json:"quantity"`
	UnitPrice money.Amount `dynamodbav:"unit_price" json:"unitPrice"`
}

// Order represents the item stored in the Orders DynamoDB table.
type Order struct {
	OrderID         string         `dynamodbav:"order_id" json:"id"`    // PK
	UserID          string         `dynamodbav:"user_id" json:"userId"` // GSI user_id-index
	Items           []LineItem     `dynamodbav:"items" json:"products"`
	Status          Status         `dynamodbav:"status" json:"status"`
	Total           money.Amount   `dynamodbav:"total" json:"total"`
	ComputedTotal   *money.Amount  `dynamodbav:"computed_total,omitempty" json:"computedTotal,omitempty"` // set when a caller total overrode it
	ShippingAddress map[string]any `dynamodbav:"shipping_address,omitempty" json:"shippingAddress,omitempty"`
	PaymentMethod   string         `dynamodbav:"payment_method" json:"paymentMethod"`
	PaymentStatus   string         `dynamodbav:"payment_status" json:"paymentStatus"`
	PaymentDetails  map[string]any `dynamodbav:"payment_details,omitempty" json:"paymentDetails,omitempty"`
	CreatedAt       time.Time      `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt       time.Time      `dynamodbav:"updated_at" json:"updatedAt"`
}
