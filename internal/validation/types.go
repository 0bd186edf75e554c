package validation

import "github.com/imrishuroy/go-storefront/internal/money"

// OrderProduct is one requested line item. Both fields arrive loosely typed
// and are normalised with NormalizeProductID and CoerceQuantity.
type OrderProduct struct {
	ProductID any `json:"productId"`
	Quantity  any `json:"quantity"`
}

// PlaceOrderRequest is the payload for POST /orders.
// UserID may be omitted when the caller is identified by the principal headers.
type PlaceOrderRequest struct {
	UserID          string         `json:"userId"`
	Products        []OrderProduct `json:"products" validate:"required,min=1"`
	Total           *money.Amount  `json:"total,omitempty"` // overrides the computed total when present
	Status          string         `json:"status,omitempty"`
	ShippingAddress map[string]any `json:"shippingAddress,omitempty"`
	PaymentMethod   string         `json:"paymentMethod,omitempty"`
	PaymentStatus   string         `json:"paymentStatus,omitempty"`
	PaymentDetails  map[string]any `json:"paymentDetails,omitempty"`
}

// StatusRequest is the payload for PATCH/PUT /orders/:id/status.
type StatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// ProductRequest is the payload for POST and PUT /products.
type ProductRequest struct {
	Name        string       `json:"name" validate:"required"`
	Description string       `json:"description"`
	Price       money.Amount `json:"price"`
	Category    string       `json:"category"`
	ImageCID    string       `json:"imageCid"`
	Stock       int          `json:"stock" validate:"min=0"`
}

// UserRequest is the payload for POST and PUT /users.
type UserRequest struct {
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Role       string `json:"role" validate:"omitempty,oneof=admin customer"`
	ExternalID string `json:"externalId"`
}

// SyncUserRequest is the identity-provider payload for POST /users/sync.
type SyncUserRequest struct {
	ExternalID string `json:"externalId" validate:"required"`
	Name       string `json:"name"`
	Email      string `json:"email" validate:"required,email"`
	Role       string `json:"role" validate:"omitempty,oneof=admin customer"`
}
