package fulfillment

import (
	"fmt"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/orders"
)

// ProductNotFoundError is returned when a line item references a product
// missing from the catalog.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error { return apperr.ErrNotFound }

// InsufficientStockError reports the first line item whose quantity exceeds
// the product's stock.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q (product %s): requested %d, available %d",
		e.Name, e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return apperr.ErrInsufficientStock }

// InvalidStatusError is returned for a status outside the lifecycle.
type InvalidStatusError struct {
	Value string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid status %q: must be one of %s", e.Value, orders.AllowedStatuses())
}

func (e *InvalidStatusError) Unwrap() error { return apperr.ErrInvalidRequest }

// InvalidTransitionError is returned in strict mode for a backwards move.
type InvalidTransitionError struct {
	From orders.Status
	To   orders.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return apperr.ErrConflict }

func orderNotFound(id string) error {
	return apperr.New(apperr.ErrNotFound, "order %s not found", id)
}
