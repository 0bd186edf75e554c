package fulfillment

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/orders"
)

// UpdateStatus moves an order to status. By default any lifecycle value
// overwrites the current one; in strict mode only forward moves are allowed
// and the write is conditional on the status that was checked.
func (s *Service) UpdateStatus(ctx context.Context, orderID, status string) (*orders.Order, error) {
	target, ok := orders.ParseStatus(status)
	if !ok {
		return nil, &InvalidStatusError{Value: status}
	}

	var (
		updated *orders.Order
		err     error
	)
	if s.strict {
		updated, err = s.advanceStatus(ctx, orderID, target)
	} else {
		updated, err = s.orders.SetStatus(ctx, orderID, target)
	}
	if err != nil {
		return nil, s.statusError(err, orderID)
	}

	s.logger.Info("order status updated",
		zap.String("order_id", orderID),
		zap.String("status", string(target)))
	return updated, nil
}

func (s *Service) advanceStatus(ctx context.Context, orderID string, target orders.Status) (*orders.Order, error) {
	current, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, orders.ErrNotFound
	}
	if !orders.CanAdvance(current.Status, target) {
		return nil, &InvalidTransitionError{From: current.Status, To: target}
	}
	return s.orders.CompareAndSetStatus(ctx, orderID, current.Status, target)
}

func (s *Service) statusError(err error, orderID string) error {
	switch {
	case errors.Is(err, orders.ErrNotFound):
		return orderNotFound(orderID)
	case errors.Is(err, apperr.ErrConflict):
		return err
	default:
		return apperr.Persistence(err, "update order status")
	}
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, apperr.Persistence(err, "get order")
	}
	if o == nil {
		return nil, orderNotFound(orderID)
	}
	return o, nil
}

// ListOrders returns every order, or only those owned by userID when it is
// non-empty. No ordering is guaranteed.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]orders.Order, error) {
	var (
		out []orders.Order
		err error
	)
	if userID == "" {
		out, err = s.orders.List(ctx)
	} else {
		out, err = s.orders.ListByUser(ctx, userID)
	}
	if err != nil {
		return nil, apperr.Persistence(err, "list orders")
	}
	return out, nil
}
