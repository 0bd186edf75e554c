package fulfillment

import (
	"context"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/money"
)

// ProductReader resolves catalog products. Get returns (nil, nil) when the
// product does not exist.
type ProductReader interface {
	Get(ctx context.Context, id string) (*catalog.Product, error)
}

// LineItem is a normalised cart entry; Quantity is always at least 1.
type LineItem struct {
	ProductID string
	Quantity  int
}

// StockSnapshot captures what was read for one line item so that inventory
// can be adjusted after the order is written.
type StockSnapshot struct {
	ProductID     string
	Name          string
	CurrentStock  int
	OrderQuantity int
	UnitPrice     money.Amount
}

// Pricing is the result of PriceLineItems.
type Pricing struct {
	Total     money.Amount
	Snapshots []StockSnapshot
}

// PriceLineItems resolves every line item, checks stock and sums
// price × quantity. It performs no writes and stops at the first failing item.
func PriceLineItems(ctx context.Context, products ProductReader, items []LineItem) (*Pricing, error) {
	out := &Pricing{
		Total:     money.Zero(),
		Snapshots: make([]StockSnapshot, 0, len(items)),
	}
	for _, it := range items {
		p, err := products.Get(ctx, it.ProductID)
		if err != nil {
			return nil, apperr.Persistence(err, "load product "+it.ProductID)
		}
		if p == nil {
			return nil, &ProductNotFoundError{ProductID: it.ProductID}
		}
		if it.Quantity > p.Stock {
			return nil, &InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: it.Quantity,
				Available: p.Stock,
			}
		}
		out.Total = out.Total.Add(p.Price.Times(it.Quantity))
		out.Snapshots = append(out.Snapshots, StockSnapshot{
			ProductID:     p.ID,
			Name:          p.Name,
			CurrentStock:  p.Stock,
			OrderQuantity: it.Quantity,
			UnitPrice:     p.Price,
		})
	}
	return out, nil
}
