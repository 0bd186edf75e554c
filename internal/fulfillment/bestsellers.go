package fulfillment

import (
	"context"
	"sort"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/catalog"
)

// DefaultBestSellerLimit applies when BestSellers is called with limit <= 0.
const DefaultBestSellerLimit = 8

type BestSeller struct {
	catalog.Product
	UnitsSold int `json:"unitsSold"`
}

// BestSellers ranks products by total ordered quantity. Ties keep the order in
// which products were first seen. Products deleted since are skipped and the
// next ranked product takes their place.
func (s *Service) BestSellers(ctx context.Context, limit int) ([]BestSeller, error) {
	if limit <= 0 {
		limit = DefaultBestSellerLimit
	}
	all, err := s.orders.List(ctx)
	if err != nil {
		return nil, apperr.Persistence(err, "list orders")
	}

	sold := map[string]int{}
	var ids []string
	for _, o := range all {
		for _, it := range o.Items {
			if _, seen := sold[it.ProductID]; !seen {
				ids = append(ids, it.ProductID)
			}
			sold[it.ProductID] += it.Quantity
		}
	}
	sort.SliceStable(ids, func(i, j int) bool { return sold[ids[i]] > sold[ids[j]] })

	out := make([]BestSeller, 0, min(limit, len(ids)))
	for _, id := range ids {
		if len(out) == limit {
			break
		}
		p, err := s.products.Get(ctx, id)
		if err != nil {
			return nil, apperr.Persistence(err, "load product "+id)
		}
		if p == nil {
			continue
		}
		out = append(out, BestSeller{Product: *p, UnitsSold: sold[id]})
	}
	return out, nil
}
