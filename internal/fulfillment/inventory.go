package fulfillment

import (
	"context"

	"go.uber.org/zap"
)

// StockUpdateResult reports the outcome of one post-placement stock write.
type StockUpdateResult struct {
	ProductID     string `json:"productId"`
	Name          string `json:"name"`
	PreviousStock int    `json:"previousStock"`
	NewStock      int    `json:"newStock"`
	Error         string `json:"error,omitempty"`
}

// adjustInventory writes max(0, current − ordered) for every snapshot.
// The value is computed from the snapshot read during pricing, not re-read,
// so two concurrent placements may both succeed against the same stock.
// Failures are reported per item and never abort the loop.
func (s *Service) adjustInventory(ctx context.Context, orderID string, snapshots []StockSnapshot) []StockUpdateResult {
	results := make([]StockUpdateResult, 0, len(snapshots))
	for _, snap := range snapshots {
		next := max(snap.CurrentStock-snap.OrderQuantity, 0)
		res := StockUpdateResult{
			ProductID:     snap.ProductID,
			Name:          snap.Name,
			PreviousStock: snap.CurrentStock,
			NewStock:      next,
		}
		if err := s.products.SetStock(ctx, snap.ProductID, next); err != nil {
			res.NewStock = snap.CurrentStock
			res.Error = err.Error()
			s.logger.Warn("stock update failed",
				zap.String("order_id", orderID),
				zap.String("product_id", snap.ProductID),
				zap.Error(err))
		}
		results = append(results, res)
	}
	return results
}

func countFailures(results []StockUpdateResult) int {
	n := 0
	for _, r := range results {
		if r.Error != "" {
			n++
		}
	}
	return n
}
