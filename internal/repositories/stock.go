package repositories

import (
	"fmt"
	"math"
	"strings"
)

// MergeAdjustments validates adjustments and folds repeated products into one entry, keeping the
// order of first appearance.
func MergeAdjustments(op string, adjustments []StockAdjustment) ([]StockAdjustment, error) {
	if len(adjustments) == 0 {
		err := NewInventoryError(InventoryErrorInvalidInput, "at least one adjustment is required", nil)
		err.Op = op
		return nil, err
	}
	index := make(map[string]int, len(adjustments))
	merged := make([]StockAdjustment, 0, len(adjustments))
	for _, adj := range adjustments {
		id := trimSpace(adj.ProductID)
		if id == "" || adj.Quantity <= 0 {
			err := NewInventoryError(InventoryErrorInvalidInput, fmt.Sprintf("invalid adjustment for %q", adj.ProductID), nil)
			err.Op = op
			return nil, err
		}
		if pos, ok := index[id]; ok {
			if merged[pos].Quantity > math.MaxInt-adj.Quantity {
				err := NewInventoryError(InventoryErrorInvalidInput, fmt.Sprintf("quantity overflow for %q", id), nil)
				err.Op = op
				return nil, err
			}
			merged[pos].Quantity += adj.Quantity
			continue
		}
		index[id] = len(merged)
		merged = append(merged, StockAdjustment{ProductID: id, Quantity: adj.Quantity})
	}
	return merged, nil
}

func trimSpace(value string) string {
	return strings.TrimSpace(value)
}
