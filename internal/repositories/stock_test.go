package repositories

import (
	"math"
	"testing"
)

func TestMergeAdjustmentsFoldsDuplicates(t *testing.T) {
	merged, err := MergeAdjustments("products.decrementStock", []StockAdjustment{
		{ProductID: "prod_b", Quantity: 1},
		{ProductID: " prod_a ", Quantity: 2},
		{ProductID: "prod_b", Quantity: 3},
	})
	if err != nil {
		t.Fatalf("MergeAdjustments: %v", err)
	}
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged adjustments, got %d", len(merged))
	}
	if merged[0].ProductID != "prod_b" || merged[0].Quantity != 4 {
		t.Fatalf("unexpected first adjustment %+v", merged[0])
	}
	if merged[1].ProductID != "prod_a" || merged[1].Quantity != 2 {
		t.Fatalf("unexpected second adjustment %+v", merged[1])
	}
}

func TestMergeAdjustmentsRejectsInvalidInput(t *testing.T) {
	cases := map[string][]StockAdjustment{
		"empty":         nil,
		"blank product": {{ProductID: " ", Quantity: 1}},
		"zero quantity": {{ProductID: "prod_a", Quantity: 0}},
		"negative":      {{ProductID: "prod_a", Quantity: -2}},
		"overflow":      {{ProductID: "prod_a", Quantity: math.MaxInt}, {ProductID: "prod_a", Quantity: math.MaxInt}},
	}
	for name, adjustments := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := MergeAdjustments("op", adjustments)
			invErr, ok := AsInventoryError(err)
			if !ok {
				t.Fatalf("expected inventory error, got %v", err)
			}
			if invErr.Code != InventoryErrorInvalidInput || invErr.Op != "op" {
				t.Fatalf("unexpected error %+v", invErr)
			}
		})
	}
}

func TestValidateCounterID(t *testing.T) {
	id, step, err := ValidateCounterID("counters.next", " orders:2024 ", 0)
	if err != nil {
		t.Fatalf("ValidateCounterID: %v", err)
	}
	if id != "orders:2024" || step != 1 {
		t.Fatalf("unexpected result %q %d", id, step)
	}
	if _, _, err := ValidateCounterID("counters.next", "", 1); err == nil {
		t.Fatalf("expected error for blank id")
	}
	if _, _, err := ValidateCounterID("counters.next", "orders", -1); err == nil {
		t.Fatalf("expected error for negative step")
	}
}
