package domain

import (
	"errors"
	"math"
)

// Pricing policy in minor units (cents).
const (
	TaxRatePercent        int64 = 8
	FreeShippingThreshold int64 = 5000
	FlatShippingFee       int64 = 1000

	// MaxLineQuantity caps a single product's quantity within one order.
	MaxLineQuantity = 10000
)

var (
	// ErrEmptyPricingInput is returned when pricing is requested for zero lines.
	ErrEmptyPricingInput = errors.New("pricing: at least one line is required")
	// ErrInvalidPricingLine is returned for non-positive or oversized quantities, negative prices
	// and amounts that do not fit in int64 cents.
	ErrInvalidPricingLine = errors.New("pricing: invalid line")
)

// PriceLine is a unit price and quantity pair validated against stock.
type PriceLine struct {
	UnitPrice int64
	Quantity  int
}

// OrderPricing records what the customer owed at creation time.
type OrderPricing struct {
	ItemsPrice    int64
	TaxPrice      int64
	ShippingPrice int64
	TotalPrice    int64
}

// maxItemsPrice keeps items*TaxRatePercent and the final total inside int64.
const maxItemsPrice = (math.MaxInt64 - FlatShippingFee) / 100

// CalculatePricing derives items, tax, shipping and total for the given lines.
func CalculatePricing(lines []PriceLine) (OrderPricing, error) {
	if len(lines) == 0 {
		return OrderPricing{}, ErrEmptyPricingInput
	}

	var items int64
	for _, line := range lines {
		if line.Quantity <= 0 || line.Quantity > MaxLineQuantity || line.UnitPrice < 0 {
			return OrderPricing{}, ErrInvalidPricingLine
		}
		qty := int64(line.Quantity)
		if line.UnitPrice > (maxItemsPrice-items)/qty {
			return OrderPricing{}, ErrInvalidPricingLine
		}
		items += line.UnitPrice * qty
	}

	// half-up rounding to the cent
	tax := (items*TaxRatePercent + 50) / 100

	shipping := FlatShippingFee
	if items > FreeShippingThreshold {
		shipping = 0
	}

	return OrderPricing{
		ItemsPrice:    items,
		TaxPrice:      tax,
		ShippingPrice: shipping,
		TotalPrice:    items + tax + shipping,
	}, nil
}

// PriceLinesFromItems converts order item snapshots into pricing lines.
func PriceLinesFromItems(items []OrderItem) []PriceLine {
	lines := make([]PriceLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, PriceLine{UnitPrice: item.Price, Quantity: item.Quantity})
	}
	return lines
}
