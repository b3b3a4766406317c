// Package pricing computes order totals from line items.
package pricing

import (
	"github.com/shopspring/decimal"
)

// displayPlaces is the precision of every returned amount.
const displayPlaces = 2

// Item is a priced quantity.
type Item struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Totals are derived from line items and never stored on their own.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

// Subtotal returns Σ unitPrice × quantity at full precision.
func Subtotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// Calculate prices items with a proportional tax and a flat shipping fee.
// Rounding happens only on the returned values.
func Calculate(items []Item, taxRate, flatShipping decimal.Decimal) Totals {
	subtotal := Subtotal(items)
	tax := subtotal.Mul(taxRate)
	total := subtotal.Add(tax).Add(flatShipping)

	return Totals{
		Subtotal: subtotal.Round(displayPlaces),
		Tax:      tax.Round(displayPlaces),
		Shipping: flatShipping.Round(displayPlaces),
		Total:    total.Round(displayPlaces),
	}
}

// Calculator binds the configured tax rate and shipping fee.
type Calculator struct {
	TaxRate      decimal.Decimal
	FlatShipping decimal.Decimal
}

func NewCalculator(taxRate, flatShipping decimal.Decimal) Calculator {
	return Calculator{TaxRate: taxRate, FlatShipping: flatShipping}
}

// ParseCalculator builds a Calculator from decimal strings.
func ParseCalculator(taxRate, flatShipping string) (Calculator, error) {
	rate, err := decimal.NewFromString(taxRate)
	if err != nil {
		return Calculator{}, err
	}
	shipping, err := decimal.NewFromString(flatShipping)
	if err != nil {
		return Calculator{}, err
	}
	return NewCalculator(rate, shipping), nil
}

func (c Calculator) Calculate(items []Item) Totals {
	return Calculate(items, c.TaxRate, c.FlatShipping)
}
