// Package pricing computes cart totals. It is pure: no I/O, no clock, no
// database, so it can be unit-tested in isolation.
package pricing

import (
	"github.com/shopspring/decimal"

	"storefront/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// ComputeTotals derives a totals breakdown from cart items and a tax rate
// expressed in percent. Free items contribute to ItemsCount but not to the
// subtotal. Tax is computed on the exact subtotal and rounded half-up to two
// decimal places; Total = Subtotal + Tax holds exactly.
func ComputeTotals(items []domain.CartItem, taxRatePercent decimal.Decimal) domain.CartTotals {
	subtotal := decimal.Zero
	count := 0
	for _, item := range items {
		count += item.Quantity
		if item.IsFree {
			continue
		}
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	subtotal = subtotal.Round(2)

	tax := subtotal.Mul(taxRatePercent).Div(hundred).Round(2)

	return domain.CartTotals{
		ItemsCount: count,
		Subtotal:   subtotal,
		TaxRate:    taxRatePercent,
		Tax:        tax,
		Total:      subtotal.Add(tax),
	}
}
