package pricing

import (
	"testing"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestComputeTotalsPaidItemWithTax(t *testing.T) {
	// $19.99 x2 at 10% tax: the exact tax 3.998 rounds half-up to 4.00.
	items := []domain.CartItem{
		{ProductID: "p1", Quantity: 2, UnitPrice: dec("19.99")},
	}
	totals := ComputeTotals(items, dec("10"))

	if totals.ItemsCount != 2 {
		t.Fatalf("items count: got %d, want 2", totals.ItemsCount)
	}
	if !totals.Subtotal.Equal(dec("39.98")) {
		t.Fatalf("subtotal: got %s, want 39.98", totals.Subtotal)
	}
	if !totals.Tax.Equal(dec("4.00")) {
		t.Fatalf("tax: got %s, want 4.00", totals.Tax)
	}
	if !totals.Total.Equal(dec("43.98")) {
		t.Fatalf("total: got %s, want 43.98", totals.Total)
	}
}

func TestComputeTotalsFreeItemsOnly(t *testing.T) {
	items := []domain.CartItem{
		{ProductID: "p1", Quantity: 3, IsFree: true},
	}
	totals := ComputeTotals(items, dec("10"))

	if totals.ItemsCount != 3 {
		t.Fatalf("items count: got %d, want 3", totals.ItemsCount)
	}
	if !totals.Total.IsZero() {
		t.Fatalf("total: got %s, want 0", totals.Total)
	}
}

func TestComputeTotalsMixedFreeAndPaid(t *testing.T) {
	items := []domain.CartItem{
		{ProductID: "p1", Quantity: 1, UnitPrice: dec("12.50")},
		{ProductID: "p2", Quantity: 2, IsFree: true},
	}
	totals := ComputeTotals(items, dec("21"))

	if totals.ItemsCount != 3 {
		t.Fatalf("items count: got %d, want 3", totals.ItemsCount)
	}
	if !totals.Subtotal.Equal(dec("12.50")) {
		t.Fatalf("subtotal: got %s, want 12.50", totals.Subtotal)
	}
	// 12.50 * 0.21 = 2.625 -> 2.63 half-up.
	if !totals.Tax.Equal(dec("2.63")) {
		t.Fatalf("tax: got %s, want 2.63", totals.Tax)
	}
	if !totals.Total.Equal(dec("15.13")) {
		t.Fatalf("total: got %s, want 15.13", totals.Total)
	}
}

func TestComputeTotalsSubtotalRoundedBeforeTax(t *testing.T) {
	// A three-decimal unit price pins the policy: the subtotal is rounded
	// half-up to currency precision before tax applies.
	items := []domain.CartItem{
		{ProductID: "p1", Quantity: 1, UnitPrice: dec("19.995")},
	}
	totals := ComputeTotals(items, dec("10"))

	if !totals.Subtotal.Equal(dec("20.00")) {
		t.Fatalf("subtotal: got %s, want 20.00", totals.Subtotal)
	}
	if !totals.Tax.Equal(dec("2.00")) {
		t.Fatalf("tax: got %s, want 2.00", totals.Tax)
	}
	if !totals.Total.Equal(dec("22.00")) {
		t.Fatalf("total: got %s, want 22.00", totals.Total)
	}
}

func TestComputeTotalsInvariantAndIdempotence(t *testing.T) {
	items := []domain.CartItem{
		{ProductID: "p1", Quantity: 7, UnitPrice: dec("3.33")},
		{ProductID: "p2", Quantity: 1, UnitPrice: dec("0.99")},
		{ProductID: "p3", Quantity: 2, IsFree: true},
	}
	first := ComputeTotals(items, dec("8.5"))
	second := ComputeTotals(items, dec("8.5"))

	if !first.Total.Equal(first.Subtotal.Add(first.Tax)) {
		t.Fatalf("total %s != subtotal %s + tax %s", first.Total, first.Subtotal, first.Tax)
	}
	if !first.Total.Equal(second.Total) || first.ItemsCount != second.ItemsCount {
		t.Fatalf("totals not deterministic: %+v vs %+v", first, second)
	}
}

func TestComputeTotalsZeroRate(t *testing.T) {
	items := []domain.CartItem{
		{ProductID: "p1", Quantity: 1, UnitPrice: dec("9.99")},
	}
	totals := ComputeTotals(items, decimal.Zero)

	if !totals.Tax.IsZero() {
		t.Fatalf("tax: got %s, want 0", totals.Tax)
	}
	if !totals.Total.Equal(dec("9.99")) {
		t.Fatalf("total: got %s, want 9.99", totals.Total)
	}
}
