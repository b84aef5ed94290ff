// Package pricing computes order totals from line items and the service mode.
//
// All arithmetic uses shopspring/decimal. Tax is rounded to whole currency
// units with round-half-up (decimal.Round(0) rounds half away from zero, and
// every input here is non-negative).
package pricing

import (
	"github.com/shopspring/decimal"
)

var (
	taxRate     = decimal.RequireFromString("0.05")
	deliveryFee = decimal.NewFromInt(30)
	zero        = decimal.Zero
)

// Mode is the top-level service channel of an order.
type Mode string

const (
	// ModeTable covers dine-in and counter takeaway orders.
	ModeTable Mode = "table"
	// ModeDelivery covers orders taken to the customer.
	ModeDelivery Mode = "delivery"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeTable || m == ModeDelivery
}

// AddOn is a priced extra attached to a line.
type AddOn struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Line is the pricing view of a single cart or order line.
type Line struct {
	Price    decimal.Decimal
	Quantity int
	AddOns   []AddOn
}

// Totals is the computed price breakdown of an order.
type Totals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Fees       decimal.Decimal `json:"fees"`
	GrandTotal decimal.Decimal `json:"grandTotal"`
}

// Compute returns the totals for lines priced under mode.
func Compute(lines []Line, mode Mode) Totals {
	subtotal := Subtotal(lines)
	tax := RoundHalfUp(subtotal.Mul(taxRate))
	fees := Fees(mode)

	return Totals{
		Subtotal:   subtotal,
		Tax:        tax,
		Fees:       fees,
		GrandTotal: subtotal.Add(tax).Add(fees),
	}
}

// Subtotal returns Σ (price + Σ add-on price) × quantity.
func Subtotal(lines []Line) decimal.Decimal {
	sum := zero
	for _, l := range lines {
		unit := l.Price
		for _, a := range l.AddOns {
			unit = unit.Add(a.Price)
		}
		sum = sum.Add(unit.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// Fees returns the service fee for mode.
func Fees(mode Mode) decimal.Decimal {
	if mode == ModeDelivery {
		return deliveryFee
	}
	return zero
}

// RoundHalfUp rounds d to whole currency units, halves going up.
func RoundHalfUp(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}

// Discounted returns the grand total reduced by discount, floored at zero.
func (t Totals) Discounted(discount decimal.Decimal) decimal.Decimal {
	total := t.GrandTotal.Sub(discount)
	if total.IsNegative() {
		return zero
	}
	return total
}
