package coupon

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/yumyard-cafe/internal/domain/pricing"
)

var hundred = decimal.NewFromInt(100)

// Apply calculates the discount rule grants for the given subtotal and fees.
// Unknown kinds grant nothing.
func Apply(rule Rule, subtotal, fees decimal.Decimal) Discount {
	var amount decimal.Decimal
	switch rule.Kind {
	case KindPercent:
		amount = pricing.RoundHalfUp(subtotal.Mul(rule.Value).Div(hundred))
	case KindFlat:
		amount = rule.Value
	case KindWaiveFees:
		amount = fees
	default:
		amount = decimal.Zero
	}

	return Discount{
		Code:        rule.Code,
		Amount:      floorAtZero(amount),
		Description: rule.Description,
	}
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
