package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported coupon discount strategies.
type Kind string

const (
	// KindPercent takes a percentage off the subtotal.
	KindPercent Kind = "percent"
	// KindFlat takes a fixed amount off the order.
	KindFlat Kind = "flat"
	// KindWaiveFees removes the service fee of the order.
	KindWaiveFees Kind = "waive_fees"
)

// ErrInvalidCoupon is returned when a coupon code is not in the catalog.
var ErrInvalidCoupon = errors.New("invalid coupon code")

// Rule defines a coupon's discount behaviour.
type Rule struct {
	Code        string
	Kind        Kind
	Value       decimal.Decimal
	Description string
}

// Discount holds the computed discount amount for a resolved coupon.
type Discount struct {
	Code        string
	Amount      decimal.Decimal
	Description string
}
