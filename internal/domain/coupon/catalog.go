package coupon

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Catalog is a fixed, in-process set of coupon rules keyed by code.
// Coupons carry no expiry, usage limits or per-customer restrictions.
type Catalog struct {
	rules map[string]Rule
}

// NewCatalog builds a Catalog from rules. Codes are normalized.
func NewCatalog(rules ...Rule) *Catalog {
	c := &Catalog{rules: make(map[string]Rule, len(rules))}
	for _, r := range rules {
		r.Code = Normalize(r.Code)
		c.rules[r.Code] = r
	}
	return c
}

// DefaultCatalog returns the cafe's coupon catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Rule{Code: "WELCOME10", Kind: KindPercent, Value: decimal.NewFromInt(10), Description: "10% off cart"},
		Rule{Code: "COFFEE50", Kind: KindFlat, Value: decimal.NewFromInt(50), Description: "₹50 off coffee combos"},
		Rule{Code: "FREESHIP", Kind: KindWaiveFees, Value: decimal.NewFromInt(30), Description: "Waive delivery fee"},
	)
}

// Normalize trims and upper-cases a coupon code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Lookup returns the rule for code.
func (c *Catalog) Lookup(code string) (Rule, bool) {
	r, ok := c.rules[Normalize(code)]
	return r, ok
}

// Rules returns every rule ordered by code.
func (c *Catalog) Rules() []Rule {
	out := make([]Rule, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Resolve looks up code and computes its discount against the current
// subtotal and fees. Unknown codes return a zero discount and
// ErrInvalidCoupon; callers must treat that as a rejection.
func (c *Catalog) Resolve(code string, subtotal, fees decimal.Decimal) (Discount, error) {
	rule, ok := c.Lookup(code)
	if !ok {
		return Discount{Code: Normalize(code), Amount: decimal.Zero}, ErrInvalidCoupon
	}
	return Apply(rule, subtotal, fees), nil
}
