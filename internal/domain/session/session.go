// Package session keeps per-visitor state between requests: the working
// cart, the coupon applied to it, and a snapshot of the last placed order.
package session

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/yumyard-cafe/internal/domain/cart"
	"github.com/xenking/yumyard-cafe/internal/domain/customer"
	"github.com/xenking/yumyard-cafe/internal/domain/order"
	"github.com/xenking/yumyard-cafe/internal/domain/pricing"
)

// ErrNotFound is returned by stores when no session exists for an id.
var ErrNotFound = errors.New("session not found")

// LastOrderItem summarizes one line of a placed order.
type LastOrderItem struct {
	Name     string   `json:"name"`
	Quantity int      `json:"quantity"`
	AddOns   []string `json:"addOns,omitempty"`
	Notes    string   `json:"notes,omitempty"`
}

// LastOrder is what the visitor is told about their most recent order.
// Total includes any coupon discount applied at placement.
type LastOrder struct {
	Code       string              `json:"id"`
	Mode       pricing.Mode        `json:"mode"`
	TableID    string              `json:"tableId,omitempty"`
	Contact    customer.Contact    `json:"contact"`
	Items      []LastOrderItem     `json:"items"`
	Total      decimal.Decimal     `json:"total"`
	Status     order.PaymentStatus `json:"status"`
	CouponCode string              `json:"couponCode,omitempty"`
	PlacedAt   time.Time           `json:"placedAt"`
}

// Session is the state stored per session id.
type Session struct {
	Cart          *cart.Cart `json:"cart"`
	AppliedCoupon string     `json:"appliedCoupon,omitempty"`
	LastOrder     *LastOrder `json:"lastOrder,omitempty"`
}

// New returns an empty session with a table-mode cart.
func New() *Session {
	return &Session{Cart: cart.New(pricing.ModeTable)}
}

// Store persists sessions by id.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Set(ctx context.Context, id string, s *Session) error
	Clear(ctx context.Context, id string) error
}

// Load returns the session for id, or a new one when the store has none.
func Load(ctx context.Context, store Store, id string) (*Session, error) {
	s, err := store.Get(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		return New(), nil
	case err != nil:
		return nil, errors.Wrap(err, "get session")
	}
	if s.Cart == nil {
		s.Cart = cart.New(pricing.ModeTable)
	}
	return s, nil
}
