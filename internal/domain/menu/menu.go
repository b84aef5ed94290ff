package menu

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested menu item does not exist.
var ErrNotFound = errors.New("menu item not found")

// AddOn is an optional priced extra offered with a menu item.
type AddOn struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Item represents a dish or drink on the cafe menu.
type Item struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Tags        []string
	AddOns      []AddOn
	Available   bool
	Image       string
	// DealPrice replaces Price while the deal is running.
	DealPrice     decimal.NullDecimal
	DealExpiresAt *time.Time
	ComboItems    []string
}

// EffectivePrice returns the deal price while the deal is active, else Price.
func (i Item) EffectivePrice(now time.Time) decimal.Decimal {
	if !i.DealPrice.Valid {
		return i.Price
	}
	if i.DealExpiresAt != nil && !now.Before(*i.DealExpiresAt) {
		return i.Price
	}
	return i.DealPrice.Decimal
}

// SelectAddOns returns the item's add-ons whose ids are listed, in menu
// order. Unknown ids are ignored.
func (i Item) SelectAddOns(ids []string) []AddOn {
	if len(ids) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []AddOn
	for _, a := range i.AddOns {
		if _, ok := want[a.ID]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Repository defines persistence operations for the menu catalog.
type Repository interface {
	List(ctx context.Context) ([]Item, error)
	GetByID(ctx context.Context, id string) (*Item, error)
	Create(ctx context.Context, item *Item) error
	Update(ctx context.Context, item *Item) error
	Delete(ctx context.Context, id string) error
	SetAvailability(ctx context.Context, id string, available bool) error
}
