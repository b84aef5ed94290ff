// Package cart holds the customer's working cart and the single mutation
// primitive used by both the HTTP cart endpoints and the chat assistant.
package cart

import (
	"fmt"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/yumyard-cafe/internal/domain/customer"
	"github.com/xenking/yumyard-cafe/internal/domain/menu"
	"github.com/xenking/yumyard-cafe/internal/domain/pricing"
)

// ErrLineNotFound is returned when removing a line the cart does not hold.
var ErrLineNotFound = errors.New("cart line not found")

// UnavailableError indicates an item switched off by staff.
type UnavailableError struct {
	ItemID string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("item %s is not available", e.ItemID)
}

// Line is one cart entry. Name, Price and AddOns are copied from the menu
// when the line is added.
type Line struct {
	ItemID   string          `json:"itemId"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	AddOns   []pricing.AddOn `json:"addOns,omitempty"`
	Notes    string          `json:"notes,omitempty"`
}

// Cart is the pre-order state of one session.
type Cart struct {
	Mode        pricing.Mode     `json:"mode"`
	ServiceType string           `json:"serviceType,omitempty"`
	TableID     string           `json:"tableId,omitempty"`
	Contact     customer.Contact `json:"contact"`
	Items       []Line           `json:"items"`
}

// New returns an empty cart for mode.
func New(mode pricing.Mode) *Cart {
	return &Cart{Mode: mode}
}

// Add puts one unit of item into the cart. A line with the same item id,
// notes and add-ons absorbs the unit; otherwise a new line is appended.
// The deal price in effect at now is frozen into the line.
func (c *Cart) Add(item menu.Item, addOnIDs []string, notes string, now time.Time) error {
	if !item.Available {
		return &UnavailableError{ItemID: item.ID}
	}

	selected := item.SelectAddOns(addOnIDs)
	addOns := make([]pricing.AddOn, len(selected))
	for i, a := range selected {
		addOns[i] = pricing.AddOn{Name: a.Name, Price: a.Price}
	}

	for i := range c.Items {
		l := &c.Items[i]
		if l.ItemID == item.ID && l.Notes == notes && sameAddOns(l.AddOns, addOns) {
			l.Quantity++
			return nil
		}
	}

	c.Items = append(c.Items, Line{
		ItemID:   item.ID,
		Name:     item.Name,
		Price:    item.EffectivePrice(now),
		Quantity: 1,
		AddOns:   addOns,
		Notes:    notes,
	})
	return nil
}

// Remove drops every line for itemID.
func (c *Cart) Remove(itemID string) error {
	n := len(c.Items)
	c.Items = slices.DeleteFunc(c.Items, func(l Line) bool { return l.ItemID == itemID })
	if len(c.Items) == n {
		return ErrLineNotFound
	}
	return nil
}

// Clear empties the cart, keeping mode, table and contact.
func (c *Cart) Clear() {
	c.Items = nil
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool {
	return len(c.Items) == 0
}

// Lines returns the pricing view of the cart.
func (c *Cart) Lines() []pricing.Line {
	lines := make([]pricing.Line, len(c.Items))
	for i, l := range c.Items {
		lines[i] = pricing.Line{Price: l.Price, Quantity: l.Quantity, AddOns: l.AddOns}
	}
	return lines
}

// Subtotal returns the cart subtotal.
func (c *Cart) Subtotal() decimal.Decimal {
	return pricing.Subtotal(c.Lines())
}

// Totals prices the cart under its mode.
func (c *Cart) Totals() pricing.Totals {
	return pricing.Compute(c.Lines(), c.Mode)
}

func sameAddOns(a, b []pricing.AddOn) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || !a[i].Price.Equal(b[i].Price) {
			return false
		}
	}
	return true
}
