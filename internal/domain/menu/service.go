package menu

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sentinel errors for menu validation.
var (
	ErrNameRequired     = errors.New("name required")
	ErrCategoryRequired = errors.New("category required")
	ErrNegativePrice    = errors.New("price must not be negative")
)

// Patch lists the fields of an item to change. Nil fields are kept.
type Patch struct {
	Name          *string
	Description   *string
	Price         *decimal.Decimal
	Category      *string
	Tags          *[]string
	AddOns        *[]AddOn
	Available     *bool
	Image         *string
	DealPrice     *decimal.Decimal
	DealExpiresAt *time.Time
	ComboItems    *[]string
}

// Service encapsulates staff operations on the menu catalog.
type Service struct {
	items Repository
}

// NewService creates a menu Service backed by items.
func NewService(items Repository) *Service {
	return &Service{items: items}
}

// List returns every menu item.
func (s *Service) List(ctx context.Context) ([]Item, error) {
	items, err := s.items.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list menu")
	}
	return items, nil
}

// Get returns a single menu item by id.
func (s *Service) Get(ctx context.Context, id string) (*Item, error) {
	return s.items.GetByID(ctx, id)
}

// Create validates and stores a new item. An empty id is replaced by a
// generated one. New items are available unless the caller says otherwise.
func (s *Service) Create(ctx context.Context, item Item) (*Item, error) {
	item.Name = strings.TrimSpace(item.Name)
	item.Category = strings.TrimSpace(item.Category)
	if err := validate(item); err != nil {
		return nil, err
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	for i := range item.AddOns {
		if item.AddOns[i].ID == "" {
			item.AddOns[i].ID = uuid.New().String()
		}
	}

	if err := s.items.Create(ctx, &item); err != nil {
		return nil, errors.Wrap(err, "create menu item")
	}
	return &item, nil
}

// Update applies p to the item with the given id.
func (s *Service) Update(ctx context.Context, id string, p Patch) (*Item, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Name != nil {
		item.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Price != nil {
		item.Price = *p.Price
	}
	if p.Category != nil {
		item.Category = strings.TrimSpace(*p.Category)
	}
	if p.Tags != nil {
		item.Tags = *p.Tags
	}
	if p.AddOns != nil {
		item.AddOns = *p.AddOns
	}
	if p.Available != nil {
		item.Available = *p.Available
	}
	if p.Image != nil {
		item.Image = *p.Image
	}
	if p.DealPrice != nil {
		item.DealPrice = decimal.NewNullDecimal(*p.DealPrice)
	}
	if p.DealExpiresAt != nil {
		item.DealExpiresAt = p.DealExpiresAt
	}
	if p.ComboItems != nil {
		item.ComboItems = *p.ComboItems
	}

	if err := validate(*item); err != nil {
		return nil, err
	}
	if err := s.items.Update(ctx, item); err != nil {
		return nil, errors.Wrap(err, "update menu item")
	}
	return item, nil
}

// Delete removes an item. Orders keep their own snapshots of it.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.items.Delete(ctx, id)
}

// ToggleAvailability marks an item as orderable or not.
func (s *Service) ToggleAvailability(ctx context.Context, id string, available bool) error {
	return s.items.SetAvailability(ctx, id, available)
}

func validate(item Item) error {
	if item.Name == "" {
		return ErrNameRequired
	}
	if item.Category == "" {
		return ErrCategoryRequired
	}
	if item.Price.IsNegative() {
		return ErrNegativePrice
	}
	if item.DealPrice.Valid && item.DealPrice.Decimal.IsNegative() {
		return ErrNegativePrice
	}
	for _, a := range item.AddOns {
		if a.Price.IsNegative() {
			return ErrNegativePrice
		}
	}
	return nil
}
