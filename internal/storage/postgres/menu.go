package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/yumyard-cafe/internal/domain/menu"
)

const (
	menuColumns = `id, name, description, price, category, tags, add_ons, available, image,
		deal_price, deal_expires_at, combo_items`

	listMenuSQL = `SELECT ` + menuColumns + ` FROM menu_items ORDER BY category, name`

	getMenuItemSQL = `SELECT ` + menuColumns + ` FROM menu_items WHERE id = $1`

	createMenuItemSQL = `INSERT INTO menu_items (` + menuColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	updateMenuItemSQL = `UPDATE menu_items SET name = $2, description = $3, price = $4, category = $5,
		tags = $6, add_ons = $7, available = $8, image = $9, deal_price = $10, deal_expires_at = $11,
		combo_items = $12, updated_at = now()
		WHERE id = $1`

	upsertMenuItemSQL = createMenuItemSQL + `
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description,
		price = EXCLUDED.price, category = EXCLUDED.category, tags = EXCLUDED.tags,
		add_ons = EXCLUDED.add_ons, available = EXCLUDED.available, image = EXCLUDED.image,
		deal_price = EXCLUDED.deal_price, deal_expires_at = EXCLUDED.deal_expires_at,
		combo_items = EXCLUDED.combo_items, updated_at = now()`

	deleteMenuItemSQL = `DELETE FROM menu_items WHERE id = $1`

	setAvailabilitySQL = `UPDATE menu_items SET available = $2, updated_at = now() WHERE id = $1`
)

var _ menu.Repository = (*MenuRepository)(nil)

// MenuRepository implements menu.Repository backed by PostgreSQL.
type MenuRepository struct {
	pool *pgxpool.Pool
}

// NewMenuRepository returns a MenuRepository that uses the given pool.
func NewMenuRepository(pool *pgxpool.Pool) *MenuRepository {
	return &MenuRepository{pool: pool}
}

// List returns the whole menu ordered by category and name.
func (r *MenuRepository) List(ctx context.Context) ([]menu.Item, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listMenuSQL)
	if err != nil {
		return nil, fmt.Errorf("listing menu: %w", err)
	}
	return pgx.CollectRows(rows, scanMenuItem)
}

// GetByID returns a single menu item.
func (r *MenuRepository) GetByID(ctx context.Context, id string) (*menu.Item, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getMenuItemSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting menu item %q: %w", id, err)
	}
	item, err := pgx.CollectExactlyOneRow(rows, scanMenuItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, menu.ErrNotFound
		}
		return nil, fmt.Errorf("getting menu item %q: %w", id, err)
	}
	return &item, nil
}

// Create inserts item.
func (r *MenuRepository) Create(ctx context.Context, item *menu.Item) error {
	args, err := menuArgs(item)
	if err != nil {
		return err
	}
	if _, err := conn(ctx, r.pool).Exec(ctx, createMenuItemSQL, args...); err != nil {
		return fmt.Errorf("creating menu item %q: %w", item.ID, err)
	}
	return nil
}

// Update replaces every field of item.
func (r *MenuRepository) Update(ctx context.Context, item *menu.Item) error {
	args, err := menuArgs(item)
	if err != nil {
		return err
	}
	tag, err := conn(ctx, r.pool).Exec(ctx, updateMenuItemSQL, args...)
	if err != nil {
		return fmt.Errorf("updating menu item %q: %w", item.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return menu.ErrNotFound
	}
	return nil
}

// Upsert inserts item or overwrites the item with the same id.
func (r *MenuRepository) Upsert(ctx context.Context, item *menu.Item) error {
	args, err := menuArgs(item)
	if err != nil {
		return err
	}
	if _, err := conn(ctx, r.pool).Exec(ctx, upsertMenuItemSQL, args...); err != nil {
		return fmt.Errorf("upserting menu item %q: %w", item.ID, err)
	}
	return nil
}

// Delete removes a menu item.
func (r *MenuRepository) Delete(ctx context.Context, id string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, deleteMenuItemSQL, id)
	if err != nil {
		return fmt.Errorf("deleting menu item %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return menu.ErrNotFound
	}
	return nil
}

// SetAvailability toggles whether the item can be ordered.
func (r *MenuRepository) SetAvailability(ctx context.Context, id string, available bool) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, setAvailabilitySQL, id, available)
	if err != nil {
		return fmt.Errorf("setting availability of %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return menu.ErrNotFound
	}
	return nil
}

func menuArgs(item *menu.Item) ([]any, error) {
	addOns := item.AddOns
	if addOns == nil {
		addOns = []menu.AddOn{}
	}
	addOnsJSON, err := json.Marshal(addOns)
	if err != nil {
		return nil, fmt.Errorf("marshaling add-ons: %w", err)
	}
	return []any{
		item.ID, item.Name, item.Description, item.Price, item.Category,
		nonNil(item.Tags), addOnsJSON, item.Available, item.Image,
		item.DealPrice, item.DealExpiresAt, nonNil(item.ComboItems),
	}, nil
}

func scanMenuItem(row pgx.CollectableRow) (menu.Item, error) {
	var (
		item   menu.Item
		addOns []byte
	)
	err := row.Scan(
		&item.ID, &item.Name, &item.Description, &item.Price, &item.Category,
		&item.Tags, &addOns, &item.Available, &item.Image,
		&item.DealPrice, &item.DealExpiresAt, &item.ComboItems,
	)
	if err != nil {
		return item, err
	}
	if err := json.Unmarshal(addOns, &item.AddOns); err != nil {
		return item, fmt.Errorf("unmarshaling add-ons of %q: %w", item.ID, err)
	}
	return item, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
