package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/yumyard-cafe/internal/domain/customer"
)

const (
	customerColumns = `id, email, name, phone, role, community, tower, unit,
		created_at, last_seen_at, total_orders, total_spend, last_order_at`

	getCustomerByIDSQL = `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

	getCustomerByEmailSQL = `SELECT ` + customerColumns + ` FROM customers WHERE email = $1`

	listCustomersSQL = `SELECT ` + customerColumns + ` FROM customers ORDER BY last_seen_at DESC`

	// The no-op update makes RETURNING yield the existing id on conflict.
	insertCustomerSQL = `INSERT INTO customers (id, email, name, phone, role, community, tower, unit,
		created_at, last_seen_at, total_orders, total_spend)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, 0)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id`

	updateCustomerProfileSQL = `UPDATE customers SET name = $2, phone = $3, role = $4,
		community = $5, tower = $6, unit = $7, last_seen_at = $8
		WHERE id = $1`

	recordCustomerOrderSQL = `UPDATE customers SET total_orders = total_orders + 1,
		total_spend = total_spend + $2, last_order_at = $3, last_seen_at = GREATEST(last_seen_at, $3)
		WHERE id = $1`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*customer.Customer, error) {
	return r.getOne(ctx, getCustomerByIDSQL, id)
}

func (r *CustomerRepository) GetByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	return r.getOne(ctx, getCustomerByEmailSQL, email)
}

// Insert stores c under a fresh id. When the email is already taken the
// existing record's id is returned.
func (r *CustomerRepository) Insert(ctx context.Context, c *customer.Customer) (string, error) {
	var id string
	err := conn(ctx, r.pool).QueryRow(ctx, insertCustomerSQL,
		uuid.NewString(), c.Email, c.Name, c.Phone, string(c.Role), c.Community, c.Tower, c.Unit,
		c.CreatedAt, c.LastSeenAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("inserting customer %q: %w", c.Email, err)
	}
	return id, nil
}

func (r *CustomerRepository) UpdateProfile(ctx context.Context, c *customer.Customer) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, updateCustomerProfileSQL,
		c.ID, c.Name, c.Phone, string(c.Role), c.Community, c.Tower, c.Unit, c.LastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("updating customer %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return customer.ErrNotFound
	}
	return nil
}

// RecordOrder adds one order of amount to the aggregates of customer id.
func (r *CustomerRepository) RecordOrder(ctx context.Context, id string, amount decimal.Decimal, at time.Time) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, recordCustomerOrderSQL, id, amount, at)
	if err != nil {
		return fmt.Errorf("recording order for customer %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return customer.ErrNotFound
	}
	return nil
}

func (r *CustomerRepository) List(ctx context.Context) ([]customer.Customer, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listCustomersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing customers: %w", err)
	}
	return pgx.CollectRows(rows, scanCustomer)
}

func (r *CustomerRepository) getOne(ctx context.Context, query, key string) (*customer.Customer, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("getting customer %q: %w", key, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", key, err)
	}
	return &c, nil
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var (
		c    customer.Customer
		role string
	)
	err := row.Scan(
		&c.ID, &c.Email, &c.Name, &c.Phone, &role, &c.Community, &c.Tower, &c.Unit,
		&c.CreatedAt, &c.LastSeenAt, &c.TotalOrders, &c.TotalSpend, &c.LastOrderAt,
	)
	c.Role = customer.Role(role)
	return c, err
}
