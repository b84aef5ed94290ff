package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/yumyard-cafe/internal/domain/order"
)

const (
	orderColumns = `id, code, mode, service_type, table_id, customer_id, customer_email, contact,
		payment_method, payment_status, payment_amount, payment_reference, upi_link,
		status, status_history, items, subtotal, tax, fees, grand_total,
		eta_minutes, rider, created_at, updated_at`

	orderCodeConstraint = "orders_code_key"

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByCodeSQL = `SELECT ` + orderColumns + ` FROM orders WHERE code = $1`

	orderCodeExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE code = $1)`

	listOrderCodesSQL = `SELECT code FROM orders`

	appendOrderStatusSQL = `UPDATE orders SET status = $2,
		status_history = status_history || jsonb_build_array($3::jsonb), updated_at = $4
		WHERE id = $1
		RETURNING ` + orderColumns

	updateOrderPaymentSQL = `UPDATE orders SET payment_status = $2,
		payment_reference = COALESCE(NULLIF($3, ''), payment_reference), updated_at = $4
		WHERE id = $1
		RETURNING ` + orderColumns

	setOrderEtaSQL = `UPDATE orders SET eta_minutes = $2, updated_at = $3
		WHERE id = $1
		RETURNING ` + orderColumns

	setOrderRiderSQL = `UPDATE orders SET rider = $2, updated_at = $3
		WHERE id = $1
		RETURNING ` + orderColumns

	listLiveOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE status NOT IN ('served', 'delivered', 'cancelled') AND payment_status <> 'paid'
		ORDER BY created_at DESC`

	listRecentOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC LIMIT $1`

	listOrdersByCustomerSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE customer_id = $1 ORDER BY created_at DESC`

	listOrdersByEmailSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE customer_email = $1 ORDER BY created_at DESC`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Line
// items, contact, history and rider are stored as JSONB.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists o, assigning an id when it has none. A taken code yields
// order.ErrDuplicateCode.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	contact, err := json.Marshal(o.Contact)
	if err != nil {
		return fmt.Errorf("marshaling contact: %w", err)
	}
	history, err := json.Marshal(o.History)
	if err != nil {
		return fmt.Errorf("marshaling status history: %w", err)
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	rider, err := marshalRider(o.Rider)
	if err != nil {
		return err
	}

	_, err = conn(ctx, r.pool).Exec(ctx, createOrderSQL,
		o.ID, o.Code, string(o.Mode), string(o.ServiceType), o.TableID, nullString(o.CustomerID),
		o.CustomerEmail, contact,
		string(o.Payment.Method), string(o.Payment.Status), o.Payment.Amount, o.Payment.Reference,
		o.Payment.UPILink,
		string(o.Status), history, items,
		o.Totals.Subtotal, o.Totals.Tax, o.Totals.Fees, o.Totals.GrandTotal,
		o.EtaMinutes, rider, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err, orderCodeConstraint) {
			return order.ErrDuplicateCode
		}
		return fmt.Errorf("creating order %q: %w", o.Code, err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.one(ctx, getOrderByIDSQL, id)
}

func (r *OrderRepository) GetByCode(ctx context.Context, code string) (*order.Order, error) {
	return r.one(ctx, getOrderByCodeSQL, code)
}

func (r *OrderRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := conn(ctx, r.pool).QueryRow(ctx, orderCodeExistsSQL, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking order code %q: %w", code, err)
	}
	return exists, nil
}

// ListCodes returns every issued order code.
func (r *OrderRepository) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listOrderCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing order codes: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// AppendStatus sets the status and appends entry to the history in one
// statement.
func (r *OrderRepository) AppendStatus(ctx context.Context, id string, entry order.HistoryEntry) (*order.Order, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshaling history entry: %w", err)
	}
	return r.one(ctx, appendOrderStatusSQL, id, string(entry.Status), raw, entry.At)
}

// UpdatePayment sets the payment status. An empty reference keeps the stored
// one.
func (r *OrderRepository) UpdatePayment(ctx context.Context, id string, status order.PaymentStatus, reference string, at time.Time) (*order.Order, error) {
	return r.one(ctx, updateOrderPaymentSQL, id, string(status), reference, at)
}

func (r *OrderRepository) SetEta(ctx context.Context, id string, minutes *int, at time.Time) (*order.Order, error) {
	return r.one(ctx, setOrderEtaSQL, id, minutes, at)
}

func (r *OrderRepository) SetRider(ctx context.Context, id string, rider *order.Rider, at time.Time) (*order.Order, error) {
	raw, err := marshalRider(rider)
	if err != nil {
		return nil, err
	}
	return r.one(ctx, setOrderRiderSQL, id, raw, at)
}

func (r *OrderRepository) ListLive(ctx context.Context) ([]order.Order, error) {
	return r.many(ctx, listLiveOrdersSQL)
}

func (r *OrderRepository) ListRecent(ctx context.Context, limit int) ([]order.Order, error) {
	return r.many(ctx, listRecentOrdersSQL, limit)
}

func (r *OrderRepository) ListByCustomerID(ctx context.Context, customerID string) ([]order.Order, error) {
	return r.many(ctx, listOrdersByCustomerSQL, customerID)
}

func (r *OrderRepository) ListByEmail(ctx context.Context, email string) ([]order.Order, error) {
	return r.many(ctx, listOrdersByEmailSQL, email)
}

func (r *OrderRepository) one(ctx context.Context, query string, args ...any) (*order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("querying order: %w", err)
	}
	return &o, nil
}

func (r *OrderRepository) many(ctx context.Context, query string, args ...any) ([]order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                              order.Order
		mode, serviceType, status      string
		method, paymentStatus          string
		customerID                     *string
		contact, history, items, rider []byte
	)
	err := row.Scan(
		&o.ID, &o.Code, &mode, &serviceType, &o.TableID, &customerID, &o.CustomerEmail, &contact,
		&method, &paymentStatus, &o.Payment.Amount, &o.Payment.Reference, &o.Payment.UPILink,
		&status, &history, &items,
		&o.Totals.Subtotal, &o.Totals.Tax, &o.Totals.Fees, &o.Totals.GrandTotal,
		&o.EtaMinutes, &rider, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}

	o.Mode = order.Mode(mode)
	o.ServiceType = order.ServiceType(serviceType)
	o.Status = order.Status(status)
	o.Payment.Method = order.PaymentMethod(method)
	o.Payment.Status = order.PaymentStatus(paymentStatus)
	if customerID != nil {
		o.CustomerID = *customerID
	}

	if err := json.Unmarshal(contact, &o.Contact); err != nil {
		return o, fmt.Errorf("unmarshaling contact of %q: %w", o.Code, err)
	}
	if err := json.Unmarshal(history, &o.History); err != nil {
		return o, fmt.Errorf("unmarshaling history of %q: %w", o.Code, err)
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling items of %q: %w", o.Code, err)
	}
	if len(rider) > 0 {
		o.Rider = new(order.Rider)
		if err := json.Unmarshal(rider, o.Rider); err != nil {
			return o, fmt.Errorf("unmarshaling rider of %q: %w", o.Code, err)
		}
	}
	return o, nil
}

// marshalRider encodes r for the nullable rider column.
func marshalRider(r *order.Rider) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshaling rider: %w", err)
	}
	return raw, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
