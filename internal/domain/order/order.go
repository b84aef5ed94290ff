package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/yumyard-cafe/internal/domain/customer"
	"github.com/xenking/yumyard-cafe/internal/domain/pricing"
)

// Mode is the service channel of an order.
type Mode = pricing.Mode

// Service modes.
const (
	ModeTable    = pricing.ModeTable
	ModeDelivery = pricing.ModeDelivery
)

// ServiceType refines a table order.
type ServiceType string

const (
	ServiceTable    ServiceType = "table"
	ServiceTakeaway ServiceType = "takeaway"
)

// Valid reports whether t is empty or a known service type.
func (t ServiceType) Valid() bool {
	return t == "" || t == ServiceTable || t == ServiceTakeaway
}

// Status is the kitchen/delivery progress of an order.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusAccepted  Status = "accepted"
	StatusPreparing Status = "preparing"
	StatusPacked    Status = "packed"
	StatusOnTheWay  Status = "on_the_way"
	StatusServed    Status = "served"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Flow is the canonical display order of statuses. It is a UI convention:
// staff may set any status at any time.
var Flow = []Status{
	StatusSubmitted,
	StatusAccepted,
	StatusPreparing,
	StatusPacked,
	StatusOnTheWay,
	StatusDelivered,
	StatusServed,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusAccepted, StatusPreparing, StatusPacked,
		StatusOnTheWay, StatusServed, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Final reports whether s ends forward progression.
func (s Status) Final() bool {
	return s == StatusServed || s == StatusDelivered || s == StatusCancelled
}

// PaymentMethod is how the customer intends to pay.
type PaymentMethod string

const (
	PaymentUPI PaymentMethod = "upi"
	PaymentCOD PaymentMethod = "cod"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentUPI || m == PaymentCOD
}

// PaymentStatus records the payment intent's state. It is a flag, not a
// verified settlement.
type PaymentStatus string

const (
	PaymentPending     PaymentStatus = "pending"
	PaymentPendingCash PaymentStatus = "pending_cash"
	PaymentPaid        PaymentStatus = "paid"
	PaymentFailed      PaymentStatus = "failed"
	PaymentRefunded    PaymentStatus = "refunded"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPendingCash, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// AddOn is a frozen copy of an add-on's name and price.
type AddOn = pricing.AddOn

// LineItem is a frozen copy of a menu item at order time. Prices are
// snapshots, so totals stay reproducible after menu edits.
type LineItem struct {
	ItemID   string          `json:"itemId,omitempty"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	AddOns   []AddOn         `json:"addOns,omitempty"`
	Notes    string          `json:"notes,omitempty"`
}

// Totals is the price breakdown stored with an order.
type Totals = pricing.Totals

// Payment is the payment intent of an order.
type Payment struct {
	Method    PaymentMethod
	Status    PaymentStatus
	Amount    decimal.Decimal
	Reference string
	UPILink   string
}

// HistoryEntry is one append-only record of a status change.
type HistoryEntry struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
	Note   string    `json:"note,omitempty"`
}

// Rider is the person delivering an order.
type Rider struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Order is a placed order and its pipeline state. The last History entry's
// status always equals Status.
type Order struct {
	ID            string
	Code          string
	Mode          Mode
	ServiceType   ServiceType
	TableID       string
	CustomerID    string
	CustomerEmail string
	Contact       customer.Contact
	Payment       Payment
	Status        Status
	History       []HistoryEntry
	Items         []LineItem
	Totals        Totals
	EtaMinutes    *int
	Rider         *Rider
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Lines returns the pricing view of the order's items.
func Lines(items []LineItem) []pricing.Line {
	lines := make([]pricing.Line, len(items))
	for i, it := range items {
		lines[i] = pricing.Line{Price: it.Price, Quantity: it.Quantity, AddOns: it.AddOns}
	}
	return lines
}

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateCode is returned by Repository.Create when the order code
	// is already taken.
	ErrDuplicateCode = errors.New("order code already taken")
)

// Repository defines persistence operations for orders. Every mutating call
// is a single atomic statement and returns the updated order.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByCode(ctx context.Context, code string) (*Order, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	ListCodes(ctx context.Context) ([]string, error)

	AppendStatus(ctx context.Context, id string, entry HistoryEntry) (*Order, error)
	UpdatePayment(ctx context.Context, id string, status PaymentStatus, reference string, at time.Time) (*Order, error)
	SetEta(ctx context.Context, id string, minutes *int, at time.Time) (*Order, error)
	SetRider(ctx context.Context, id string, rider *Rider, at time.Time) (*Order, error)

	// ListLive returns orders whose status is not final and whose payment is
	// not paid, newest first.
	ListLive(ctx context.Context) ([]Order, error)
	ListRecent(ctx context.Context, limit int) ([]Order, error)
	ListByCustomerID(ctx context.Context, customerID string) ([]Order, error)
	ListByEmail(ctx context.Context, email string) ([]Order, error)
}

// Customers reconciles order identities into customer records.
type Customers interface {
	Reconcile(ctx context.Context, email string, contact customer.Contact, knownID string) (string, error)
	RecordOrder(ctx context.Context, id string, amount decimal.Decimal, at time.Time) error
}

// Transactor runs fn inside a single storage transaction. Repositories
// called with the ctx passed to fn join that transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
