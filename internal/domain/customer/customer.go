// Package customer owns customer records and the reconciliation of caller
// supplied identities into them.
package customer

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Role is an elevated permission attached to a customer record.
type Role string

// RoleAdmin marks cafe staff.
const RoleAdmin Role = "admin"

var (
	// ErrNotFound is returned when a customer record does not exist.
	ErrNotFound = errors.New("customer not found")
	// ErrEmailRequired is returned when reconciling without an email.
	ErrEmailRequired = errors.New("email required")
)

// Contact is the contact and location information a caller supplies with an
// order or a login. Either {Community, Tower, Unit} or {Address, Landmark}
// describe a delivery location; table orders may carry neither.
type Contact struct {
	Name      string `json:"name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Community string `json:"community,omitempty"`
	Tower     string `json:"tower,omitempty"`
	Unit      string `json:"unit,omitempty"`
	Address   string `json:"address,omitempty"`
	Landmark  string `json:"landmark,omitempty"`
}

// HasDeliveryLocation reports whether c carries a complete delivery location:
// either community, tower and unit, or a street address.
func (c Contact) HasDeliveryLocation() bool {
	if c.Community != "" && c.Tower != "" && c.Unit != "" {
		return true
	}
	return c.Address != ""
}

// Customer is the durable record of someone who signed in or ordered.
type Customer struct {
	ID          string
	Email       string
	Name        string
	Phone       string
	Role        Role
	Community   string
	Tower       string
	Unit        string
	CreatedAt   time.Time
	LastSeenAt  time.Time
	TotalOrders int
	TotalSpend  decimal.Decimal
	LastOrderAt *time.Time
}

// Repository defines persistence operations for customers.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Customer, error)
	GetByEmail(ctx context.Context, email string) (*Customer, error)
	// Insert stores c and returns its id. A record already holding the same
	// email wins: its id is returned instead of creating a duplicate.
	Insert(ctx context.Context, c *Customer) (string, error)
	// UpdateProfile writes the contact fields, role and LastSeenAt of c.
	UpdateProfile(ctx context.Context, c *Customer) error
	// RecordOrder adds one order of the given amount to the aggregates.
	RecordOrder(ctx context.Context, id string, amount decimal.Decimal, at time.Time) error
	List(ctx context.Context) ([]Customer, error)
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
