package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Reconciler finds or creates the customer behind an email and merges new
// contact details into it.
//
// Lookups and writes are separate statements. The repository's insert is
// expected to be backed by a unique email constraint so two concurrent first
// orders from the same email resolve to one record.
type Reconciler struct {
	customers Repository
	roles     *Roles
	now       func() time.Time
}

// NewReconciler creates a Reconciler backed by customers.
func NewReconciler(customers Repository, roles *Roles) *Reconciler {
	return &Reconciler{customers: customers, roles: roles, now: time.Now}
}

// Reconcile returns the id of the customer for email, creating the record if
// needed. A knownID that resolves wins over the email lookup. Existing
// records are patched: each contact field takes the new value when provided,
// LastSeenAt moves to now, and an unset role becomes admin for allow-listed
// emails.
func (r *Reconciler) Reconcile(ctx context.Context, email string, contact Contact, knownID string) (string, error) {
	normalized := NormalizeEmail(email)
	now := r.now()

	if knownID != "" {
		existing, err := r.customers.GetByID(ctx, knownID)
		switch {
		case err == nil:
			if err := r.touch(ctx, existing, normalized, contact, now); err != nil {
				return "", err
			}
			return existing.ID, nil
		case !errors.Is(err, ErrNotFound):
			return "", errors.Wrap(err, "get customer by id")
		}
	}

	if normalized == "" {
		return "", ErrEmailRequired
	}

	existing, err := r.customers.GetByEmail(ctx, normalized)
	switch {
	case err == nil:
		if err := r.touch(ctx, existing, normalized, contact, now); err != nil {
			return "", err
		}
		return existing.ID, nil
	case !errors.Is(err, ErrNotFound):
		return "", errors.Wrap(err, "get customer by email")
	}

	c := &Customer{
		Email:      normalized,
		Name:       contact.Name,
		Phone:      contact.Phone,
		Community:  contact.Community,
		Tower:      contact.Tower,
		Unit:       contact.Unit,
		Role:       r.roleFor("", normalized),
		CreatedAt:  now,
		LastSeenAt: now,
		TotalSpend: decimal.Zero,
	}
	id, err := r.customers.Insert(ctx, c)
	if err != nil {
		return "", errors.Wrap(err, "insert customer")
	}
	return id, nil
}

// RecordOrder bumps the order aggregates of customer id.
func (r *Reconciler) RecordOrder(ctx context.Context, id string, amount decimal.Decimal, at time.Time) error {
	return r.customers.RecordOrder(ctx, id, amount, at)
}

// UpdateProfile merges contact into the customer's profile.
func (r *Reconciler) UpdateProfile(ctx context.Context, id string, contact Contact) (*Customer, error) {
	existing, err := r.customers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	merge(existing, contact)
	existing.LastSeenAt = r.now()
	if err := r.customers.UpdateProfile(ctx, existing); err != nil {
		return nil, errors.Wrap(err, "update customer profile")
	}
	return existing, nil
}

// Get returns a customer by id.
func (r *Reconciler) Get(ctx context.Context, id string) (*Customer, error) {
	return r.customers.GetByID(ctx, id)
}

// GetByEmail returns a customer by email in any casing.
func (r *Reconciler) GetByEmail(ctx context.Context, email string) (*Customer, error) {
	return r.customers.GetByEmail(ctx, NormalizeEmail(email))
}

// List returns every customer.
func (r *Reconciler) List(ctx context.Context) ([]Customer, error) {
	return r.customers.List(ctx)
}

func (r *Reconciler) touch(ctx context.Context, c *Customer, normalized string, contact Contact, now time.Time) error {
	merge(c, contact)
	c.LastSeenAt = now
	if normalized == "" {
		normalized = c.Email
	}
	c.Role = r.roleFor(c.Role, normalized)
	if err := r.customers.UpdateProfile(ctx, c); err != nil {
		return errors.Wrap(err, "update customer")
	}
	return nil
}

func (r *Reconciler) roleFor(existing Role, email string) Role {
	if existing != "" {
		return existing
	}
	if r.roles.IsAdmin(email) {
		return RoleAdmin
	}
	return ""
}

// merge copies every non-empty profile field of contact onto c.
func merge(c *Customer, contact Contact) {
	c.Name = pick(contact.Name, c.Name)
	c.Phone = pick(contact.Phone, c.Phone)
	c.Community = pick(contact.Community, c.Community)
	c.Tower = pick(contact.Tower, c.Tower)
	c.Unit = pick(contact.Unit, c.Unit)
}

func pick(next, current string) string {
	if next != "" {
		return next
	}
	return current
}
