// Package auth implements passwordless sign-in: one-time login codes that
// are exchanged for a signed session token.
package auth

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/yumyard-cafe/internal/domain/customer"
)

// Verification errors. Messages are shown to callers as is.
var (
	ErrInvalidCode  = errors.New("invalid code")
	ErrCodeUsed     = errors.New("code already used")
	ErrCodeExpired  = errors.New("code expired")
	ErrTokenInvalid = errors.New("invalid session token")
	// ErrNotFound is returned by repositories when no token exists.
	ErrNotFound = errors.New("login token not found")
)

// LoginToken is a one-time code issued to an email. Only the hash of the
// code is stored.
type LoginToken struct {
	ID        string
	Email     string
	CodeHash  string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// Repository persists login tokens.
type Repository interface {
	// Replace deletes every token of t.Email and stores t.
	Replace(ctx context.Context, t *LoginToken) error
	// Latest returns the newest token for email.
	Latest(ctx context.Context, email string) (*LoginToken, error)
	// MarkUsed flips the used flag. It returns ErrCodeUsed when the token
	// was already used.
	MarkUsed(ctx context.Context, id string) error
}

// Hasher hashes and checks login codes.
type Hasher interface {
	Hash(code string) (string, error)
	Check(code, hash string) bool
}

// Principal is the authenticated caller.
type Principal struct {
	CustomerID string
	Email      string
	Role       customer.Role
	Admin      bool
	Owner      bool
}

// Staff reports whether p may operate the kitchen.
func (p *Principal) Staff() bool {
	return p != nil && (p.Admin || p.Owner)
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller stored in ctx, or nil for anonymous calls.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
