package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/yumyard-cafe/internal/domain/customer"
)

// CodeTTL is how long a login code stays valid.
const CodeTTL = 10 * time.Minute

// Customers reconciles and reads customer records.
type Customers interface {
	Reconcile(ctx context.Context, email string, contact customer.Contact, knownID string) (string, error)
	Get(ctx context.Context, id string) (*customer.Customer, error)
}

// CodeGrant is an issued login code, handed to the delivery collaborator.
type CodeGrant struct {
	Email     string
	Code      string
	ExpiresAt time.Time
}

// SignIn is the result of a successful verification.
type SignIn struct {
	Token     string
	ExpiresAt time.Time
	Customer  *customer.Customer
}

// Service issues and verifies login codes.
type Service struct {
	tokens    Repository
	customers Customers
	signer    *Tokens
	hasher    Hasher
	now       func() time.Time
	code      func() (string, error)
}

// NewService creates an auth Service.
func NewService(tokens Repository, customers Customers, signer *Tokens, hasher Hasher) *Service {
	return &Service{
		tokens:    tokens,
		customers: customers,
		signer:    signer,
		hasher:    hasher,
		now:       time.Now,
		code:      randomCode,
	}
}

// RequestCode issues a 6-digit code for email, invalidating earlier codes.
func (s *Service) RequestCode(ctx context.Context, email string) (*CodeGrant, error) {
	normalized := customer.NormalizeEmail(email)
	if normalized == "" {
		return nil, customer.ErrEmailRequired
	}

	code, err := s.code()
	if err != nil {
		return nil, errors.Wrap(err, "generate code")
	}
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return nil, errors.Wrap(err, "hash code")
	}

	now := s.now()
	t := &LoginToken{
		Email:     normalized,
		CodeHash:  hash,
		ExpiresAt: now.Add(CodeTTL),
		CreatedAt: now,
	}
	if err := s.tokens.Replace(ctx, t); err != nil {
		return nil, errors.Wrap(err, "store login token")
	}
	return &CodeGrant{Email: normalized, Code: code, ExpiresAt: t.ExpiresAt}, nil
}

// VerifyCode exchanges a login code for a session token. The customer record
// is reconciled with profile on success.
func (s *Service) VerifyCode(ctx context.Context, email, code string, profile customer.Contact) (*SignIn, error) {
	normalized := customer.NormalizeEmail(email)

	t, err := s.tokens.Latest(ctx, normalized)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, errors.Wrap(err, "get login token")
	}
	if !s.hasher.Check(strings.TrimSpace(code), t.CodeHash) {
		return nil, ErrInvalidCode
	}
	if t.Used {
		return nil, ErrCodeUsed
	}
	if t.ExpiresAt.Before(s.now()) {
		return nil, ErrCodeExpired
	}
	if err := s.tokens.MarkUsed(ctx, t.ID); err != nil {
		if errors.Is(err, ErrCodeUsed) {
			return nil, err
		}
		return nil, errors.Wrap(err, "mark token used")
	}

	profile.Email = normalized
	id, err := s.customers.Reconcile(ctx, normalized, profile, "")
	if err != nil {
		return nil, errors.Wrap(err, "reconcile customer")
	}
	c, err := s.customers.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get customer")
	}

	token, exp, err := s.signer.Issue(c)
	if err != nil {
		return nil, err
	}
	return &SignIn{Token: token, ExpiresAt: exp, Customer: c}, nil
}

// randomCode returns a uniformly random code in 100000..999999.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
