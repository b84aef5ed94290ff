package auth

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/yumyard-cafe/internal/domain/customer"
)

const issuer = "yumyard-cafe"

// Claims are the JWT claims of a session token.
type Claims struct {
	jwt.RegisteredClaims
	Email string        `json:"email"`
	Role  customer.Role `json:"role,omitempty"`
}

// Tokens signs and verifies HS256 session tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	roles  *customer.Roles
	now    func() time.Time
}

// NewTokens creates a Tokens signer. Admin and owner flags of parsed
// principals come from roles as well as the stored role.
func NewTokens(secret string, ttl time.Duration, roles *customer.Roles) (*Tokens, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must be provided")
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, roles: roles, now: time.Now}, nil
}

// Issue signs a token for the customer c.
func (t *Tokens) Issue(c *customer.Customer) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   c.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: c.Email,
		Role:  c.Role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign token")
	}
	return signed, exp, nil
}

// Parse verifies raw and returns its principal.
func (t *Tokens) Parse(raw string) (*Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, errors.Wrap(ErrTokenInvalid, err.Error())
	}
	if claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	return &Principal{
		CustomerID: claims.Subject,
		Email:      claims.Email,
		Role:       claims.Role,
		Admin:      claims.Role == customer.RoleAdmin || t.roles.IsAdmin(claims.Email),
		Owner:      t.roles.IsOwner(claims.Email),
	}, nil
}
