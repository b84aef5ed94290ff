package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/yumyard-cafe/internal/domain/auth"
	"github.com/xenking/yumyard-cafe/internal/domain/customer"
)

// Authenticate resolves a bearer token into the request's principal.
// Requests without a token continue anonymously; a bad token is rejected.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeStatus(w, http.StatusUnauthorized, "authorization must be a bearer token")
			return
		}
		p, err := h.Tokens.Parse(raw)
		if err != nil {
			writeStatus(w, http.StatusUnauthorized, auth.ErrTokenInvalid.Error())
			return
		}
		ctx := auth.WithPrincipal(r.Context(), p)
		ctx = zctx.With(ctx, zap.String("customer_id", p.CustomerID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) signedIn(fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.PrincipalFrom(r.Context()) == nil {
			writeStatus(w, http.StatusUnauthorized, "sign in required")
			return
		}
		fn(w, r)
	})
}

func (h *Handler) staff(fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := auth.PrincipalFrom(r.Context())
		switch {
		case p == nil:
			writeStatus(w, http.StatusUnauthorized, "sign in required")
		case !p.Staff():
			writeStatus(w, http.StatusForbidden, "staff only")
		default:
			fn(w, r)
		}
	})
}

type requestCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type requestCodeResponse struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
	Code      string    `json:"code,omitempty"`
}

func (h *Handler) requestCode(w http.ResponseWriter, r *http.Request) {
	var req requestCodeRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	grant, err := h.Auth.RequestCode(r.Context(), req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Sender.SendCode(r.Context(), grant); err != nil {
		writeError(w, r, err)
		return
	}

	resp := requestCodeResponse{Email: grant.Email, ExpiresAt: grant.ExpiresAt}
	if h.cfg.ExposeLoginCodes {
		resp.Code = grant.Code
	}
	writeJSON(w, http.StatusAccepted, resp)
}

type verifyCodeRequest struct {
	Email   string       `json:"email" validate:"required,email"`
	Code    string       `json:"code" validate:"required,len=6,numeric"`
	Profile contactInput `json:"profile"`
}

type signInResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	Customer  customerResponse `json:"customer"`
}

func (h *Handler) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := h.Auth.VerifyCode(r.Context(), req.Email, req.Code, req.Profile.contact())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, signInResponse{
		Token:     in.Token,
		ExpiresAt: in.ExpiresAt,
		Customer:  toCustomerResponse(in.Customer),
	})
}

// LogSender hands login codes to the log. It stands in for an email or SMS
// gateway.
type LogSender struct{}

var _ CodeSender = LogSender{}

func (LogSender) SendCode(ctx context.Context, grant *auth.CodeGrant) error {
	zctx.From(ctx).Debug("Login code issued",
		zap.String("email", grant.Email),
		zap.String("code", grant.Code),
		zap.Time("expires_at", grant.ExpiresAt),
	)
	return nil
}

// contactInput is the JSON form of customer.Contact.
type contactInput struct {
	Name      string `json:"name" validate:"max=120"`
	Phone     string `json:"phone" validate:"max=32"`
	Email     string `json:"email" validate:"omitempty,email"`
	Community string `json:"community" validate:"max=120"`
	Tower     string `json:"tower" validate:"max=60"`
	Unit      string `json:"unit" validate:"max=60"`
	Address   string `json:"address" validate:"max=300"`
	Landmark  string `json:"landmark" validate:"max=200"`
}

func (c contactInput) contact() customer.Contact {
	return customer.Contact{
		Name:      strings.TrimSpace(c.Name),
		Phone:     strings.TrimSpace(c.Phone),
		Email:     customer.NormalizeEmail(c.Email),
		Community: strings.TrimSpace(c.Community),
		Tower:     strings.TrimSpace(c.Tower),
		Unit:      strings.TrimSpace(c.Unit),
		Address:   strings.TrimSpace(c.Address),
		Landmark:  strings.TrimSpace(c.Landmark),
	}
}
