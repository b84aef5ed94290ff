// Package handler exposes the cafe over HTTP/JSON.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/yumyard-cafe/internal/domain/assistant"
	"github.com/xenking/yumyard-cafe/internal/domain/auth"
	"github.com/xenking/yumyard-cafe/internal/domain/coupon"
	"github.com/xenking/yumyard-cafe/internal/domain/customer"
	"github.com/xenking/yumyard-cafe/internal/domain/menu"
	"github.com/xenking/yumyard-cafe/internal/domain/order"
	"github.com/xenking/yumyard-cafe/internal/domain/session"
)

const maxBodyBytes = 1 << 20

// MenuService is the menu catalog.
type MenuService interface {
	List(ctx context.Context) ([]menu.Item, error)
	Get(ctx context.Context, id string) (*menu.Item, error)
	Create(ctx context.Context, item menu.Item) (*menu.Item, error)
	Update(ctx context.Context, id string, p menu.Patch) (*menu.Item, error)
	Delete(ctx context.Context, id string) error
	ToggleAvailability(ctx context.Context, id string, available bool) error
}

// OrderService is the order pipeline as seen by staff and customers.
type OrderService interface {
	Get(ctx context.Context, id string) (*order.Order, error)
	GetByCode(ctx context.Context, code string) (*order.Order, error)
	UpdateStatus(ctx context.Context, id string, status order.Status, note string) (*order.Order, error)
	MarkPayment(ctx context.Context, id string, status order.PaymentStatus, reference string) (*order.Order, error)
	SetEta(ctx context.Context, id string, minutes *int) (*order.Order, error)
	AssignRider(ctx context.Context, id string, rider *order.Rider) (*order.Order, error)
	ListLive(ctx context.Context) ([]order.Order, error)
	ListRecent(ctx context.Context, limit int) ([]order.Order, error)
	ListByCustomer(ctx context.Context, customerID, email string) ([]order.Order, error)
	Insights(ctx context.Context) (*order.Insights, error)
}

// CustomerService reads and edits customer records.
type CustomerService interface {
	Get(ctx context.Context, id string) (*customer.Customer, error)
	List(ctx context.Context) ([]customer.Customer, error)
	UpdateProfile(ctx context.Context, id string, contact customer.Contact) (*customer.Customer, error)
}

// AuthService issues and verifies login codes.
type AuthService interface {
	RequestCode(ctx context.Context, email string) (*auth.CodeGrant, error)
	VerifyCode(ctx context.Context, email, code string, profile customer.Contact) (*auth.SignIn, error)
}

// TokenParser resolves bearer tokens.
type TokenParser interface {
	Parse(raw string) (*auth.Principal, error)
}

// CodeSender delivers login codes to their owners.
type CodeSender interface {
	SendCode(ctx context.Context, grant *auth.CodeGrant) error
}

// Assistant runs chat turns and checkouts against a session.
type Assistant interface {
	Chat(ctx context.Context, sessionID string, id assistant.Identity, history []assistant.Message) (*assistant.ChatResult, error)
	Checkout(ctx context.Context, sessionID string, id assistant.Identity, req assistant.CheckoutRequest) ([]assistant.Outcome, *session.Session, error)
}

// Coupons looks up and prices coupon codes.
type Coupons interface {
	Lookup(code string) (coupon.Rule, bool)
	Resolve(code string, subtotal, fees decimal.Decimal) (coupon.Discount, error)
}

// Feed streams order change events.
type Feed interface {
	Subscribe(ctx context.Context) <-chan order.Event
}

// Deps are the collaborators of a Handler.
type Deps struct {
	Menu      MenuService
	Orders    OrderService
	Customers CustomerService
	Auth      AuthService
	Tokens    TokenParser
	Sender    CodeSender
	Sessions  session.Store
	Assistant Assistant
	Coupons   Coupons
	Feed      Feed
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ExposeLoginCodes returns issued login codes in the response body. It is
	// meant for local development only.
	ExposeLoginCodes bool
}

// Handler serves the cafe API.
type Handler struct {
	Deps
	cfg      Config
	validate *validator.Validate
}

// New constructs a Handler.
func New(cfg Config, deps Deps) *Handler {
	return &Handler{
		Deps:     deps,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register mounts every API route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/menu", h.listMenu)
	mux.Handle("POST /api/menu", h.staff(h.createMenuItem))
	mux.HandleFunc("GET /api/menu/{id}", h.getMenuItem)
	mux.Handle("PATCH /api/menu/{id}", h.staff(h.updateMenuItem))
	mux.Handle("DELETE /api/menu/{id}", h.staff(h.deleteMenuItem))
	mux.Handle("PUT /api/menu/{id}/availability", h.staff(h.setAvailability))

	mux.HandleFunc("POST /api/auth/code", h.requestCode)
	mux.HandleFunc("POST /api/auth/verify", h.verifyCode)

	mux.HandleFunc("GET /api/cart", h.getCart)
	mux.HandleFunc("DELETE /api/cart", h.clearCart)
	mux.HandleFunc("POST /api/cart/items", h.addCartItem)
	mux.HandleFunc("DELETE /api/cart/items/{itemId}", h.removeCartItem)
	mux.HandleFunc("PUT /api/cart/contact", h.setCartContact)

	mux.HandleFunc("POST /api/orders", h.placeOrder)
	mux.Handle("GET /api/orders/live", h.staff(h.listLive))
	mux.Handle("GET /api/orders/recent", h.staff(h.listRecent))
	mux.Handle("GET /api/orders/mine", h.signedIn(h.listMine))
	mux.HandleFunc("GET /api/orders/code/{code}", h.getOrderByCode)
	mux.HandleFunc("GET /api/orders/feed", h.orderFeed)
	mux.Handle("POST /api/orders/{id}/status", h.staff(h.updateStatus))
	mux.Handle("POST /api/orders/{id}/payment", h.staff(h.markPayment))
	mux.Handle("POST /api/orders/{id}/eta", h.staff(h.setEta))
	mux.Handle("POST /api/orders/{id}/rider", h.staff(h.assignRider))

	mux.Handle("GET /api/customers", h.staff(h.listCustomers))
	mux.Handle("GET /api/customers/me", h.signedIn(h.getMe))
	mux.Handle("PATCH /api/customers/me", h.signedIn(h.updateMe))

	mux.Handle("GET /api/insights", h.staff(h.insights))

	mux.HandleFunc("POST /api/assistant", h.chat)
}

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: status, Message: message})
}

var errBadBody = errors.New("invalid request body")

// decode reads a JSON body into v and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(errBadBody, err.Error())
	}
	return h.validate.Struct(v)
}

// identity returns the signed-in caller as an assistant identity.
func identity(ctx context.Context) assistant.Identity {
	p := auth.PrincipalFrom(ctx)
	if p == nil {
		return assistant.Identity{}
	}
	return assistant.Identity{CustomerID: p.CustomerID, Email: p.Email}
}
