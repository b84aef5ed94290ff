// Package assistant applies cart and order mutations proposed by an
// untrusted language model.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/yumyard-cafe/internal/domain/cart"
	"github.com/xenking/yumyard-cafe/internal/domain/coupon"
	"github.com/xenking/yumyard-cafe/internal/domain/customer"
	"github.com/xenking/yumyard-cafe/internal/domain/menu"
	"github.com/xenking/yumyard-cafe/internal/domain/order"
	"github.com/xenking/yumyard-cafe/internal/domain/pricing"
	"github.com/xenking/yumyard-cafe/internal/domain/session"
)

// Rejection signals.
var (
	ErrCartEmpty     = errors.New("cart is empty")
	ErrEmailMissing  = errors.New("email required")
	ErrPhoneMissing  = errors.New("phone required")
	ErrPlaceFailed   = errors.New("order placement failed")
	ErrNoRecentOrder = errors.New("no recent order")
	ErrUnknownItem   = errors.New("item not on the menu")
)

// messages are the visitor-facing texts of the rejection signals.
var messages = map[error]string{
	ErrCartEmpty:     "Cart is empty. I couldn't place the order.",
	ErrEmailMissing:  "Sign in or add an email before placing the order.",
	ErrPhoneMissing:  "Add a phone number before placing the order.",
	ErrPlaceFailed:   "Couldn't place the order via the assistant. Try again.",
	ErrNoRecentOrder: "No recent order to check payment for.",
}

// maxUnits bounds one add_to_cart action.
const maxUnits = 50

// Catalog resolves menu items.
type Catalog interface {
	Get(ctx context.Context, id string) (*menu.Item, error)
	List(ctx context.Context) ([]menu.Item, error)
}

// Orders places orders and reads their payment state.
type Orders interface {
	Create(ctx context.Context, req order.CreateRequest) (*order.CreateResult, error)
	GetByCode(ctx context.Context, code string) (*order.Order, error)
}

// Coupons resolves coupon codes.
type Coupons interface {
	Lookup(code string) (coupon.Rule, bool)
	Resolve(code string, subtotal, fees decimal.Decimal) (coupon.Discount, error)
}

// Identity is the signed-in customer, if any.
type Identity struct {
	CustomerID string
	Email      string
}

// OutcomeStatus classifies the result of one action.
type OutcomeStatus string

const (
	OutcomeApplied  OutcomeStatus = "applied"
	OutcomeSkipped  OutcomeStatus = "skipped"
	OutcomeRejected OutcomeStatus = "rejected"
)

// Outcome reports what happened to one action. Index is the action's position
// in the proposed list; outcomes are ordered by execution pass, not by Index.
type Outcome struct {
	Index   int           `json:"index"`
	Type    ActionType    `json:"type"`
	Status  OutcomeStatus `json:"status"`
	Message string        `json:"message"`
	// Err is the rejection signal behind a skipped or rejected action.
	Err error `json:"-"`

	OrderCode string `json:"orderCode,omitempty"`
	UPILink   string `json:"upiLink,omitempty"`
}

func (o Outcome) reject(err error) Outcome {
	o.Status = OutcomeRejected
	o.Err = err
	o.Message = messages[err]
	return o
}

// Executor validates and applies agent-proposed actions against a session.
type Executor struct {
	catalog Catalog
	orders  Orders
	coupons Coupons
	now     func() time.Time
}

// NewExecutor creates an Executor.
func NewExecutor(catalog Catalog, orders Orders, coupons Coupons) *Executor {
	return &Executor{
		catalog: catalog,
		orders:  orders,
		coupons: coupons,
		now:     time.Now,
	}
}

// placement tunes place_order. The zero value places orders the way the
// assistant does: payment method by mode and a phone number always required.
type placement struct {
	// method overrides the mode default when set.
	method order.PaymentMethod
	// manual requires a phone number for delivery orders only.
	manual bool
}

func (p placement) paymentMethod(mode pricing.Mode) order.PaymentMethod {
	if p.method != "" {
		return p.method
	}
	if mode == pricing.ModeTable {
		return order.PaymentCOD
	}
	return order.PaymentUPI
}

func (p placement) needsPhone(mode pricing.Mode) bool {
	return !p.manual || mode == pricing.ModeDelivery
}

// Execute applies actions to sess in three passes: every add_to_cart in list
// order, then every apply_coupon, then place_order and check_payment in list
// order. Outcomes come back in that execution order and carry the index of
// the action they answer. Each action succeeds or fails on its own; mutations
// made by earlier actions stay even when later ones are rejected.
func (e *Executor) Execute(ctx context.Context, sess *session.Session, id Identity, actions []Action) []Outcome {
	return e.execute(ctx, sess, id, actions, placement{})
}

func (e *Executor) execute(ctx context.Context, sess *session.Session, id Identity, actions []Action, p placement) []Outcome {
	if sess.Cart == nil {
		sess.Cart = cart.New(pricing.ModeTable)
	}
	outcomes := make([]Outcome, 0, len(actions))
	add := func(i int, out Outcome) {
		out.Index = i
		outcomes = append(outcomes, out)
	}

	for i, a := range actions {
		if a.Type == ActionAddToCart {
			add(i, e.addToCart(ctx, sess, a))
		}
	}

	effective := sess.AppliedCoupon
	for i, a := range actions {
		if a.Type == ActionApplyCoupon {
			add(i, e.applyCoupon(sess, a, &effective))
		}
	}

	for i, a := range actions {
		switch a.Type {
		case ActionPlaceOrder:
			add(i, e.placeOrder(ctx, sess, id, &effective, p))
		case ActionCheckPayment:
			add(i, e.checkPayment(ctx, sess))
		}
	}
	return outcomes
}

func (e *Executor) addToCart(ctx context.Context, sess *session.Session, a Action) Outcome {
	out := Outcome{Type: ActionAddToCart}

	item, err := e.catalog.Get(ctx, a.ItemID)
	if err != nil {
		if !errors.Is(err, menu.ErrNotFound) {
			zctx.From(ctx).Warn("Resolve assistant item", zap.String("item_id", a.ItemID), zap.Error(err))
		}
		out.Status = OutcomeSkipped
		out.Err = ErrUnknownItem
		out.Message = fmt.Sprintf("Skipped unknown item %q", a.ItemID)
		return out
	}

	qty := a.Quantity
	if qty < 1 {
		qty = 1
	}
	qty = min(qty, maxUnits)

	now := e.now()
	for range qty {
		if err := sess.Cart.Add(*item, a.AddOnIDs, a.Notes, now); err != nil {
			out.Status = OutcomeRejected
			out.Err = err
			out.Message = fmt.Sprintf("%s is not available right now", item.Name)
			return out
		}
	}

	out.Status = OutcomeApplied
	out.Message = "Added " + item.Name
	if qty > 1 {
		out.Message += fmt.Sprintf(" ×%d", qty)
	}
	return out
}

func (e *Executor) applyCoupon(sess *session.Session, a Action, effective *string) Outcome {
	out := Outcome{Type: ActionApplyCoupon}
	code := coupon.Normalize(a.CouponCode)

	if _, ok := e.coupons.Lookup(code); code == "" || !ok {
		out.Status = OutcomeRejected
		out.Err = coupon.ErrInvalidCoupon
		out.Message = "Invalid coupon code"
		return out
	}

	*effective = code
	sess.AppliedCoupon = code
	out.Status = OutcomeApplied
	out.Message = "Coupon applied: " + code
	return out
}

func (e *Executor) placeOrder(ctx context.Context, sess *session.Session, id Identity, effective *string, p placement) Outcome {
	out := Outcome{Type: ActionPlaceOrder, Status: OutcomeRejected}
	c := sess.Cart

	if c.Empty() {
		return out.reject(ErrCartEmpty)
	}
	email := strings.TrimSpace(id.Email)
	if email == "" {
		email = strings.TrimSpace(c.Contact.Email)
	}
	if email == "" {
		return out.reject(ErrEmailMissing)
	}
	if p.needsPhone(c.Mode) && strings.TrimSpace(c.Contact.Phone) == "" {
		return out.reject(ErrPhoneMissing)
	}

	method := p.paymentMethod(c.Mode)
	contact := c.Contact
	if contact.Email == "" {
		contact.Email = email
	}

	res, err := e.orders.Create(ctx, order.CreateRequest{
		Mode:          c.Mode,
		ServiceType:   order.ServiceType(c.ServiceType),
		TableID:       c.TableID,
		Contact:       contact,
		CustomerEmail: customer.NormalizeEmail(email),
		CustomerID:    id.CustomerID,
		Items:         LineItems(c),
		PaymentMethod: method,
	})
	if err != nil {
		zctx.From(ctx).Warn("Assistant order placement failed", zap.Error(err))
		out = out.reject(ErrPlaceFailed)
		out.Err = fmt.Errorf("%w: %w", ErrPlaceFailed, err)
		return out
	}

	sess.LastOrder = e.snapshot(c, res, *effective)
	c.Clear()
	*effective = ""
	sess.AppliedCoupon = ""

	out.Status = OutcomeApplied
	out.OrderCode = res.Code
	out.UPILink = res.UPILink
	if method == order.PaymentUPI && res.UPILink != "" {
		out.Message = fmt.Sprintf("Order %s placed. Opening UPI.", res.Code)
	} else {
		out.Message = fmt.Sprintf("Order %s placed. Pay cash on serve/delivery.", res.Code)
	}
	return out
}

// snapshot records the placed order as the visitor sees it: the total has
// the effective coupon's discount applied.
func (e *Executor) snapshot(c *cart.Cart, res *order.CreateResult, couponCode string) *session.LastOrder {
	totals := c.Totals()
	total := totals.GrandTotal
	if couponCode != "" {
		if d, err := e.coupons.Resolve(couponCode, totals.Subtotal, totals.Fees); err == nil {
			total = totals.Discounted(d.Amount)
		}
	}

	items := make([]session.LastOrderItem, len(c.Items))
	for i, l := range c.Items {
		names := make([]string, len(l.AddOns))
		for j, a := range l.AddOns {
			names[j] = a.Name
		}
		items[i] = session.LastOrderItem{Name: l.Name, Quantity: l.Quantity, AddOns: names, Notes: l.Notes}
	}

	status := order.PaymentPending
	if res.Order != nil {
		status = res.Order.Payment.Status
	}
	return &session.LastOrder{
		Code:       res.Code,
		Mode:       c.Mode,
		TableID:    c.TableID,
		Contact:    c.Contact,
		Items:      items,
		Total:      total,
		Status:     status,
		CouponCode: couponCode,
		PlacedAt:   e.now(),
	}
}

func (e *Executor) checkPayment(ctx context.Context, sess *session.Session) Outcome {
	out := Outcome{Type: ActionCheckPayment}
	last := sess.LastOrder
	if last == nil {
		return out.reject(ErrNoRecentOrder)
	}

	if o, err := e.orders.GetByCode(ctx, last.Code); err == nil {
		last.Status = o.Payment.Status
	} else {
		zctx.From(ctx).Debug("Refresh last order", zap.String("code", last.Code), zap.Error(err))
	}

	out.Status = OutcomeApplied
	out.OrderCode = last.Code
	out.Message = fmt.Sprintf("Order %s payment status: %s.", last.Code, last.Status)
	return out
}

// LineItems freezes the cart lines into order line items.
func LineItems(c *cart.Cart) []order.LineItem {
	items := make([]order.LineItem, len(c.Items))
	for i, l := range c.Items {
		items[i] = order.LineItem{
			ItemID:   l.ItemID,
			Name:     l.Name,
			Price:    l.Price,
			Quantity: l.Quantity,
			AddOns:   l.AddOns,
			Notes:    l.Notes,
		}
	}
	return items
}
