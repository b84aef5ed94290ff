package assistant

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/yumyard-cafe/internal/domain/cart"
	"github.com/xenking/yumyard-cafe/internal/domain/coupon"
	"github.com/xenking/yumyard-cafe/internal/domain/menu"
	"github.com/xenking/yumyard-cafe/internal/domain/order"
	"github.com/xenking/yumyard-cafe/internal/domain/session"
)

const (
	historyWindow = 8
	fallbackReply = "Sorry, I couldn't reach the assistant. Please try again."
)

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Context is the state the language model sees alongside the conversation.
type Context struct {
	Cart          *cart.Cart
	Subtotal      decimal.Decimal
	AppliedCoupon string
	LastOrder     *session.LastOrder
	Menu          []menu.Item
	Coupons       []coupon.Rule
}

// Generator is the language model collaborator.
type Generator interface {
	Generate(ctx context.Context, history []Message, c Context) (Reply, error)
}

// CouponCatalog lists and resolves coupons.
type CouponCatalog interface {
	Coupons
	Rules() []coupon.Rule
}

// ChatResult is returned for one chat turn.
type ChatResult struct {
	Reply       string
	Suggestions []Suggestion
	// Outcomes follow execution order; Outcome.Index points back at the
	// proposed action.
	Outcomes []Outcome
	Session  *session.Session
}

// Service runs chat turns: it asks the Generator for a reply and applies
// the proposed actions to the visitor's session.
type Service struct {
	generator Generator
	executor  *Executor
	sessions  session.Store
	catalog   Catalog
	coupons   CouponCatalog
}

// NewService creates an assistant Service.
func NewService(generator Generator, sessions session.Store, catalog Catalog, orders Orders, coupons CouponCatalog) *Service {
	return &Service{
		generator: generator,
		executor:  NewExecutor(catalog, orders, coupons),
		sessions:  sessions,
		catalog:   catalog,
		coupons:   coupons,
	}
}

// Chat runs one turn for sessionID. A Generator failure produces an apology
// reply and leaves the session untouched.
func (s *Service) Chat(ctx context.Context, sessionID string, id Identity, history []Message) (*ChatResult, error) {
	lg := zctx.From(ctx).With(zap.String("session_id", sessionID))

	sess, err := session.Load(ctx, s.sessions, sessionID)
	if err != nil {
		return nil, err
	}

	items, err := s.catalog.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list menu")
	}

	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	reply, err := s.generator.Generate(ctx, history, Context{
		Cart:          sess.Cart,
		Subtotal:      sess.Cart.Subtotal(),
		AppliedCoupon: sess.AppliedCoupon,
		LastOrder:     sess.LastOrder,
		Menu:          available(items),
		Coupons:       s.coupons.Rules(),
	})
	if err != nil {
		lg.Warn("Assistant generation failed", zap.Error(err))
		return &ChatResult{Reply: fallbackReply, Session: sess}, nil
	}

	outcomes := s.executor.Execute(ctx, sess, id, reply.Actions)
	if len(reply.Actions) > 0 {
		if err := s.sessions.Set(ctx, sessionID, sess); err != nil {
			return nil, errors.Wrap(err, "save session")
		}
	}
	lg.Debug("Assistant turn",
		zap.Int("actions", len(reply.Actions)),
		zap.Int("outcomes", len(outcomes)),
	)

	return &ChatResult{
		Reply:       reply.Reply,
		Suggestions: reply.Suggestions,
		Outcomes:    outcomes,
		Session:     sess,
	}, nil
}

// CheckoutRequest holds the visitor's choices for a manual checkout.
type CheckoutRequest struct {
	CouponCode string
	// PaymentMethod defaults by mode: cod for table orders, upi for delivery.
	PaymentMethod order.PaymentMethod
}

// Checkout places the session's cart as an order, with the coupon applied
// first when set. It shares the placement path of the assistant, except that
// the payment method is the visitor's and a phone number is only required
// for delivery. The session is always saved. The last outcome is the
// placement.
func (s *Service) Checkout(ctx context.Context, sessionID string, id Identity, req CheckoutRequest) ([]Outcome, *session.Session, error) {
	sess, err := session.Load(ctx, s.sessions, sessionID)
	if err != nil {
		return nil, nil, err
	}

	actions := make([]Action, 0, 2)
	if req.CouponCode != "" {
		actions = append(actions, Action{Type: ActionApplyCoupon, CouponCode: req.CouponCode})
	}
	actions = append(actions, Action{Type: ActionPlaceOrder})

	outcomes := s.executor.execute(ctx, sess, id, actions, placement{method: req.PaymentMethod, manual: true})
	if err := s.sessions.Set(ctx, sessionID, sess); err != nil {
		return nil, nil, errors.Wrap(err, "save session")
	}
	return outcomes, sess, nil
}

func available(items []menu.Item) []menu.Item {
	out := make([]menu.Item, 0, len(items))
	for _, it := range items {
		if it.Available {
			out = append(out, it)
		}
	}
	return out
}
