package assistant

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/yumyard-cafe/internal/domain/coupon"
	"github.com/xenking/yumyard-cafe/internal/domain/menu"
	"github.com/xenking/yumyard-cafe/internal/domain/order"
	"github.com/xenking/yumyard-cafe/internal/domain/pricing"
	"github.com/xenking/yumyard-cafe/internal/domain/session"
)

type stubGenerator struct {
	reply   Reply
	err     error
	history []Message
	seen    Context
}

func (g *stubGenerator) Generate(_ context.Context, history []Message, c Context) (Reply, error) {
	g.history = history
	g.seen = c
	return g.reply, g.err
}

func newTestService(gen Generator, store session.Store) *Service {
	off := menuItem("off", "Seasonal Soup", 150)
	off.Available = false
	catalog := newCatalog(menuItem("coffee", "Filter Coffee", 100), off)
	return NewService(gen, store, catalog, &mockOrders{}, coupon.DefaultCatalog())
}

func TestChat_AppliesActionsAndSaves(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	gen := &stubGenerator{reply: Reply{
		Reply:   "Added a coffee",
		Actions: []Action{{Type: ActionAddToCart, ItemID: "coffee"}},
	}}
	svc := newTestService(gen, store)

	res, err := svc.Chat(ctx, "s1", Identity{}, []Message{{Role: RoleUser, Content: "one coffee"}})
	require.NoError(t, err)

	assert.Equal(t, "Added a coffee", res.Reply)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, OutcomeApplied, res.Outcomes[0].Status)

	saved, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, saved.Cart.Items, 1)
	assert.Equal(t, "coffee", saved.Cart.Items[0].ItemID)

	require.Len(t, gen.seen.Menu, 1)
	assert.Len(t, gen.seen.Coupons, 3)
}

func TestChat_GeneratorFailureLeavesSession(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	existing := session.New()
	existing.AppliedCoupon = "FREESHIP"
	require.NoError(t, store.Set(ctx, "s1", existing))

	svc := newTestService(&stubGenerator{err: errors.New("upstream 502")}, store)

	res, err := svc.Chat(ctx, "s1", Identity{}, []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)

	assert.Equal(t, fallbackReply, res.Reply)
	assert.Empty(t, res.Outcomes)
	saved, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "FREESHIP", saved.AppliedCoupon)
}

func TestChat_TrimsHistory(t *testing.T) {
	gen := &stubGenerator{reply: Reply{Reply: "hello"}}
	svc := newTestService(gen, session.NewMemoryStore())

	history := make([]Message, 12)
	for i := range history {
		history[i] = Message{Role: RoleUser, Content: string(rune('a' + i))}
	}

	_, err := svc.Chat(context.Background(), "s1", Identity{}, history)
	require.NoError(t, err)

	require.Len(t, gen.history, historyWindow)
	assert.Equal(t, "e", gen.history[0].Content)
}

func TestAvailable(t *testing.T) {
	items := []menu.Item{{ID: "a", Available: true}, {ID: "b"}}
	assert.Equal(t, []menu.Item{{ID: "a", Available: true}}, available(items))
}

func TestCheckout(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	sess := session.New()
	sess.Cart.Contact.Phone = "98450"
	require.NoError(t, sess.Cart.Add(menuItem("coffee", "Filter Coffee", 1000), nil, "", fixedNow))
	require.NoError(t, store.Set(ctx, "s1", sess))

	svc := newTestService(&stubGenerator{}, store)
	outcomes, got, err := svc.Checkout(ctx, "s1", Identity{Email: "a@b.c"}, CheckoutRequest{CouponCode: "welcome10"})
	require.NoError(t, err)

	require.Len(t, outcomes, 2)
	assert.Equal(t, OutcomeApplied, outcomes[0].Status)
	last := outcomes[len(outcomes)-1]
	assert.Equal(t, ActionPlaceOrder, last.Type)
	assert.Equal(t, OutcomeApplied, last.Status)
	assert.True(t, got.Cart.Empty())

	saved, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, saved.LastOrder)
	assert.Equal(t, "WELCOME10", saved.LastOrder.CouponCode)
}

func TestCheckout_EmptyCart(t *testing.T) {
	svc := newTestService(&stubGenerator{}, session.NewMemoryStore())

	outcomes, _, err := svc.Checkout(context.Background(), "fresh", Identity{Email: "a@b.c"}, CheckoutRequest{})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, OutcomeRejected, outcomes[0].Status)
	require.ErrorIs(t, outcomes[0].Err, ErrCartEmpty)
}

func TestCheckout_PaymentMethod(t *testing.T) {
	tests := []struct {
		name   string
		mode   pricing.Mode
		method order.PaymentMethod
		phone  string
		want   order.PaymentMethod
	}{
		{name: "table default", mode: pricing.ModeTable, want: order.PaymentCOD},
		{name: "table upi", mode: pricing.ModeTable, method: order.PaymentUPI, want: order.PaymentUPI},
		{name: "delivery default", mode: pricing.ModeDelivery, phone: "9876543210", want: order.PaymentUPI},
		{name: "delivery cod", mode: pricing.ModeDelivery, method: order.PaymentCOD, phone: "9876543210", want: order.PaymentCOD},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := session.NewMemoryStore()
			sess := session.New()
			sess.Cart.Mode = tt.mode
			sess.Cart.Contact.Phone = tt.phone
			require.NoError(t, sess.Cart.Add(menuItem("coffee", "Filter Coffee", 100), nil, "", fixedNow))
			require.NoError(t, store.Set(ctx, "s1", sess))

			orders := &mockOrders{}
			svc := NewService(&stubGenerator{}, store, newCatalog(menuItem("coffee", "Filter Coffee", 100)), orders, coupon.DefaultCatalog())

			outcomes, _, err := svc.Checkout(ctx, "s1", Identity{Email: "a@b.c"}, CheckoutRequest{PaymentMethod: tt.method})
			require.NoError(t, err)
			require.Len(t, outcomes, 1)
			assert.Equal(t, OutcomeApplied, outcomes[0].Status, outcomes[0].Message)
			require.Len(t, orders.requests, 1)
			assert.Equal(t, tt.want, orders.requests[0].PaymentMethod)
		})
	}
}

func TestCheckout_DeliveryNeedsPhone(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	sess := session.New()
	sess.Cart.Mode = pricing.ModeDelivery
	require.NoError(t, sess.Cart.Add(menuItem("coffee", "Filter Coffee", 100), nil, "", fixedNow))
	require.NoError(t, store.Set(ctx, "s1", sess))

	orders := &mockOrders{}
	svc := NewService(&stubGenerator{}, store, newCatalog(), orders, coupon.DefaultCatalog())

	outcomes, _, err := svc.Checkout(ctx, "s1", Identity{Email: "a@b.c"}, CheckoutRequest{})
	require.NoError(t, err)
	require.ErrorIs(t, outcomes[0].Err, ErrPhoneMissing)
	assert.Empty(t, orders.requests)
}
