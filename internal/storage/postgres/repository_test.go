//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/yumyard-cafe/internal/domain/auth"
	"github.com/xenking/yumyard-cafe/internal/domain/customer"
	"github.com/xenking/yumyard-cafe/internal/domain/menu"
	"github.com/xenking/yumyard-cafe/internal/domain/order"
)

var at = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func TestMenuRepository(t *testing.T) {
	truncate(t)
	ctx := context.Background()
	repo := NewMenuRepository(testPool)

	expires := at.Add(24 * time.Hour)
	item := &menu.Item{
		ID:            "masala-dosa",
		Name:          "Masala Dosa",
		Price:         decimal.NewFromInt(120),
		Category:      "South Indian",
		Tags:          []string{"veg"},
		AddOns:        []menu.AddOn{{ID: "ghee", Name: "Ghee", Price: decimal.NewFromInt(20)}},
		Available:     true,
		DealPrice:     decimal.NewNullDecimal(decimal.NewFromInt(99)),
		DealExpiresAt: &expires,
	}
	require.NoError(t, repo.Create(ctx, item))
	require.NoError(t, repo.Create(ctx, &menu.Item{
		ID: "chai", Name: "Chai", Price: decimal.NewFromInt(30), Category: "Beverages", Available: true,
	}))

	got, err := repo.GetByID(ctx, "masala-dosa")
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(120)))
	assert.True(t, got.DealPrice.Valid)
	assert.True(t, got.DealPrice.Decimal.Equal(decimal.NewFromInt(99)))
	require.Len(t, got.AddOns, 1)
	assert.Equal(t, "ghee", got.AddOns[0].ID)
	assert.Equal(t, []string{"veg"}, got.Tags)

	items, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "chai", items[0].ID)
	assert.False(t, items[0].DealPrice.Valid)

	require.NoError(t, repo.SetAvailability(ctx, "chai", false))
	chai, err := repo.GetByID(ctx, "chai")
	require.NoError(t, err)
	assert.False(t, chai.Available)

	got.Name = "Ghee Masala Dosa"
	require.NoError(t, repo.Update(ctx, got))

	require.NoError(t, repo.Upsert(ctx, &menu.Item{
		ID: "masala-dosa", Name: "Paper Dosa", Price: decimal.NewFromInt(140), Category: "South Indian",
	}))
	require.NoError(t, repo.Upsert(ctx, &menu.Item{
		ID: "filter-coffee", Name: "Filter Coffee", Price: decimal.NewFromInt(40), Category: "Beverages", Available: true,
	}))
	dosa, err := repo.GetByID(ctx, "masala-dosa")
	require.NoError(t, err)
	assert.Equal(t, "Paper Dosa", dosa.Name)
	assert.Empty(t, dosa.AddOns)
	assert.False(t, dosa.DealPrice.Valid)
	items, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	require.NoError(t, repo.Delete(ctx, "chai"))
	_, err = repo.GetByID(ctx, "chai")
	require.ErrorIs(t, err, menu.ErrNotFound)
	require.ErrorIs(t, repo.Delete(ctx, "chai"), menu.ErrNotFound)
	require.ErrorIs(t, repo.SetAvailability(ctx, "missing", true), menu.ErrNotFound)
}

func TestCustomerRepository_InsertKeepsOneRecordPerEmail(t *testing.T) {
	truncate(t)
	ctx := context.Background()
	repo := NewCustomerRepository(testPool)

	first, err := repo.Insert(ctx, &customer.Customer{Email: "asha@example.com", Name: "Asha", CreatedAt: at, LastSeenAt: at})
	require.NoError(t, err)
	second, err := repo.Insert(ctx, &customer.Customer{Email: "asha@example.com", Name: "Other", CreatedAt: at, LastSeenAt: at})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, repo.RecordOrder(ctx, first, decimal.NewFromInt(765), at.Add(time.Minute)))
	require.NoError(t, repo.RecordOrder(ctx, first, decimal.NewFromInt(105), at.Add(2*time.Minute)))

	c, err := repo.GetByEmail(ctx, "asha@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Asha", c.Name)
	assert.Equal(t, 2, c.TotalOrders)
	assert.True(t, c.TotalSpend.Equal(decimal.NewFromInt(870)))
	require.NotNil(t, c.LastOrderAt)

	_, err = repo.GetByID(ctx, "missing")
	require.ErrorIs(t, err, customer.ErrNotFound)
}

func TestOrderService_EndToEnd(t *testing.T) {
	truncate(t)
	ctx := context.Background()

	orders := NewOrderRepository(testPool)
	customers := customer.NewReconciler(NewCustomerRepository(testPool), nil)
	svc, err := order.NewService(orders, customers, NewTransactor(testPool), order.NewCodeGenerator(orders), order.Config{
		Payee: order.Payee{VPA: "yumyard@upi", Name: "YumYard"},
	})
	require.NoError(t, err)

	res, err := svc.Create(ctx, order.CreateRequest{
		Mode:          order.ModeDelivery,
		Contact:       customer.Contact{Name: "Asha", Phone: "98450", Email: "Asha@Example.com", Community: "Palm", Tower: "B", Unit: "1204"},
		PaymentMethod: order.PaymentUPI,
		Items: []order.LineItem{
			{ItemID: "masala-dosa", Name: "Masala Dosa", Price: decimal.NewFromInt(120), Quantity: 2},
		},
	})
	require.NoError(t, err)
	assert.Regexp(t, `^YY-\d{4}$`, res.Code)
	assert.Contains(t, res.UPILink, "am=282.00")

	exists, err := orders.CodeExists(ctx, res.Code)
	require.NoError(t, err)
	assert.True(t, exists)

	stored, err := svc.GetByCode(ctx, res.Code)
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", stored.CustomerEmail)
	assert.Equal(t, "Palm", stored.Contact.Community)
	require.Len(t, stored.History, 1)
	assert.Equal(t, order.StatusSubmitted, stored.History[0].Status)

	updated, err := svc.UpdateStatus(ctx, res.ID, order.StatusAccepted, "")
	require.NoError(t, err)
	require.Len(t, updated.History, 2)
	assert.Equal(t, order.StatusAccepted, updated.Status)

	paid, err := svc.MarkPayment(ctx, res.ID, order.PaymentPaid, "UTR123")
	require.NoError(t, err)
	assert.Equal(t, "UTR123", paid.Payment.Reference)
	paid, err = svc.MarkPayment(ctx, res.ID, order.PaymentPaid, "")
	require.NoError(t, err)
	assert.Equal(t, "UTR123", paid.Payment.Reference)

	eta := 25
	withEta, err := svc.SetEta(ctx, res.ID, &eta)
	require.NoError(t, err)
	require.NotNil(t, withEta.EtaMinutes)
	assert.Equal(t, 25, *withEta.EtaMinutes)

	withRider, err := svc.AssignRider(ctx, res.ID, &order.Rider{Name: "Ravi", Phone: "99000"})
	require.NoError(t, err)
	require.NotNil(t, withRider.Rider)
	cleared, err := svc.AssignRider(ctx, res.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, cleared.Rider)

	live, err := svc.ListLive(ctx)
	require.NoError(t, err)
	assert.Empty(t, live, "paid orders leave the live board")

	c, err := customers.GetByEmail(ctx, "asha@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, c.TotalOrders)
	assert.True(t, c.TotalSpend.Equal(decimal.NewFromInt(282)))

	mine, err := svc.ListByCustomer(ctx, c.ID, "ASHA@example.com")
	require.NoError(t, err)
	require.Len(t, mine, 1)
}

func TestOrderRepository_DuplicateCode(t *testing.T) {
	truncate(t)
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	newOrder := func() *order.Order {
		return &order.Order{
			Code:          "YY-1234",
			Mode:          order.ModeTable,
			CustomerEmail: "a@b.c",
			Payment:       order.Payment{Method: order.PaymentCOD, Status: order.PaymentPendingCash, Amount: decimal.NewFromInt(105)},
			Status:        order.StatusSubmitted,
			History:       []order.HistoryEntry{{Status: order.StatusSubmitted, At: at}},
			Items:         []order.LineItem{{Name: "Chai", Price: decimal.NewFromInt(100), Quantity: 1}},
			Totals:        order.Totals{Subtotal: decimal.NewFromInt(100), Tax: decimal.NewFromInt(5), Fees: decimal.Zero, GrandTotal: decimal.NewFromInt(105)},
			CreatedAt:     at,
			UpdatedAt:     at,
		}
	}

	require.NoError(t, repo.Create(ctx, newOrder()))
	err := repo.Create(ctx, newOrder())
	require.ErrorIs(t, err, order.ErrDuplicateCode)

	codes, err := repo.ListCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"YY-1234"}, codes)

	live, err := repo.ListLive(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Empty(t, live[0].CustomerID)

	_, err = repo.GetByCode(ctx, "YY-0000")
	require.ErrorIs(t, err, order.ErrNotFound)
	_, err = repo.AppendStatus(ctx, "missing", order.HistoryEntry{Status: order.StatusAccepted, At: at})
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestTransactor_RollsBack(t *testing.T) {
	truncate(t)
	ctx := context.Background()
	customers := NewCustomerRepository(testPool)
	boom := errors.New("boom")

	err := NewTransactor(testPool).InTx(ctx, func(ctx context.Context) error {
		if _, err := customers.Insert(ctx, &customer.Customer{Email: "x@y.z", CreatedAt: at, LastSeenAt: at}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = customers.GetByEmail(ctx, "x@y.z")
	require.ErrorIs(t, err, customer.ErrNotFound)
}

func TestLoginTokenRepository(t *testing.T) {
	truncate(t)
	ctx := context.Background()
	repo := NewLoginTokenRepository(testPool)

	first := &auth.LoginToken{Email: "a@b.c", CodeHash: "h1", ExpiresAt: at.Add(10 * time.Minute), CreatedAt: at}
	require.NoError(t, repo.Replace(ctx, first))
	second := &auth.LoginToken{Email: "a@b.c", CodeHash: "h2", ExpiresAt: at.Add(11 * time.Minute), CreatedAt: at.Add(time.Minute)}
	require.NoError(t, repo.Replace(ctx, second))

	latest, err := repo.Latest(ctx, "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, "h2", latest.CodeHash)

	var count int
	require.NoError(t, testPool.QueryRow(ctx, `SELECT count(*) FROM login_tokens`).Scan(&count))
	assert.Equal(t, 1, count)

	require.NoError(t, repo.MarkUsed(ctx, second.ID))
	require.ErrorIs(t, repo.MarkUsed(ctx, second.ID), auth.ErrCodeUsed)
	require.ErrorIs(t, repo.MarkUsed(ctx, first.ID), auth.ErrNotFound)

	_, err = repo.Latest(ctx, "nobody@b.c")
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestNotifier_ReachesListeners(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	broker := order.NewBroker()
	events := broker.Subscribe(ctx)
	go func() { _ = Listen(ctx, testPool, broker) }()

	n := NewNotifier(testPool)
	want := order.Event{Kind: order.EventStatus, OrderID: "o1", Code: "YY-1234", Status: order.StatusPreparing, At: at}

	// LISTEN is issued asynchronously; publish until the listener is up.
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		require.NoError(t, n.Publish(ctx, want))
		select {
		case got := <-events:
			assert.Equal(t, want.Code, got.Code)
			assert.Equal(t, want.Status, got.Status)
			assert.True(t, want.At.Equal(got.At))
			return
		case <-tick.C:
		case <-ctx.Done():
			t.Fatal("no event received")
		}
	}
}
