package order

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/yumyard-cafe/internal/domain/pricing"
)

const insightsWindow = 200

// ItemSales aggregates units and revenue of one menu item by name.
type ItemSales struct {
	Name     string          `json:"name"`
	Quantity int             `json:"qty"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// Insights summarizes recent trade for the owner dashboard.
type Insights struct {
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
	TotalOrders   int             `json:"totalOrders"`
	AvgOrderValue decimal.Decimal `json:"avgOrderValue"`
	ByStatus      map[Status]int  `json:"byStatus"`
	ItemsSold     []ItemSales     `json:"itemsSold"`
}

// Insights summarizes the most recent orders.
func (s *Service) Insights(ctx context.Context) (*Insights, error) {
	orders, err := s.orders.ListRecent(ctx, insightsWindow)
	if err != nil {
		return nil, errors.Wrap(err, "list recent orders")
	}
	return Summarize(orders), nil
}

// Summarize computes Insights over orders. Revenue counts payment amounts;
// item revenue is quantity times the snapshot base price. Items are ordered
// by units sold, then name.
func Summarize(orders []Order) *Insights {
	in := &Insights{
		TotalRevenue:  decimal.Zero,
		TotalOrders:   len(orders),
		AvgOrderValue: decimal.Zero,
		ByStatus:      make(map[Status]int),
	}

	sales := make(map[string]*ItemSales)
	for _, o := range orders {
		in.TotalRevenue = in.TotalRevenue.Add(o.Payment.Amount)
		in.ByStatus[o.Status]++
		for _, it := range o.Items {
			key := strings.ToLower(it.Name)
			row, ok := sales[key]
			if !ok {
				row = &ItemSales{Name: it.Name, Revenue: decimal.Zero}
				sales[key] = row
			}
			row.Quantity += it.Quantity
			row.Revenue = row.Revenue.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
	}

	if len(orders) > 0 {
		in.AvgOrderValue = pricing.RoundHalfUp(in.TotalRevenue.Div(decimal.NewFromInt(int64(len(orders)))))
	}

	in.ItemsSold = make([]ItemSales, 0, len(sales))
	for _, row := range sales {
		in.ItemsSold = append(in.ItemsSold, *row)
	}
	slices.SortFunc(in.ItemsSold, func(a, b ItemSales) int {
		if a.Quantity != b.Quantity {
			return b.Quantity - a.Quantity
		}
		return strings.Compare(a.Name, b.Name)
	})
	return in
}
