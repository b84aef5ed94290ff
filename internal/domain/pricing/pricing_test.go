package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestCompute(t *testing.T) {
	tests := []struct {
		name  string
		lines []Line
		mode  Mode
		want  Totals
	}{
		{
			name: "empty table order",
			mode: ModeTable,
			want: Totals{Subtotal: d(0), Tax: d(0), Fees: d(0), GrandTotal: d(0)},
		},
		{
			name: "empty delivery order still pays the fee",
			mode: ModeDelivery,
			want: Totals{Subtotal: d(0), Tax: d(0), Fees: d(30), GrandTotal: d(30)},
		},
		{
			name: "delivery scenario",
			lines: []Line{
				{Price: d(220), Quantity: 2},
				{Price: d(260), Quantity: 1},
			},
			mode: ModeDelivery,
			want: Totals{Subtotal: d(700), Tax: d(35), Fees: d(30), GrandTotal: d(765)},
		},
		{
			name:  "takeaway scenario",
			lines: []Line{{Price: d(100), Quantity: 1}},
			mode:  ModeTable,
			want:  Totals{Subtotal: d(100), Tax: d(5), Fees: d(0), GrandTotal: d(105)},
		},
		{
			name: "add-ons are multiplied by quantity",
			lines: []Line{{
				Price:    d(220),
				Quantity: 2,
				AddOns: []AddOn{
					{Name: "Extra shot", Price: d(45)},
					{Name: "Oat milk", Price: d(35)},
				},
			}},
			mode: ModeTable,
			want: Totals{Subtotal: d(600), Tax: d(30), Fees: d(0), GrandTotal: d(630)},
		},
		{
			name: "zero priced add-on",
			lines: []Line{{
				Price:    d(120),
				Quantity: 1,
				AddOns:   []AddOn{{Name: "Ice", Price: d(0)}},
			}},
			mode: ModeTable,
			want: Totals{Subtotal: d(120), Tax: d(6), Fees: d(0), GrandTotal: d(126)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.lines, tt.mode)

			assert.True(t, tt.want.Subtotal.Equal(got.Subtotal), "subtotal %s", got.Subtotal)
			assert.True(t, tt.want.Tax.Equal(got.Tax), "tax %s", got.Tax)
			assert.True(t, tt.want.Fees.Equal(got.Fees), "fees %s", got.Fees)
			assert.True(t, tt.want.GrandTotal.Equal(got.GrandTotal), "grand total %s", got.GrandTotal)
			assert.True(t, got.GrandTotal.Equal(got.Subtotal.Add(got.Tax).Add(got.Fees)))
		})
	}
}

func TestTaxRoundsHalfUp(t *testing.T) {
	tests := []struct {
		subtotal int64
		tax      int64
	}{
		{subtotal: 10, tax: 1},  // 0.5
		{subtotal: 30, tax: 2},  // 1.5
		{subtotal: 50, tax: 3},  // 2.5, banker's rounding would give 2
		{subtotal: 70, tax: 4},  // 3.5
		{subtotal: 49, tax: 2},  // 2.45
		{subtotal: 129, tax: 6}, // 6.45
	}

	for _, tt := range tests {
		got := Compute([]Line{{Price: d(tt.subtotal), Quantity: 1}}, ModeTable)
		assert.True(t, d(tt.tax).Equal(got.Tax), "subtotal %d: tax %s, want %d", tt.subtotal, got.Tax, tt.tax)
	}
}

func TestTotals_Discounted(t *testing.T) {
	totals := Totals{GrandTotal: d(105)}

	assert.True(t, d(55).Equal(totals.Discounted(d(50))))
	assert.True(t, decimal.Zero.Equal(totals.Discounted(d(500))))
}

func TestMode_Valid(t *testing.T) {
	assert.True(t, ModeTable.Valid())
	assert.True(t, ModeDelivery.Valid())
	assert.False(t, Mode("pickup").Valid())
}
