package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_Resolve(t *testing.T) {
	catalog := DefaultCatalog()

	tests := []struct {
		name       string
		code       string
		subtotal   decimal.Decimal
		fees       decimal.Decimal
		wantAmount decimal.Decimal
		wantErr    error
	}{
		{
			name:       "percent off subtotal",
			code:       "WELCOME10",
			subtotal:   decimal.NewFromInt(1000),
			fees:       decimal.NewFromInt(30),
			wantAmount: decimal.NewFromInt(100),
		},
		{
			name:       "percent rounds half up",
			code:       "WELCOME10",
			subtotal:   decimal.NewFromInt(225),
			wantAmount: decimal.NewFromInt(23),
		},
		{
			name:       "flat discount",
			code:       "COFFEE50",
			subtotal:   decimal.NewFromInt(220),
			wantAmount: decimal.NewFromInt(50),
		},
		{
			name:       "flat discount is not capped at subtotal",
			code:       "COFFEE50",
			subtotal:   decimal.NewFromInt(20),
			wantAmount: decimal.NewFromInt(50),
		},
		{
			name:       "waive fees on delivery",
			code:       "FREESHIP",
			subtotal:   decimal.NewFromInt(500),
			fees:       decimal.NewFromInt(30),
			wantAmount: decimal.NewFromInt(30),
		},
		{
			name:       "waive fees on table order is worth nothing",
			code:       "FREESHIP",
			subtotal:   decimal.NewFromInt(500),
			fees:       decimal.Zero,
			wantAmount: decimal.Zero,
		},
		{
			name:       "code is normalized",
			code:       "  welcome10 ",
			subtotal:   decimal.NewFromInt(1000),
			wantAmount: decimal.NewFromInt(100),
		},
		{
			name:     "unknown code",
			code:     "BOGUS",
			subtotal: decimal.NewFromInt(1000),
			wantErr:  ErrInvalidCoupon,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := catalog.Resolve(tt.code, tt.subtotal, tt.fees)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, got.Amount.IsZero())
				return
			}

			require.NoError(t, err)
			assert.True(t, tt.wantAmount.Equal(got.Amount),
				"expected amount %s, got %s", tt.wantAmount, got.Amount)
			assert.Equal(t, Normalize(tt.code), got.Code)
		})
	}
}

func TestCatalog_Rules(t *testing.T) {
	rules := DefaultCatalog().Rules()

	require.Len(t, rules, 3)
	assert.Equal(t, "COFFEE50", rules[0].Code)
	assert.Equal(t, "FREESHIP", rules[1].Code)
	assert.Equal(t, "WELCOME10", rules[2].Code)
}

func TestApply_UnknownKind(t *testing.T) {
	got := Apply(Rule{Code: "X", Kind: Kind("bogo"), Value: decimal.NewFromInt(5)},
		decimal.NewFromInt(100), decimal.Zero)

	assert.True(t, got.Amount.IsZero())
}
