package order

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLookup struct {
	taken map[string]bool
	err   error
	calls int
}

func (s *stubLookup) CodeExists(_ context.Context, code string) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return s.taken[code], nil
}

var codePattern = regexp.MustCompile(`^YY-\d+$`)

func newTestGenerator(lookup CodeLookup, draws ...int) *CodeGenerator {
	g := NewCodeGenerator(lookup)
	g.now = func() time.Time { return fixedNow }
	i := 0
	g.intn = func(n int) int {
		v := draws[i%len(draws)]
		i++
		return v % n
	}
	return g
}

func TestCodeGenerator_EveryCandidateIsLookedUp(t *testing.T) {
	// Another process issued YY-1042; this generator's filter never saw it.
	lookup := &stubLookup{taken: map[string]bool{"YY-1042": true}}
	g := newTestGenerator(lookup, 42, 43)

	code := g.Next(context.Background())

	assert.Equal(t, "YY-1043", code)
	assert.Regexp(t, codePattern, code)
	assert.Equal(t, 2, lookup.calls)
}

func TestCodeGenerator_FilterScreensKnownCodes(t *testing.T) {
	lookup := &stubLookup{taken: map[string]bool{"YY-1001": true}}
	g := newTestGenerator(lookup, 1, 2)
	g.Warm([]string{"YY-1001"})

	code := g.Next(context.Background())

	assert.Equal(t, "YY-1002", code)
	assert.Equal(t, 1, lookup.calls)
}

func TestCodeGenerator_SaturatedFilterStillLooksUp(t *testing.T) {
	lookup := &stubLookup{taken: map[string]bool{}}
	g := newTestGenerator(lookup, 1)
	g.Warm([]string{"YY-1001"})

	// Every draw is screened; the last one is checked and turns out free.
	code := g.Next(context.Background())

	assert.Equal(t, "YY-1001", code)
	assert.Equal(t, 1, lookup.calls)
}

func TestCodeGenerator_FallbackAfterFiveCollisions(t *testing.T) {
	lookup := &stubLookup{taken: map[string]bool{"YY-1000": true}}
	g := newTestGenerator(lookup, 0)

	code := g.Next(context.Background())

	assert.Equal(t, "YY-1749988800000", code)
	assert.Regexp(t, codePattern, code)
	assert.Equal(t, codeAttempts, lookup.calls)
}

func TestCodeGenerator_SingleCollisionRetries(t *testing.T) {
	lookup := &stubLookup{taken: map[string]bool{"YY-1005": true}}
	g := newTestGenerator(lookup, 5, 5, 6)

	code := g.Next(context.Background())

	assert.Equal(t, "YY-1006", code)
	assert.Equal(t, 2, lookup.calls)
}

func TestCodeGenerator_LookupErrorCountsAsCollision(t *testing.T) {
	lookup := &stubLookup{err: errors.New("db down")}
	g := newTestGenerator(lookup, 0)

	code := g.Next(context.Background())

	assert.Equal(t, g.Fallback(), code)
	assert.Equal(t, codeAttempts, lookup.calls)
}

func TestCodeGenerator_IssuedCodesAreRemembered(t *testing.T) {
	lookup := &stubLookup{taken: map[string]bool{}}
	g := newTestGenerator(lookup, 7, 7, 8)

	first := g.Next(context.Background())
	second := g.Next(context.Background())

	assert.Equal(t, "YY-1007", first)
	assert.Equal(t, "YY-1008", second)
	assert.Equal(t, 2, lookup.calls)
}

func TestUPILink(t *testing.T) {
	tests := []struct {
		name   string
		payee  Payee
		amount decimal.Decimal
		note   string
		want   string
	}{
		{
			name:   "with note",
			payee:  Payee{VPA: "cafe@okhdfc", Name: "Yum Yard"},
			amount: decimal.NewFromInt(765),
			note:   "YY-1234",
			want:   "upi://pay?pa=cafe%40okhdfc&pn=Yum+Yard&am=765.00&cu=INR&tn=YY-1234",
		},
		{
			name:   "default payee name, no note",
			payee:  Payee{VPA: "cafe@upi"},
			amount: decimal.RequireFromString("99.5"),
			want:   "upi://pay?pa=cafe%40upi&pn=Cafe&am=99.50&cu=INR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, UPILink(tt.payee, tt.amount, tt.note))
		})
	}
}
