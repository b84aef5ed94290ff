package order

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

const (
	codePrefix   = "YY-"
	codeMin      = 1000
	codeMax      = 9999
	codeAttempts = 5
	// screenDraws bounds redraws of candidates the filter has seen.
	screenDraws = 8

	bloomCapacity = 100_000
	bloomFPR      = 0.001
)

// CodeLookup reports whether an order code is already taken.
type CodeLookup interface {
	CodeExists(ctx context.Context, code string) (bool, error)
}

// CodeGenerator issues short human-facing order codes.
//
// Candidates are drawn from YY-1000..YY-9999 and every candidate is checked
// with an exact lookup. A bloom filter of codes known to be taken screens the
// draws, so the lookups are spent on codes that are likely free. Other
// processes issue codes the filter never sees; only the lookup decides. The
// check-then-insert is not linearizable across processes; the unique index on
// orders.code catches the remaining window.
type CodeGenerator struct {
	lookup CodeLookup
	now    func() time.Time
	intn   func(n int) int

	mu     sync.Mutex
	filter *bloom.BloomFilter
}

// NewCodeGenerator creates a CodeGenerator checking codes against lookup.
func NewCodeGenerator(lookup CodeLookup) *CodeGenerator {
	return &CodeGenerator{
		lookup: lookup,
		now:    time.Now,
		intn:   rand.IntN,
		filter: bloom.NewWithEstimates(bloomCapacity, bloomFPR),
	}
}

// Warm seeds the filter with existing codes.
func (g *CodeGenerator) Warm(codes []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range codes {
		g.filter.AddString(c)
	}
}

// Next returns an unused code. After codeAttempts collisions it falls back to
// YY-<epoch millis>. Lookup errors count as collisions, so Next never fails.
// Codes the lookup reports as taken are added to the filter.
func (g *CodeGenerator) Next(ctx context.Context) string {
	lg := zctx.From(ctx)

	for attempt := 0; attempt < codeAttempts; attempt++ {
		code := g.candidate()
		taken, err := g.lookup.CodeExists(ctx, code)
		if err != nil {
			lg.Warn("Order code lookup failed", zap.String("code", code), zap.Error(err))
			continue
		}
		g.Remember(code)
		if !taken {
			return code
		}
	}

	code := g.Fallback()
	lg.Info("Order code space congested, using fallback", zap.String("code", code))
	return code
}

// candidate draws a code, redrawing up to screenDraws times while the filter
// reports it as seen. The last draw is returned either way.
func (g *CodeGenerator) candidate() string {
	var code string
	for range screenDraws {
		code = codePrefix + strconv.Itoa(codeMin+g.intn(codeMax-codeMin+1))
		if !g.maybeIssued(code) {
			break
		}
	}
	return code
}

// Fallback returns the timestamp-based code.
func (g *CodeGenerator) Fallback() string {
	code := fmt.Sprintf("%s%d", codePrefix, g.now().UnixMilli())
	g.Remember(code)
	return code
}

// Remember marks code as issued.
func (g *CodeGenerator) Remember(code string) {
	g.mu.Lock()
	g.filter.AddString(code)
	g.mu.Unlock()
}

func (g *CodeGenerator) maybeIssued(code string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.filter.TestString(code)
}
