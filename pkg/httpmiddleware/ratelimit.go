package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Decision is the verdict of a Limiter for one request.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per key.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (Decision, error)
}

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// KeyFunc extracts the client key. Defaults to the client IP.
	KeyFunc func(*http.Request) string
	// Limiter overrides the in-memory sliding window, for example with a
	// limiter shared between replicas.
	Limiter Limiter
}

// SlidingWindow is an in-memory Limiter approximating a sliding window from
// the counts of the current and previous fixed windows.
type SlidingWindow struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	start time.Time
	prev  float64
	curr  float64
}

var _ Limiter = (*SlidingWindow)(nil)

// NewSlidingWindow allows limit requests per window and key.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{max: limit, window: window, buckets: make(map[string]*bucket)}
}

func (s *SlidingWindow) Allow(_ context.Context, key string, now time.Time) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := now.Truncate(s.window)
	b, ok := s.buckets[key]
	switch {
	case !ok:
		b = &bucket{start: start}
		s.buckets[key] = b
	case start.Sub(b.start) >= 2*s.window:
		b.start, b.prev, b.curr = start, 0, 0
	case start.After(b.start):
		b.start, b.prev, b.curr = start, b.curr, 0
	}

	weight := 1 - float64(now.Sub(b.start))/float64(s.window)
	used := b.prev*max(weight, 0) + b.curr
	d := Decision{ResetAt: b.start.Add(s.window)}
	if used >= float64(s.max) {
		return d, nil
	}
	b.curr++
	d.Allowed = true
	d.Remaining = max(int(float64(s.max)-used-1), 0)
	return d, nil
}

// Sweep drops keys idle for two windows.
func (s *SlidingWindow) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, b := range s.buckets {
		if now.Sub(b.start) >= 2*s.window {
			delete(s.buckets, key)
		}
	}
}

// RunSweeper calls Sweep every two windows until ctx is done.
func (s *SlidingWindow) RunSweeper(ctx context.Context) {
	t := time.NewTicker(2 * s.window)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.Sweep(now)
		}
	}
}

// RateLimit rejects clients over the configured rate with 429. Responses
// carry X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset.
// Limiter failures let the request through.
func RateLimit(cfg RateLimitConfig) Middleware {
	keyOf := cfg.KeyFunc
	if keyOf == nil {
		keyOf = ClientIP
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewSlidingWindow(cfg.Max, cfg.Window)
	}
	limit := strconv.Itoa(cfg.Max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			d, err := limiter.Allow(r.Context(), keyOf(r), now)
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			if !d.Allowed {
				wait := max(d.ResetAt.Sub(now), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitWithCleanup is RateLimit over an in-memory limiter whose idle
// keys are swept until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	if cfg.Limiter == nil {
		sw := NewSlidingWindow(cfg.Max, cfg.Window)
		go sw.RunSweeper(ctx)
		cfg.Limiter = sw
	}
	return RateLimit(cfg)
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// remote address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
