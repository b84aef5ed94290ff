package httpmiddleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remoteAddr string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/menu", nil)
	req.RemoteAddr = remoteAddr
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for i := range 2 {
		rec := hit(h, "10.0.0.1:9999")
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	}

	rec := hit(h, "10.0.0.1:1234")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, http.StatusTooManyRequests, body.Code)
	assert.Equal(t, "rate limit exceeded", body.Message)

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1234").Code)
}

func TestRateLimit_KeyFunc(t *testing.T) {
	h := RateLimit(RateLimitConfig{
		Max:     1,
		Window:  time.Minute,
		KeyFunc: func(r *http.Request) string { return r.Header.Get("X-Session-ID") },
	})(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "1.1.1.1:1", "X-Session-ID", "a").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "2.2.2.2:2", "X-Session-ID", "a").Code)
	assert.Equal(t, http.StatusOK, hit(h, "1.1.1.1:1", "X-Session-ID", "b").Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, time.Time) (Decision, error) {
	return Decision{}, errors.New("redis down")
}

func TestRateLimit_LimiterErrorFailsOpen(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute, Limiter: failingLimiter{}})(okHandler())

	rec := hit(h, "1.1.1.1:1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestSlidingWindow(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	sw := NewSlidingWindow(4, time.Minute)

	for range 4 {
		d, err := sw.Allow(ctx, "k", base.Add(50*time.Second))
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := sw.Allow(ctx, "k", base.Add(55*time.Second))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, base.Add(time.Minute), d.ResetAt)

	// A quarter into the next window, 3 of the 4 previous requests still count.
	d, err = sw.Allow(ctx, "k", base.Add(75*time.Second))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, err = sw.Allow(ctx, "k", base.Add(75*time.Second))
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	// Two idle windows later the key starts fresh.
	d, err = sw.Allow(ctx, "k", base.Add(4*time.Minute))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 3, d.Remaining)
}

func TestSlidingWindow_Sweep(t *testing.T) {
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	sw := NewSlidingWindow(1, time.Minute)
	_, err := sw.Allow(context.Background(), "k", base)
	require.NoError(t, err)

	sw.Sweep(base.Add(time.Minute))
	assert.Len(t, sw.buckets, 1)
	sw.Sweep(base.Add(2 * time.Minute))
	assert.Empty(t, sw.buckets)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		header []string
		want   string
	}{
		{name: "remote addr", remote: "192.168.1.1:4444", want: "192.168.1.1"},
		{name: "forwarded", remote: "192.168.1.1:4444", header: []string{"X-Forwarded-For", "203.0.113.50, 70.41.3.18"}, want: "203.0.113.50"},
		{name: "real ip", remote: "192.168.1.1:4444", header: []string{"X-Real-IP", "198.51.100.7"}, want: "198.51.100.7"},
		{name: "bare remote", remote: "pipe", want: "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for i := 0; i+1 < len(tt.header); i += 2 {
				req.Header.Set(tt.header[i], tt.header[i+1])
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
