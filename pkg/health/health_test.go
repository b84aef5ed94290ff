package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type body struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func call(t *testing.T, endpoint http.HandlerFunc) (int, body) {
	t.Helper()
	rec := httptest.NewRecorder()
	endpoint(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var b body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	return rec.Code, b
}

func runN(p *probe, n int) {
	for range n {
		p.run(context.Background(), time.Now())
	}
}

func fail(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func pass(context.Context) error { return nil }

func TestLiveEndpoint(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, pass)
	h.AddLivenessCheck("disk", time.Second, fail("disk full"))

	code, b := call(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code, "checks pass until they have run")
	assert.Equal(t, "ok", b.Status)

	runN(h.liveness[1], 2)
	code, _ = call(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code, "below the failure threshold")

	runN(h.liveness[1], 1)
	code, b = call(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", b.Status)
	assert.Equal(t, map[string]string{"disk": "disk full"}, b.Checks)
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, pass)
	h.AddReadinessCheck("redis", time.Second, fail("dial tcp: refused"), WithThresholds(1, 1))

	code, b := call(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "service is not ready", b.Checks["_readiness"])

	h.SetReady(true)
	code, _ = call(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, h.IsReady())

	runN(h.readiness[1], 1)
	code, b = call(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]string{"redis": "dial tcp: refused"}, b.Checks)
	assert.False(t, h.IsReady())

	h.SetReady(false)
	_, b = call(t, h.ReadyEndpoint)
	assert.Len(t, b.Checks, 2)
}

func TestProbe_Recovers(t *testing.T) {
	var healthy atomic.Bool
	p := newProbe("flaky", time.Second, func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("down")
	}, []CheckOption{WithThresholds(2, 2)})

	runN(p, 2)
	msg, failing := p.failure()
	require.True(t, failing)
	assert.Equal(t, "down", msg)

	healthy.Store(true)
	runN(p, 1)
	_, failing = p.failure()
	assert.True(t, failing, "one success is below the success threshold")

	runN(p, 1)
	_, failing = p.failure()
	assert.False(t, failing)
	assert.Nil(t, p.lastErr.Load())
}

func TestProbe_TimeoutApplies(t *testing.T) {
	p := newProbe("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, []CheckOption{WithThresholds(1, 1)})

	runN(p, 1)
	msg, failing := p.failure()
	require.True(t, failing)
	assert.Contains(t, msg, "deadline exceeded")
}

func TestStartStop(t *testing.T) {
	var runs atomic.Int32
	h := New()
	h.AddLivenessCheck("counter", time.Second, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	h.Start(context.Background(), 10*time.Millisecond)
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
	time.Sleep(30 * time.Millisecond)
	settled := runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, runs.Load())
}

func TestConcurrentReads(t *testing.T) {
	h := New()
	h.AddReadinessCheck("flapping", time.Second, fail("x"), WithThresholds(1, 1))
	h.SetReady(true)
	h.Start(context.Background(), time.Millisecond)
	defer h.Stop()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				rec := httptest.NewRecorder()
				h.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, GoroutineCountCheck(100000)(ctx))
	assert.Error(t, GoroutineCountCheck(0)(ctx))

	assert.NoError(t, PingCheck(pinger{})(ctx))
	err := PingCheck(pinger{err: errors.New("conn closed")})(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conn closed")
}
