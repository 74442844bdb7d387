package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cfg *RateLimitConfig) (*RateLimiter, *time.Time) {
	t.Helper()
	rl := NewRateLimiter(cfg, nil)
	t.Cleanup(rl.Stop)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestAllowReadBurstThenBlock(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.Burst = 3
	cfg.RequestsPerSecond = 1
	rl, now := newTestLimiter(t, cfg)

	for i := 0; i < 3; i++ {
		allowed, info := rl.AllowRead("10.0.0.1")
		require.True(t, allowed, "request %d", i)
		assert.Equal(t, 2-i, info.Remaining)
	}

	allowed, info := rl.AllowRead("10.0.0.1")
	assert.False(t, allowed)
	assert.Equal(t, LimitRead, info.LimitType)

	// Blocked for the full block duration even though tokens refill
	*now = now.Add(5 * time.Second)
	allowed, info = rl.AllowRead("10.0.0.1")
	assert.False(t, allowed)
	assert.Equal(t, LimitBlocked, info.LimitType)

	*now = now.Add(cfg.BlockDuration)
	allowed, _ = rl.AllowRead("10.0.0.1")
	assert.True(t, allowed)

	// Other clients are unaffected
	allowed, _ = rl.AllowRead("10.0.0.2")
	assert.True(t, allowed)
}

func TestAllowWriteDailyQuota(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.WritesPerDay = 2
	rl, now := newTestLimiter(t, cfg)

	for i := 0; i < 2; i++ {
		allowed, _ := rl.AllowWrite("10.0.0.1")
		require.True(t, allowed)
	}
	allowed, info := rl.AllowWrite("10.0.0.1")
	assert.False(t, allowed)
	assert.Equal(t, LimitDaily, info.LimitType)
	assert.Equal(t, 12*60*60, info.RetryAfter)

	*now = now.Add(13 * time.Hour)
	allowed, _ = rl.AllowWrite("10.0.0.1")
	assert.True(t, allowed)

	rl.cleanup()
	assert.Equal(t, 1, rl.GetStats().DailyCounters)
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.WriteBurst = 1
	cfg.WritesPerSecond = 1
	rl, _ := newTestLimiter(t, cfg)

	handler := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(method string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/v1/pools/p1/deposit", nil)
		req.Header.Set("X-Forwarded-For", "192.168.1.7, 10.0.0.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do(http.MethodPost).Code)

	rec := do(http.MethodPost)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Reads keep working while writes are throttled
	assert.Equal(t, http.StatusOK, do(http.MethodGet).Code)
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "172.16.0.9:51234"
	assert.Equal(t, "172.16.0.9", getClientIP(req))

	req.Header.Set("X-Real-IP", "10.1.1.1")
	assert.Equal(t, "10.1.1.1", getClientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.5 ,10.1.1.1")
	assert.Equal(t, "203.0.113.5", getClientIP(req))
}
