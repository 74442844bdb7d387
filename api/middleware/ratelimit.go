package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/openalpha/termvault/metrics"
)

// Limit types reported in responses and metrics
const (
	LimitRead    = "read"
	LimitWrite   = "write"
	LimitDaily   = "daily"
	LimitBlocked = "blocked"
)

// RateLimiter throttles API clients with token buckets. Every request spends
// a read token; state-changing requests additionally spend a write token and
// count against a daily write quota.
type RateLimiter struct {
	config *RateLimitConfig

	buckets   map[string]*Bucket
	bucketsMu sync.RWMutex

	dailyCounters   map[string]*DailyCounter
	dailyCountersMu sync.Mutex

	metrics *metrics.Collector
	now     func() time.Time

	cleanupTicker *time.Ticker
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int           `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	BlockDuration     time.Duration `mapstructure:"block_duration"`

	// Deposits, withdrawals, operator actions and custody signatures
	WritesPerSecond int `mapstructure:"writes_per_second"`
	WriteBurst      int `mapstructure:"write_burst"`
	WritesPerDay    int `mapstructure:"writes_per_day"`

	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	BucketTTL       time.Duration `mapstructure:"bucket_ttl"`
}

// DefaultRateLimitConfig returns default configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		BlockDuration:     time.Minute,

		WritesPerSecond: 5,
		WriteBurst:      10,
		WritesPerDay:    5000,

		CleanupInterval: 5 * time.Minute,
		BucketTTL:       time.Hour,
	}
}

// Bucket is a token bucket
type Bucket struct {
	tokens       float64
	maxTokens    float64
	refillRate   float64 // tokens per second
	lastUpdate   time.Time
	blocked      bool
	blockedUntil time.Time
	mu           sync.Mutex
}

// DailyCounter counts writes of one client on one UTC day
type DailyCounter struct {
	count int
	limit int
	date  string
}

// RateLimitInfo describes the outcome of a limit check
type RateLimitInfo struct {
	Allowed    bool   `json:"allowed"`
	Remaining  int    `json:"remaining"`
	Limit      int    `json:"limit"`
	RetryAfter int    `json:"retry_after,omitempty"`
	LimitType  string `json:"limit_type"`
}

// NewRateLimiter creates a new rate limiter. c may be nil.
func NewRateLimiter(config *RateLimitConfig, c *metrics.Collector) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}

	rl := &RateLimiter{
		config:        config,
		buckets:       make(map[string]*Bucket),
		dailyCounters: make(map[string]*DailyCounter),
		metrics:       c,
		now:           time.Now,
		cleanupTicker: time.NewTicker(config.CleanupInterval),
		stopCh:        make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop stops the cleanup loop
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
		rl.cleanupTicker.Stop()
	})
}

func (rl *RateLimiter) cleanupLoop() {
	for {
		select {
		case <-rl.cleanupTicker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	now := rl.now()
	threshold := now.Add(-rl.config.BucketTTL)

	rl.bucketsMu.Lock()
	for key, bucket := range rl.buckets {
		bucket.mu.Lock()
		if bucket.lastUpdate.Before(threshold) {
			delete(rl.buckets, key)
		}
		bucket.mu.Unlock()
	}
	rl.bucketsMu.Unlock()

	today := now.UTC().Format(time.DateOnly)
	rl.dailyCountersMu.Lock()
	for key, counter := range rl.dailyCounters {
		if counter.date != today {
			delete(rl.dailyCounters, key)
		}
	}
	rl.dailyCountersMu.Unlock()
}

func (rl *RateLimiter) getBucket(key string, maxTokens, refillRate float64) *Bucket {
	rl.bucketsMu.RLock()
	bucket, ok := rl.buckets[key]
	rl.bucketsMu.RUnlock()
	if ok {
		return bucket
	}

	rl.bucketsMu.Lock()
	defer rl.bucketsMu.Unlock()
	if bucket, ok := rl.buckets[key]; ok {
		return bucket
	}
	bucket = &Bucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastUpdate: rl.now(),
	}
	rl.buckets[key] = bucket
	return bucket
}

// AllowRead checks the general request budget of a client
func (rl *RateLimiter) AllowRead(client string) (bool, *RateLimitInfo) {
	bucket := rl.getBucket("read:"+client, float64(rl.config.Burst), float64(rl.config.RequestsPerSecond))
	return rl.tryConsume(bucket, LimitRead)
}

// AllowWrite checks the write budget and daily write quota of a client
func (rl *RateLimiter) AllowWrite(client string) (bool, *RateLimitInfo) {
	bucket := rl.getBucket("write:"+client, float64(rl.config.WriteBurst), float64(rl.config.WritesPerSecond))
	if allowed, info := rl.tryConsume(bucket, LimitWrite); !allowed {
		return false, info
	}

	now := rl.now().UTC()
	today := now.Format(time.DateOnly)

	rl.dailyCountersMu.Lock()
	defer rl.dailyCountersMu.Unlock()

	counter, ok := rl.dailyCounters[client]
	if !ok || counter.date != today {
		counter = &DailyCounter{limit: rl.config.WritesPerDay, date: today}
		rl.dailyCounters[client] = counter
	}
	if counter.count >= counter.limit {
		return false, &RateLimitInfo{
			Limit:      counter.limit,
			RetryAfter: secondsUntilMidnight(now),
			LimitType:  LimitDaily,
		}
	}
	counter.count++
	return true, &RateLimitInfo{
		Allowed:   true,
		Remaining: counter.limit - counter.count,
		Limit:     counter.limit,
		LimitType: LimitDaily,
	}
}

func (rl *RateLimiter) tryConsume(bucket *Bucket, limitType string) (bool, *RateLimitInfo) {
	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	now := rl.now()
	if bucket.blocked && now.Before(bucket.blockedUntil) {
		return false, &RateLimitInfo{
			Limit:      int(bucket.maxTokens),
			RetryAfter: int(bucket.blockedUntil.Sub(now).Seconds()) + 1,
			LimitType:  LimitBlocked,
		}
	}
	bucket.blocked = false

	elapsed := now.Sub(bucket.lastUpdate).Seconds()
	bucket.tokens += elapsed * bucket.refillRate
	if bucket.tokens > bucket.maxTokens {
		bucket.tokens = bucket.maxTokens
	}
	bucket.lastUpdate = now

	if bucket.tokens >= 1 {
		bucket.tokens--
		return true, &RateLimitInfo{
			Allowed:   true,
			Remaining: int(bucket.tokens),
			Limit:     int(bucket.maxTokens),
			LimitType: limitType,
		}
	}

	bucket.blocked = true
	bucket.blockedUntil = now.Add(rl.config.BlockDuration)
	return false, &RateLimitInfo{
		Limit:      int(bucket.maxTokens),
		RetryAfter: int(rl.config.BlockDuration.Seconds()),
		LimitType:  limitType,
	}
}

func secondsUntilMidnight(now time.Time) int {
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	return int(midnight.Sub(now).Seconds())
}

// ============ HTTP Middleware ============

func isWrite(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// RateLimitMiddleware creates an HTTP middleware for rate limiting
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getClientIP(r)

			allowed, info := rl.AllowRead(ip)
			if allowed && isWrite(r) {
				allowed, info = rl.AllowWrite(ip)
			}
			setLimitHeaders(w, info)
			if !allowed {
				rl.reject(w, info)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setLimitHeaders(w http.ResponseWriter, info *RateLimitInfo) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	if info.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(info.RetryAfter))
	}
}

func (rl *RateLimiter) reject(w http.ResponseWriter, info *RateLimitInfo) {
	if rl.metrics != nil {
		rl.metrics.RecordRateLimitHit(info.LimitType)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":       "rate limit exceeded (" + info.LimitType + ")",
		"retry_after": info.RetryAfter,
		"retryable":   true,
	})
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ============ Statistics ============

// Stats is a snapshot of limiter state
type Stats struct {
	Buckets        int `json:"buckets"`
	DailyCounters  int `json:"daily_counters"`
	BlockedBuckets int `json:"blocked_buckets"`
}

// GetStats returns current rate limiter statistics
func (rl *RateLimiter) GetStats() *Stats {
	now := rl.now()

	rl.bucketsMu.RLock()
	stats := &Stats{Buckets: len(rl.buckets)}
	for _, b := range rl.buckets {
		b.mu.Lock()
		if b.blocked && now.Before(b.blockedUntil) {
			stats.BlockedBuckets++
		}
		b.mu.Unlock()
	}
	rl.bucketsMu.RUnlock()

	rl.dailyCountersMu.Lock()
	stats.DailyCounters = len(rl.dailyCounters)
	rl.dailyCountersMu.Unlock()

	return stats
}
