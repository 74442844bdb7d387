package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custodytypes "github.com/openalpha/termvault/x/custody/types"
	termpooltypes "github.com/openalpha/termvault/x/termpool/types"
)

// TermVault Metrics Collector

var (
	// Singleton collector
	collector     *Collector
	collectorOnce sync.Once
)

// Collector holds all TermVault metrics
type Collector struct {
	// Pool lifecycle metrics
	PoolEventsTotal  *prometheus.CounterVec
	PhaseTransitions *prometheus.CounterVec
	PoolsByPhase     *prometheus.GaugeVec
	PoolValue        *prometheus.GaugeVec

	// Flow metrics
	DepositVolume    *prometheus.CounterVec
	WithdrawVolume   *prometheus.CounterVec
	PenaltyVolume    *prometheus.CounterVec
	CouponVolume     *prometheus.CounterVec
	SlippageTriggers *prometheus.CounterVec

	// Custody metrics
	CustodyTransfers *prometheus.CounterVec
	LargeTransfers   *prometheus.CounterVec

	// WebSocket metrics
	WSConnectionsActive prometheus.Gauge
	WSMessagesTotal     *prometheus.CounterVec

	// API metrics
	APIRequestsTotal  *prometheus.CounterVec
	APIRequestLatency *prometheus.HistogramVec
	APIErrorsTotal    *prometheus.CounterVec
	RateLimitHits     *prometheus.CounterVec

	// System metrics
	BlockHeight     prometheus.Gauge
	EndBlockLatency prometheus.Histogram
}

// GetCollector returns the singleton metrics collector
func GetCollector() *Collector {
	collectorOnce.Do(func() {
		collector = newCollector()
		collector.registerAll(prometheus.DefaultRegisterer)
	})
	return collector
}

// newCollector creates the metric vectors without registering them
func newCollector() *Collector {
	c := &Collector{}

	c.PoolEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "termvault",
			Subsystem: "pool",
			Name:      "events_total",
			Help:      "Canonical events emitted by the pool lifecycle and custody ledger",
		},
		[]string{"type"},
	)

	c.PhaseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "termvault",
			Subsystem: "pool",
			Name:      "phase_transitions_total",
			Help:      "Pool phase transitions",
		},
		[]string{"from", "to"},
	)

	c.PoolsByPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "termvault",
			Subsystem: "pool",
			Name:      "count",
			Help:      "Number of pools in each phase",
		},
		[]string{"phase"},
	)

	c.PoolValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "termvault",
			Subsystem: "pool",
			Name:      "value",
			Help:      "Current pool value in base units of the pool asset",
		},
		[]string{"pool_id"},
	)

	c.DepositVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "termvault",
			Subsystem: "flows",
			Name:      "deposit_volume",
			Help:      "Assets deposited",
		},
		[]string{"pool_id"},
	)

	c.WithdrawVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "termvault",
			Subsystem: "flows",
			Name:      "withdraw_volume",
			Help:      "Assets paid out to holders",
		},
		[]string{"pool_id"},
	)

	c.PenaltyVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "termvault",
			Subsystem: "flows",
			Name:      "penalty_volume",
			Help:      "Early withdrawal penalties retained by pools",
		},
		[]string{"pool_id"},
	)

	c.CouponVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "termvault",
			Subsystem: "flows",
			Name:      "coupon_volume",
			Help:      "Coupon amounts by stage",
		},
		[]string{"pool_id", "stage"},
	)

	c.SlippageTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "termvault",
			Subsystem: "flows",
			Name:      "slippage_triggers_total",
			Help:      "Rejected investment or maturity amounts outside tolerance",
		},
		[]string{"pool_id"},
	)

	c.CustodyTransfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "termvault",
			Subsystem: "custody",
			Name:      "transfers_total",
			Help:      "Multi-signer transfers by stage",
		},
		[]string{"stage"},
	)

	c.LargeTransfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "termvault",
			Subsystem: "custody",
			Name:      "large_transfers_total",
			Help:      "Transfers above the ledger's large-transfer threshold",
		},
		[]string{"ledger_id", "kind"},
	)

	c.WSConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "termvault",
			Subsystem: "websocket",
			Name:      "connections_active",
			Help:      "Number of active WebSocket connections",
		},
	)

	c.WSMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "termvault",
			Subsystem: "websocket",
			Name:      "messages_total",
			Help:      "Messages pushed to WebSocket channels",
		},
		[]string{"channel_type"},
	)

	c.APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "termvault",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total API requests",
		},
		[]string{"method", "route", "status"},
	)

	c.APIRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "termvault",
			Subsystem: "api",
			Name:      "request_latency_ms",
			Help:      "API request latency in milliseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"method", "route"},
	)

	c.APIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "termvault",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "API errors by codespace and code",
		},
		[]string{"codespace", "code"},
	)

	c.RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "termvault",
			Subsystem: "api",
			Name:      "rate_limit_hits_total",
			Help:      "Requests rejected by the rate limiter",
		},
		[]string{"limit_type"},
	)

	c.BlockHeight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "termvault",
			Subsystem: "system",
			Name:      "block_height",
			Help:      "Height of the last processed block",
		},
	)

	c.EndBlockLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "termvault",
			Subsystem: "system",
			Name:      "end_block_latency_ms",
			Help:      "EndBlock processing time in milliseconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 50, 100},
		},
	)

	return c
}

// registerAll registers all metrics with reg
func (c *Collector) registerAll(reg prometheus.Registerer) {
	reg.MustRegister(
		c.PoolEventsTotal,
		c.PhaseTransitions,
		c.PoolsByPhase,
		c.PoolValue,
		c.DepositVolume,
		c.WithdrawVolume,
		c.PenaltyVolume,
		c.CouponVolume,
		c.SlippageTriggers,
		c.CustodyTransfers,
		c.LargeTransfers,
		c.WSConnectionsActive,
		c.WSMessagesTotal,
		c.APIRequestsTotal,
		c.APIRequestLatency,
		c.APIErrorsTotal,
		c.RateLimitHits,
		c.BlockHeight,
		c.EndBlockLatency,
	)
}

// ============ Recording Helpers ============

func attribute(ev sdk.Event, key string) string {
	for _, attr := range ev.Attributes {
		if attr.Key == key {
			return attr.Value
		}
	}
	return ""
}

// amount parses an integer attribute. Values beyond float64 precision are
// approximated, which is acceptable for monitoring.
func amount(ev sdk.Event, key string) float64 {
	v, err := strconv.ParseFloat(attribute(ev, key), 64)
	if err != nil {
		return 0
	}
	return v
}

// RecordEvents updates counters from the events one operation emitted
func (c *Collector) RecordEvents(events sdk.Events) {
	for _, ev := range events {
		c.PoolEventsTotal.WithLabelValues(ev.Type).Inc()
		poolID := attribute(ev, termpooltypes.AttributeKeyPoolID)

		switch ev.Type {
		case termpooltypes.EventTypeStatusChanged:
			c.PhaseTransitions.WithLabelValues(
				attribute(ev, termpooltypes.AttributeKeyOldPhase),
				attribute(ev, termpooltypes.AttributeKeyNewPhase),
			).Inc()
		case termpooltypes.EventTypeDeposit:
			c.DepositVolume.WithLabelValues(poolID).Add(amount(ev, termpooltypes.AttributeKeyAssets))
		case termpooltypes.EventTypeWithdraw:
			c.WithdrawVolume.WithLabelValues(poolID).Add(amount(ev, termpooltypes.AttributeKeyAssets))
			if penalty := amount(ev, termpooltypes.AttributeKeyPenalty); penalty > 0 {
				c.PenaltyVolume.WithLabelValues(poolID).Add(penalty)
			}
		case termpooltypes.EventTypeCouponReceived:
			c.CouponVolume.WithLabelValues(poolID, "received").Add(amount(ev, termpooltypes.AttributeKeyAmount))
		case termpooltypes.EventTypeCouponDistributed:
			c.CouponVolume.WithLabelValues(poolID, "distributed").Add(amount(ev, termpooltypes.AttributeKeyAmount))
		case termpooltypes.EventTypeCouponClaimed:
			c.CouponVolume.WithLabelValues(poolID, "claimed").Add(amount(ev, termpooltypes.AttributeKeyAmount))
		case termpooltypes.EventTypeSlippageProtectionTriggered:
			c.SlippageTriggers.WithLabelValues(poolID).Inc()
		case custodytypes.EventTypeTransferProposed:
			c.CustodyTransfers.WithLabelValues("proposed").Inc()
		case custodytypes.EventTypeTransferApproved:
			c.CustodyTransfers.WithLabelValues("approved").Inc()
		case custodytypes.EventTypeTransferExecuted:
			c.CustodyTransfers.WithLabelValues("executed").Inc()
		case custodytypes.EventTypeTransferExecutionFailed:
			c.CustodyTransfers.WithLabelValues("failed").Inc()
		case custodytypes.EventTypeTransferRevoked:
			c.CustodyTransfers.WithLabelValues("revoked").Inc()
		case custodytypes.EventTypeLargeTransferFlagged:
			c.LargeTransfers.WithLabelValues(
				attribute(ev, custodytypes.AttributeKeyLedgerID),
				attribute(ev, custodytypes.AttributeKeyKind),
			).Inc()
		}
	}
}

// RecordPools refreshes the per-phase pool counts and pool values
func (c *Collector) RecordPools(pools []*termpooltypes.Pool, now int64) {
	counts := make(map[termpooltypes.Phase]int)
	for _, phase := range termpooltypes.AllPhases {
		counts[phase] = 0
	}
	for _, pool := range pools {
		counts[pool.State.Phase]++
		value, err := termpooltypes.PoolValue(&pool.Config, &pool.State, now)
		if err != nil {
			continue
		}
		f, _ := value.ToLegacyDec().Float64()
		c.PoolValue.WithLabelValues(pool.Config.PoolID).Set(f)
	}
	for phase, n := range counts {
		c.PoolsByPhase.WithLabelValues(string(phase)).Set(float64(n))
	}
}

// RecordEndBlock records the processed height and EndBlock duration
func (c *Collector) RecordEndBlock(height int64, latencyMs float64) {
	c.BlockHeight.Set(float64(height))
	c.EndBlockLatency.Observe(latencyMs)
}

// RecordAPIRequest records an API request
func (c *Collector) RecordAPIRequest(method, route, status string, latencyMs float64) {
	c.APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	c.APIRequestLatency.WithLabelValues(method, route).Observe(latencyMs)
}

// RecordAPIError records a keeper error surfaced through the API
func (c *Collector) RecordAPIError(codespace string, code uint32) {
	c.APIErrorsTotal.WithLabelValues(codespace, strconv.FormatUint(uint64(code), 10)).Inc()
}

// RecordRateLimitHit records a request rejected by the rate limiter
func (c *Collector) RecordRateLimitHit(limitType string) {
	c.RateLimitHits.WithLabelValues(limitType).Inc()
}

// RecordWSConnection records WebSocket connection changes
func (c *Collector) RecordWSConnection(delta int) {
	c.WSConnectionsActive.Add(float64(delta))
}

// RecordWSMessage records a message pushed to a channel type
func (c *Collector) RecordWSMessage(channelType string) {
	c.WSMessagesTotal.WithLabelValues(channelType).Inc()
}

// ============ HTTP Handler ============

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for measuring latency
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ElapsedMs returns the elapsed time in milliseconds
func (t *Timer) ElapsedMs() float64 {
	return float64(time.Since(t.start).Microseconds()) / 1000.0
}
