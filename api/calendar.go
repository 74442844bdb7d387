package api

import (
	"sync"

	"github.com/huandu/skiplist"

	"github.com/openalpha/termvault/api/types"
	termpooltypes "github.com/openalpha/termvault/x/termpool/types"
)

// Calendar entry kinds
const (
	CalendarEpochEnd = "epoch_end"
	CalendarCoupon   = "coupon"
	CalendarMaturity = "maturity"
)

type calendarKey struct {
	time   int64
	poolID string
	kind   string
}

// calendarOrder sorts by time, then pool, then kind
type calendarOrder struct{}

func (calendarOrder) Compare(lhs, rhs interface{}) int {
	l := lhs.(calendarKey)
	r := rhs.(calendarKey)
	switch {
	case l.time < r.time:
		return -1
	case l.time > r.time:
		return 1
	case l.poolID < r.poolID:
		return -1
	case l.poolID > r.poolID:
		return 1
	case l.kind < r.kind:
		return -1
	case l.kind > r.kind:
		return 1
	}
	return 0
}

func (calendarOrder) CalcScore(key interface{}) float64 {
	return float64(key.(calendarKey).time)
}

// MaturityCalendar orders the dated events of every pool: epoch ends,
// unpaid coupon dates and maturities.
type MaturityCalendar struct {
	mu      sync.RWMutex
	entries *skiplist.SkipList
	byPool  map[string][]calendarKey
}

// NewMaturityCalendar creates an empty calendar
func NewMaturityCalendar() *MaturityCalendar {
	return &MaturityCalendar{
		entries: skiplist.New(calendarOrder{}),
		byPool:  make(map[string][]calendarKey),
	}
}

// Track replaces the entries of a pool with the dates still ahead of it in
// its current phase.
func (c *MaturityCalendar) Track(pool *termpooltypes.Pool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	poolID := pool.Config.PoolID
	for _, key := range c.byPool[poolID] {
		c.entries.Remove(key)
	}
	delete(c.byPool, poolID)

	var keys []calendarKey
	add := func(ts int64, kind string, rate uint32) {
		key := calendarKey{time: ts, poolID: poolID, kind: kind}
		c.entries.Set(key, types.CalendarEntry{PoolID: poolID, Kind: kind, Time: ts, RateBp: rate})
		keys = append(keys, key)
	}

	switch pool.State.Phase {
	case termpooltypes.PhaseFunding:
		add(pool.Config.EpochEnd, CalendarEpochEnd, 0)
		fallthrough
	case termpooltypes.PhasePendingInvestment, termpooltypes.PhaseInvested:
		for _, cp := range pool.Config.Coupons {
			if !pool.State.CouponPaid(cp.Time) {
				add(cp.Time, CalendarCoupon, cp.RateBp)
			}
		}
		add(pool.Config.Maturity, CalendarMaturity, 0)
	}

	if len(keys) > 0 {
		c.byPool[poolID] = keys
	}
}

// Upcoming returns up to limit entries at or after from, in time order
func (c *MaturityCalendar) Upcoming(from int64, limit int) []types.CalendarEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := []types.CalendarEntry{}
	for elem := c.entries.Find(calendarKey{time: from}); elem != nil; elem = elem.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, elem.Value.(types.CalendarEntry))
	}
	return out
}

// Len returns the number of tracked entries
func (c *MaturityCalendar) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries.Len()
}
