package types

import (
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

const (
	t0      = int64(1_700_000_000)
	daySecs = int64(86_400)
)

func quarterly() []Coupon {
	return []Coupon{
		{Time: t0 + 90*daySecs, RateBp: 200},
		{Time: t0 + 180*daySecs, RateBp: 200},
		{Time: t0 + 270*daySecs, RateBp: 250},
	}
}

func TestNewCouponScheduleValidation(t *testing.T) {
	_, err := NewCouponSchedule([]Coupon{{Time: t0, RateBp: 100}, {Time: t0, RateBp: 100}})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewCouponSchedule([]Coupon{{Time: t0 + 10, RateBp: 100}, {Time: t0, RateBp: 100}})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewCouponSchedule([]Coupon{{Time: t0, RateBp: 0}})
	require.ErrorIs(t, err, ErrInvalidConfig)

	s, err := NewCouponSchedule(quarterly())
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())

	first, ok := s.First()
	require.True(t, ok)
	require.Equal(t, t0+90*daySecs, first.Time)
}

func TestCouponScheduleWithin(t *testing.T) {
	s, err := NewCouponSchedule(quarterly())
	require.NoError(t, err)
	date := t0 + 90*daySecs

	testCases := []struct {
		name string
		at   int64
		ok   bool
	}{
		{"on the date", date, true},
		{"window opens", date - daySecs, true},
		{"before window", date - daySecs - 1, false},
		{"window closes", date + daySecs, true},
		{"after window", date + daySecs + 1, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, ok := s.Within(tc.at, CouponWindow, nil)
			require.Equal(t, tc.ok, ok)
			if ok {
				require.Equal(t, date, c.Time)
			}
		})
	}

	paid := func(d int64) bool { return d == date }
	_, ok := s.Within(date, CouponWindow, paid)
	require.False(t, ok, "a paid date must not be offered again")
}

func TestCouponScheduleNearestAndDue(t *testing.T) {
	s, err := NewCouponSchedule(quarterly())
	require.NoError(t, err)

	c, ok := s.Nearest(t0 + 100*daySecs)
	require.True(t, ok)
	require.Equal(t, t0+90*daySecs, c.Time)

	c, ok = s.Nearest(t0 + 170*daySecs)
	require.True(t, ok)
	require.Equal(t, t0+180*daySecs, c.Time)

	require.Len(t, s.Due(t0+180*daySecs), 2)
	require.Empty(t, s.Due(t0))
}

func TestPoolValueAccruesDiscount(t *testing.T) {
	cfg := &PoolConfig{Instrument: InstrumentDiscounted, Maturity: t0 + 100}
	state := NewPoolState("p", t0)
	state.Phase = PhaseInvested
	state.ActualInvested = math.NewInt(70_000)
	state.TotalDiscountEarned = math.NewInt(15_000)

	v, err := PoolValue(cfg, state, t0)
	require.NoError(t, err)
	require.Equal(t, "70000", v.String())

	v, err = PoolValue(cfg, state, t0+50)
	require.NoError(t, err)
	require.Equal(t, "77500", v.String())

	v, err = PoolValue(cfg, state, t0+500)
	require.NoError(t, err)
	require.Equal(t, "85000", v.String())

	state.TotalCouponsReceived = math.NewInt(300)
	state.TotalCouponsClaimed = math.NewInt(100)
	v, err = PoolValue(cfg, state, t0+500)
	require.NoError(t, err)
	require.Equal(t, "85200", v.String())
}
