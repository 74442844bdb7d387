package types

import (
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/google/btree"
)

const scheduleDegree = 8

// couponItem orders coupons by date inside the schedule tree.
type couponItem struct {
	coupon Coupon
}

// Less implements btree.Item - ascending by coupon date
func (a *couponItem) Less(b btree.Item) bool {
	return a.coupon.Time < b.(*couponItem).coupon.Time
}

// CouponSchedule is a date-ordered index over a pool's coupons.
type CouponSchedule struct {
	tree *btree.BTree
}

// NewCouponSchedule builds the index, rejecting zero rates and dates that are not
// strictly increasing.
func NewCouponSchedule(coupons []Coupon) (*CouponSchedule, error) {
	s := &CouponSchedule{tree: btree.New(scheduleDegree)}
	var prev int64
	for i, c := range coupons {
		if c.RateBp == 0 || c.RateBp >= BasisPoints {
			return nil, errorsmod.Wrapf(ErrInvalidConfig, "coupon %d: rate %d bp out of range", i, c.RateBp)
		}
		if i > 0 && c.Time <= prev {
			return nil, errorsmod.Wrapf(ErrInvalidConfig, "coupon %d: dates must be strictly increasing", i)
		}
		prev = c.Time
		s.tree.ReplaceOrInsert(&couponItem{coupon: c})
	}
	return s, nil
}

// Len returns the number of scheduled coupons.
func (s *CouponSchedule) Len() int {
	return s.tree.Len()
}

// First returns the earliest scheduled coupon.
func (s *CouponSchedule) First() (Coupon, bool) {
	item := s.tree.Min()
	if item == nil {
		return Coupon{}, false
	}
	return item.(*couponItem).coupon, true
}

// Nearest returns the scheduled coupon closest to t, preferring the earlier one on a tie.
func (s *CouponSchedule) Nearest(t int64) (Coupon, bool) {
	var before, after *Coupon
	s.tree.DescendLessOrEqual(&couponItem{coupon: Coupon{Time: t}}, func(i btree.Item) bool {
		c := i.(*couponItem).coupon
		before = &c
		return false
	})
	s.tree.AscendGreaterOrEqual(&couponItem{coupon: Coupon{Time: t}}, func(i btree.Item) bool {
		c := i.(*couponItem).coupon
		after = &c
		return false
	})
	switch {
	case before == nil && after == nil:
		return Coupon{}, false
	case before == nil:
		return *after, true
	case after == nil:
		return *before, true
	case t-before.Time <= after.Time-t:
		return *before, true
	default:
		return *after, true
	}
}

// Within returns the unpaid coupon whose date lies within window of t.
func (s *CouponSchedule) Within(t int64, window time.Duration, paid func(date int64) bool) (Coupon, bool) {
	w := int64(window / time.Second)
	var found *Coupon
	s.tree.AscendRange(
		&couponItem{coupon: Coupon{Time: t - w}},
		&couponItem{coupon: Coupon{Time: t + w + 1}},
		func(i btree.Item) bool {
			c := i.(*couponItem).coupon
			if paid != nil && paid(c.Time) {
				return true
			}
			found = &c
			return false
		},
	)
	if found == nil {
		return Coupon{}, false
	}
	return *found, true
}

// Due returns the coupons dated at or before t, in order.
func (s *CouponSchedule) Due(t int64) []Coupon {
	var due []Coupon
	s.tree.AscendLessThan(&couponItem{coupon: Coupon{Time: t + 1}}, func(i btree.Item) bool {
		due = append(due, i.(*couponItem).coupon)
		return true
	})
	return due
}
