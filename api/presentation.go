package api

import (
	"github.com/shopspring/decimal"

	termpooltypes "github.com/openalpha/termvault/x/termpool/types"
)

var hundred = decimal.NewFromInt(100)

// bpPercent renders basis points as a percentage string, 1850 -> "18.5"
func bpPercent(bp uint32) string {
	return decimal.New(int64(bp), -2).String()
}

// expectedYieldPercent is the undiluted return of a pool held to maturity.
// A discounted pool buys at (1 - d) of face, so it earns d / (1 - d); an
// interest bearing pool earns the sum of its coupon rates.
func expectedYieldPercent(cfg *termpooltypes.PoolConfig) string {
	switch cfg.Instrument {
	case termpooltypes.InstrumentDiscounted:
		d := decimal.NewFromInt(int64(cfg.DiscountRateBp))
		rest := decimal.NewFromInt(termpooltypes.BasisPoints - int64(cfg.DiscountRateBp))
		if rest.IsZero() {
			return "0"
		}
		return d.Div(rest).Mul(hundred).Round(4).String()
	default:
		var total int64
		for _, rate := range cfg.CouponRates() {
			total += int64(rate)
		}
		return decimal.New(total, -2).String()
	}
}
