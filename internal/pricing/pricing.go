// Package pricing implements the market-scoring-rule price curve for
// binary outcome markets. Given the outstanding share counts on each side
// and the liquidity parameter B, it derives the four quoted prices
// (buy/sell, yes/no) on a fixed 0..100 currency scale.
//
// All monetary values use shopspring/decimal, never float64.
// Internal transcendental math runs in float64 with max-subtraction for
// numerical stability, and results are immediately converted to decimal
// and rounded through RoundPrice.
package pricing

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"github.com/outcomex/market-engine/internal/model"
)

// Scale is the currency scale: buy prices for the two outcomes always sum
// to Scale (within rounding).
const Scale = 100

// priceDecimals is the number of decimal places every surfaced, compared,
// or stored price carries.
const priceDecimals int32 = 2

// ErrInvalidLiquidity is returned when B <= 0.
var ErrInvalidLiquidity = errors.New("pricing: liquidity parameter B must be positive")

// RoundPrice rounds a price to the uniform currency precision. Every
// computed quote, client-supplied price, and stored ledger price passes
// through this one helper so comparison sites cannot drift.
func RoundPrice(p decimal.Decimal) decimal.Decimal {
	return p.Round(priceDecimals)
}

// MarketMaker derives quotes from outstanding share counts. It is
// stateless: share counts are passed as arguments, not stored.
type MarketMaker struct {
	b decimal.Decimal
}

// NewMarketMaker creates a market maker with the given liquidity parameter.
// Larger B flattens the price curve: more shares are needed to move the
// price by the same amount.
func NewMarketMaker(b decimal.Decimal) (*MarketMaker, error) {
	if b.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidLiquidity
	}
	return &MarketMaker{b: b}, nil
}

// B returns the liquidity parameter.
func (m *MarketMaker) B() decimal.Decimal {
	return m.b
}

// share computes exp(a) / (exp(a) + exp(b)) with max-subtraction so the
// exponentials cannot overflow float64.
func share(a, b float64) float64 {
	maxVal := math.Max(a, b)
	ea := math.Exp(a - maxVal)
	eb := math.Exp(b - maxVal)
	return ea / (ea + eb)
}

// Quotes computes the four prices for the given outstanding share counts:
//
//	buyYes  = Scale * e(qYes)      / (e(qYes)      + e(qNo))
//	buyNo   = Scale * e(qNo)       / (e(qYes)      + e(qNo))
//	sellYes = Scale * e(qYes-1)    / (e(qYes-1)    + e(qNo))
//	sellNo  = Scale * e(qNo-1)     / (e(qYes)      + e(qNo-1))
//
// where e(q) = exp(q / B) and the sell-side counts are clamped at zero.
// The clamp keeps sell prices defined at an empty book and guarantees
// sellYes <= buyYes and sellNo <= buyNo: selling one share never quotes
// above buying one.
func (m *MarketMaker) Quotes(sharesYes, sharesNo int64) model.Quotes {
	b := m.b.InexactFloat64()

	qYes := float64(sharesYes) / b
	qNo := float64(sharesNo) / b
	qYesSell := float64(max64(0, sharesYes-1)) / b
	qNoSell := float64(max64(0, sharesNo-1)) / b

	return model.Quotes{
		BuyYes:  toPrice(share(qYes, qNo)),
		BuyNo:   toPrice(share(qNo, qYes)),
		SellYes: toPrice(share(qYesSell, qNo)),
		SellNo:  toPrice(share(qNoSell, qYes)),
	}
}

// Quote returns the single price for one (direction, outcome) pair. The
// second return value is false for unknown pairs.
func (m *MarketMaker) Quote(sharesYes, sharesNo int64, d model.Direction, o model.Outcome) (decimal.Decimal, bool) {
	return m.Quotes(sharesYes, sharesNo).For(d, o)
}

func toPrice(fraction float64) decimal.Decimal {
	return RoundPrice(decimal.NewFromFloat(Scale * fraction))
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
