// Package domain holds the pure pricing and opportunity model for the
// arbitrage context. Everything here is synchronous and free of I/O.
package domain

import (
	"github.com/shopspring/decimal"

	mddomain "arbscan/business/marketdata/domain"
)

var (
	hundred = decimal.NewFromInt(100)

	// fillTolerance accepts a fill at 99% of the target to absorb
	// rounding at the last consumed level.
	fillTolerance = decimal.NewFromFloat(0.99)
)

// ExecutionQuote is the result of walking one side of an order book for a
// target base-currency amount. Computed on demand, never persisted.
type ExecutionQuote struct {
	Fillable       bool
	Requested      decimal.Decimal // target base amount
	Filled         decimal.Decimal // base amount actually consumed
	VWAP           decimal.Decimal // notional / filled
	Notional       decimal.Decimal // quote currency spent or received
	LevelsUsed     int
	SlippagePct    decimal.Decimal // VWAP deviation from best price
	PriceImpactPct decimal.Decimal // worst touched level deviation from best price
}

// FillBuy walks ask levels from best price outward until target base
// units are accumulated. Empty levels, a non-positive target, or a target
// beyond total depth yield a well-defined unfillable quote.
func FillBuy(asks []mddomain.Level, target decimal.Decimal) ExecutionQuote {
	return fill(asks, target, true)
}

// FillSell walks bid levels from best price down. Slippage is positive as
// VWAP falls below the best bid.
func FillSell(bids []mddomain.Level, target decimal.Decimal) ExecutionQuote {
	return fill(bids, target, false)
}

func fill(levels []mddomain.Level, target decimal.Decimal, isBuy bool) ExecutionQuote {
	quote := ExecutionQuote{Requested: target}
	if len(levels) == 0 || !target.IsPositive() {
		return quote
	}

	best := levels[0].Price
	filled := decimal.Zero
	notional := decimal.Zero
	worst := best

	for i := range levels {
		remaining := target.Sub(filled)
		if !remaining.IsPositive() {
			break
		}
		take := levels[i].Qty
		if take.GreaterThan(remaining) {
			take = remaining
		}
		filled = filled.Add(take)
		notional = notional.Add(take.Mul(levels[i].Price))
		worst = levels[i].Price
		quote.LevelsUsed = i + 1
	}

	if !filled.IsPositive() {
		return quote
	}

	quote.Filled = filled
	quote.Notional = notional
	quote.VWAP = notional.Div(filled)
	quote.Fillable = filled.GreaterThanOrEqual(target.Mul(fillTolerance))

	if best.IsPositive() {
		if isBuy {
			quote.SlippagePct = quote.VWAP.Sub(best).Div(best).Mul(hundred)
			quote.PriceImpactPct = worst.Sub(best).Div(best).Mul(hundred)
		} else {
			quote.SlippagePct = best.Sub(quote.VWAP).Div(best).Mul(hundred)
			quote.PriceImpactPct = best.Sub(worst).Div(best).Mul(hundred)
		}
	}
	return quote
}

// Depth is the total amount available on one side of a book.
type Depth struct {
	Amount   decimal.Decimal
	Notional decimal.Decimal
}

// MaxFillable returns the total depth available across levels.
func MaxFillable(levels []mddomain.Level) Depth {
	if len(levels) == 0 {
		return Depth{}
	}
	last := levels[len(levels)-1]
	return Depth{Amount: last.CumQty, Notional: last.CumNotional}
}

// OptimalSize is the largest size found whose slippage stays under a cap.
type OptimalSize struct {
	Amount      decimal.Decimal
	Notional    decimal.Decimal
	SlippagePct decimal.Decimal
}

// optimalSizeSamples is the number of evenly spaced candidates swept.
const optimalSizeSamples = 40

// OptimalSizeUnderSlippage sweeps candidate sizes between zero and the
// side's total depth and returns the largest whose slippage stays at or
// below maxSlippagePct. A linear sweep is deliberate: slippage is a
// piecewise function of depth, so a binary search is only sound when it
// happens to be monotonic for the particular book.
func OptimalSizeUnderSlippage(levels []mddomain.Level, maxSlippagePct decimal.Decimal, isBuy bool) OptimalSize {
	depth := MaxFillable(levels)
	if !depth.Amount.IsPositive() || maxSlippagePct.IsNegative() {
		return OptimalSize{}
	}

	step := depth.Amount.Div(decimal.NewFromInt(optimalSizeSamples))
	best := OptimalSize{}

	for i := 1; i <= optimalSizeSamples; i++ {
		candidate := step.Mul(decimal.NewFromInt(int64(i)))
		quote := fill(levels, candidate, isBuy)
		if !quote.Fillable || quote.SlippagePct.GreaterThan(maxSlippagePct) {
			continue
		}
		if quote.Filled.GreaterThan(best.Amount) {
			best = OptimalSize{
				Amount:      quote.Filled,
				Notional:    quote.Notional,
				SlippagePct: quote.SlippagePct,
			}
		}
	}
	return best
}
