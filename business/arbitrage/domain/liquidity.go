package domain

import (
	"github.com/shopspring/decimal"

	mddomain "arbscan/business/marketdata/domain"
)

// DefaultTakerFeePct is the conservative fallback when a source's fee
// schedule is unknown.
var DefaultTakerFeePct = decimal.NewFromFloat(0.3)

// FeeSchedule maps a source id to its taker fee rate in percent.
type FeeSchedule struct {
	rates map[string]decimal.Decimal
}

// NewFeeSchedule builds a schedule from per-source taker fees.
func NewFeeSchedule(rates map[string]decimal.Decimal) *FeeSchedule {
	copied := make(map[string]decimal.Decimal, len(rates))
	for source, rate := range rates {
		copied[source] = rate
	}
	return &FeeSchedule{rates: copied}
}

// FeeRate returns the taker fee percent for a source, falling back to
// DefaultTakerFeePct for unknown sources.
func (f *FeeSchedule) FeeRate(source string) decimal.Decimal {
	if rate, ok := f.rates[source]; ok {
		return rate
	}
	return DefaultTakerFeePct
}

// LiquidityGrade buckets a liquidity score for display.
type LiquidityGrade string

const (
	GradeExcellent LiquidityGrade = "excellent"
	GradeGood      LiquidityGrade = "good"
	GradeFair      LiquidityGrade = "fair"
	GradePoor      LiquidityGrade = "poor"
)

var (
	depthComfortMultiple = decimal.NewFromInt(10)
	depthWeight          = decimal.NewFromInt(60)
	spreadWeight         = decimal.NewFromInt(40)
)

// LiquidityScore grades how comfortably one side of a book absorbs a
// trade of the given notional. The score combines depth sufficiency
// (full credit when total depth is at least 10x the trade) and spread
// tightness, is monotonic in both, and is clamped to [0, 100].
func LiquidityScore(book *mddomain.OrderBook, side mddomain.Side, tradeNotional decimal.Decimal) decimal.Decimal {
	if book == nil || !tradeNotional.IsPositive() {
		return decimal.Zero
	}
	depth := book.DepthNotional(side)
	if !depth.IsPositive() {
		return decimal.Zero
	}

	comfort := tradeNotional.Mul(depthComfortMultiple)
	depthRatio := depth.Div(comfort)
	if depthRatio.GreaterThan(decimal.NewFromInt(1)) {
		depthRatio = decimal.NewFromInt(1)
	}

	// 40 / (1 + spread%): full spread credit as the spread approaches
	// zero, decaying smoothly for wide books.
	spreadPct := book.SpreadPct
	if spreadPct.IsNegative() {
		spreadPct = decimal.Zero
	}
	spreadScore := spreadWeight.Div(decimal.NewFromInt(1).Add(spreadPct))

	score := depthWeight.Mul(depthRatio).Add(spreadScore)
	return clampScore(score)
}

// GradeFor buckets a 0-100 liquidity score.
func GradeFor(score decimal.Decimal) LiquidityGrade {
	switch {
	case score.GreaterThanOrEqual(decimal.NewFromInt(80)):
		return GradeExcellent
	case score.GreaterThanOrEqual(decimal.NewFromInt(60)):
		return GradeGood
	case score.GreaterThanOrEqual(decimal.NewFromInt(40)):
		return GradeFair
	default:
		return GradePoor
	}
}

func clampScore(score decimal.Decimal) decimal.Decimal {
	if score.IsNegative() {
		return decimal.Zero
	}
	if score.GreaterThan(hundred) {
		return hundred
	}
	return score
}
