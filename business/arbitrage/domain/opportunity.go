package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskTier classifies an opportunity by confidence.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Opportunity is one profitable (symbol, buy source, sell source)
// pairing detected in a scan. Snapshots are replaced wholesale each
// cycle.
type Opportunity struct {
	Symbol     string
	BuySource  string
	SellSource string

	BuyVWAP        decimal.Decimal
	SellVWAP       decimal.Decimal
	GrossSpreadPct decimal.Decimal
	TotalCostPct   decimal.Decimal // fees + slippage, both sides
	NetProfitPct   decimal.Decimal

	Amount         decimal.Decimal // optimal trade size, base units
	Notional       decimal.Decimal // buy-side quote spent
	ExpectedProfit decimal.Decimal // quote currency

	BuyLiquidity  decimal.Decimal
	SellLiquidity decimal.Decimal
	AvgLiquidity  decimal.Decimal

	BuySlippagePct  decimal.Decimal
	SellSlippagePct decimal.Decimal
	BuyLevelsUsed   int
	SellLevelsUsed  int

	Confidence decimal.Decimal // 0-100
	Risk       RiskTier

	// TransferOK reports whether the base currency is known to be
	// movable between the two venues. Nil when either venue did not
	// report transfer status.
	TransferOK *bool

	DetectedAt time.Time
}

// Key identifies the pairing independent of snapshot values.
func (o *Opportunity) Key() string {
	return o.Symbol + "|" + o.BuySource + "|" + o.SellSource
}

var (
	confidenceBaseline    = decimal.NewFromInt(50)
	profitCreditCap       = decimal.NewFromInt(20)
	profitCreditPerPct    = decimal.NewFromInt(4)
	liquidityCreditRatio  = decimal.NewFromInt(4)
	slippagePenaltyCap    = decimal.NewFromInt(20)
	slippagePenaltyPerPct = decimal.NewFromInt(5)
	shallowWalkBonus      = decimal.NewFromInt(5)
	shallowWalkLevels     = 3
)

// Confidence scores how believable the opportunity is. More net margin
// and deeper liquidity raise it, slippage lowers it, and a fill that
// stayed near the top of both books earns a small bonus. Clamped to
// [0, 100].
func Confidence(netProfitPct, avgLiquidity, totalSlippagePct decimal.Decimal, buyLevels, sellLevels int) decimal.Decimal {
	score := confidenceBaseline

	profitCredit := netProfitPct.Mul(profitCreditPerPct)
	if profitCredit.GreaterThan(profitCreditCap) {
		profitCredit = profitCreditCap
	}
	if profitCredit.IsPositive() {
		score = score.Add(profitCredit)
	}

	score = score.Add(avgLiquidity.Div(liquidityCreditRatio))

	penalty := totalSlippagePct.Mul(slippagePenaltyPerPct)
	if penalty.GreaterThan(slippagePenaltyCap) {
		penalty = slippagePenaltyCap
	}
	if penalty.IsPositive() {
		score = score.Sub(penalty)
	}

	if buyLevels > 0 && buyLevels <= shallowWalkLevels && sellLevels > 0 && sellLevels <= shallowWalkLevels {
		score = score.Add(shallowWalkBonus)
	}

	return clampScore(score)
}

// RiskFor maps a confidence score to a tier.
func RiskFor(confidence decimal.Decimal) RiskTier {
	switch {
	case confidence.GreaterThanOrEqual(decimal.NewFromInt(70)):
		return RiskLow
	case confidence.GreaterThanOrEqual(decimal.NewFromInt(50)):
		return RiskMedium
	default:
		return RiskHigh
	}
}
