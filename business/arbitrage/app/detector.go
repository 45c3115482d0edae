package app

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"arbscan/business/arbitrage/domain"
	mddomain "arbscan/business/marketdata/domain"
	"arbscan/internal/apm"
	"arbscan/internal/logger"
)

const tracerName = "arbscan/business/arbitrage/app"

var hundred = decimal.NewFromInt(100)

// DetectorConfig holds detection thresholds.
type DetectorConfig struct {
	MinProfitPct      decimal.Decimal
	MaxSlippagePct    decimal.Decimal // combined, both sides
	MinLiquidityScore decimal.Decimal
	SizeLadder        []decimal.Decimal // candidate notionals, quote currency, ascending
	BookDepth         int
}

// Detector finds arbitrage opportunities across source pairs for a
// symbol. It owns no mutable state beyond its collaborators and is safe
// for concurrent symbol evaluations.
type Detector struct {
	cfg       DetectorConfig
	books     BookSource
	fees      *domain.FeeSchedule
	transfers TransferDirectory
	logger    logger.LoggerInterface
	tracer    apm.Tracer
}

// NewDetector creates a Detector. transfers may be nil, in which case
// opportunities carry no transfer tagging.
func NewDetector(
	cfg DetectorConfig,
	books BookSource,
	fees *domain.FeeSchedule,
	transfers TransferDirectory,
	log logger.LoggerInterface,
) *Detector {
	return &Detector{
		cfg:       cfg,
		books:     books,
		fees:      fees,
		transfers: transfers,
		logger:    log,
		tracer:    apm.NewTracer(tracerName),
	}
}

// DetectSymbol evaluates every source pair for one symbol and returns
// opportunities sorted by descending expected profit. Fewer than two
// usable books is an empty result, not an error.
func (d *Detector) DetectSymbol(ctx context.Context, symbol string) []domain.Opportunity {
	ctx, span := d.tracer.StartSpanFromContext(ctx, "detector.symbol",
		trace.WithAttributes(attribute.String("symbol", symbol)))
	defer span.End()

	books := d.collectBooks(ctx, symbol)
	if len(books) < 2 {
		return nil
	}

	now := time.Now()
	var found []domain.Opportunity
	for i := 0; i < len(books); i++ {
		for j := i + 1; j < len(books); j++ {
			forward := d.evaluateDirection(ctx, books[i], books[j], now)
			backward := d.evaluateDirection(ctx, books[j], books[i], now)
			if best := betterOf(forward, backward); best != nil {
				found = append(found, *best)
			}
		}
	}

	sortByExpectedProfit(found)
	span.SetAttributes(attribute.Int("opportunities", len(found)))
	return found
}

// SortByExpectedProfit orders opportunities by descending expected
// profit. Used by the orchestrator after concatenating per-symbol
// results.
func SortByExpectedProfit(opps []domain.Opportunity) {
	sortByExpectedProfit(opps)
}

func sortByExpectedProfit(opps []domain.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].ExpectedProfit.GreaterThan(opps[j].ExpectedProfit)
	})
}

// collectBooks fetches the symbol's book from every source. A failed
// source contributes nothing this cycle.
func (d *Detector) collectBooks(ctx context.Context, symbol string) []*mddomain.OrderBook {
	sources := d.books.Sources()
	out := make([]*mddomain.OrderBook, 0, len(sources))
	for _, source := range sources {
		book, err := d.books.Get(ctx, source, symbol, d.cfg.BookDepth)
		if err != nil {
			d.logger.Debug(ctx, "source unavailable for symbol",
				"source", source, "symbol", symbol, "error", err)
			continue
		}
		out = append(out, book)
	}
	// Deterministic pair ordering regardless of map iteration upstream.
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// evaluateDirection checks buy-at-buyBook / sell-at-sellBook and returns
// the best rung of the size ladder, or nil when no rung clears every
// gate.
func (d *Detector) evaluateDirection(ctx context.Context, buyBook, sellBook *mddomain.OrderBook, now time.Time) *domain.Opportunity {
	if buyBook.BestAsk.IsZero() || sellBook.BestBid.IsZero() {
		return nil
	}
	// No raw spread to exploit.
	if sellBook.BestBid.LessThanOrEqual(buyBook.BestAsk) {
		return nil
	}

	buyFee := d.fees.FeeRate(buyBook.Source)
	sellFee := d.fees.FeeRate(sellBook.Source)
	totalFees := buyFee.Add(sellFee)

	// Cannot clear fees even with zero slippage.
	rawSpreadPct := sellBook.BestBid.Sub(buyBook.BestAsk).Div(buyBook.BestAsk).Mul(hundred)
	if rawSpreadPct.LessThan(totalFees) {
		return nil
	}

	var best *domain.Opportunity
	for _, notional := range d.cfg.SizeLadder {
		opp := d.evaluateSize(buyBook, sellBook, notional, buyFee, sellFee, now)
		if opp == nil {
			continue
		}
		if best == nil || opp.ExpectedProfit.GreaterThan(best.ExpectedProfit) {
			best = opp
		}
	}

	if best != nil && d.transfers != nil {
		best.TransferOK = d.transfers.TransferOK(ctx, best.BuySource, best.SellSource, baseCurrency(best.Symbol))
	}
	return best
}

func (d *Detector) evaluateSize(buyBook, sellBook *mddomain.OrderBook, notional, buyFee, sellFee decimal.Decimal, now time.Time) *domain.Opportunity {
	if !buyBook.Mid.IsPositive() {
		return nil
	}
	amount := notional.Div(buyBook.Mid)

	buyQuote := domain.FillBuy(buyBook.Asks, amount)
	sellQuote := domain.FillSell(sellBook.Bids, amount)
	if !buyQuote.Fillable || !sellQuote.Fillable {
		return nil
	}

	totalSlippage := buyQuote.SlippagePct.Add(sellQuote.SlippagePct)
	if totalSlippage.GreaterThan(d.cfg.MaxSlippagePct) {
		return nil
	}

	grossSpreadPct := sellQuote.VWAP.Sub(buyQuote.VWAP).Div(buyQuote.VWAP).Mul(hundred)
	totalCostPct := buyFee.Add(sellFee).Add(totalSlippage)
	netProfitPct := grossSpreadPct.Sub(totalCostPct)
	if netProfitPct.LessThan(d.cfg.MinProfitPct) {
		return nil
	}

	buyLiquidity := domain.LiquidityScore(buyBook, mddomain.SideBuy, buyQuote.Notional)
	sellLiquidity := domain.LiquidityScore(sellBook, mddomain.SideSell, sellQuote.Notional)
	avgLiquidity := buyLiquidity.Add(sellLiquidity).Div(decimal.NewFromInt(2))
	if avgLiquidity.LessThan(d.cfg.MinLiquidityScore) {
		return nil
	}

	expectedProfit := netProfitPct.Div(hundred).Mul(buyQuote.Notional)
	confidence := domain.Confidence(netProfitPct, avgLiquidity, totalSlippage,
		buyQuote.LevelsUsed, sellQuote.LevelsUsed)

	return &domain.Opportunity{
		Symbol:          buyBook.Symbol,
		BuySource:       buyBook.Source,
		SellSource:      sellBook.Source,
		BuyVWAP:         buyQuote.VWAP,
		SellVWAP:        sellQuote.VWAP,
		GrossSpreadPct:  grossSpreadPct,
		TotalCostPct:    totalCostPct,
		NetProfitPct:    netProfitPct,
		Amount:          buyQuote.Filled,
		Notional:        buyQuote.Notional,
		ExpectedProfit:  expectedProfit,
		BuyLiquidity:    buyLiquidity,
		SellLiquidity:   sellLiquidity,
		AvgLiquidity:    avgLiquidity,
		BuySlippagePct:  buyQuote.SlippagePct,
		SellSlippagePct: sellQuote.SlippagePct,
		BuyLevelsUsed:   buyQuote.LevelsUsed,
		SellLevelsUsed:  sellQuote.LevelsUsed,
		Confidence:      confidence,
		Risk:            domain.RiskFor(confidence),
		DetectedAt:      now,
	}
}

func betterOf(a, b *domain.Opportunity) *domain.Opportunity {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.ExpectedProfit.GreaterThan(a.ExpectedProfit):
		return b
	default:
		return a
	}
}

func baseCurrency(symbol string) string {
	base, _, _ := strings.Cut(symbol, "/")
	return base
}
