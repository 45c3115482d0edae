package app

import (
	"context"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"arbscan/business/arbitrage/domain"
	mddomain "arbscan/business/marketdata/domain"
	"arbscan/internal/apperror"
	"arbscan/internal/logger"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fakeBookSource struct {
	books map[string]*mddomain.OrderBook // keyed by source
	errs  map[string]error
}

func (f *fakeBookSource) Get(_ context.Context, source, _ string, _ int) (*mddomain.OrderBook, error) {
	if err, ok := f.errs[source]; ok {
		return nil, err
	}
	book, ok := f.books[source]
	if !ok {
		return nil, apperror.New(apperror.CodeNotFound)
	}
	return book, nil
}

func (f *fakeBookSource) Sources() []string {
	out := make([]string, 0, len(f.books)+len(f.errs))
	for s := range f.books {
		out = append(out, s)
	}
	for s := range f.errs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func mustBook(t *testing.T, source, bidPrice, askPrice, qty string) *mddomain.OrderBook {
	t.Helper()
	book, err := mddomain.Normalize(source, "BTC/USDT",
		[]mddomain.RawLevel{{Price: dec(bidPrice), Qty: dec(qty)}},
		[]mddomain.RawLevel{{Price: dec(askPrice), Qty: dec(qty)}},
		time.Now(),
	)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return book
}

func newDetector(books BookSource, fees map[string]decimal.Decimal) *Detector {
	cfg := DetectorConfig{
		MinProfitPct:      dec("0.5"),
		MaxSlippagePct:    dec("1"),
		MinLiquidityScore: decimal.Zero,
		SizeLadder:        []decimal.Decimal{dec("1000")},
		BookDepth:         50,
	}
	log := logger.New(io.Discard, logger.LevelInfo, "test", nil)
	return NewDetector(cfg, books, domain.NewFeeSchedule(fees), nil, log)
}

func zeroFees() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{"cheap": decimal.Zero, "rich": decimal.Zero}
}

func TestDetectSymbol_SpreadWithZeroFees(t *testing.T) {
	source := &fakeBookSource{books: map[string]*mddomain.OrderBook{
		"cheap": mustBook(t, "cheap", "99.5", "100", "1000"),
		"rich":  mustBook(t, "rich", "103", "103.5", "1000"),
	}}
	d := newDetector(source, zeroFees())

	opps := d.DetectSymbol(context.Background(), "BTC/USDT")
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}

	opp := opps[0]
	if opp.BuySource != "cheap" || opp.SellSource != "rich" {
		t.Errorf("direction = buy %s sell %s, want buy cheap sell rich", opp.BuySource, opp.SellSource)
	}
	// Single deep level each side: VWAP spread is exactly (103-100)/100.
	if !opp.NetProfitPct.Equal(dec("3")) {
		t.Errorf("net profit = %s%%, want 3%%", opp.NetProfitPct)
	}
	if !opp.ExpectedProfit.IsPositive() {
		t.Errorf("expected profit = %s, want > 0", opp.ExpectedProfit)
	}
	if opp.Risk == "" || opp.Confidence.IsNegative() {
		t.Errorf("confidence/risk not populated: %+v", opp)
	}
}

func TestDetectSymbol_NoSpreadNoOpportunity(t *testing.T) {
	source := &fakeBookSource{books: map[string]*mddomain.OrderBook{
		"cheap": mustBook(t, "cheap", "99.9", "100", "1000"),
		"rich":  mustBook(t, "rich", "100", "100.1", "1000"),
	}}
	d := newDetector(source, zeroFees())

	if opps := d.DetectSymbol(context.Background(), "BTC/USDT"); len(opps) != 0 {
		t.Fatalf("got %d opportunities, want 0", len(opps))
	}
}

func TestDetectSymbol_FeesEliminateOpportunity(t *testing.T) {
	source := &fakeBookSource{books: map[string]*mddomain.OrderBook{
		"cheap": mustBook(t, "cheap", "99.5", "100", "1000"),
		"rich":  mustBook(t, "rich", "103", "103.5", "1000"),
	}}
	// 3% raw spread, 3.2% combined fees.
	d := newDetector(source, map[string]decimal.Decimal{
		"cheap": dec("1.6"),
		"rich":  dec("1.6"),
	})

	if opps := d.DetectSymbol(context.Background(), "BTC/USDT"); len(opps) != 0 {
		t.Fatalf("got %d opportunities, want 0", len(opps))
	}
}

func TestDetectSymbol_SingleSourceYieldsNothing(t *testing.T) {
	source := &fakeBookSource{books: map[string]*mddomain.OrderBook{
		"cheap": mustBook(t, "cheap", "99.5", "100", "1000"),
	}}
	d := newDetector(source, zeroFees())

	if opps := d.DetectSymbol(context.Background(), "BTC/USDT"); len(opps) != 0 {
		t.Fatalf("got %d opportunities, want 0", len(opps))
	}
}

func TestDetectSymbol_FailedSourceIsSkippedNotFatal(t *testing.T) {
	source := &fakeBookSource{
		books: map[string]*mddomain.OrderBook{
			"cheap": mustBook(t, "cheap", "99.5", "100", "1000"),
			"rich":  mustBook(t, "rich", "103", "103.5", "1000"),
		},
		errs: map[string]error{
			"flaky": apperror.New(apperror.CodeProviderTransient),
		},
	}
	d := newDetector(source, zeroFees())

	opps := d.DetectSymbol(context.Background(), "BTC/USDT")
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1 from the two healthy sources", len(opps))
	}
}

func TestDetectSymbol_SlippageCapRejectsThinBooks(t *testing.T) {
	// The rich bid side has most depth far below the best bid, so a
	// $1000 fill slips well past the 1% combined cap.
	richBids := []mddomain.RawLevel{
		{Price: dec("103"), Qty: dec("0.1")},
		{Price: dec("90"), Qty: dec("1000")},
	}
	richBook, err := mddomain.Normalize("rich", "BTC/USDT", richBids,
		[]mddomain.RawLevel{{Price: dec("103.5"), Qty: dec("1000")}}, time.Now())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	source := &fakeBookSource{books: map[string]*mddomain.OrderBook{
		"cheap": mustBook(t, "cheap", "99.5", "100", "1000"),
		"rich":  richBook,
	}}
	d := newDetector(source, zeroFees())

	if opps := d.DetectSymbol(context.Background(), "BTC/USDT"); len(opps) != 0 {
		t.Fatalf("got %d opportunities, want 0 under the slippage cap", len(opps))
	}
}

func TestDetectSymbol_LadderPrefersHighestExpectedProfit(t *testing.T) {
	// Deep books on both sides: every rung fills with zero slippage, so
	// the largest rung yields the highest expected profit.
	source := &fakeBookSource{books: map[string]*mddomain.OrderBook{
		"cheap": mustBook(t, "cheap", "99.5", "100", "100000"),
		"rich":  mustBook(t, "rich", "103", "103.5", "100000"),
	}}
	cfg := DetectorConfig{
		MinProfitPct:      dec("0.5"),
		MaxSlippagePct:    dec("1"),
		MinLiquidityScore: decimal.Zero,
		SizeLadder:        []decimal.Decimal{dec("100"), dec("1000"), dec("10000")},
		BookDepth:         50,
	}
	log := logger.New(io.Discard, logger.LevelInfo, "test", nil)
	d := NewDetector(cfg, source, domain.NewFeeSchedule(zeroFees()), nil, log)

	opps := d.DetectSymbol(context.Background(), "BTC/USDT")
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}
	// Largest rung: $10000 at mid 99.75 is just over 100 base units.
	if opps[0].Notional.LessThan(dec("9000")) {
		t.Errorf("notional = %s, want the largest ladder rung", opps[0].Notional)
	}
}
