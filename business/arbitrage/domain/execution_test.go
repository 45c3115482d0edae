package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	mddomain "arbscan/business/marketdata/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func levels(t *testing.T, entries ...[2]string) []mddomain.Level {
	t.Helper()
	asks := make([]mddomain.RawLevel, 0, len(entries))
	for _, e := range entries {
		asks = append(asks, mddomain.RawLevel{Price: dec(e[0]), Qty: dec(e[1])})
	}
	// Normalize through an order book to get cumulative fields. The bid
	// side only needs to keep the book uncrossed.
	bids := []mddomain.RawLevel{{Price: dec("0.0001"), Qty: dec("1")}}
	book, err := mddomain.Normalize("test", "BTC/USDT", bids, asks, time.Now())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return book.Asks
}

func TestFillBuy_SingleLevel(t *testing.T) {
	asks := levels(t, [2]string{"100", "5"})

	q := FillBuy(asks, dec("2"))
	if !q.Fillable {
		t.Fatal("expected fillable")
	}
	if !q.VWAP.Equal(dec("100")) {
		t.Errorf("vwap = %s, want 100", q.VWAP)
	}
	if !q.Notional.Equal(dec("200")) {
		t.Errorf("notional = %s, want 200", q.Notional)
	}
	if !q.SlippagePct.IsZero() {
		t.Errorf("slippage = %s, want 0", q.SlippagePct)
	}
	if q.LevelsUsed != 1 {
		t.Errorf("levels used = %d, want 1", q.LevelsUsed)
	}
}

func TestFillBuy_WalksMultipleLevels(t *testing.T) {
	asks := levels(t,
		[2]string{"100", "1"},
		[2]string{"102", "1"},
		[2]string{"104", "2"},
	)

	q := FillBuy(asks, dec("3"))
	if !q.Fillable {
		t.Fatal("expected fillable")
	}
	// 1@100 + 1@102 + 1@104 = 306 over 3 units.
	if !q.VWAP.Equal(dec("102")) {
		t.Errorf("vwap = %s, want 102", q.VWAP)
	}
	if !q.SlippagePct.Equal(dec("2")) {
		t.Errorf("slippage = %s, want 2", q.SlippagePct)
	}
	if !q.PriceImpactPct.Equal(dec("4")) {
		t.Errorf("price impact = %s, want 4", q.PriceImpactPct)
	}
	if q.LevelsUsed != 3 {
		t.Errorf("levels used = %d, want 3", q.LevelsUsed)
	}
}

func TestFillBuy_TargetBeyondDepth(t *testing.T) {
	asks := levels(t, [2]string{"100", "1"}, [2]string{"101", "1"})

	q := FillBuy(asks, dec("10"))
	if q.Fillable {
		t.Fatal("expected not fillable")
	}
	if !q.Filled.Equal(dec("2")) {
		t.Errorf("filled = %s, want total depth 2", q.Filled)
	}
}

func TestFill_EdgeCases(t *testing.T) {
	asks := levels(t, [2]string{"100", "1"})

	cases := []struct {
		name   string
		levels []mddomain.Level
		target decimal.Decimal
	}{
		{"empty levels", nil, dec("1")},
		{"zero target", asks, decimal.Zero},
		{"negative target", asks, dec("-1")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := FillBuy(tc.levels, tc.target)
			if q.Fillable {
				t.Error("expected not fillable")
			}
			if !q.Filled.IsZero() || !q.VWAP.IsZero() {
				t.Errorf("quote = %+v, want zero values", q)
			}
		})
	}
}

func TestFillSell_SlippagePositiveBelowBestBid(t *testing.T) {
	// Bid side walks down in price. Reuse the ask builder by treating
	// prices directly: construct a proper book instead.
	bids := []mddomain.RawLevel{
		{Price: dec("100"), Qty: dec("1")},
		{Price: dec("98"), Qty: dec("1")},
	}
	asks := []mddomain.RawLevel{{Price: dec("1000"), Qty: dec("1")}}
	book, err := mddomain.Normalize("test", "BTC/USDT", bids, asks, time.Now())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	q := FillSell(book.Bids, dec("2"))
	if !q.Fillable {
		t.Fatal("expected fillable")
	}
	if !q.VWAP.Equal(dec("99")) {
		t.Errorf("vwap = %s, want 99", q.VWAP)
	}
	if !q.SlippagePct.Equal(dec("1")) {
		t.Errorf("slippage = %s, want 1", q.SlippagePct)
	}
	if !q.PriceImpactPct.Equal(dec("2")) {
		t.Errorf("price impact = %s, want 2", q.PriceImpactPct)
	}
}

func TestFill_Deterministic(t *testing.T) {
	asks := levels(t, [2]string{"100", "1"}, [2]string{"105", "3"})

	first := FillBuy(asks, dec("2.5"))
	second := FillBuy(asks, dec("2.5"))
	if !first.VWAP.Equal(second.VWAP) || !first.Notional.Equal(second.Notional) ||
		first.LevelsUsed != second.LevelsUsed {
		t.Errorf("repeated fills differ: %+v vs %+v", first, second)
	}
}

func TestMaxFillable(t *testing.T) {
	asks := levels(t, [2]string{"100", "1"}, [2]string{"101", "2"})

	depth := MaxFillable(asks)
	if !depth.Amount.Equal(dec("3")) {
		t.Errorf("amount = %s, want 3", depth.Amount)
	}
	if !depth.Notional.Equal(dec("302")) {
		t.Errorf("notional = %s, want 302", depth.Notional)
	}

	if empty := MaxFillable(nil); !empty.Amount.IsZero() {
		t.Errorf("empty depth amount = %s, want 0", empty.Amount)
	}
}

func TestOptimalSizeUnderSlippage_RespectsCap(t *testing.T) {
	asks := levels(t,
		[2]string{"100", "1"},
		[2]string{"101", "1"},
		[2]string{"110", "1"},
		[2]string{"150", "5"},
	)
	cap := dec("2")

	result := OptimalSizeUnderSlippage(asks, cap, true)
	if !result.Amount.IsPositive() {
		t.Fatal("expected a positive optimal size")
	}
	if result.SlippagePct.GreaterThan(cap) {
		t.Fatalf("returned slippage %s exceeds cap %s", result.SlippagePct, cap)
	}

	// The cap must hold when the returned size is re-quoted.
	requote := FillBuy(asks, result.Amount)
	if !requote.Fillable {
		t.Fatal("returned size not fillable on re-quote")
	}
	if requote.SlippagePct.GreaterThan(cap) {
		t.Fatalf("re-quoted slippage %s exceeds cap %s", requote.SlippagePct, cap)
	}
}

func TestOptimalSizeUnderSlippage_EmptyBook(t *testing.T) {
	result := OptimalSizeUnderSlippage(nil, dec("1"), true)
	if result.Amount.IsPositive() {
		t.Errorf("amount = %s, want 0", result.Amount)
	}
}

func TestOptimalSizeUnderSlippage_TightBookAllowsFullDepth(t *testing.T) {
	asks := levels(t, [2]string{"100", "10"})

	result := OptimalSizeUnderSlippage(asks, dec("1"), true)
	if !result.Amount.Equal(dec("10")) {
		t.Errorf("amount = %s, want full depth 10", result.Amount)
	}
	if !result.SlippagePct.IsZero() {
		t.Errorf("slippage = %s, want 0", result.SlippagePct)
	}
}
