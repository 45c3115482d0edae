package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	mddomain "arbscan/business/marketdata/domain"
)

func testBook(t *testing.T, bidPrice, askPrice, qty string) *mddomain.OrderBook {
	t.Helper()
	book, err := mddomain.Normalize("test", "BTC/USDT",
		[]mddomain.RawLevel{{Price: dec(bidPrice), Qty: dec(qty)}},
		[]mddomain.RawLevel{{Price: dec(askPrice), Qty: dec(qty)}},
		time.Now(),
	)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return book
}

func TestFeeSchedule(t *testing.T) {
	fees := NewFeeSchedule(map[string]decimal.Decimal{
		"binance": dec("0.1"),
	})

	if got := fees.FeeRate("binance"); !got.Equal(dec("0.1")) {
		t.Errorf("binance fee = %s, want 0.1", got)
	}
	if got := fees.FeeRate("unknown"); !got.Equal(DefaultTakerFeePct) {
		t.Errorf("unknown fee = %s, want fallback %s", got, DefaultTakerFeePct)
	}
}

func TestLiquidityScore_Bounds(t *testing.T) {
	deep := testBook(t, "99.99", "100", "1000000")
	score := LiquidityScore(deep, mddomain.SideBuy, dec("100"))
	if score.GreaterThan(dec("100")) || score.IsNegative() {
		t.Fatalf("score %s outside [0,100]", score)
	}
	if score.LessThan(dec("90")) {
		t.Errorf("deep tight book scored %s, want near 100", score)
	}
}

func TestLiquidityScore_MonotonicInDepth(t *testing.T) {
	shallow := testBook(t, "99", "100", "1")
	deep := testBook(t, "99", "100", "1000")

	notional := dec("500")
	if LiquidityScore(shallow, mddomain.SideBuy, notional).
		GreaterThan(LiquidityScore(deep, mddomain.SideBuy, notional)) {
		t.Error("shallower book scored higher than deeper book")
	}
}

func TestLiquidityScore_MonotonicInSpread(t *testing.T) {
	tight := testBook(t, "99.9", "100", "100")
	wide := testBook(t, "90", "100", "100")

	notional := dec("500")
	if LiquidityScore(wide, mddomain.SideBuy, notional).
		GreaterThan(LiquidityScore(tight, mddomain.SideBuy, notional)) {
		t.Error("wider spread scored higher than tight spread")
	}
}

func TestLiquidityScore_DegenerateInputs(t *testing.T) {
	book := testBook(t, "99", "100", "10")

	if got := LiquidityScore(nil, mddomain.SideBuy, dec("100")); !got.IsZero() {
		t.Errorf("nil book score = %s, want 0", got)
	}
	if got := LiquidityScore(book, mddomain.SideBuy, decimal.Zero); !got.IsZero() {
		t.Errorf("zero notional score = %s, want 0", got)
	}
}

func TestGradeFor(t *testing.T) {
	cases := []struct {
		score string
		want  LiquidityGrade
	}{
		{"95", GradeExcellent},
		{"80", GradeExcellent},
		{"60", GradeGood},
		{"40", GradeFair},
		{"39.9", GradePoor},
		{"0", GradePoor},
	}
	for _, tc := range cases {
		if got := GradeFor(dec(tc.score)); got != tc.want {
			t.Errorf("GradeFor(%s) = %s, want %s", tc.score, got, tc.want)
		}
	}
}
