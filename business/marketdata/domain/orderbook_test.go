package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"arbscan/internal/apperror"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func rl(price, qty string) RawLevel {
	return RawLevel{Price: d(price), Qty: d(qty)}
}

func TestNormalize_SortsAndAccumulates(t *testing.T) {
	now := time.Now()

	// Deliberately unsorted input with a zero-qty level and a duplicate price.
	bids := []RawLevel{rl("99", "2"), rl("100", "1"), rl("98", "0"), rl("99", "1")}
	asks := []RawLevel{rl("102", "3"), rl("101", "1")}

	book, err := Normalize("binance", "BTC/USDT", bids, asks, now)
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}

	// Bids strictly decreasing, duplicate 99s merged, zero level dropped.
	if len(book.Bids) != 2 {
		t.Fatalf("bids = %d, want 2", len(book.Bids))
	}
	for i := 1; i < len(book.Bids); i++ {
		if !book.Bids[i].Price.LessThan(book.Bids[i-1].Price) {
			t.Errorf("bids not strictly decreasing at %d", i)
		}
	}
	for i := 1; i < len(book.Asks); i++ {
		if !book.Asks[i].Price.GreaterThan(book.Asks[i-1].Price) {
			t.Errorf("asks not strictly increasing at %d", i)
		}
	}

	if !book.Bids[1].Qty.Equal(d("3")) {
		t.Errorf("merged bid qty = %s, want 3", book.Bids[1].Qty)
	}

	// Cumulative fields non-decreasing.
	for _, side := range [][]Level{book.Bids, book.Asks} {
		for i := 1; i < len(side); i++ {
			if side[i].CumQty.LessThan(side[i-1].CumQty) {
				t.Error("CumQty decreased")
			}
			if side[i].CumNotional.LessThan(side[i-1].CumNotional) {
				t.Error("CumNotional decreased")
			}
		}
	}

	// CumNotional on asks: 1*101 + 3*102 = 407.
	if !book.Asks[1].CumNotional.Equal(d("407")) {
		t.Errorf("ask CumNotional = %s, want 407", book.Asks[1].CumNotional)
	}

	if !book.BestBid.Equal(d("100")) || !book.BestAsk.Equal(d("101")) {
		t.Errorf("best bid/ask = %s/%s, want 100/101", book.BestBid, book.BestAsk)
	}
	if !book.Mid.Equal(d("100.5")) {
		t.Errorf("mid = %s, want 100.5", book.Mid)
	}
	if !book.Spread.Equal(d("1")) {
		t.Errorf("spread = %s, want 1", book.Spread)
	}
}

func TestNormalize_Malformed(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		bids []RawLevel
		asks []RawLevel
	}{
		{name: "empty_bids", bids: nil, asks: []RawLevel{rl("101", "1")}},
		{name: "empty_asks", bids: []RawLevel{rl("100", "1")}, asks: nil},
		{name: "all_zero_qty", bids: []RawLevel{rl("100", "0")}, asks: []RawLevel{rl("101", "1")}},
		{name: "negative_price", bids: []RawLevel{rl("-1", "5")}, asks: []RawLevel{rl("101", "1")}},
		{name: "crossed_book", bids: []RawLevel{rl("102", "1")}, asks: []RawLevel{rl("101", "1")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize("kraken", "ETH/USDT", tt.bids, tt.asks, now)
			if !apperror.IsMalformed(err) {
				t.Errorf("expected malformed book error, got %v", err)
			}
		})
	}
}

func TestOrderBook_SideHelpers(t *testing.T) {
	book, err := Normalize("binance", "BTC/USDT",
		[]RawLevel{rl("100", "2")},
		[]RawLevel{rl("101", "1"), rl("102", "1")},
		time.Now())
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}

	if len(book.Levels(SideBuy)) != 2 {
		t.Error("SideBuy should return asks")
	}
	if len(book.Levels(SideSell)) != 1 {
		t.Error("SideSell should return bids")
	}

	// Sell-side depth: 2 * 100.
	if !book.DepthNotional(SideSell).Equal(d("200")) {
		t.Errorf("sell depth = %s, want 200", book.DepthNotional(SideSell))
	}
}

func TestCurrencyStatus_Transferable(t *testing.T) {
	yes, no := true, false

	tests := []struct {
		name string
		cs   CurrencyStatus
		want *bool
	}{
		{name: "both_enabled", cs: CurrencyStatus{Deposit: &yes, Withdraw: &yes}, want: &yes},
		{name: "withdraw_disabled", cs: CurrencyStatus{Deposit: &yes, Withdraw: &no}, want: &no},
		{name: "unknown_deposit", cs: CurrencyStatus{Withdraw: &yes}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cs.Transferable()
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("got %v, want %v", *got, *tt.want)
			}
		})
	}
}
