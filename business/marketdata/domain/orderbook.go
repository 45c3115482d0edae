// Package domain contains the core domain types for the marketdata context.
package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"arbscan/internal/apperror"
)

// Side represents the side of a trade (buy or sell).
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// RawLevel is a single price level as delivered by a provider.
type RawLevel struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// RawBook is an order book exactly as delivered by a provider, before
// normalization.
type RawBook struct {
	Bids []RawLevel
	Asks []RawLevel
}

// Level is a normalized price level. CumQty and CumNotional accumulate
// from the best price outward, so a VWAP walk can stop at any level and
// read the totals directly.
type Level struct {
	Price       decimal.Decimal
	Qty         decimal.Decimal
	CumQty      decimal.Decimal
	CumNotional decimal.Decimal
}

// OrderBook is a normalized snapshot of one venue's book for one symbol.
// Bids are strictly decreasing in price, asks strictly increasing.
type OrderBook struct {
	Source    string
	Symbol    string
	FetchedAt time.Time
	Bids      []Level
	Asks      []Level
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	Spread    decimal.Decimal
	SpreadPct decimal.Decimal
	Mid       decimal.Decimal
}

// Normalize builds an OrderBook from raw provider levels: non-positive
// levels are dropped, bids sorted descending and asks ascending, and
// cumulative quantity/notional computed per level. An empty or crossed
// book is rejected as malformed.
func Normalize(source, symbol string, bids, asks []RawLevel, fetchedAt time.Time) (*OrderBook, error) {
	cleanBids := cleanLevels(bids)
	cleanAsks := cleanLevels(asks)

	if len(cleanBids) == 0 || len(cleanAsks) == 0 {
		return nil, apperror.New(apperror.CodeMalformedBook,
			apperror.WithContext(fmt.Sprintf("%s %s: %d bids, %d asks", source, symbol, len(cleanBids), len(cleanAsks))))
	}

	sort.Slice(cleanBids, func(i, j int) bool {
		return cleanBids[i].Price.GreaterThan(cleanBids[j].Price)
	})
	sort.Slice(cleanAsks, func(i, j int) bool {
		return cleanAsks[i].Price.LessThan(cleanAsks[j].Price)
	})

	bestBid := cleanBids[0].Price
	bestAsk := cleanAsks[0].Price
	if bestBid.GreaterThanOrEqual(bestAsk) {
		return nil, apperror.New(apperror.CodeMalformedBook,
			apperror.WithContext(fmt.Sprintf("%s %s: crossed book, bid %s >= ask %s", source, symbol, bestBid, bestAsk)))
	}

	mid := bestBid.Add(bestAsk).Div(decimal.NewFromInt(2))
	spread := bestAsk.Sub(bestBid)

	book := &OrderBook{
		Source:    source,
		Symbol:    symbol,
		FetchedAt: fetchedAt,
		Bids:      accumulate(cleanBids),
		Asks:      accumulate(cleanAsks),
		BestBid:   bestBid,
		BestAsk:   bestAsk,
		Spread:    spread,
		SpreadPct: spread.Div(mid).Mul(decimal.NewFromInt(100)),
		Mid:       mid,
	}

	return book, nil
}

// cleanLevels drops levels with non-positive price or quantity and merges
// duplicate prices (some venues deliver split levels at the same price).
func cleanLevels(raw []RawLevel) []RawLevel {
	byPrice := make(map[string]int, len(raw))
	out := make([]RawLevel, 0, len(raw))
	for _, l := range raw {
		if !l.Price.IsPositive() || !l.Qty.IsPositive() {
			continue
		}
		key := l.Price.String()
		if i, ok := byPrice[key]; ok {
			out[i].Qty = out[i].Qty.Add(l.Qty)
			continue
		}
		byPrice[key] = len(out)
		out = append(out, l)
	}
	return out
}

// accumulate converts sorted raw levels into normalized levels with
// running cumulative quantity and notional.
func accumulate(raw []RawLevel) []Level {
	out := make([]Level, len(raw))
	cumQty := decimal.Zero
	cumNotional := decimal.Zero
	for i, l := range raw {
		cumQty = cumQty.Add(l.Qty)
		cumNotional = cumNotional.Add(l.Qty.Mul(l.Price))
		out[i] = Level{
			Price:       l.Price,
			Qty:         l.Qty,
			CumQty:      cumQty,
			CumNotional: cumNotional,
		}
	}
	return out
}

// Levels returns the side of the book a taker order of the given side
// would consume: asks for a buy, bids for a sell.
func (b *OrderBook) Levels(side Side) []Level {
	if side == SideBuy {
		return b.Asks
	}
	return b.Bids
}

// DepthNotional returns the total notional available on one side.
func (b *OrderBook) DepthNotional(side Side) decimal.Decimal {
	levels := b.Levels(side)
	if len(levels) == 0 {
		return decimal.Zero
	}
	return levels[len(levels)-1].CumNotional
}

// Age returns how old the snapshot is relative to now.
func (b *OrderBook) Age(now time.Time) time.Duration {
	return now.Sub(b.FetchedAt)
}

// Ticker is a venue's 24h ticker for a symbol.
type Ticker struct {
	Source      string
	Symbol      string
	Last        decimal.Decimal
	BidVolume   decimal.Decimal
	AskVolume   decimal.Decimal
	QuoteVolume decimal.Decimal
	FetchedAt   time.Time
}

// CurrencyStatus reports whether a currency can be moved in and out of a
// venue. Nil means the venue did not report the capability.
type CurrencyStatus struct {
	Deposit  *bool
	Withdraw *bool
}

// Transferable reports whether both deposit and withdraw are known to be
// enabled. Nil when either capability is unknown.
func (c CurrencyStatus) Transferable() *bool {
	if c.Deposit == nil || c.Withdraw == nil {
		return nil
	}
	ok := *c.Deposit && *c.Withdraw
	return &ok
}
