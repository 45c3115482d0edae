// Package app contains application services and port definitions for the
// marketdata context.
package app

import (
	"context"

	"arbscan/business/marketdata/domain"
)

// MarketDataProvider is the contract a venue adapter must satisfy. Every
// call may fail with one of the closed apperror provider codes: throttled,
// unsupported symbol, malformed book, or transient.
type MarketDataProvider interface {
	// Source returns the stable source id (e.g. "binance").
	Source() string

	// FetchOrderBook retrieves the raw order book for a symbol at the
	// requested depth.
	FetchOrderBook(ctx context.Context, symbol string, depth int) (*domain.RawBook, error)

	// FetchTicker retrieves the venue's ticker for a symbol.
	FetchTicker(ctx context.Context, symbol string) (*domain.Ticker, error)

	// FetchCurrencies retrieves deposit/withdraw capability per currency.
	// Venues that require authentication for this surface return an empty
	// map, never an error.
	FetchCurrencies(ctx context.Context) (map[string]domain.CurrencyStatus, error)
}
