// Package app contains the opportunity detection service for the
// arbitrage context.
package app

import (
	"context"

	mddomain "arbscan/business/marketdata/domain"
)

// BookSource supplies normalized order books. Satisfied by the
// marketdata book cache.
type BookSource interface {
	Get(ctx context.Context, source, symbol string, depth int) (*mddomain.OrderBook, error)
	Sources() []string
}

// TransferDirectory answers whether a currency is known to be movable
// between two venues. Nil means unknown.
type TransferDirectory interface {
	TransferOK(ctx context.Context, buySource, sellSource, currency string) *bool
}
