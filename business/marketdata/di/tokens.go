// Package di contains dependency injection tokens for the marketdata context.
package di

import (
	"arbscan/business/marketdata/app"
	"arbscan/internal/di"
)

// Public service tokens - exposed to other modules
var (
	BookCache         = di.NewToken[*app.BookCache]("marketdata.BookCache")
	CurrencyDirectory = di.NewToken[*app.CurrencyDirectory]("marketdata.CurrencyDirectory")
)

// Private dependency tokens - internal to the marketdata module
var (
	Providers = di.NewToken[[]app.MarketDataProvider]("marketdata:providers")
)

// Helper functions for type-safe access
func GetBookCache(c di.ServiceRegistry) *app.BookCache {
	return di.GetToken(c, BookCache)
}

func GetCurrencyDirectory(c di.ServiceRegistry) *app.CurrencyDirectory {
	return di.GetToken(c, CurrencyDirectory)
}

func GetProviders(c di.ServiceRegistry) []app.MarketDataProvider {
	return di.GetToken(c, Providers)
}
