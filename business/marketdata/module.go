// Package marketdata implements the market data bounded context: venue
// adapters and the shared order book cache.
package marketdata

import (
	"context"
	"fmt"

	"arbscan/business/marketdata/app"
	mdDI "arbscan/business/marketdata/di"
	"arbscan/business/marketdata/infra/binance"
	"arbscan/business/marketdata/infra/kraken"
	"arbscan/internal/config"
	"arbscan/internal/di"
	"arbscan/internal/logger"
	"arbscan/internal/monolith"
	"arbscan/internal/ratelimit"
)

// Module implements the marketdata bounded context.
type Module struct{}

// RegisterServices registers all marketdata services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, mdDI.Providers, func(sr di.ServiceRegistry) []app.MarketDataProvider {
		cfg := sr.Get("config").(*config.Config)

		providers := make([]app.MarketDataProvider, 0, len(cfg.Sources))
		for name, src := range cfg.Sources {
			if !src.Enabled {
				continue
			}
			provider, err := buildProvider(name, src)
			if err != nil {
				panic("failed to create provider " + name + ": " + err.Error())
			}
			providers = append(providers, provider)
		}
		return providers
	})

	di.RegisterToken(c, mdDI.BookCache, func(sr di.ServiceRegistry) *app.BookCache {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		governor := sr.Get("governor").(*ratelimit.Governor)

		cacheCfg := app.BookCacheConfig{
			TTL:             cfg.Cache.TTL,
			TickerSanityPct: cfg.Detector.TickerSanityPctDecimal(),
		}
		return app.NewBookCache(cacheCfg, mdDI.GetProviders(sr), governor, log)
	})

	di.RegisterToken(c, mdDI.CurrencyDirectory, func(sr di.ServiceRegistry) *app.CurrencyDirectory {
		log := sr.Get("logger").(logger.LoggerInterface)
		governor := sr.Get("governor").(*ratelimit.Governor)
		return app.NewCurrencyDirectory(mdDI.GetProviders(sr), governor, log)
	})

	return nil
}

// Startup initializes the marketdata module.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cache := mdDI.GetBookCache(mono.Services())
	log.Info(ctx, "marketdata module started", "sources", cache.Sources())
	return nil
}

func buildProvider(name string, src config.SourceConfig) (app.MarketDataProvider, error) {
	switch name {
	case binance.SourceID:
		return binance.New(src.BaseURL)
	case kraken.SourceID:
		return kraken.New(src.BaseURL)
	default:
		return nil, fmt.Errorf("unknown source %q", name)
	}
}
