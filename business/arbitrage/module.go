// Package arbitrage implements the arbitrage bounded context: execution
// price modeling and pairwise opportunity detection.
package arbitrage

import (
	"context"

	"github.com/shopspring/decimal"

	"arbscan/business/arbitrage/app"
	arbDI "arbscan/business/arbitrage/di"
	"arbscan/business/arbitrage/domain"
	mdDI "arbscan/business/marketdata/di"
	"arbscan/internal/config"
	"arbscan/internal/di"
	"arbscan/internal/logger"
	"arbscan/internal/monolith"
)

// Module implements the arbitrage bounded context.
type Module struct{}

// RegisterServices registers all arbitrage services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, arbDI.Detector, func(sr di.ServiceRegistry) *app.Detector {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		fees := make(map[string]decimal.Decimal, len(cfg.Sources))
		for name, src := range cfg.Sources {
			if src.Enabled {
				fees[name] = decimal.NewFromFloat(src.TakerFeePct)
			}
		}

		detectorCfg := app.DetectorConfig{
			MinProfitPct:      cfg.Detector.MinProfitPctDecimal(),
			MaxSlippagePct:    cfg.Detector.MaxSlippagePctDecimal(),
			MinLiquidityScore: cfg.Detector.MinLiquidityScoreDecimal(),
			SizeLadder:        cfg.Detector.SizeLadderDecimal(),
			BookDepth:         cfg.Detector.BookDepth,
		}
		return app.NewDetector(
			detectorCfg,
			mdDI.GetBookCache(sr),
			domain.NewFeeSchedule(fees),
			mdDI.GetCurrencyDirectory(sr),
			log,
		)
	})

	return nil
}

// Startup initializes the arbitrage module.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	// Force construction so misconfiguration surfaces at startup.
	arbDI.GetDetector(mono.Services())
	mono.Logger().Info(ctx, "arbitrage module started")
	return nil
}
