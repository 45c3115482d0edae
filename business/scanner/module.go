// Package scanner implements the scanner bounded context: the periodic
// scan loop, the opportunity snapshot, persistence and alerting.
package scanner

import (
	"context"

	arbDI "arbscan/business/arbitrage/di"
	mdDI "arbscan/business/marketdata/di"
	"arbscan/business/scanner/app"
	scanDI "arbscan/business/scanner/di"
	"arbscan/business/scanner/infra/memory"
	"arbscan/business/scanner/infra/notify"
	"arbscan/business/scanner/infra/postgres"
	"arbscan/internal/config"
	"arbscan/internal/di"
	"arbscan/internal/logger"
	"arbscan/internal/monolith"
	"arbscan/internal/ratelimit"
)

// Module implements the scanner bounded context.
type Module struct {
	pgClient *postgres.Client
}

// RegisterServices registers all scanner services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, scanDI.Store, func(sr di.ServiceRegistry) app.OpportunityStore {
		cfg := sr.Get("config").(*config.Config)
		if cfg.Store.Driver != "postgres" {
			return memory.NewStore()
		}

		client, err := postgres.New(context.Background(), postgres.ClientConfig{
			DSN:      cfg.Store.DSN,
			MaxConns: cfg.Store.MaxConns,
		})
		if err != nil {
			panic("failed to connect to postgres: " + err.Error())
		}
		if err := client.RunMigrations(context.Background()); err != nil {
			panic("failed to run migrations: " + err.Error())
		}
		m.pgClient = client
		return postgres.NewStore(client.Pool())
	})

	di.RegisterToken(c, scanDI.Notifier, func(sr di.ServiceRegistry) app.Notifier {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		var senders []notify.Sender
		if cfg.Notify.DiscordWebhookURL != "" {
			discord, err := notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL)
			if err != nil {
				panic("failed to create discord sender: " + err.Error())
			}
			senders = append(senders, discord)
		}
		if cfg.Notify.TelegramBotToken != "" && cfg.Notify.TelegramChatID != "" {
			telegram, err := notify.NewTelegramSender(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID)
			if err != nil {
				panic("failed to create telegram sender: " + err.Error())
			}
			senders = append(senders, telegram)
		}
		return notify.NewNotifier(senders, log)
	})

	di.RegisterToken(c, scanDI.Orchestrator, func(sr di.ServiceRegistry) *app.Orchestrator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		governor := sr.Get("governor").(*ratelimit.Governor)

		orchCfg := app.OrchestratorConfig{
			Symbols:              cfg.Scanner.Symbols,
			Interval:             cfg.Scanner.Interval,
			BatchSize:            cfg.Scanner.BatchSize,
			BatchDelay:           cfg.Scanner.BatchDelay,
			SignificantProfitPct: cfg.Scanner.SignificantProfitPctDecimal(),
		}
		return app.NewOrchestrator(
			orchCfg,
			arbDI.GetDetector(sr),
			mdDI.GetBookCache(sr),
			governor,
			scanDI.GetStore(sr),
			scanDI.GetNotifier(sr),
			log,
		)
	})

	return nil
}

// Startup launches the background scan loop.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	orchestrator := scanDI.GetOrchestrator(mono.Services())
	orchestrator.Start(ctx)
	mono.Logger().Info(ctx, "scanner module started",
		"symbols", len(mono.Config().Scanner.Symbols),
		"interval", mono.Config().Scanner.Interval.String())
	return nil
}

// Close releases the database pool when one was opened.
func (m *Module) Close() {
	if m.pgClient != nil {
		m.pgClient.Close()
	}
}
