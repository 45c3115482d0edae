package app

import (
	"context"
	"sync"
	"time"

	"arbscan/business/marketdata/domain"
	"arbscan/internal/logger"
	"arbscan/internal/ratelimit"
)

// currencyTTL is deliberately long: deposit/withdraw status changes on
// the order of hours, not seconds.
const currencyTTL = time.Hour

// CurrencyDirectory caches per-source currency transfer status and
// answers whether a currency can move between two venues. All answers
// are best effort: an unavailable source yields "unknown", never an
// error.
type CurrencyDirectory struct {
	providers map[string]MarketDataProvider
	governor  *ratelimit.Governor
	logger    logger.LoggerInterface

	mu        sync.Mutex
	bySource  map[string]map[string]domain.CurrencyStatus
	fetchedAt map[string]time.Time
}

// NewCurrencyDirectory creates a CurrencyDirectory over the given
// providers.
func NewCurrencyDirectory(
	providers []MarketDataProvider,
	governor *ratelimit.Governor,
	log logger.LoggerInterface,
) *CurrencyDirectory {
	byID := make(map[string]MarketDataProvider, len(providers))
	for _, p := range providers {
		byID[p.Source()] = p
	}
	return &CurrencyDirectory{
		providers: byID,
		governor:  governor,
		logger:    log,
		bySource:  make(map[string]map[string]domain.CurrencyStatus),
		fetchedAt: make(map[string]time.Time),
	}
}

// TransferOK reports whether currency can be withdrawn from buySource
// and deposited at sellSource. Nil when either capability is unknown.
func (d *CurrencyDirectory) TransferOK(ctx context.Context, buySource, sellSource, currency string) *bool {
	buyStatus, buyOK := d.status(ctx, buySource, currency)
	sellStatus, sellOK := d.status(ctx, sellSource, currency)
	if !buyOK || !sellOK {
		return nil
	}
	if buyStatus.Withdraw == nil || sellStatus.Deposit == nil {
		return nil
	}
	ok := *buyStatus.Withdraw && *sellStatus.Deposit
	return &ok
}

func (d *CurrencyDirectory) status(ctx context.Context, source, currency string) (domain.CurrencyStatus, bool) {
	currencies := d.currencies(ctx, source)
	status, ok := currencies[currency]
	return status, ok
}

func (d *CurrencyDirectory) currencies(ctx context.Context, source string) map[string]domain.CurrencyStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cached, ok := d.bySource[source]; ok && time.Since(d.fetchedAt[source]) < currencyTTL {
		return cached
	}

	provider, ok := d.providers[source]
	if !ok {
		return nil
	}

	currencies, err := ratelimit.Do(ctx, d.governor, source, func(ctx context.Context) (map[string]domain.CurrencyStatus, error) {
		return provider.FetchCurrencies(ctx)
	})
	if err != nil {
		d.logger.Debug(ctx, "currency status unavailable", "source", source, "error", err)
		// Keep serving the stale map if one exists.
		return d.bySource[source]
	}

	d.bySource[source] = currencies
	d.fetchedAt[source] = time.Now()
	return currencies
}
