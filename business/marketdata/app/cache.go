// Package app contains application services and port definitions for the
// marketdata context.
package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"arbscan/business/marketdata/domain"
	"arbscan/internal/apm"
	"arbscan/internal/apperror"
	"arbscan/internal/circuitbreaker"
	"arbscan/internal/logger"
	"arbscan/internal/ratelimit"
)

const tracerName = "arbscan/business/marketdata/app"

// BookCacheConfig holds cache settings.
type BookCacheConfig struct {
	TTL time.Duration // entry lifetime; order books go stale in seconds

	// TickerSanityPct rejects a fetched book as malformed when its mid
	// deviates from the venue ticker last price by more than this percent.
	// Zero disables the check. The ticker is advisory: if the ticker fetch
	// itself fails, the book is accepted.
	TickerSanityPct decimal.Decimal
}

// CacheStats is a point-in-time view of cache effectiveness.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Entries   int
	OldestAge time.Duration
}

type bookKey struct {
	source string
	symbol string
}

type bookEntry struct {
	book      *domain.OrderBook
	fetchedAt time.Time
}

// BookCache is a short-TTL cache of normalized order books keyed by
// (source, symbol). Misses fetch through the rate governor and a
// per-source circuit breaker; a failed fetch is returned as an error, a
// stale entry is never served past its TTL.
type BookCache struct {
	cfg       BookCacheConfig
	providers map[string]MarketDataProvider
	governor  *ratelimit.Governor
	logger    logger.LoggerInterface

	mu      sync.RWMutex
	entries map[bookKey]bookEntry

	breakersMu sync.Mutex
	breakers   map[string]*circuitbreaker.CircuitBreaker[*domain.RawBook]

	hits   atomic.Int64
	misses atomic.Int64

	lookupCounter metric.Int64Counter

	tracer apm.Tracer
}

// NewBookCache creates a BookCache over the given providers.
func NewBookCache(
	cfg BookCacheConfig,
	providers []MarketDataProvider,
	governor *ratelimit.Governor,
	log logger.LoggerInterface,
) *BookCache {
	byID := make(map[string]MarketDataProvider, len(providers))
	for _, p := range providers {
		byID[p.Source()] = p
	}

	lookupCounter, _ := otel.Meter(tracerName).Int64Counter("bookcache_lookups_total",
		metric.WithDescription("Order book cache lookups by outcome"))

	return &BookCache{
		cfg:           cfg,
		providers:     byID,
		governor:      governor,
		logger:        log,
		entries:       make(map[bookKey]bookEntry),
		breakers:      make(map[string]*circuitbreaker.CircuitBreaker[*domain.RawBook]),
		lookupCounter: lookupCounter,
		tracer:        apm.NewTracer(tracerName),
	}
}

// Sources returns the ids of all registered providers.
func (c *BookCache) Sources() []string {
	out := make([]string, 0, len(c.providers))
	for id := range c.providers {
		out = append(out, id)
	}
	return out
}

// Get returns the normalized book for (source, symbol), fetching from the
// provider on a miss or an expired entry.
func (c *BookCache) Get(ctx context.Context, source, symbol string, depth int) (*domain.OrderBook, error) {
	ctx, span := c.tracer.StartSpanFromContext(ctx, "bookcache.get",
		trace.WithAttributes(
			attribute.String("source", source),
			attribute.String("symbol", symbol),
		),
	)
	defer span.End()

	key := bookKey{source: source, symbol: symbol}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && time.Since(entry.fetchedAt) < c.cfg.TTL {
		c.hits.Add(1)
		c.lookupCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "hit")))
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return entry.book, nil
	}

	c.misses.Add(1)
	c.lookupCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "miss")))
	span.SetAttributes(attribute.Bool("cache.hit", false))

	book, err := c.fetch(ctx, source, symbol, depth)
	if err != nil {
		span.NoticeError(err)
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = bookEntry{book: book, fetchedAt: book.FetchedAt}
	c.mu.Unlock()

	return book, nil
}

// fetch pulls a raw book through the breaker and governor, normalizes it,
// and applies the optional ticker sanity check.
func (c *BookCache) fetch(ctx context.Context, source, symbol string, depth int) (*domain.OrderBook, error) {
	provider, ok := c.providers[source]
	if !ok {
		return nil, apperror.New(apperror.CodeNotFound,
			apperror.WithContext(fmt.Sprintf("no provider for source %q", source)))
	}

	breaker := c.breaker(source)

	raw, err := breaker.Execute(func() (*domain.RawBook, error) {
		return ratelimit.Do(ctx, c.governor, source, func(ctx context.Context) (*domain.RawBook, error) {
			return provider.FetchOrderBook(ctx, symbol, depth)
		})
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	book, err := domain.Normalize(source, symbol, raw.Bids, raw.Asks, now)
	if err != nil {
		return nil, err
	}

	if c.cfg.TickerSanityPct.IsPositive() {
		if err := c.tickerSanity(ctx, provider, book); err != nil {
			return nil, err
		}
	}

	return book, nil
}

// tickerSanity cross-checks the book mid against the venue ticker. A
// failed ticker fetch is logged and ignored.
func (c *BookCache) tickerSanity(ctx context.Context, provider MarketDataProvider, book *domain.OrderBook) error {
	ticker, err := ratelimit.Do(ctx, c.governor, book.Source, func(ctx context.Context) (*domain.Ticker, error) {
		return provider.FetchTicker(ctx, book.Symbol)
	})
	if err != nil {
		c.logger.Debug(ctx, "ticker sanity check skipped", "source", book.Source, "symbol", book.Symbol, "error", err)
		return nil
	}
	if !ticker.Last.IsPositive() {
		return nil
	}

	deviation := book.Mid.Sub(ticker.Last).Abs().Div(ticker.Last).Mul(decimal.NewFromInt(100))
	if deviation.GreaterThan(c.cfg.TickerSanityPct) {
		return apperror.New(apperror.CodeMalformedBook,
			apperror.WithContext(fmt.Sprintf("%s %s: mid %s deviates %s%% from ticker last %s",
				book.Source, book.Symbol, book.Mid, deviation.StringFixed(1), ticker.Last)))
	}
	return nil
}

// breaker returns the per-source circuit breaker, creating it on first use.
func (c *BookCache) breaker(source string) *circuitbreaker.CircuitBreaker[*domain.RawBook] {
	c.breakersMu.Lock()
	defer c.breakersMu.Unlock()

	if b, ok := c.breakers[source]; ok {
		return b
	}

	cfg := circuitbreaker.DefaultConfig("marketdata-" + source)
	cfg.OnStateChange = func(name string, from, to gobreaker.State) {
		c.logger.Warn(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}

	b := circuitbreaker.New[*domain.RawBook](cfg)
	c.breakers[source] = b
	return b
}

// Clear drops every cached entry so the next scan cycle starts from a
// genuinely fresh view.
func (c *BookCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[bookKey]bookEntry)
	c.mu.Unlock()
}

// Stats returns hit/miss counters and entry age information.
func (c *BookCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: len(c.entries),
	}
	now := time.Now()
	for _, e := range c.entries {
		if age := now.Sub(e.fetchedAt); age > stats.OldestAge {
			stats.OldestAge = age
		}
	}
	return stats
}
