package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	arbapp "arbscan/business/arbitrage/app"
	arbdomain "arbscan/business/arbitrage/domain"
	mdapp "arbscan/business/marketdata/app"
	"arbscan/business/scanner/domain"
	"arbscan/internal/apm"
	"arbscan/internal/apperror"
	"arbscan/internal/logger"
	"arbscan/internal/ratelimit"
)

const tracerName = "arbscan/business/scanner/app"

// OrchestratorConfig holds scan scheduling and persistence settings.
type OrchestratorConfig struct {
	Symbols              []string
	Interval             time.Duration
	BatchSize            int
	BatchDelay           time.Duration
	SignificantProfitPct decimal.Decimal
}

// BookCacheControl is the slice of the order book cache the orchestrator
// needs: a fresh view per scan and stats for observability.
type BookCacheControl interface {
	Clear()
	Stats() mdapp.CacheStats
}

// Snapshot is the queryable result of the latest completed scan.
type Snapshot struct {
	Opportunities []arbdomain.Opportunity
	LastUpdate    time.Time
	IsScanning    bool
	Error         string
	NextScan      time.Time
	Ready         bool
}

// ServiceStats aggregates scan counters, cache stats, and per-source
// rate limit status.
type ServiceStats struct {
	ScansCompleted   int64
	ScansFailed      int64
	LastScanDuration time.Duration
	SymbolCount      int
	Cache            mdapp.CacheStats
	Sources          map[string]ratelimit.SourceStatus
}

// Orchestrator runs the detector across the symbol universe on a fixed
// interval, maintains the latest-scan snapshot, and drives the persisted
// opportunity lifecycle. Re-entrant scans are rejected, not queued.
type Orchestrator struct {
	cfg      OrchestratorConfig
	detector SymbolDetector
	cache    BookCacheControl
	governor *ratelimit.Governor
	store    OpportunityStore
	notifier Notifier
	logger   logger.LoggerInterface
	tracer   apm.Tracer

	scanCounter  metric.Int64Counter
	scanDuration metric.Float64Histogram
	oppsGauge    metric.Int64Gauge

	scanning atomic.Bool

	mu          sync.RWMutex
	current     []arbdomain.Opportunity
	lastUpdate  time.Time
	lastErr     string
	nextScan    time.Time
	ready       bool
	lastElapsed time.Duration

	scansCompleted atomic.Int64
	scansFailed    atomic.Int64
}

// NewOrchestrator creates an Orchestrator. notifier may be nil to
// disable alerting.
func NewOrchestrator(
	cfg OrchestratorConfig,
	detector SymbolDetector,
	cache BookCacheControl,
	governor *ratelimit.Governor,
	store OpportunityStore,
	notifier Notifier,
	log logger.LoggerInterface,
) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}

	meter := otel.Meter(tracerName)
	scanCounter, _ := meter.Int64Counter("scanner_scans_total",
		metric.WithDescription("Total number of scan cycles by result"))
	scanDuration, _ := meter.Float64Histogram("scanner_scan_duration_seconds",
		metric.WithDescription("Wall time of one full scan cycle"))
	oppsGauge, _ := meter.Int64Gauge("scanner_opportunities",
		metric.WithDescription("Opportunities found by the latest scan"))

	return &Orchestrator{
		cfg:          cfg,
		detector:     detector,
		cache:        cache,
		governor:     governor,
		store:        store,
		notifier:     notifier,
		logger:       log,
		tracer:       apm.NewTracer(tracerName),
		scanCounter:  scanCounter,
		scanDuration: scanDuration,
		oppsGauge:    oppsGauge,
	}
}

// Start launches the background scan loop: one immediate scan, then one
// per interval until ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) {
	go func() {
		o.runScan(ctx)

		ticker := time.NewTicker(o.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				o.logger.Info(ctx, "scan loop stopped")
				return
			case <-ticker.C:
				o.runScan(ctx)
			}
		}
	}()
}

// runScan executes one scan and logs the outcome. An in-flight scan
// makes this a no-op.
func (o *Orchestrator) runScan(ctx context.Context) {
	if err := o.Scan(ctx); err != nil {
		if apperror.GetCode(err) == apperror.CodeScanInFlight {
			o.logger.Debug(ctx, "scan already in flight, skipping")
			return
		}
		o.logger.Error(ctx, "scan failed", "error", err)
	}
}

// Scan runs one full scan cycle. Returns a scan-in-flight error when
// another scan is already running.
func (o *Orchestrator) Scan(ctx context.Context) error {
	if !o.scanning.CompareAndSwap(false, true) {
		return apperror.New(apperror.CodeScanInFlight)
	}
	defer o.scanning.Store(false)

	ctx, span := o.tracer.StartSpanFromContext(ctx, "scanner.scan",
		trace.WithAttributes(attribute.Int("symbols", len(o.cfg.Symbols))))
	defer span.End()

	started := time.Now()

	// Every symbol in this cycle sees genuinely fresh books.
	o.cache.Clear()

	found := o.detectAll(ctx)
	arbapp.SortByExpectedProfit(found)

	if err := o.persist(ctx, found, started); err != nil {
		span.NoticeError(err)
		o.scansFailed.Add(1)
		o.scanCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "failed")))
		o.recordFailure(err, started)
		return err
	}

	o.scansCompleted.Add(1)
	o.scanCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "completed")))
	o.scanDuration.Record(ctx, time.Since(started).Seconds())
	o.oppsGauge.Record(ctx, int64(len(found)))
	o.recordSuccess(found, started)

	o.logger.Info(ctx, "scan completed",
		"opportunities", len(found),
		"symbols", len(o.cfg.Symbols),
		"elapsed", time.Since(started).String())
	span.SetAttributes(attribute.Int("opportunities", len(found)))
	return nil
}

// detectAll fans symbols out in fixed-size batches with a small delay
// between batches to smooth burstiness across all sources at once.
func (o *Orchestrator) detectAll(ctx context.Context) []arbdomain.Opportunity {
	results := make([][]arbdomain.Opportunity, len(o.cfg.Symbols))

	for start := 0; start < len(o.cfg.Symbols); start += o.cfg.BatchSize {
		end := start + o.cfg.BatchSize
		if end > len(o.cfg.Symbols) {
			end = len(o.cfg.Symbols)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = o.detector.DetectSymbol(gctx, o.cfg.Symbols[i])
				return nil
			})
		}
		// DetectSymbol never returns an error; Wait only joins the batch.
		_ = g.Wait()

		if end < len(o.cfg.Symbols) && o.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return flatten(results)
			case <-time.After(o.cfg.BatchDelay):
			}
		}
	}
	return flatten(results)
}

func flatten(results [][]arbdomain.Opportunity) []arbdomain.Opportunity {
	var out []arbdomain.Opportunity
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

// persist runs the significant-opportunity lifecycle: reconcile against
// the stored record set, upsert sequentially, then alert exactly once
// per active streak. Notifier failures are logged, never returned.
func (o *Orchestrator) persist(ctx context.Context, found []arbdomain.Opportunity, now time.Time) error {
	var significant []arbdomain.Opportunity
	for _, opp := range found {
		if opp.NetProfitPct.GreaterThanOrEqual(o.cfg.SignificantProfitPct) {
			significant = append(significant, opp)
		}
	}

	existing, err := o.store.List(ctx, FilterAll)
	if err != nil {
		return apperror.New(apperror.CodeStoreError, apperror.WithCause(err))
	}

	result := domain.Reconcile(existing, significant, now)
	for _, record := range result.Upserts {
		if err := o.store.Upsert(ctx, record); err != nil {
			return apperror.New(apperror.CodeStoreError, apperror.WithCause(err))
		}
	}

	if o.notifier == nil || len(result.ToAlert) == 0 {
		return nil
	}
	if err := o.notifier.NotifySignificant(ctx, result.ToAlert); err != nil {
		o.logger.Warn(ctx, "alert delivery failed", "records", len(result.ToAlert), "error", err)
		return nil
	}

	keys := make([]string, len(result.ToAlert))
	for i, r := range result.ToAlert {
		keys[i] = r.Key
	}
	if err := o.store.MarkAlerted(ctx, keys); err != nil {
		o.logger.Warn(ctx, "failed to mark records alerted", "error", err)
	}
	return nil
}

func (o *Orchestrator) recordSuccess(found []arbdomain.Opportunity, started time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.current = found
	o.lastUpdate = time.Now()
	o.lastErr = ""
	o.nextScan = time.Now().Add(o.cfg.Interval)
	o.ready = true
	o.lastElapsed = time.Since(started)
}

// recordFailure keeps the previous snapshot servable and surfaces the
// error via GetCached.
func (o *Orchestrator) recordFailure(err error, started time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastErr = err.Error()
	o.nextScan = time.Now().Add(o.cfg.Interval)
	o.lastElapsed = time.Since(started)
}

// GetCached returns the latest snapshot with staleness metadata. Ready
// is false until the first scan has completed.
func (o *Orchestrator) GetCached() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Snapshot{
		Opportunities: o.current,
		LastUpdate:    o.lastUpdate,
		IsScanning:    o.scanning.Load(),
		Error:         o.lastErr,
		NextScan:      o.nextScan,
		Ready:         o.ready,
	}
}

// Ready reports whether at least one scan has completed.
func (o *Orchestrator) Ready() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.ready
}

// RefreshNow forces a scan and returns the resulting snapshot. When a
// scan is already running it fails fast with the current snapshot.
func (o *Orchestrator) RefreshNow(ctx context.Context) (Snapshot, error) {
	if err := o.Scan(ctx); err != nil {
		return o.GetCached(), err
	}
	return o.GetCached(), nil
}

// ServiceStats returns scan counters, cache stats, and per-source rate
// limit status.
func (o *Orchestrator) ServiceStats() ServiceStats {
	o.mu.RLock()
	elapsed := o.lastElapsed
	o.mu.RUnlock()

	return ServiceStats{
		ScansCompleted:   o.scansCompleted.Load(),
		ScansFailed:      o.scansFailed.Load(),
		LastScanDuration: elapsed,
		SymbolCount:      len(o.cfg.Symbols),
		Cache:            o.cache.Stats(),
		Sources:          o.governor.Status(),
	}
}

// ListRecords exposes the persisted-opportunity query surface.
func (o *Orchestrator) ListRecords(ctx context.Context, filter StatusFilter) ([]domain.Record, StatusCounts, error) {
	records, err := o.store.List(ctx, filter)
	if err != nil {
		return nil, StatusCounts{}, apperror.New(apperror.CodeStoreError, apperror.WithCause(err))
	}
	counts, err := o.store.Counts(ctx)
	if err != nil {
		return nil, StatusCounts{}, apperror.New(apperror.CodeStoreError, apperror.WithCause(err))
	}
	return records, counts, nil
}
