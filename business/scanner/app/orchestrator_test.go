package app_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	arbdomain "arbscan/business/arbitrage/domain"
	mdapp "arbscan/business/marketdata/app"
	"arbscan/business/scanner/app"
	"arbscan/business/scanner/domain"
	"arbscan/business/scanner/infra/memory"
	"arbscan/internal/apperror"
	"arbscan/internal/logger"
	"arbscan/internal/ratelimit"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testOpp(symbol, netProfit string) arbdomain.Opportunity {
	return arbdomain.Opportunity{
		Symbol:         symbol,
		BuySource:      "cheap",
		SellSource:     "rich",
		NetProfitPct:   dec(netProfit),
		ExpectedProfit: dec(netProfit).Mul(dec("10")),
		DetectedAt:     time.Now(),
	}
}

type fakeDetector struct {
	mu      sync.Mutex
	bySym   map[string][]arbdomain.Opportunity
	block   chan struct{} // when set, DetectSymbol blocks until closed
	started chan struct{} // signalled once a blocked detect begins
}

func (f *fakeDetector) DetectSymbol(_ context.Context, symbol string) []arbdomain.Opportunity {
	if f.block != nil {
		f.started <- struct{}{}
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bySym[symbol]
}

func (f *fakeDetector) set(symbol string, opps ...arbdomain.Opportunity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bySym == nil {
		f.bySym = make(map[string][]arbdomain.Opportunity)
	}
	f.bySym[symbol] = opps
}

type fakeCache struct {
	clears atomic.Int64
}

func (f *fakeCache) Clear() { f.clears.Add(1) }

func (f *fakeCache) Stats() mdapp.CacheStats { return mdapp.CacheStats{} }

type fakeNotifier struct {
	mu      sync.Mutex
	batches [][]domain.Record
	fail    bool
}

func (f *fakeNotifier) NotifySignificant(_ context.Context, records []domain.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("webhook down")
	}
	f.batches = append(f.batches, records)
	return nil
}

func (f *fakeNotifier) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type failingStore struct {
	app.OpportunityStore
	failList bool
}

func (f *failingStore) List(ctx context.Context, filter app.StatusFilter) ([]domain.Record, error) {
	if f.failList {
		return nil, errors.New("connection refused")
	}
	return f.OpportunityStore.List(ctx, filter)
}

func newOrchestrator(detector app.SymbolDetector, store app.OpportunityStore, notifier app.Notifier) (*app.Orchestrator, *fakeCache) {
	cfg := app.OrchestratorConfig{
		Symbols:              []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"},
		Interval:             time.Hour,
		BatchSize:            2,
		BatchDelay:           0,
		SignificantProfitPct: dec("2"),
	}
	cache := &fakeCache{}
	log := logger.New(io.Discard, logger.LevelInfo, "test", nil)
	governor := ratelimit.NewGovernor(ratelimit.DefaultGovernorConfig())
	return app.NewOrchestrator(cfg, detector, cache, governor, store, notifier, log), cache
}

func TestScan_PopulatesSnapshot(t *testing.T) {
	detector := &fakeDetector{}
	detector.set("BTC/USDT", testOpp("BTC/USDT", "1.5"))
	detector.set("ETH/USDT", testOpp("ETH/USDT", "3.0"))
	o, cache := newOrchestrator(detector, memory.NewStore(), nil)

	if o.GetCached().Ready {
		t.Fatal("snapshot ready before any scan")
	}

	if err := o.Scan(context.Background()); err != nil {
		t.Fatalf("scan: %v", err)
	}

	snap := o.GetCached()
	if !snap.Ready {
		t.Fatal("snapshot not ready after scan")
	}
	if len(snap.Opportunities) != 2 {
		t.Fatalf("got %d opportunities, want 2", len(snap.Opportunities))
	}
	// Sorted by expected profit descending: ETH (3.0) first.
	if snap.Opportunities[0].Symbol != "ETH/USDT" {
		t.Errorf("first opportunity = %s, want ETH/USDT", snap.Opportunities[0].Symbol)
	}
	if snap.Error != "" {
		t.Errorf("error = %q, want empty", snap.Error)
	}
	if cache.clears.Load() != 1 {
		t.Errorf("cache clears = %d, want 1", cache.clears.Load())
	}
}

func TestScan_RejectsReentrantScan(t *testing.T) {
	detector := &fakeDetector{
		block:   make(chan struct{}),
		started: make(chan struct{}, 3),
	}
	o, _ := newOrchestrator(detector, memory.NewStore(), nil)

	done := make(chan error, 1)
	go func() { done <- o.Scan(context.Background()) }()
	<-detector.started // first scan is inside DetectSymbol

	err := o.Scan(context.Background())
	if apperror.GetCode(err) != apperror.CodeScanInFlight {
		t.Fatalf("error = %v, want scan in flight", err)
	}

	close(detector.block)
	if err := <-done; err != nil {
		t.Fatalf("first scan: %v", err)
	}
}

func TestScan_SignificantLifecycle(t *testing.T) {
	detector := &fakeDetector{}
	detector.set("BTC/USDT", testOpp("BTC/USDT", "2.5"))
	detector.set("ETH/USDT", testOpp("ETH/USDT", "1.0")) // below 2% threshold
	store := memory.NewStore()
	o, _ := newOrchestrator(detector, store, nil)

	ctx := context.Background()
	if err := o.Scan(ctx); err != nil {
		t.Fatalf("scan 1: %v", err)
	}

	records, counts, err := o.ListRecords(ctx, app.FilterAll)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if counts.Active != 1 || counts.Total != 1 {
		t.Fatalf("counts = %+v, want 1 active of 1 (ETH below threshold)", counts)
	}
	if records[0].Snapshot.Symbol != "BTC/USDT" {
		t.Fatalf("persisted %s, want BTC/USDT", records[0].Snapshot.Symbol)
	}

	// BTC disappears: record must clear.
	detector.set("BTC/USDT")
	if err := o.Scan(ctx); err != nil {
		t.Fatalf("scan 2: %v", err)
	}
	records, counts, _ = o.ListRecords(ctx, app.FilterAll)
	if counts.Cleared != 1 || counts.Active != 0 {
		t.Fatalf("counts = %+v, want 1 cleared", counts)
	}
	if records[0].ClearedAt == nil {
		t.Fatal("cleared record has nil cleared time")
	}

	// BTC reappears: record reactivates.
	detector.set("BTC/USDT", testOpp("BTC/USDT", "2.2"))
	if err := o.Scan(ctx); err != nil {
		t.Fatalf("scan 3: %v", err)
	}
	_, counts, _ = o.ListRecords(ctx, app.FilterAll)
	if counts.Active != 1 || counts.Cleared != 0 {
		t.Fatalf("counts = %+v, want reactivated", counts)
	}
}

func TestScan_AlertsOncePerStreak(t *testing.T) {
	detector := &fakeDetector{}
	detector.set("BTC/USDT", testOpp("BTC/USDT", "2.5"))
	notifier := &fakeNotifier{}
	o, _ := newOrchestrator(detector, memory.NewStore(), notifier)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := o.Scan(ctx); err != nil {
			t.Fatalf("scan %d: %v", i+1, err)
		}
	}
	if got := notifier.batchCount(); got != 1 {
		t.Fatalf("alert batches = %d, want 1 for a continuous streak", got)
	}

	// Clear then reactivate: a new streak earns a new alert.
	detector.set("BTC/USDT")
	if err := o.Scan(ctx); err != nil {
		t.Fatalf("clearing scan: %v", err)
	}
	detector.set("BTC/USDT", testOpp("BTC/USDT", "2.7"))
	if err := o.Scan(ctx); err != nil {
		t.Fatalf("reactivating scan: %v", err)
	}
	if got := notifier.batchCount(); got != 2 {
		t.Fatalf("alert batches = %d, want 2 after reactivation", got)
	}
}

func TestScan_NotifierFailureDoesNotFailScan(t *testing.T) {
	detector := &fakeDetector{}
	detector.set("BTC/USDT", testOpp("BTC/USDT", "2.5"))
	notifier := &fakeNotifier{fail: true}
	o, _ := newOrchestrator(detector, memory.NewStore(), notifier)

	ctx := context.Background()
	if err := o.Scan(ctx); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if snap := o.GetCached(); snap.Error != "" {
		t.Errorf("snapshot error = %q, want empty", snap.Error)
	}

	// Delivery failed, so the record stays unflagged and the next scan
	// retries the alert.
	notifier.fail = false
	if err := o.Scan(ctx); err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if got := notifier.batchCount(); got != 1 {
		t.Fatalf("alert batches = %d, want 1 retry delivery", got)
	}
}

func TestScan_StoreFailureKeepsPreviousSnapshot(t *testing.T) {
	detector := &fakeDetector{}
	detector.set("BTC/USDT", testOpp("BTC/USDT", "2.5"))
	store := &failingStore{OpportunityStore: memory.NewStore()}
	o, _ := newOrchestrator(detector, store, nil)

	ctx := context.Background()
	if err := o.Scan(ctx); err != nil {
		t.Fatalf("scan 1: %v", err)
	}
	firstUpdate := o.GetCached().LastUpdate

	store.failList = true
	if err := o.Scan(ctx); err == nil {
		t.Fatal("expected scan failure")
	}

	snap := o.GetCached()
	if snap.Error == "" {
		t.Error("snapshot error not surfaced")
	}
	if !snap.LastUpdate.Equal(firstUpdate) {
		t.Error("previous snapshot not preserved")
	}
	if len(snap.Opportunities) != 1 {
		t.Errorf("got %d opportunities, want previous snapshot's 1", len(snap.Opportunities))
	}
}

func TestRefreshNow_ReturnsFreshSnapshot(t *testing.T) {
	detector := &fakeDetector{}
	detector.set("BTC/USDT", testOpp("BTC/USDT", "1.5"))
	o, _ := newOrchestrator(detector, memory.NewStore(), nil)

	snap, err := o.RefreshNow(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !snap.Ready || len(snap.Opportunities) != 1 {
		t.Fatalf("snapshot = %+v, want ready with 1 opportunity", snap)
	}
}

func TestServiceStats_CountsScans(t *testing.T) {
	detector := &fakeDetector{}
	o, _ := newOrchestrator(detector, memory.NewStore(), nil)

	ctx := context.Background()
	o.Scan(ctx)
	o.Scan(ctx)

	stats := o.ServiceStats()
	if stats.ScansCompleted != 2 {
		t.Errorf("scans completed = %d, want 2", stats.ScansCompleted)
	}
	if stats.SymbolCount != 3 {
		t.Errorf("symbol count = %d, want 3", stats.SymbolCount)
	}
}
