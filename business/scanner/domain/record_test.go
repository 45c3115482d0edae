package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	arbdomain "arbscan/business/arbitrage/domain"
)

func opp(symbol, buy, sell, netProfit string) arbdomain.Opportunity {
	net, err := decimal.NewFromString(netProfit)
	if err != nil {
		panic(err)
	}
	return arbdomain.Opportunity{
		Symbol:       symbol,
		BuySource:    buy,
		SellSource:   sell,
		NetProfitPct: net,
	}
}

func TestReconcile_NewPairCreatedActive(t *testing.T) {
	now := time.Now()
	result := Reconcile(nil, []arbdomain.Opportunity{opp("BTC/USDT", "a", "b", "2.5")}, now)

	if len(result.Upserts) != 1 {
		t.Fatalf("got %d upserts, want 1", len(result.Upserts))
	}
	r := result.Upserts[0]
	if r.Status != StatusActive {
		t.Errorf("status = %s, want active", r.Status)
	}
	if !r.FirstDetected.Equal(now) || !r.LastSeen.Equal(now) {
		t.Errorf("timestamps not set to now: %+v", r)
	}
	if !r.PeakNetProfitPct.Equal(decimal.NewFromFloat(2.5)) {
		t.Errorf("peak = %s, want 2.5", r.PeakNetProfitPct)
	}
	if len(result.ToAlert) != 1 {
		t.Fatalf("got %d alerts, want 1", len(result.ToAlert))
	}
}

func TestReconcile_ActivePairSeenAgainRaisesPeak(t *testing.T) {
	first := time.Now().Add(-time.Hour)
	existing := Reconcile(nil, []arbdomain.Opportunity{opp("BTC/USDT", "a", "b", "2.5")}, first).Upserts
	existing[0].AlertSent = true

	now := time.Now()
	result := Reconcile(existing, []arbdomain.Opportunity{opp("BTC/USDT", "a", "b", "3.1")}, now)

	if len(result.Upserts) != 1 {
		t.Fatalf("got %d upserts, want 1", len(result.Upserts))
	}
	r := result.Upserts[0]
	if r.Status != StatusActive {
		t.Errorf("status = %s, want active", r.Status)
	}
	if !r.PeakNetProfitPct.Equal(decimal.NewFromFloat(3.1)) {
		t.Errorf("peak = %s, want raised to 3.1", r.PeakNetProfitPct)
	}
	if !r.FirstDetected.Equal(first) {
		t.Errorf("first detected moved: %s", r.FirstDetected)
	}
	if !r.LastSeen.Equal(now) {
		t.Errorf("last seen = %s, want extended to now", r.LastSeen)
	}
	if len(result.ToAlert) != 0 {
		t.Fatalf("got %d alerts, want 0 (already flagged this streak)", len(result.ToAlert))
	}
}

func TestReconcile_PeakNeverLowered(t *testing.T) {
	first := time.Now().Add(-time.Hour)
	existing := Reconcile(nil, []arbdomain.Opportunity{opp("BTC/USDT", "a", "b", "4")}, first).Upserts

	result := Reconcile(existing, []arbdomain.Opportunity{opp("BTC/USDT", "a", "b", "2.2")}, time.Now())
	if !result.Upserts[0].PeakNetProfitPct.Equal(decimal.NewFromInt(4)) {
		t.Errorf("peak = %s, want kept at 4", result.Upserts[0].PeakNetProfitPct)
	}
}

func TestReconcile_AbsentActivePairCleared(t *testing.T) {
	first := time.Now().Add(-time.Hour)
	existing := Reconcile(nil, []arbdomain.Opportunity{opp("BTC/USDT", "a", "b", "2.5")}, first).Upserts

	now := time.Now()
	result := Reconcile(existing, nil, now)

	if len(result.Upserts) != 1 {
		t.Fatalf("got %d upserts, want 1", len(result.Upserts))
	}
	r := result.Upserts[0]
	if r.Status != StatusCleared {
		t.Errorf("status = %s, want cleared", r.Status)
	}
	if r.ClearedAt == nil || !r.ClearedAt.Equal(now) {
		t.Errorf("cleared at = %v, want now", r.ClearedAt)
	}
	if len(result.ToAlert) != 0 {
		t.Fatalf("got %d alerts, want 0", len(result.ToAlert))
	}
}

func TestReconcile_ClearedPairReactivates(t *testing.T) {
	start := time.Now().Add(-2 * time.Hour)
	records := Reconcile(nil, []arbdomain.Opportunity{opp("BTC/USDT", "a", "b", "2.5")}, start).Upserts
	records[0].AlertSent = true

	clearTime := time.Now().Add(-time.Hour)
	records = Reconcile(records, nil, clearTime).Upserts

	now := time.Now()
	result := Reconcile(records, []arbdomain.Opportunity{opp("BTC/USDT", "a", "b", "2.8")}, now)

	if len(result.Upserts) != 1 {
		t.Fatalf("got %d upserts, want 1", len(result.Upserts))
	}
	r := result.Upserts[0]
	if r.Status != StatusActive {
		t.Errorf("status = %s, want active", r.Status)
	}
	if r.AlertSent {
		t.Error("alert flag not reset on reactivation")
	}
	if r.ClearedAt != nil {
		t.Errorf("cleared at = %v, want nil", r.ClearedAt)
	}
	if !r.FirstDetected.Equal(now) {
		t.Errorf("first detected = %s, want reset to now", r.FirstDetected)
	}
	if len(result.ToAlert) != 1 {
		t.Fatalf("got %d alerts, want 1 for the new streak", len(result.ToAlert))
	}
}

func TestReconcile_ClearedPairStaysClearedWhenAbsent(t *testing.T) {
	start := time.Now().Add(-2 * time.Hour)
	records := Reconcile(nil, []arbdomain.Opportunity{opp("BTC/USDT", "a", "b", "2.5")}, start).Upserts
	records = Reconcile(records, nil, time.Now().Add(-time.Hour)).Upserts

	result := Reconcile(records, nil, time.Now())
	if len(result.Upserts) != 0 {
		t.Fatalf("got %d upserts, want 0 (already cleared, nothing to do)", len(result.Upserts))
	}
}

func TestReconcile_IndependentPairs(t *testing.T) {
	start := time.Now().Add(-time.Hour)
	records := Reconcile(nil, []arbdomain.Opportunity{
		opp("BTC/USDT", "a", "b", "2.5"),
		opp("ETH/USDT", "a", "b", "3.0"),
	}, start).Upserts

	// Only BTC persists this cycle; ETH must clear.
	now := time.Now()
	result := Reconcile(records, []arbdomain.Opportunity{opp("BTC/USDT", "a", "b", "2.6")}, now)

	statuses := make(map[string]Status)
	for _, r := range result.Upserts {
		statuses[r.Key] = r.Status
	}
	if statuses["BTC/USDT|a|b"] != StatusActive {
		t.Errorf("BTC status = %s, want active", statuses["BTC/USDT|a|b"])
	}
	if statuses["ETH/USDT|a|b"] != StatusCleared {
		t.Errorf("ETH status = %s, want cleared", statuses["ETH/USDT|a|b"])
	}
}
