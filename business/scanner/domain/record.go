// Package domain holds the persisted opportunity lifecycle for the
// scanner context.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	arbdomain "arbscan/business/arbitrage/domain"
)

// Status of a persisted opportunity record.
type Status string

const (
	StatusActive  Status = "active"
	StatusCleared Status = "cleared"
)

// Record is the durable lifecycle wrapper around an opportunity pairing.
// Keyed by (symbol, buy source, sell source); snapshot fields mirror the
// latest detection.
type Record struct {
	ID  uuid.UUID
	Key string // symbol|buySource|sellSource

	Snapshot arbdomain.Opportunity

	PeakNetProfitPct decimal.Decimal
	Status           Status
	FirstDetected    time.Time
	LastSeen         time.Time
	ClearedAt        *time.Time
	AlertSent        bool
}

// ReconcileResult is what one scan cycle does to the record set.
type ReconcileResult struct {
	// Upserts holds every record created or mutated this cycle,
	// including newly cleared ones.
	Upserts []Record

	// ToAlert holds records that are new or reactivated this cycle and
	// have not been alerted during their current active streak.
	ToAlert []Record
}

// Reconcile applies one scan cycle's significant opportunities to the
// existing record set. Pure: callers persist the result. Rules:
//
//   - unseen pair           -> created active
//   - active pair seen      -> snapshot refreshed, last-seen extended,
//     peak raised when exceeded
//   - cleared pair seen     -> reactivated: first-detected and alert
//     flag reset
//   - active pair not seen  -> cleared with a clear timestamp
func Reconcile(existing []Record, significant []arbdomain.Opportunity, now time.Time) ReconcileResult {
	byKey := make(map[string]Record, len(existing))
	for _, r := range existing {
		byKey[r.Key] = r
	}

	var result ReconcileResult
	seen := make(map[string]bool, len(significant))

	for _, opp := range significant {
		key := opp.Key()
		seen[key] = true

		record, exists := byKey[key]
		switch {
		case !exists:
			record = Record{
				ID:               uuid.New(),
				Key:              key,
				Snapshot:         opp,
				PeakNetProfitPct: opp.NetProfitPct,
				Status:           StatusActive,
				FirstDetected:    now,
				LastSeen:         now,
			}
			result.ToAlert = append(result.ToAlert, record)

		case record.Status == StatusCleared:
			// Reappearance after clearing starts a new streak.
			record.Snapshot = opp
			record.PeakNetProfitPct = opp.NetProfitPct
			record.Status = StatusActive
			record.FirstDetected = now
			record.LastSeen = now
			record.ClearedAt = nil
			record.AlertSent = false
			result.ToAlert = append(result.ToAlert, record)

		default:
			record.Snapshot = opp
			record.LastSeen = now
			if opp.NetProfitPct.GreaterThan(record.PeakNetProfitPct) {
				record.PeakNetProfitPct = opp.NetProfitPct
			}
			if !record.AlertSent {
				result.ToAlert = append(result.ToAlert, record)
			}
		}

		result.Upserts = append(result.Upserts, record)
	}

	// Anything still active but absent this cycle is cleared.
	for _, r := range existing {
		if r.Status != StatusActive || seen[r.Key] {
			continue
		}
		clearedAt := now
		r.Status = StatusCleared
		r.ClearedAt = &clearedAt
		result.Upserts = append(result.Upserts, r)
	}

	return result
}
