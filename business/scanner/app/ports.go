// Package app contains the scan orchestrator for the scanner context.
package app

import (
	"context"

	arbdomain "arbscan/business/arbitrage/domain"
	"arbscan/business/scanner/domain"
)

// StatusFilter selects records for listing.
type StatusFilter string

const (
	FilterActive  StatusFilter = "active"
	FilterCleared StatusFilter = "cleared"
	FilterAll     StatusFilter = "all"
)

// StatusCounts summarizes the record set.
type StatusCounts struct {
	Active  int
	Cleared int
	Total   int
}

// OpportunityStore persists opportunity lifecycle records. Upserts
// within one scan are issued sequentially, so implementations need no
// internal ordering guarantees beyond per-call atomicity.
type OpportunityStore interface {
	// Upsert creates or replaces the record under its key.
	Upsert(ctx context.Context, record domain.Record) error

	// List returns records matching the filter, ordered by first-detected
	// descending.
	List(ctx context.Context, filter StatusFilter) ([]domain.Record, error)

	// MarkAlerted sets the alert-sent flag for the given keys.
	MarkAlerted(ctx context.Context, keys []string) error

	// Counts returns status count summaries.
	Counts(ctx context.Context) (StatusCounts, error)
}

// Notifier delivers significant-opportunity alerts. Fire and forget:
// failures are logged by the orchestrator and never fail a scan.
type Notifier interface {
	NotifySignificant(ctx context.Context, records []domain.Record) error
}

// SymbolDetector finds opportunities for one symbol. Satisfied by the
// arbitrage detector.
type SymbolDetector interface {
	DetectSymbol(ctx context.Context, symbol string) []arbdomain.Opportunity
}
