// Package memory provides an in-process opportunity store. Used when no
// database is configured and as the reference implementation in tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"arbscan/business/scanner/app"
	"arbscan/business/scanner/domain"
)

// Store keeps lifecycle records in a map keyed by record key.
type Store struct {
	mu      sync.RWMutex
	records map[string]domain.Record
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[string]domain.Record)}
}

// Upsert creates or replaces the record under its key.
func (s *Store) Upsert(_ context.Context, record domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Key] = record
	return nil
}

// List returns records matching the filter, ordered by first-detected
// descending.
func (s *Store) List(_ context.Context, filter app.StatusFilter) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Record, 0, len(s.records))
	for _, r := range s.records {
		switch filter {
		case app.FilterActive:
			if r.Status != domain.StatusActive {
				continue
			}
		case app.FilterCleared:
			if r.Status != domain.StatusCleared {
				continue
			}
		}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstDetected.Equal(out[j].FirstDetected) {
			return out[i].Key < out[j].Key
		}
		return out[i].FirstDetected.After(out[j].FirstDetected)
	})
	return out, nil
}

// MarkAlerted sets the alert-sent flag for the given keys.
func (s *Store) MarkAlerted(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		if r, ok := s.records[key]; ok {
			r.AlertSent = true
			s.records[key] = r
		}
	}
	return nil
}

// Counts returns status count summaries.
func (s *Store) Counts(_ context.Context) (app.StatusCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := app.StatusCounts{Total: len(s.records)}
	for _, r := range s.records {
		switch r.Status {
		case domain.StatusActive:
			counts.Active++
		case domain.StatusCleared:
			counts.Cleared++
		}
	}
	return counts, nil
}
