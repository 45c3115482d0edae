package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	arbdomain "arbscan/business/arbitrage/domain"
	"arbscan/business/scanner/app"
	"arbscan/business/scanner/domain"
)

// Store implements app.OpportunityStore using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const selectCols = `id, record_key, symbol, buy_source, sell_source,
	buy_vwap, sell_vwap, gross_spread_pct, total_cost_pct, net_profit_pct,
	amount, notional, expected_profit, avg_liquidity, confidence, risk,
	transfer_ok, peak_net_profit_pct, status, first_detected, last_seen,
	cleared_at, alert_sent`

// Upsert creates or replaces the record under its key.
func (s *Store) Upsert(ctx context.Context, record domain.Record) error {
	const query = `
		INSERT INTO opportunities (
			id, record_key, symbol, buy_source, sell_source,
			buy_vwap, sell_vwap, gross_spread_pct, total_cost_pct, net_profit_pct,
			amount, notional, expected_profit, avg_liquidity, confidence, risk,
			transfer_ok, peak_net_profit_pct, status, first_detected, last_seen,
			cleared_at, alert_sent
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21,
			$22, $23
		)
		ON CONFLICT (record_key) DO UPDATE SET
			buy_vwap            = EXCLUDED.buy_vwap,
			sell_vwap           = EXCLUDED.sell_vwap,
			gross_spread_pct    = EXCLUDED.gross_spread_pct,
			total_cost_pct      = EXCLUDED.total_cost_pct,
			net_profit_pct      = EXCLUDED.net_profit_pct,
			amount              = EXCLUDED.amount,
			notional            = EXCLUDED.notional,
			expected_profit     = EXCLUDED.expected_profit,
			avg_liquidity       = EXCLUDED.avg_liquidity,
			confidence          = EXCLUDED.confidence,
			risk                = EXCLUDED.risk,
			transfer_ok         = EXCLUDED.transfer_ok,
			peak_net_profit_pct = EXCLUDED.peak_net_profit_pct,
			status              = EXCLUDED.status,
			first_detected      = EXCLUDED.first_detected,
			last_seen           = EXCLUDED.last_seen,
			cleared_at          = EXCLUDED.cleared_at,
			alert_sent          = EXCLUDED.alert_sent`

	snap := record.Snapshot
	_, err := s.pool.Exec(ctx, query,
		record.ID, record.Key, snap.Symbol, snap.BuySource, snap.SellSource,
		snap.BuyVWAP, snap.SellVWAP, snap.GrossSpreadPct, snap.TotalCostPct, snap.NetProfitPct,
		snap.Amount, snap.Notional, snap.ExpectedProfit, snap.AvgLiquidity, snap.Confidence, string(snap.Risk),
		snap.TransferOK, record.PeakNetProfitPct, string(record.Status), record.FirstDetected, record.LastSeen,
		record.ClearedAt, record.AlertSent,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert opportunity %s: %w", record.Key, err)
	}
	return nil
}

// List returns records matching the filter, ordered by first-detected
// descending.
func (s *Store) List(ctx context.Context, filter app.StatusFilter) ([]domain.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM opportunities", selectCols)
	var args []any
	if filter == app.FilterActive || filter == app.FilterCleared {
		query += " WHERE status = $1"
		args = append(args, string(filter))
	}
	query += " ORDER BY first_detected DESC, record_key"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate opportunities: %w", err)
	}
	return out, nil
}

// MarkAlerted sets the alert-sent flag for the given keys.
func (s *Store) MarkAlerted(ctx context.Context, keys []string) error {
	const query = `UPDATE opportunities SET alert_sent = TRUE WHERE record_key = ANY($1)`
	if _, err := s.pool.Exec(ctx, query, keys); err != nil {
		return fmt.Errorf("postgres: mark alerted: %w", err)
	}
	return nil
}

// Counts returns status count summaries.
func (s *Store) Counts(ctx context.Context) (app.StatusCounts, error) {
	const query = `
		SELECT
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'cleared'),
			COUNT(*)
		FROM opportunities`

	var counts app.StatusCounts
	err := s.pool.QueryRow(ctx, query).Scan(&counts.Active, &counts.Cleared, &counts.Total)
	if err != nil {
		return app.StatusCounts{}, fmt.Errorf("postgres: count opportunities: %w", err)
	}
	return counts, nil
}

func scanRecord(row pgx.Row) (domain.Record, error) {
	var (
		record domain.Record
		status string
		risk   string
	)
	err := row.Scan(
		&record.ID, &record.Key, &record.Snapshot.Symbol, &record.Snapshot.BuySource, &record.Snapshot.SellSource,
		&record.Snapshot.BuyVWAP, &record.Snapshot.SellVWAP, &record.Snapshot.GrossSpreadPct,
		&record.Snapshot.TotalCostPct, &record.Snapshot.NetProfitPct,
		&record.Snapshot.Amount, &record.Snapshot.Notional, &record.Snapshot.ExpectedProfit,
		&record.Snapshot.AvgLiquidity, &record.Snapshot.Confidence, &risk,
		&record.Snapshot.TransferOK, &record.PeakNetProfitPct, &status, &record.FirstDetected, &record.LastSeen,
		&record.ClearedAt, &record.AlertSent,
	)
	if err != nil {
		return domain.Record{}, fmt.Errorf("postgres: scan opportunity: %w", err)
	}
	record.Status = domain.Status(status)
	record.Snapshot.Risk = arbdomain.RiskTier(risk)
	return record, nil
}
