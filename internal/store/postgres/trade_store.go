package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/trident/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

var _ domain.TradeStore = (*TradeStore)(nil)

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `group_id, leg_id, instrument, direction, regime,
	entry_price, exit_price, exit_reason, size_fraction, size, pnl, costs,
	opened_at, closed_at`

func scanTradeRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var recs []domain.TradeRecord
	for rows.Next() {
		var r domain.TradeRecord
		var direction, regime, reason string

		if err := rows.Scan(
			&r.GroupID, &r.LegID, &r.Instrument, &direction, &regime,
			&r.EntryPrice, &r.ExitPrice, &reason,
			&r.SizeFraction, &r.Size, &r.PnL, &r.Costs,
			&r.OpenedAt, &r.ClosedAt,
		); err != nil {
			return nil, err
		}
		r.Direction = domain.Direction(direction)
		r.Regime = domain.Regime(regime)
		r.ExitReason = domain.LegStatus(reason)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Insert archives one terminal leg transition.
func (s *TradeStore) Insert(ctx context.Context, rec domain.TradeRecord) error {
	const query = `
		INSERT INTO trades (
			group_id, leg_id, instrument, direction, regime,
			entry_price, exit_price, exit_reason, size_fraction, size, pnl, costs,
			opened_at, closed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11, $12,
			$13, $14
		)`

	_, err := s.pool.Exec(ctx, query,
		rec.GroupID, rec.LegID, rec.Instrument, string(rec.Direction), string(rec.Regime),
		rec.EntryPrice, rec.ExitPrice, string(rec.ExitReason),
		rec.SizeFraction, rec.Size, rec.PnL, rec.Costs,
		rec.OpenedAt, rec.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s/%s: %w", rec.GroupID, rec.LegID, err)
	}
	return nil
}

// ListByInstrument returns archived trades for an instrument, newest first.
func (s *TradeStore) ListByInstrument(ctx context.Context, instrument string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE instrument = $1`
	args := []any{instrument}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND closed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND closed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY closed_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades %s: %w", instrument, err)
	}
	defer rows.Close()

	recs, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades %s: %w", instrument, err)
	}
	return recs, nil
}

// ListBefore returns all trades closed strictly before the cutoff, oldest
// first, for cold-storage archival.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE closed_at < $1 ORDER BY closed_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	recs, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades before %s: %w", before.Format(time.RFC3339), err)
	}
	return recs, nil
}

// SumPnL returns the net realized PnL (after costs) of trades closed at or
// after the given time.
func (s *TradeStore) SumPnL(ctx context.Context, since time.Time) (float64, error) {
	const query = `
		SELECT COALESCE(SUM(pnl - costs), 0)
		FROM trades WHERE closed_at >= $1`

	var sum float64
	if err := s.pool.QueryRow(ctx, query, since).Scan(&sum); err != nil {
		return 0, fmt.Errorf("postgres: sum pnl: %w", err)
	}
	return sum, nil
}
