package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Journal persists executed trades and equity samples to PostgreSQL for
// later analysis. It is write-mostly; a missing journal never blocks
// trading decisions.
type Journal struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// TradeRecord is one completed execution, simulated or real.
type TradeRecord struct {
	ID          int64
	Symbol      string
	Direction   string
	Mode        string
	EntryPrice  float64
	ExitPrice   float64
	Size        float64
	Fee         float64
	RealizedPnl float64
	Reason      string
	OpenedAt    time.Time
	ClosedAt    time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id BIGSERIAL PRIMARY KEY,
	symbol TEXT NOT NULL,
	direction TEXT NOT NULL,
	mode TEXT NOT NULL,
	entry_price DOUBLE PRECISION NOT NULL,
	exit_price DOUBLE PRECISION NOT NULL DEFAULT 0,
	size DOUBLE PRECISION NOT NULL,
	fee DOUBLE PRECISION NOT NULL DEFAULT 0,
	realized_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
	reason TEXT NOT NULL DEFAULT '',
	opened_at TIMESTAMPTZ NOT NULL,
	closed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_trades_symbol_opened ON trades (symbol, opened_at);

CREATE TABLE IF NOT EXISTS equity_samples (
	id BIGSERIAL PRIMARY KEY,
	balance DOUBLE PRECISION NOT NULL,
	unrealized_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
	sampled_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func Connect(ctx context.Context, host string, port int, user, password, database, sslMode string, logger zerolog.Logger) (*Journal, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		user, password, host, port, database, sslMode)

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("error parsing database config: %w", err)
	}
	cfg.MaxConns = 5
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}

	j := &Journal{
		pool:   pool,
		logger: logger.With().Str("component", "trade_journal").Logger(),
	}
	if err := j.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate(ctx context.Context) error {
	if _, err := j.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("error running journal migration: %w", err)
	}
	return nil
}

func (j *Journal) Close() {
	j.pool.Close()
}

// RecordOpen inserts a newly opened trade and returns its journal id.
func (j *Journal) RecordOpen(ctx context.Context, rec TradeRecord) (int64, error) {
	var id int64
	err := j.pool.QueryRow(ctx, `
		INSERT INTO trades (symbol, direction, mode, entry_price, size, fee, reason, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		rec.Symbol, rec.Direction, rec.Mode, rec.EntryPrice, rec.Size, rec.Fee, rec.Reason, rec.OpenedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("error recording trade open: %w", err)
	}
	return id, nil
}

// RecordClose finalizes a trade with its exit fill and realized PnL.
func (j *Journal) RecordClose(ctx context.Context, id int64, exitPrice, fee, realizedPnl float64, reason string, closedAt time.Time) error {
	_, err := j.pool.Exec(ctx, `
		UPDATE trades
		SET exit_price = $2, fee = fee + $3, realized_pnl = $4, reason = $5, closed_at = $6
		WHERE id = $1`,
		id, exitPrice, fee, realizedPnl, reason, closedAt)
	if err != nil {
		return fmt.Errorf("error recording trade close: %w", err)
	}
	return nil
}

// SampleEquity appends a point to the equity curve.
func (j *Journal) SampleEquity(ctx context.Context, balance, unrealizedPnl float64) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO equity_samples (balance, unrealized_pnl) VALUES ($1, $2)`,
		balance, unrealizedPnl)
	if err != nil {
		return fmt.Errorf("error sampling equity: %w", err)
	}
	return nil
}

// RecentTrades returns the latest closed trades, newest first.
func (j *Journal) RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	rows, err := j.pool.Query(ctx, `
		SELECT id, symbol, direction, mode, entry_price, exit_price, size, fee,
		       realized_pnl, reason, opened_at, COALESCE(closed_at, opened_at)
		FROM trades
		ORDER BY opened_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		if err := rows.Scan(&rec.ID, &rec.Symbol, &rec.Direction, &rec.Mode,
			&rec.EntryPrice, &rec.ExitPrice, &rec.Size, &rec.Fee,
			&rec.RealizedPnl, &rec.Reason, &rec.OpenedAt, &rec.ClosedAt); err != nil {
			return nil, fmt.Errorf("error scanning trade row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
