package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/magpie-trading/magpie/internal/position"
	"github.com/magpie-trading/magpie/internal/strategy"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a Postgres connection pool and verifies it.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

const pgErrUniqueViolation = "23505"

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS positions (
	token          TEXT PRIMARY KEY,
	strategy       TEXT NOT NULL,
	entry_price    NUMERIC NOT NULL,
	size           NUMERIC NOT NULL,
	entry_time     TIMESTAMPTZ NOT NULL,
	last_price     NUMERIC NOT NULL,
	local_high     NUMERIC NOT NULL,
	total_sold_pct DOUBLE PRECISION NOT NULL,
	realized_pl    NUMERIC NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS trades (
	trade_id     TEXT PRIMARY KEY,
	token        TEXT NOT NULL,
	strategy     TEXT NOT NULL,
	side         TEXT NOT NULL,
	price        NUMERIC NOT NULL,
	token_amount NUMERIC NOT NULL,
	sol_amount   NUMERIC NOT NULL,
	percent      DOUBLE PRECISION NOT NULL,
	reason       TEXT NOT NULL DEFAULT '',
	realized_pl  NUMERIC NOT NULL,
	executed_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_token ON trades (token, executed_at);
`

// EnsureSchema creates the tables if they do not exist yet.
func EnsureSchema(ctx context.Context, pool *Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// PostgresStore implements PositionStore and TradeStore on one pool.
type PostgresStore struct {
	pool *Pool
}

func NewPostgresStore(pool *Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var (
	_ PositionStore = (*PostgresStore)(nil)
	_ TradeStore    = (*PostgresStore)(nil)
)

// SavePosition upserts the position keyed by token, so partial sells and
// mark updates overwrite the previous row.
func (s *PostgresStore) SavePosition(ctx context.Context, pos position.Position) error {
	query := `
		INSERT INTO positions (
			token, strategy, entry_price, size, entry_time,
			last_price, local_high, total_sold_pct, realized_pl, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (token) DO UPDATE SET
			size = EXCLUDED.size,
			last_price = EXCLUDED.last_price,
			local_high = EXCLUDED.local_high,
			total_sold_pct = EXCLUDED.total_sold_pct,
			realized_pl = EXCLUDED.realized_pl,
			updated_at = now()
	`

	_, err := s.pool.Exec(ctx, query,
		pos.Token, string(pos.Strategy), pos.EntryPrice, pos.Size, pos.EntryTime,
		pos.LastPrice, pos.LocalHigh, pos.TotalSoldPct, pos.RealizedPL,
	)
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeletePosition(ctx context.Context, token string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}

// LoadPositions returns every persisted position for crash recovery.
func (s *PostgresStore) LoadPositions(ctx context.Context) ([]position.Position, error) {
	query := `
		SELECT token, strategy, entry_price, size, entry_time,
			last_price, local_high, total_sold_pct, realized_pl
		FROM positions
		ORDER BY entry_time ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	defer rows.Close()

	var out []position.Position
	for rows.Next() {
		var (
			pos   position.Position
			strat string
		)
		err := rows.Scan(
			&pos.Token, &strat, &pos.EntryPrice, &pos.Size, &pos.EntryTime,
			&pos.LastPrice, &pos.LocalHigh, &pos.TotalSoldPct, &pos.RealizedPL,
		)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		pos.Strategy = strategy.Strategy(strat)
		out = append(out, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}
	return out, nil
}

// RecordTrade inserts a fill. Returns ErrDuplicateKey when the trade ID was
// already recorded, which callers treat as success.
func (s *PostgresStore) RecordTrade(ctx context.Context, trade Trade) error {
	query := `
		INSERT INTO trades (
			trade_id, token, strategy, side, price,
			token_amount, sol_amount, percent, reason, realized_pl, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.pool.Exec(ctx, query,
		trade.ID, trade.Token, trade.Strategy, trade.Side, trade.Price,
		trade.TokenAmount, trade.SOLAmount, trade.Percent, trade.Reason,
		trade.RealizedPL, trade.ExecutedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("record trade: %w", err)
	}
	return nil
}
