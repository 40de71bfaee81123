package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog/log"
)

// Ledger is an append-only ClickHouse copy of every fill, kept for
// historical P/L analysis. It batches rows and flushes on size or interval;
// a flush failure loses nothing critical because Postgres holds the
// authoritative trade rows.
type Ledger struct {
	conn          driver.Conn
	batchSize     int
	flushInterval time.Duration

	mu         sync.Mutex
	buf        []Trade
	closed     bool
	flushCount int64
	errorCount int64
}

// OpenLedger connects to ClickHouse and ensures the fills table exists.
func OpenLedger(ctx context.Context, dsn string) (*Ledger, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse DSN: %w", err)
	}
	opts.MaxOpenConns = 5
	opts.DialTimeout = 5 * time.Second

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	ddl := `
		CREATE TABLE IF NOT EXISTS fills (
			trade_id     String,
			token        String,
			strategy     LowCardinality(String),
			side         Enum8('buy' = 1, 'sell' = 2),
			price        Float64,
			token_amount Float64,
			sol_amount   Float64,
			percent      Float64,
			reason       String,
			realized_pl  Float64,
			executed_at  DateTime64(3)
		) ENGINE = MergeTree()
		ORDER BY (strategy, executed_at)
	`
	if err := conn.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("ensure fills table: %w", err)
	}

	return &Ledger{
		conn:          conn,
		batchSize:     500,
		flushInterval: 5 * time.Second,
	}, nil
}

// Append buffers one fill for the next flush.
func (l *Ledger) Append(trade Trade) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("ledger is closed")
	}
	l.buf = append(l.buf, trade)
	return nil
}

// Run is the background flush loop. Blocks until the context is cancelled,
// then takes a final flush.
func (l *Ledger) Run(ctx context.Context) {
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	log.Info().Dur("flush_interval", l.flushInterval).Msg("fill ledger started")

	for {
		select {
		case <-ctx.Done():
			if err := l.Flush(context.Background()); err != nil {
				log.Error().Err(err).Msg("final ledger flush failed")
			}
			return
		case <-ticker.C:
			if err := l.Flush(ctx); err != nil {
				log.Error().Err(err).Msg("ledger flush failed")
			}
		}
	}
}

// Flush writes all buffered fills to ClickHouse.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	fills := l.buf
	l.buf = make([]Trade, 0, l.batchSize)
	l.mu.Unlock()

	if len(fills) == 0 {
		return nil
	}

	batch, err := l.conn.PrepareBatch(ctx, `
		INSERT INTO fills (
			trade_id, token, strategy, side, price,
			token_amount, sol_amount, percent, reason, realized_pl, executed_at
		)`)
	if err != nil {
		l.noteError()
		return fmt.Errorf("prepare fills batch: %w", err)
	}

	for _, t := range fills {
		err := batch.Append(
			t.ID, t.Token, t.Strategy, t.Side,
			t.Price.InexactFloat64(),
			t.TokenAmount.InexactFloat64(),
			t.SOLAmount.InexactFloat64(),
			t.Percent, t.Reason,
			t.RealizedPL.InexactFloat64(),
			t.ExecutedAt,
		)
		if err != nil {
			l.noteError()
			return fmt.Errorf("append fill: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		l.noteError()
		return fmt.Errorf("send fills batch: %w", err)
	}

	l.mu.Lock()
	l.flushCount++
	l.mu.Unlock()

	log.Debug().Int("fills", len(fills)).Msg("fill ledger flushed")
	return nil
}

func (l *Ledger) noteError() {
	l.mu.Lock()
	l.errorCount++
	l.mu.Unlock()
}

// Close marks the ledger closed and shuts the connection.
func (l *Ledger) Close() error {
	l.mu.Lock()
	l.closed = true
	flushes, errs := l.flushCount, l.errorCount
	l.mu.Unlock()

	log.Info().Int64("flushes", flushes).Int64("errors", errs).Msg("fill ledger closed")
	return l.conn.Close()
}

// Pending reports the buffered fill count.
func (l *Ledger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buf)
}
