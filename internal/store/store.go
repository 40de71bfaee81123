package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/magpie-trading/magpie/internal/position"
)

var ErrDuplicateKey = errors.New("duplicate key")

// Trade is one executed fill, recorded after the agent confirms it.
type Trade struct {
	ID          string
	Token       string
	Strategy    string
	Side        string // buy|sell
	Price       decimal.Decimal
	TokenAmount decimal.Decimal
	SOLAmount   decimal.Decimal
	Percent     float64 // of the position, for sells
	Reason      string  // exit reason, empty for buys
	RealizedPL  decimal.Decimal
	ExecutedAt  time.Time
}

// PositionStore persists the live position set so a restart can recover it.
type PositionStore interface {
	SavePosition(ctx context.Context, pos position.Position) error
	DeletePosition(ctx context.Context, token string) error
	LoadPositions(ctx context.Context) ([]position.Position, error)
}

// TradeStore records executed fills.
type TradeStore interface {
	RecordTrade(ctx context.Context, trade Trade) error
}
