package executor

import (
	"context"

	"github.com/shopspring/decimal"
)

// Result is the outcome of an execution attempt. There is deliberately no
// "assume success" path: a command whose fate cannot be established reports
// Unknown and must be reconciled before any position state changes.
type Result int

const (
	// Unknown means the command may or may not have executed.
	Unknown Result = iota
	// Confirmed means the agent acknowledged the fill.
	Confirmed
	// Rejected means the command definitively did not execute.
	Rejected
)

func (r Result) String() string {
	switch r {
	case Confirmed:
		return "confirmed"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Adapter submits buy and sell orders. Implementations must only return
// Confirmed when the trade verifiably happened; position state is mutated on
// Confirmed alone.
type Adapter interface {
	Buy(ctx context.Context, token string, amountSOL decimal.Decimal) Result
	Sell(ctx context.Context, token string, percent float64) Result
}
