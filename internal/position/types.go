// internal/position/types.go
// Package position implements the trade lifecycle: one engine per position
// drives it from entry submission through monitoring to exit, emitting
// lifecycle events along the way.
package position

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/solanatools/autotrader/internal/market"
)

// State is the lifecycle state of a position.
type State string

const (
	// StatePending: buy submitted, fill not yet confirmed.
	StatePending State = "pending"
	// StateOpen: buy filled, position is being monitored for exit.
	StateOpen State = "open"
	// StateClosing: an exit rule fired, sell in progress.
	StateClosing State = "closing"
	// StateClosed: sell filled, capital returned.
	StateClosed State = "closed"
	// StateFailed: buy never filled, no tokens were ever held.
	StateFailed State = "failed"
	// StateStuck: sell attempts exhausted, tokens still held. Requires
	// manual intervention; the engine will not touch the position again.
	StateStuck State = "stuck"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed || s == StateStuck
}

// ExitReason identifies which rule triggered an exit.
type ExitReason string

const (
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitMaxHold      ExitReason = "max_hold"
)

// Position is a snapshot of one position's state. The engine owns the
// authoritative copy; snapshots returned to callers are value copies.
type Position struct {
	ID    string
	Token market.Token
	State State

	// Entry, populated once the buy fills.
	EntryPrice decimal.Decimal
	EntrySOL   decimal.Decimal
	Tokens     decimal.Decimal
	OpenedAt   time.Time

	// PeakPrice is the highest confirmed price seen since entry, used by
	// the trailing stop. Initialized to EntryPrice on fill.
	PeakPrice decimal.Decimal

	// Exit, populated once the sell fills.
	ExitReason ExitReason
	ExitPrice  decimal.Decimal
	ExitSOL    decimal.Decimal
	ClosedAt   time.Time

	// EntrySlippagePercent is the deviation between the quoted and actual
	// fill price, recorded for post-trade review.
	EntrySlippagePercent float64

	// FailReason is set for Failed and Stuck positions.
	FailReason string
}

// Recorder persists position snapshots at each state transition. A nil
// Recorder disables persistence.
type Recorder interface {
	RecordPosition(pos Position) error
}
