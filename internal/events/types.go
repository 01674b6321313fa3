// internal/events/types.go
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType represents the type of event.
type EventType string

const (
	// Candidate pipeline events
	CandidateRejected EventType = "candidate.rejected"
	AllocationDenied  EventType = "allocation.denied"

	// Position lifecycle events
	PositionOpened EventType = "position.opened"
	PositionClosed EventType = "position.closed"
	PositionFailed EventType = "position.failed"
	PositionStuck  EventType = "position.stuck"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// Base stamps a BaseEvent with the current time.
func Base(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}

// CandidateRejectedEvent is emitted for every token the filter turns down.
// Reason is the enumerated filter reason, suitable for aggregation.
type CandidateRejectedEvent struct {
	BaseEvent
	Mint   string
	Symbol string
	Reason string
}

// AllocationDeniedEvent is emitted when the risk manager refuses capital
// for an accepted candidate. It is a user-visible outcome, not an error.
type AllocationDeniedEvent struct {
	BaseEvent
	Mint   string
	Symbol string
	Reason string
}

// PositionOpenedEvent is emitted once per confirmed buy fill.
type PositionOpenedEvent struct {
	BaseEvent
	PositionID string
	Mint       string
	Symbol     string
	EntryPrice decimal.Decimal
	EntrySOL   decimal.Decimal
	Tokens     decimal.Decimal
}

// PositionClosedEvent is emitted once per confirmed exit fill.
type PositionClosedEvent struct {
	BaseEvent
	PositionID string
	Mint       string
	Symbol     string
	ExitReason string
	ExitPrice  decimal.Decimal
	ExitSOL    decimal.Decimal
	Tokens     decimal.Decimal
	PnLSOL     decimal.Decimal
	PnLPercent float64
}

// PositionFailedEvent is emitted when a buy never fills; no position exists
// afterwards and any reserved exposure has been released.
type PositionFailedEvent struct {
	BaseEvent
	PositionID string
	Mint       string
	Symbol     string
	Reason     string
}

// PositionStuckEvent is emitted when exit attempts are exhausted and the
// position needs manual intervention. A stuck position produces exactly one.
type PositionStuckEvent struct {
	BaseEvent
	PositionID string
	Mint       string
	Symbol     string
	Attempts   int
	LastError  string
}
