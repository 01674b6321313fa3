// internal/storage/recorder.go
package storage

import (
	"context"
	"time"

	"github.com/solanatools/autotrader/internal/position"
	"github.com/solanatools/autotrader/internal/storage/models"
)

const recordTimeout = 5 * time.Second

// PositionRecorder implements position.Recorder against a Store. Engines
// record fire-and-forget; the recorder bounds each write with its own
// timeout so a slow database never stalls a trade.
type PositionRecorder struct {
	store Store
}

// NewPositionRecorder wraps store for use by position engines.
func NewPositionRecorder(store Store) *PositionRecorder {
	return &PositionRecorder{store: store}
}

// RecordPosition upserts the snapshot.
func (r *PositionRecorder) RecordPosition(pos position.Position) error {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	return r.store.SavePosition(ctx, snapshotModel(pos))
}

func snapshotModel(pos position.Position) *models.Position {
	m := &models.Position{
		PositionID:           pos.ID,
		Mint:                 pos.Token.Mint,
		Symbol:               pos.Token.Symbol,
		State:                string(pos.State),
		EntryPrice:           pos.EntryPrice,
		EntrySOL:             pos.EntrySOL,
		Tokens:               pos.Tokens,
		PeakPrice:            pos.PeakPrice,
		ExitReason:           string(pos.ExitReason),
		ExitPrice:            pos.ExitPrice,
		ExitSOL:              pos.ExitSOL,
		EntrySlippagePercent: pos.EntrySlippagePercent,
		FailReason:           pos.FailReason,
	}
	if !pos.OpenedAt.IsZero() {
		openedAt := pos.OpenedAt
		m.OpenedAt = &openedAt
	}
	if !pos.ClosedAt.IsZero() {
		closedAt := pos.ClosedAt
		m.ClosedAt = &closedAt
	}
	if pos.State == position.StateClosed {
		m.PnLSOL = pos.ExitSOL.Sub(pos.EntrySOL)
	}
	return m
}
