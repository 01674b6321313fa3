// internal/bot/journal.go
package bot

import (
	"context"

	"go.uber.org/zap"

	"github.com/solanatools/autotrader/internal/events"
	"github.com/solanatools/autotrader/internal/gateway"
	"github.com/solanatools/autotrader/internal/storage"
	"github.com/solanatools/autotrader/internal/storage/models"
)

// Journal records confirmed fills as trade rows. It subscribes to the
// lifecycle events so persistence stays off the trading path.
type Journal struct {
	store  storage.Store
	logger *zap.Logger
	subs   []events.Subscription
}

// NewJournal creates a trade journal over store.
func NewJournal(store storage.Store, logger *zap.Logger) *Journal {
	return &Journal{
		store:  store,
		logger: logger.Named("journal"),
	}
}

// Attach subscribes the journal to the bus.
func (j *Journal) Attach(bus *events.Bus) {
	j.subs = append(j.subs,
		bus.SubscribeFunc(events.PositionOpened, j.onOpened),
		bus.SubscribeFunc(events.PositionClosed, j.onClosed),
	)
}

// Detach removes the journal's subscriptions.
func (j *Journal) Detach() {
	for _, sub := range j.subs {
		sub.Unsubscribe()
	}
	j.subs = nil
}

func (j *Journal) onOpened(ctx context.Context, event events.Event) error {
	ev, ok := event.(events.PositionOpenedEvent)
	if !ok {
		return nil
	}
	return j.store.SaveTrade(ctx, &models.Trade{
		PositionID: ev.PositionID,
		Mint:       ev.Mint,
		Symbol:     ev.Symbol,
		Side:       string(gateway.SideBuy),
		Price:      ev.EntryPrice,
		SOL:        ev.EntrySOL,
		Tokens:     ev.Tokens,
		ExecutedAt: ev.Timestamp(),
	})
}

func (j *Journal) onClosed(ctx context.Context, event events.Event) error {
	ev, ok := event.(events.PositionClosedEvent)
	if !ok {
		return nil
	}
	return j.store.SaveTrade(ctx, &models.Trade{
		PositionID: ev.PositionID,
		Mint:       ev.Mint,
		Symbol:     ev.Symbol,
		Side:       string(gateway.SideSell),
		Price:      ev.ExitPrice,
		SOL:        ev.ExitSOL,
		Tokens:     ev.Tokens,
		ExecutedAt: ev.Timestamp(),
	})
}
