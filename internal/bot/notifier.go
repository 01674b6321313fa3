// internal/bot/notifier.go
package bot

import (
	"context"

	"go.uber.org/zap"

	"github.com/solanatools/autotrader/internal/events"
)

// Notifier turns lifecycle events into operator-facing log lines. It is the
// default delivery channel when no external notification sink is wired.
type Notifier struct {
	logger *zap.Logger
	subs   []events.Subscription
}

// NewNotifier creates a log notifier.
func NewNotifier(logger *zap.Logger) *Notifier {
	return &Notifier{logger: logger.Named("notify")}
}

// Attach subscribes the notifier to every lifecycle event type.
func (n *Notifier) Attach(bus *events.Bus) {
	for _, t := range []events.EventType{
		events.CandidateRejected,
		events.AllocationDenied,
		events.PositionOpened,
		events.PositionClosed,
		events.PositionFailed,
		events.PositionStuck,
	} {
		n.subs = append(n.subs, bus.SubscribeFunc(t, n.notify))
	}
}

// Detach removes the notifier's subscriptions.
func (n *Notifier) Detach() {
	for _, sub := range n.subs {
		sub.Unsubscribe()
	}
	n.subs = nil
}

func (n *Notifier) notify(_ context.Context, event events.Event) error {
	switch ev := event.(type) {
	case events.CandidateRejectedEvent:
		n.logger.Debug("Candidate skipped",
			zap.String("symbol", ev.Symbol),
			zap.String("reason", ev.Reason))
	case events.AllocationDeniedEvent:
		n.logger.Info("Entry skipped, no capital headroom",
			zap.String("symbol", ev.Symbol),
			zap.String("reason", ev.Reason))
	case events.PositionOpenedEvent:
		n.logger.Info("🟢 Opened",
			zap.String("symbol", ev.Symbol),
			zap.String("entry_price", ev.EntryPrice.String()),
			zap.String("spent_sol", ev.EntrySOL.String()))
	case events.PositionClosedEvent:
		emoji := "🔴"
		if ev.PnLSOL.IsPositive() {
			emoji = "🟢"
		}
		n.logger.Info(emoji+" Closed",
			zap.String("symbol", ev.Symbol),
			zap.String("exit_reason", ev.ExitReason),
			zap.String("pnl_sol", ev.PnLSOL.String()),
			zap.Float64("pnl_percent", ev.PnLPercent))
	case events.PositionFailedEvent:
		n.logger.Warn("Entry failed",
			zap.String("symbol", ev.Symbol),
			zap.String("reason", ev.Reason))
	case events.PositionStuckEvent:
		n.logger.Error("⚠️ Position STUCK, manual intervention required",
			zap.String("symbol", ev.Symbol),
			zap.String("mint", ev.Mint),
			zap.Int("attempts", ev.Attempts),
			zap.String("last_error", ev.LastError))
	}
	return nil
}
