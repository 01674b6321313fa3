// internal/position/rules.go
package position

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/solanatools/autotrader/internal/config"
)

// EvaluateExit checks the exit rules against the current price and returns
// the first that fires. Evaluation order is fixed: stop-loss, take-profit,
// trailing stop, max hold. Stop-loss outranking take-profit means a price
// that somehow satisfies both closes as a loss cut, never as a win.
//
// peak is the highest confirmed price since entry, openedAt the fill time.
// Trailing stop and max hold only apply when enabled in cfg.
func EvaluateExit(cfg *config.TradingConfig, entry, peak, price decimal.Decimal, openedAt, now time.Time) (ExitReason, bool) {
	if price.LessThanOrEqual(cfg.StopLossPrice(entry)) {
		return ExitStopLoss, true
	}
	if price.GreaterThanOrEqual(cfg.TakeProfitPrice(entry)) {
		return ExitTakeProfit, true
	}
	if cfg.TrailingStopPercent > 0 && price.LessThanOrEqual(cfg.TrailingStopPrice(peak)) {
		return ExitTrailingStop, true
	}
	if cfg.MaxHold > 0 && now.Sub(openedAt) >= cfg.MaxHold {
		return ExitMaxHold, true
	}
	return "", false
}
