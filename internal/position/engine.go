// internal/position/engine.go
package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solanatools/autotrader/internal/config"
	"github.com/solanatools/autotrader/internal/events"
	"github.com/solanatools/autotrader/internal/gateway"
	"github.com/solanatools/autotrader/internal/market"
	"github.com/solanatools/autotrader/internal/risk"
)

const quoteBuffer = 16

// Deps are the collaborators a position engine needs. Store may be nil.
type Deps struct {
	Config     *config.TradingConfig
	Gateway    gateway.Gateway
	Dispatcher *gateway.Dispatcher
	Risk       *risk.Manager
	Bus        *events.Bus
	Store      Recorder
	Logger     *zap.Logger
}

// Engine owns exactly one position and drives its full lifecycle on a
// single goroutine: buy, monitor, exit. Quotes arrive via OfferQuote; all
// other state is private to the engine.
type Engine struct {
	deps  Deps
	cfg   *config.TradingConfig
	log   *zap.Logger
	alloc decimal.Decimal

	quotes  chan market.Quote
	drainCh chan struct{}
	drain   sync.Once
	done    chan struct{}

	// last is the newest quote acted on, used to reject out-of-order and
	// duplicate updates. Only touched from the Run goroutine.
	last market.Quote

	mu  sync.Mutex
	pos Position
}

// NewEngine creates an engine for a freshly approved candidate. alloc is
// the SOL amount the risk manager committed under id; entry is the quote
// the buy decision was made at.
func NewEngine(id string, token market.Token, alloc decimal.Decimal, entry market.Quote, deps Deps) *Engine {
	return &Engine{
		deps:    deps,
		cfg:     deps.Config,
		log:     deps.Logger.Named("position").With(zap.String("position_id", id), zap.String("symbol", token.Symbol)),
		alloc:   alloc,
		quotes:  make(chan market.Quote, quoteBuffer),
		drainCh: make(chan struct{}),
		done:    make(chan struct{}),
		last:    entry,
		pos: Position{
			ID:    id,
			Token: token,
			State: StatePending,
		},
	}
}

// Run drives the position to a terminal state, or leaves it open if drained
// first. It always returns nil; failures are position outcomes, not errors.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)

	if !e.enter(ctx) {
		return nil
	}

	reason, shouldExit := e.monitor(ctx)
	if !shouldExit {
		e.log.Info("Monitoring stopped, position stays open",
			zap.String("mint", e.pos.Token.ShortMint()))
		return nil
	}

	e.exit(ctx, reason)
	return nil
}

// OfferQuote hands the engine a price update. Never blocks; if the engine
// is busy the quote is dropped, a newer one will follow.
func (e *Engine) OfferQuote(q market.Quote) {
	select {
	case e.quotes <- q:
	default:
		e.log.Debug("Quote buffer full, dropping update",
			zap.Time("quote_ts", q.Timestamp))
	}
}

// Drain tells an open engine to stop evaluating exits and return. Engines
// still entering or exiting are unaffected and run to resolution.
func (e *Engine) Drain() {
	e.drain.Do(func() { close(e.drainCh) })
}

// Done is closed when Run has returned.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Snapshot returns a copy of the position's current state.
func (e *Engine) Snapshot() Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos
}

// enter submits the buy and waits for its outcome. Returns true when the
// position opened; on false the position is Failed and its exposure has
// been released.
func (e *Engine) enter(ctx context.Context) bool {
	e.record()

	order := gateway.Order{
		Mint:               e.pos.Token.Mint,
		Side:               gateway.SideBuy,
		AmountSOL:          e.alloc,
		QuotedPrice:        e.last.Price,
		MaxSlippagePercent: e.cfg.MaxSlippagePercent,
	}

	intentID, err := e.deps.Gateway.SubmitBuy(ctx, order)
	if err != nil {
		e.fail(fmt.Sprintf("buy rejected: %v", err))
		return false
	}
	e.log.Info("Buy submitted",
		zap.String("intent_id", intentID),
		zap.String("amount_sol", e.alloc.String()),
		zap.String("quoted_price", e.last.Price.String()))

	timeout := time.NewTimer(e.cfg.BuyTimeout)
	defer timeout.Stop()

	select {
	case res := <-e.deps.Dispatcher.Await(intentID):
		if !res.Filled {
			e.fail(fmt.Sprintf("buy %s: %s", res.Failure, res.Reason))
			return false
		}
		e.open(res)
		return true
	case <-timeout.C:
		e.deps.Dispatcher.Forget(intentID)
		e.fail("buy confirmation timeout")
		return false
	case <-ctx.Done():
		e.deps.Dispatcher.Forget(intentID)
		e.fail("shutdown before buy confirmation")
		return false
	}
}

// open transitions Pending -> Open from a confirmed buy fill.
func (e *Engine) open(res gateway.Result) {
	slippage := deviationPercent(e.last.Price, res.Price)

	e.mu.Lock()
	e.pos.State = StateOpen
	e.pos.EntryPrice = res.Price
	e.pos.EntrySOL = res.SOL
	e.pos.Tokens = res.Tokens
	e.pos.PeakPrice = res.Price
	e.pos.OpenedAt = time.Now()
	e.pos.EntrySlippagePercent = slippage
	pos := e.pos
	e.mu.Unlock()

	if slippage > e.cfg.MaxSlippagePercent {
		e.log.Warn("Buy filled beyond slippage tolerance",
			zap.Float64("deviation_percent", slippage),
			zap.Float64("tolerance_percent", e.cfg.MaxSlippagePercent))
	}

	e.log.Info("Position opened",
		zap.String("mint", pos.Token.ShortMint()),
		zap.String("entry_price", pos.EntryPrice.String()),
		zap.String("entry_sol", pos.EntrySOL.String()),
		zap.String("tokens", pos.Tokens.String()))

	e.record()
	e.deps.Bus.Publish(events.PositionOpenedEvent{
		BaseEvent:  events.Base(events.PositionOpened),
		PositionID: pos.ID,
		Mint:       pos.Token.Mint,
		Symbol:     pos.Token.Symbol,
		EntryPrice: pos.EntryPrice,
		EntrySOL:   pos.EntrySOL,
		Tokens:     pos.Tokens,
	})
}

// fail transitions Pending -> Failed and returns the reserved capital.
func (e *Engine) fail(reason string) {
	e.mu.Lock()
	e.pos.State = StateFailed
	e.pos.FailReason = reason
	pos := e.pos
	e.mu.Unlock()

	e.deps.Risk.Release(pos.ID)
	e.log.Warn("Position failed", zap.String("reason", reason))

	e.record()
	e.deps.Bus.Publish(events.PositionFailedEvent{
		BaseEvent:  events.Base(events.PositionFailed),
		PositionID: pos.ID,
		Mint:       pos.Token.Mint,
		Symbol:     pos.Token.Symbol,
		Reason:     reason,
	})
}

// monitor consumes quotes until an exit rule fires, the engine is drained
// or the context ends. The max-hold rule runs on its own timer so it fires
// even when the feed goes quiet.
func (e *Engine) monitor(ctx context.Context) (ExitReason, bool) {
	var holdC <-chan time.Time
	if e.cfg.MaxHold > 0 {
		hold := time.NewTimer(e.cfg.MaxHold)
		defer hold.Stop()
		holdC = hold.C
	}

	for {
		select {
		case <-ctx.Done():
			return "", false
		case <-e.drainCh:
			return "", false
		case <-holdC:
			return ExitMaxHold, true
		case q := <-e.quotes:
			if reason, fired := e.evaluate(q); fired {
				return reason, true
			}
		}
	}
}

// evaluate applies one quote: out-of-order and stale updates are dropped,
// the peak is advanced, then the exit rules run.
func (e *Engine) evaluate(q market.Quote) (ExitReason, bool) {
	if !q.Supersedes(e.last) {
		e.log.Debug("Dropping out-of-order quote",
			zap.Time("quote_ts", q.Timestamp),
			zap.Time("last_ts", e.last.Timestamp))
		return "", false
	}
	e.last = q

	now := time.Now()
	if !q.FreshAt(now, e.cfg.QuoteMaxAge) {
		e.log.Debug("Dropping stale quote", zap.Time("quote_ts", q.Timestamp))
		return "", false
	}

	e.mu.Lock()
	if q.Price.GreaterThan(e.pos.PeakPrice) {
		e.pos.PeakPrice = q.Price
	}
	entry, peak, openedAt := e.pos.EntryPrice, e.pos.PeakPrice, e.pos.OpenedAt
	e.mu.Unlock()

	return EvaluateExit(e.cfg, entry, peak, q.Price, openedAt, now)
}

// exit transitions Open -> Closing and liquidates. Sell confirmation
// timeouts are retried with exponential backoff up to the configured
// attempt budget; rejections and exhaustion leave the position Stuck.
func (e *Engine) exit(ctx context.Context, reason ExitReason) {
	e.mu.Lock()
	e.pos.State = StateClosing
	e.pos.ExitReason = reason
	tokens := e.pos.Tokens
	e.mu.Unlock()

	e.log.Info("Exit triggered",
		zap.String("reason", string(reason)),
		zap.String("price", e.last.Price.String()))
	e.record()

	attempts := 0
	operation := func() (gateway.Result, error) {
		attempts++

		order := gateway.Order{
			Mint:               e.pos.Token.Mint,
			Side:               gateway.SideSell,
			AmountTokens:       tokens,
			QuotedPrice:        e.last.Price,
			MaxSlippagePercent: e.cfg.MaxSlippagePercent,
		}
		intentID, err := e.deps.Gateway.SubmitSell(ctx, order)
		if err != nil {
			return gateway.Result{}, backoff.Permanent(fmt.Errorf("sell rejected: %w", err))
		}
		e.log.Info("Sell submitted",
			zap.String("intent_id", intentID),
			zap.Int("attempt", attempts))

		timeout := time.NewTimer(e.cfg.SellTimeout)
		defer timeout.Stop()

		select {
		case res := <-e.deps.Dispatcher.Await(intentID):
			if res.Filled {
				return res, nil
			}
			if res.Failure == gateway.FailRejected {
				return gateway.Result{}, backoff.Permanent(fmt.Errorf("sell rejected: %s", res.Reason))
			}
			return gateway.Result{}, fmt.Errorf("sell %s: %s", res.Failure, res.Reason)
		case <-timeout.C:
			e.deps.Dispatcher.Forget(intentID)
			return gateway.Result{}, fmt.Errorf("sell confirmation timeout")
		case <-ctx.Done():
			e.deps.Dispatcher.Forget(intentID)
			return gateway.Result{}, backoff.Permanent(fmt.Errorf("shutdown during sell: %w", ctx.Err()))
		}
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(e.cfg.SellMaxAttempts)))
	if err != nil {
		e.stuck(attempts, err)
		return
	}

	e.close(res)
}

// close transitions Closing -> Closed from a confirmed sell fill.
func (e *Engine) close(res gateway.Result) {
	slippage := deviationPercent(e.last.Price, res.Price)
	if slippage > e.cfg.MaxSlippagePercent {
		e.log.Warn("Sell filled beyond slippage tolerance",
			zap.Float64("deviation_percent", slippage),
			zap.Float64("tolerance_percent", e.cfg.MaxSlippagePercent))
	}

	e.mu.Lock()
	e.pos.State = StateClosed
	e.pos.ExitPrice = res.Price
	e.pos.ExitSOL = res.SOL
	e.pos.ClosedAt = time.Now()
	pos := e.pos
	e.mu.Unlock()

	e.deps.Risk.Release(pos.ID)
	pnl := ComputePnL(pos.EntrySOL, pos.ExitSOL)

	e.log.Info("Position closed",
		zap.String("mint", pos.Token.ShortMint()),
		zap.String("exit_reason", string(pos.ExitReason)),
		zap.String("exit_price", pos.ExitPrice.String()),
		zap.String("pnl_sol", pnl.NetSOL.String()),
		zap.Float64("pnl_percent", pnl.Percent))

	e.record()
	e.deps.Bus.Publish(events.PositionClosedEvent{
		BaseEvent:  events.Base(events.PositionClosed),
		PositionID: pos.ID,
		Mint:       pos.Token.Mint,
		Symbol:     pos.Token.Symbol,
		ExitReason: string(pos.ExitReason),
		ExitPrice:  pos.ExitPrice,
		ExitSOL:    pos.ExitSOL,
		Tokens:     pos.Tokens,
		PnLSOL:     pnl.NetSOL,
		PnLPercent: pnl.Percent,
	})
}

// stuck transitions Closing -> Stuck. Tokens are still held and exposure
// stays committed until an operator resolves the position.
func (e *Engine) stuck(attempts int, cause error) {
	e.mu.Lock()
	e.pos.State = StateStuck
	e.pos.FailReason = cause.Error()
	pos := e.pos
	e.mu.Unlock()

	e.log.Error("Position stuck, manual intervention required",
		zap.String("mint", pos.Token.Mint),
		zap.Int("attempts", attempts),
		zap.Error(cause))

	e.record()
	e.deps.Bus.Publish(events.PositionStuckEvent{
		BaseEvent:  events.Base(events.PositionStuck),
		PositionID: pos.ID,
		Mint:       pos.Token.Mint,
		Symbol:     pos.Token.Symbol,
		Attempts:   attempts,
		LastError:  cause.Error(),
	})
}

// record persists the current snapshot when a store is configured.
// Persistence failures are logged, never fatal to the trade.
func (e *Engine) record() {
	if e.deps.Store == nil {
		return
	}
	if err := e.deps.Store.RecordPosition(e.Snapshot()); err != nil {
		e.log.Warn("Failed to persist position", zap.Error(err))
	}
}

// deviationPercent returns the absolute fill-vs-quote deviation in percent.
func deviationPercent(quoted, fill decimal.Decimal) float64 {
	if quoted.IsZero() {
		return 0
	}
	dev, _ := fill.Sub(quoted).Div(quoted).Mul(decimal.NewFromInt(100)).Abs().Float64()
	return dev
}
