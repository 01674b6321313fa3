// internal/gateway/paper.go
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaperConfig controls the simulated execution venue.
type PaperConfig struct {
	InitialBalanceSOL float64
	FillLatency       time.Duration
	// SlippagePercent is applied against the caller on every fill: buys
	// execute above the quoted price, sells below.
	SlippagePercent float64
}

// DefaultPaperConfig returns settings for an interactive paper run.
func DefaultPaperConfig() PaperConfig {
	return PaperConfig{
		InitialBalanceSOL: 10,
		FillLatency:       300 * time.Millisecond,
		SlippagePercent:   0.5,
	}
}

// Paper simulates an execution gateway: every accepted intent fills after a
// fixed latency at the quoted price adjusted by the configured slippage,
// and a paper wallet balance tracks the SOL flow. It also implements
// risk.BalanceSource via Balance.
type Paper struct {
	cfg     PaperConfig
	logger  *zap.Logger
	results chan Result
	wg      sync.WaitGroup

	mu      sync.Mutex
	balance decimal.Decimal
	closed  bool
}

// NewPaper creates a paper gateway.
func NewPaper(cfg PaperConfig, logger *zap.Logger) *Paper {
	return &Paper{
		cfg:     cfg,
		logger:  logger.Named("paper_gateway"),
		results: make(chan Result, 64),
		balance: decimal.NewFromFloat(cfg.InitialBalanceSOL),
	}
}

// Balance implements risk.BalanceSource against the paper wallet.
func (p *Paper) Balance(_ context.Context) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

// Results implements Gateway.
func (p *Paper) Results() <-chan Result {
	return p.results
}

// SubmitBuy implements Gateway. The intent is refused outright when the
// paper wallet cannot cover it; otherwise a fill is scheduled.
func (p *Paper) SubmitBuy(ctx context.Context, order Order) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return "", fmt.Errorf("paper gateway closed")
	}
	if order.AmountSOL.GreaterThan(p.balance) {
		return "", fmt.Errorf("insufficient paper balance: have %s, need %s",
			p.balance.String(), order.AmountSOL.String())
	}
	if order.QuotedPrice.IsZero() {
		return "", fmt.Errorf("buy order without a quoted price")
	}

	intentID := uuid.New().String()
	p.schedule(ctx, intentID, order)
	return intentID, nil
}

// SubmitSell implements Gateway.
func (p *Paper) SubmitSell(ctx context.Context, order Order) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return "", fmt.Errorf("paper gateway closed")
	}
	if order.AmountTokens.LessThanOrEqual(decimal.Zero) {
		return "", fmt.Errorf("sell order without token amount")
	}

	intentID := uuid.New().String()
	p.schedule(ctx, intentID, order)
	return intentID, nil
}

// schedule queues the simulated fill. Callers hold p.mu.
func (p *Paper) schedule(ctx context.Context, intentID string, order Order) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case <-time.After(p.cfg.FillLatency):
		case <-ctx.Done():
			p.emit(Result{
				IntentID: intentID,
				Failure:  FailTimeout,
				Reason:   ctx.Err().Error(),
			})
			return
		}

		p.emit(p.fill(intentID, order))
	}()
}

func (p *Paper) fill(intentID string, order Order) Result {
	slip := decimal.NewFromFloat(p.cfg.SlippagePercent / 100)

	p.mu.Lock()
	defer p.mu.Unlock()

	switch order.Side {
	case SideBuy:
		fillPrice := order.QuotedPrice.Mul(decimal.NewFromInt(1).Add(slip))
		tokens := order.AmountSOL.Div(fillPrice)
		p.balance = p.balance.Sub(order.AmountSOL)
		p.logger.Debug("Paper buy filled",
			zap.String("mint", order.Mint),
			zap.String("sol", order.AmountSOL.String()),
			zap.String("fill_price", fillPrice.String()))
		return Result{
			IntentID: intentID,
			Filled:   true,
			Price:    fillPrice,
			SOL:      order.AmountSOL,
			Tokens:   tokens,
		}
	default: // SideSell
		fillPrice := order.QuotedPrice.Mul(decimal.NewFromInt(1).Sub(slip))
		sol := order.AmountTokens.Mul(fillPrice)
		p.balance = p.balance.Add(sol)
		p.logger.Debug("Paper sell filled",
			zap.String("mint", order.Mint),
			zap.String("tokens", order.AmountTokens.String()),
			zap.String("fill_price", fillPrice.String()))
		return Result{
			IntentID: intentID,
			Filled:   true,
			Price:    fillPrice,
			SOL:      sol,
			Tokens:   order.AmountTokens,
		}
	}
}

func (p *Paper) emit(res Result) {
	select {
	case p.results <- res:
	default:
		p.logger.Warn("Results channel full, dropping result",
			zap.String("intent_id", res.IntentID))
	}
}

// Close stops accepting intents and, after in-flight fills land, closes the
// results stream.
func (p *Paper) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
	close(p.results)
}
