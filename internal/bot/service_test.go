// internal/bot/service_test.go
package bot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/solanatools/autotrader/internal/config"
	"github.com/solanatools/autotrader/internal/events"
	"github.com/solanatools/autotrader/internal/gateway"
	"github.com/solanatools/autotrader/internal/market"
	"github.com/solanatools/autotrader/internal/position"
	"github.com/solanatools/autotrader/internal/risk"
)

// MockSource is a scriptable market feed.
type MockSource struct {
	mu     sync.Mutex
	events chan market.Event
	quotes map[string]market.Quote
	delays map[string]time.Duration
}

func NewMockSource() *MockSource {
	return &MockSource{
		events: make(chan market.Event, 64),
		quotes: make(map[string]market.Quote),
		delays: make(map[string]time.Duration),
	}
}

func (m *MockSource) Events() <-chan market.Event { return m.events }

func (m *MockSource) Quote(_ context.Context, mint string) (market.Quote, error) {
	m.mu.Lock()
	delay := m.delays[mint]
	q, ok := m.quotes[mint]
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if !ok {
		return market.Quote{}, market.ErrQuoteUnavailable
	}
	return q, nil
}

// delayQuote makes lookups for mint simulate slow feed I/O.
func (m *MockSource) delayQuote(mint string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[mint] = d
}

func (m *MockSource) discover(token market.Token, quote market.Quote) {
	m.mu.Lock()
	m.quotes[token.Mint] = quote
	m.mu.Unlock()
	m.events <- market.Event{Kind: market.KindTokenDiscovered, Token: token}
}

func (m *MockSource) pushQuote(quote market.Quote) {
	m.mu.Lock()
	m.quotes[quote.Mint] = quote
	m.mu.Unlock()
	m.events <- market.Event{Kind: market.KindQuoteUpdated, Quote: quote}
}

// MockGateway fills every intent at the quoted price.
type MockGateway struct {
	mu      sync.Mutex
	results chan gateway.Result
	seq     int
	balance decimal.Decimal
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		results: make(chan gateway.Result, 64),
		balance: decimal.NewFromInt(10),
	}
}

func (g *MockGateway) Balance(context.Context) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance, nil
}

func (g *MockGateway) submit(order gateway.Order) string {
	g.mu.Lock()
	g.seq++
	id := fmt.Sprintf("intent-%d", g.seq)
	g.mu.Unlock()

	res := gateway.Result{IntentID: id, Filled: true, Price: order.QuotedPrice}
	if order.Side == gateway.SideBuy {
		res.SOL = order.AmountSOL
		res.Tokens = order.AmountSOL.Div(order.QuotedPrice)
	} else {
		res.Tokens = order.AmountTokens
		res.SOL = order.AmountTokens.Mul(order.QuotedPrice)
	}
	g.results <- res
	return id
}

func (g *MockGateway) SubmitBuy(_ context.Context, order gateway.Order) (string, error) {
	return g.submit(order), nil
}

func (g *MockGateway) SubmitSell(_ context.Context, order gateway.Order) (string, error) {
	return g.submit(order), nil
}

func (g *MockGateway) Results() <-chan gateway.Result { return g.results }

type serviceHarness struct {
	source  *MockSource
	gw      *MockGateway
	svc     *Service
	riskMgr *risk.Manager
	bus     *events.Bus

	mu       sync.Mutex
	rejected []events.CandidateRejectedEvent
	denied   []events.AllocationDeniedEvent

	cancel  context.CancelFunc
	runDone chan error
}

func serviceConfig() *config.Config {
	return &config.Config{
		EventBuffer:     64,
		ShutdownTimeout: 2 * time.Second,
		Trading: config.TradingConfig{
			MinLiquidityUSD:          10_000,
			MaxMarketCapUSD:          5_000_000,
			MinBuySOL:                0.1,
			MaxBuySOL:                1.0,
			StopLossPercent:          10,
			TakeProfitPercent:        30,
			MaxSlippagePercent:       2,
			MaxWalletExposurePercent: 20,
			QuoteMaxAge:              30 * time.Second,
			MaxTokenAge:              24 * time.Hour,
			BuyTimeout:               2 * time.Second,
			SellTimeout:              2 * time.Second,
			SellMaxAttempts:          3,
		},
	}
}

func newServiceHarness(t *testing.T, cfg *config.Config) *serviceHarness {
	t.Helper()
	log := zaptest.NewLogger(t)

	source := NewMockSource()
	gw := NewMockGateway()
	disp := gateway.NewDispatcher(gw, log)
	dispCtx, dispCancel := context.WithCancel(context.Background())
	go func() { _ = disp.Run(dispCtx) }()
	t.Cleanup(dispCancel)

	bus := events.NewBus(log, cfg.EventBuffer)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = bus.Shutdown(ctx)
	})

	riskMgr := risk.NewManager(&cfg.Trading, gw, log)
	svc := New(Deps{
		Config:     cfg,
		Source:     source,
		Gateway:    gw,
		Dispatcher: disp,
		Risk:       riskMgr,
		Bus:        bus,
		Logger:     log,
	})

	h := &serviceHarness{
		source:  source,
		gw:      gw,
		svc:     svc,
		riskMgr: riskMgr,
		bus:     bus,
		runDone: make(chan error, 1),
	}
	bus.SubscribeFunc(events.CandidateRejected, func(_ context.Context, ev events.Event) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.rejected = append(h.rejected, ev.(events.CandidateRejectedEvent))
		return nil
	})
	bus.SubscribeFunc(events.AllocationDenied, func(_ context.Context, ev events.Event) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.denied = append(h.denied, ev.(events.AllocationDeniedEvent))
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.runDone <- svc.Run(ctx) }()
	return h
}

func (h *serviceHarness) stop(t *testing.T) {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.runDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
}

func testToken(n int) (market.Token, market.Quote) {
	token := market.Token{
		Mint:         fmt.Sprintf("Mint%08dxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx", n),
		Symbol:       fmt.Sprintf("MEME%d", n),
		DiscoveredAt: time.Now(),
	}
	quote := market.Quote{
		Mint:         token.Mint,
		Price:        decimal.NewFromFloat(0.0001),
		LiquidityUSD: decimal.NewFromInt(50_000),
		MarketCapUSD: decimal.NewFromInt(1_000_000),
		Timestamp:    time.Now(),
	}
	return token, quote
}

func (h *serviceHarness) waitForOpenPositions(t *testing.T, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		open := 0
		for _, pos := range h.svc.ActivePositions() {
			if pos.State == position.StateOpen {
				open++
			}
		}
		return open == want
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServiceOpensPositionForAcceptedCandidate(t *testing.T) {
	h := newServiceHarness(t, serviceConfig())

	token, quote := testToken(1)
	h.source.discover(token, quote)
	h.waitForOpenPositions(t, 1)

	assert.True(t, h.riskMgr.TotalCommitted().Equal(decimal.NewFromFloat(1.0)))
	h.stop(t)
}

func TestServiceFullRoundTrip(t *testing.T) {
	h := newServiceHarness(t, serviceConfig())

	token, quote := testToken(1)
	h.source.discover(token, quote)
	h.waitForOpenPositions(t, 1)

	// Price collapses through the stop loss.
	crash := quote
	crash.Price = decimal.NewFromFloat(0.000085)
	crash.Timestamp = time.Now()
	h.source.pushQuote(crash)

	require.Eventually(t, func() bool {
		positions := h.svc.ActivePositions()
		return len(positions) == 1 && positions[0].State == position.StateClosed
	}, 5*time.Second, 10*time.Millisecond)

	assert.True(t, h.riskMgr.TotalCommitted().IsZero())
	h.stop(t)
}

func TestServiceRejectsFilteredCandidate(t *testing.T) {
	h := newServiceHarness(t, serviceConfig())

	token, quote := testToken(1)
	quote.LiquidityUSD = decimal.NewFromInt(500)
	h.source.discover(token, quote)

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.rejected) == 1
	}, 5*time.Second, 10*time.Millisecond)

	h.mu.Lock()
	assert.Equal(t, "low_liquidity", h.rejected[0].Reason)
	h.mu.Unlock()
	assert.Empty(t, h.svc.ActivePositions())
	h.stop(t)
}

func TestServiceDeniesWhenExposureCapReached(t *testing.T) {
	cfg := serviceConfig()
	cfg.Trading.MaxWalletExposurePercent = 10 // cap = 1 SOL, one max-size entry
	h := newServiceHarness(t, cfg)

	first, firstQuote := testToken(1)
	h.source.discover(first, firstQuote)
	h.waitForOpenPositions(t, 1)

	second, secondQuote := testToken(2)
	h.source.discover(second, secondQuote)

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.denied) == 1
	}, 5*time.Second, 10*time.Millisecond)

	h.mu.Lock()
	assert.Equal(t, string(risk.DenyExposureCap), h.denied[0].Reason)
	h.mu.Unlock()
	h.stop(t)
}

func TestServiceSlowDiscoveryDoesNotStallQuoteRouting(t *testing.T) {
	h := newServiceHarness(t, serviceConfig())

	token, quote := testToken(1)
	h.source.discover(token, quote)
	h.waitForOpenPositions(t, 1)

	// A new listing whose quote fetch hangs on feed I/O.
	slow, slowQuote := testToken(2)
	h.source.delayQuote(slow.Mint, 2*time.Second)
	h.source.discover(slow, slowQuote)

	crash := quote
	crash.Price = decimal.NewFromFloat(0.000085)
	crash.Timestamp = time.Now()
	h.source.pushQuote(crash)

	// The stop loss on the open position must execute while the slow
	// fetch is still pending.
	require.Eventually(t, func() bool {
		for _, pos := range h.svc.ActivePositions() {
			if pos.Token.Mint == token.Mint && pos.State == position.StateClosed {
				return true
			}
		}
		return false
	}, 1500*time.Millisecond, 10*time.Millisecond)

	h.stop(t)
}

func TestServiceIgnoresDuplicateDiscovery(t *testing.T) {
	h := newServiceHarness(t, serviceConfig())

	token, quote := testToken(1)
	h.source.discover(token, quote)
	h.waitForOpenPositions(t, 1)

	h.source.discover(token, quote)
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, h.svc.ActivePositions(), 1)
	h.stop(t)
}

func TestServiceReportsUnavailableQuote(t *testing.T) {
	h := newServiceHarness(t, serviceConfig())

	token, _ := testToken(1)
	// Discovery without a quote behind it.
	h.source.events <- market.Event{Kind: market.KindTokenDiscovered, Token: token}

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.rejected) == 1
	}, 5*time.Second, 10*time.Millisecond)

	h.mu.Lock()
	assert.Equal(t, reasonQuoteUnavailable, h.rejected[0].Reason)
	h.mu.Unlock()
	h.stop(t)
}

func TestServiceAllowsReentryAfterClose(t *testing.T) {
	h := newServiceHarness(t, serviceConfig())

	token, quote := testToken(1)
	h.source.discover(token, quote)
	h.waitForOpenPositions(t, 1)

	crash := quote
	crash.Price = decimal.NewFromFloat(0.000085)
	crash.Timestamp = time.Now()
	h.source.pushQuote(crash)
	require.Eventually(t, func() bool {
		return h.riskMgr.TotalCommitted().IsZero()
	}, 5*time.Second, 10*time.Millisecond)

	// The same mint listed again starts a fresh position. Re-listing is
	// retried because the mint frees up only once the old engine returns.
	require.Eventually(t, func() bool {
		fresh := quote
		fresh.Timestamp = time.Now()
		h.source.discover(token, fresh)
		for _, pos := range h.svc.ActivePositions() {
			if pos.State == position.StateOpen {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond)
	h.stop(t)
}

func TestServiceDrainLeavesOpenPositionsOpen(t *testing.T) {
	h := newServiceHarness(t, serviceConfig())

	token, quote := testToken(1)
	h.source.discover(token, quote)
	h.waitForOpenPositions(t, 1)

	h.stop(t)

	positions := h.svc.ActivePositions()
	require.Len(t, positions, 1)
	assert.Equal(t, position.StateOpen, positions[0].State)
	assert.False(t, h.riskMgr.TotalCommitted().IsZero())
}
