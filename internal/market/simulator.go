// internal/market/simulator.go
package market

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SimulatorConfig controls the synthetic feed used for paper trading.
type SimulatorConfig struct {
	DiscoveryInterval time.Duration // how often a new token is listed
	QuoteInterval     time.Duration // how often each live token is re-quoted
	MaxTokens         int           // live tokens quoted at once
	Seed              int64         // 0 means seeded from the clock
}

// DefaultSimulatorConfig returns intervals suitable for an interactive
// paper-trading run.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		DiscoveryInterval: 10 * time.Second,
		QuoteInterval:     2 * time.Second,
		MaxTokens:         8,
	}
}

type simToken struct {
	token     Token
	basePrice decimal.Decimal
	liquidity decimal.Decimal
	marketCap decimal.Decimal
}

// Simulator is an in-process Source that lists synthetic tokens and walks
// their prices randomly. Each quote prices the token at base * (1 + u) with
// u uniform in [-0.15, 0.35], the same envelope the live market data of
// fresh listings tends to show over short monitoring windows.
type Simulator struct {
	cfg    SimulatorConfig
	logger *zap.Logger
	rng    *rand.Rand
	events chan Event

	mu     sync.RWMutex
	tokens map[string]*simToken
	latest map[string]Quote
	seq    int
}

// NewSimulator creates a simulator; Run must be called to start emitting.
func NewSimulator(cfg SimulatorConfig, logger *zap.Logger) *Simulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		cfg:    cfg,
		logger: logger.Named("sim_feed"),
		rng:    rand.New(rand.NewSource(seed)),
		events: make(chan Event, 256),
		tokens: make(map[string]*simToken),
		latest: make(map[string]Quote),
	}
}

// Events implements Source.
func (s *Simulator) Events() <-chan Event {
	return s.events
}

// Quote implements Source. It returns the latest emitted quote for the mint.
func (s *Simulator) Quote(_ context.Context, mint string) (Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.latest[mint]
	if !ok {
		return Quote{}, ErrQuoteUnavailable
	}
	return q, nil
}

// Run emits discovery and quote events until ctx is cancelled, then closes
// the event channel.
func (s *Simulator) Run(ctx context.Context) error {
	s.logger.Info("Simulated feed started",
		zap.Duration("discovery_interval", s.cfg.DiscoveryInterval),
		zap.Duration("quote_interval", s.cfg.QuoteInterval))

	discovery := time.NewTicker(s.cfg.DiscoveryInterval)
	quotes := time.NewTicker(s.cfg.QuoteInterval)
	defer discovery.Stop()
	defer quotes.Stop()
	defer close(s.events)

	// List one token immediately so a fresh run has something to trade.
	s.listToken()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Simulated feed stopped")
			return nil
		case <-discovery.C:
			s.listToken()
		case <-quotes.C:
			s.quoteAll()
		}
	}
}

func (s *Simulator) listToken() {
	s.mu.Lock()

	if len(s.tokens) >= s.cfg.MaxTokens {
		// Retire the oldest listing to keep the live set bounded.
		var oldest string
		var oldestAt time.Time
		for mint, st := range s.tokens {
			if oldest == "" || st.token.DiscoveredAt.Before(oldestAt) {
				oldest = mint
				oldestAt = st.token.DiscoveredAt
			}
		}
		delete(s.tokens, oldest)
		delete(s.latest, oldest)
	}

	s.seq++
	now := time.Now()
	mint := fmt.Sprintf("SIM%08dxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx", s.seq)
	st := &simToken{
		token: Token{
			Mint:         mint,
			Symbol:       fmt.Sprintf("MEME%d", s.seq),
			Name:         fmt.Sprintf("Sim Meme %d", s.seq),
			DiscoveredAt: now,
		},
		// Micro-cap ranges typical of fresh listings.
		basePrice: decimal.NewFromFloat(0.000001 * (1 + 99*s.rng.Float64())),
		liquidity: decimal.NewFromFloat(5_000 + 95_000*s.rng.Float64()),
		marketCap: decimal.NewFromFloat(50_000 + 4_950_000*s.rng.Float64()),
	}
	s.tokens[mint] = st
	s.latest[mint] = s.makeQuote(st, now)
	token := st.token
	quote := s.latest[mint]
	s.mu.Unlock()

	s.logger.Info("Listed simulated token",
		zap.String("symbol", token.Symbol),
		zap.String("price", quote.Price.String()),
		zap.String("liquidity_usd", quote.LiquidityUSD.StringFixed(0)))

	s.send(Event{Kind: KindTokenDiscovered, Token: token})
	s.send(Event{Kind: KindQuoteUpdated, Quote: quote})
}

func (s *Simulator) quoteAll() {
	now := time.Now()

	s.mu.Lock()
	batch := make([]Quote, 0, len(s.tokens))
	for mint, st := range s.tokens {
		q := s.makeQuote(st, now)
		s.latest[mint] = q
		batch = append(batch, q)
	}
	s.mu.Unlock()

	for _, q := range batch {
		s.send(Event{Kind: KindQuoteUpdated, Quote: q})
	}
}

// makeQuote prices the token against its listing base. Callers hold s.mu.
func (s *Simulator) makeQuote(st *simToken, now time.Time) Quote {
	move := -0.15 + 0.50*s.rng.Float64()
	price := st.basePrice.Mul(decimal.NewFromFloat(1 + move))
	return Quote{
		Mint:         st.token.Mint,
		Price:        price,
		LiquidityUSD: st.liquidity,
		MarketCapUSD: st.marketCap,
		Timestamp:    now,
	}
}

func (s *Simulator) send(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("Feed channel full, dropping event", zap.String("kind", string(ev.Kind)))
	}
}
