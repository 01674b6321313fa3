// internal/bot/service.go
// Package bot wires the trading pipeline together: feed intake, candidate
// filtering, risk approval and position engines.
package bot

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solanatools/autotrader/internal/config"
	"github.com/solanatools/autotrader/internal/events"
	"github.com/solanatools/autotrader/internal/filter"
	"github.com/solanatools/autotrader/internal/gateway"
	"github.com/solanatools/autotrader/internal/market"
	"github.com/solanatools/autotrader/internal/position"
	"github.com/solanatools/autotrader/internal/risk"
)

// reason reported when the feed cannot produce a quote for a discovery.
const reasonQuoteUnavailable = "quote_unavailable"

// Deps are the collaborators the service orchestrates. Recorder may be nil.
type Deps struct {
	Config     *config.Config
	Source     market.Source
	Gateway    gateway.Gateway
	Dispatcher *gateway.Dispatcher
	Risk       *risk.Manager
	Bus        *events.Bus
	Recorder   position.Recorder
	Logger     *zap.Logger
}

// Service consumes the market feed and runs one position engine per traded
// mint. It owns engine lifecycles; on shutdown it stops intake immediately,
// lets entering and exiting engines resolve, and leaves open positions open.
type Service struct {
	deps Deps
	cfg  *config.Config
	log  *zap.Logger

	// engineCtx outlives the intake context so engines mid-trade can
	// resolve during a graceful shutdown.
	engineCtx    context.Context
	engineCancel context.CancelFunc

	mu      sync.Mutex
	engines map[string]*position.Engine // by mint
	claims  map[string]struct{}         // mints with an entry pipeline in flight
	wg      sync.WaitGroup
}

// New creates the trading service.
func New(deps Deps) *Service {
	engineCtx, engineCancel := context.WithCancel(context.Background())
	return &Service{
		deps:         deps,
		cfg:          deps.Config,
		log:          deps.Logger.Named("bot"),
		engineCtx:    engineCtx,
		engineCancel: engineCancel,
		engines:      make(map[string]*position.Engine),
		claims:       make(map[string]struct{}),
	}
}

// Run consumes feed events until ctx is cancelled or the feed closes, then
// drains. Returns nil on a clean drain.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info("Trading service started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Shutdown requested, stopping intake")
			return s.drain()
		case ev, ok := <-s.deps.Source.Events():
			if !ok {
				s.log.Info("Market feed closed")
				return s.drain()
			}
			switch ev.Kind {
			case market.KindTokenDiscovered:
				s.handleDiscovered(ctx, ev.Token)
			case market.KindQuoteUpdated:
				s.routeQuote(ev.Quote)
			}
		}
	}
}

// handleDiscovered claims the mint and hands the rest of the entry pipeline
// to its own goroutine. Quote fetch and allocation may suspend on I/O, and
// the event loop must keep routing quotes to open positions meanwhile.
func (s *Service) handleDiscovered(ctx context.Context, token market.Token) {
	if !s.claimMint(token) {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.enterPosition(ctx, token)
	}()
}

// enterPosition runs quote, filter and risk approval for a claimed mint and
// spawns the engine on success. Every reject path releases the claim so the
// mint can be discovered again.
func (s *Service) enterPosition(ctx context.Context, token market.Token) {
	quote, err := s.deps.Source.Quote(ctx, token.Mint)
	if err != nil {
		s.releaseClaim(token.Mint)
		s.log.Warn("No quote for discovered token",
			zap.String("mint", token.ShortMint()),
			zap.Error(err))
		s.deps.Bus.Publish(events.CandidateRejectedEvent{
			BaseEvent: events.Base(events.CandidateRejected),
			Mint:      token.Mint,
			Symbol:    token.Symbol,
			Reason:    reasonQuoteUnavailable,
		})
		return
	}

	decision := filter.Evaluate(token, quote, &s.cfg.Trading, time.Now())
	if !decision.Accepted {
		s.releaseClaim(token.Mint)
		s.log.Info("Candidate rejected",
			zap.String("symbol", token.Symbol),
			zap.String("mint", token.ShortMint()),
			zap.String("reason", string(decision.Reason)))
		s.deps.Bus.Publish(events.CandidateRejectedEvent{
			BaseEvent: events.Base(events.CandidateRejected),
			Mint:      token.Mint,
			Symbol:    token.Symbol,
			Reason:    string(decision.Reason),
		})
		return
	}

	positionID := uuid.New().String()
	alloc, err := s.deps.Risk.Reserve(ctx, positionID)
	if err != nil || !alloc.Approved {
		s.releaseClaim(token.Mint)
		if err != nil {
			s.log.Warn("Allocation failed", zap.String("symbol", token.Symbol), zap.Error(err))
		}
		s.deps.Bus.Publish(events.AllocationDeniedEvent{
			BaseEvent: events.Base(events.AllocationDenied),
			Mint:      token.Mint,
			Symbol:    token.Symbol,
			Reason:    string(alloc.Reason),
		})
		return
	}

	engine := position.NewEngine(positionID, token, alloc.Amount, quote, position.Deps{
		Config:     &s.cfg.Trading,
		Gateway:    s.deps.Gateway,
		Dispatcher: s.deps.Dispatcher,
		Risk:       s.deps.Risk,
		Bus:        s.deps.Bus,
		Store:      s.deps.Recorder,
		Logger:     s.deps.Logger,
	})

	s.mu.Lock()
	s.engines[token.Mint] = engine
	delete(s.claims, token.Mint)
	s.mu.Unlock()

	s.log.Info("Entering position",
		zap.String("symbol", token.Symbol),
		zap.String("mint", token.ShortMint()),
		zap.String("position_id", positionID),
		zap.String("amount_sol", alloc.Amount.String()))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = engine.Run(s.engineCtx)
	}()
}

// claimMint reports whether a discovery may enter the pipeline. A mint with
// an entry pipeline in flight or a live engine is skipped (duplicate feed
// deliveries are expected). A mint whose engine resolved to Closed or Failed
// is freed for re-entry; Stuck keeps the mint blocked because its tokens are
// still held.
func (s *Service) claimMint(token market.Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, inFlight := s.claims[token.Mint]; inFlight {
		s.log.Debug("Token entry already in flight", zap.String("mint", token.ShortMint()))
		return false
	}

	engine, exists := s.engines[token.Mint]
	if !exists {
		s.claims[token.Mint] = struct{}{}
		return true
	}

	select {
	case <-engine.Done():
	default:
		s.log.Debug("Token already tracked", zap.String("mint", token.ShortMint()))
		return false
	}

	switch engine.Snapshot().State {
	case position.StateClosed, position.StateFailed:
		delete(s.engines, token.Mint)
		s.claims[token.Mint] = struct{}{}
		return true
	default:
		s.log.Debug("Token blocked by prior position",
			zap.String("mint", token.ShortMint()),
			zap.String("state", string(engine.Snapshot().State)))
		return false
	}
}

// releaseClaim frees a mint whose entry pipeline ended without an engine.
func (s *Service) releaseClaim(mint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, mint)
}

// routeQuote forwards a price update to the engine tracking its mint.
func (s *Service) routeQuote(quote market.Quote) {
	s.mu.Lock()
	engine, ok := s.engines[quote.Mint]
	s.mu.Unlock()
	if !ok {
		return
	}

	select {
	case <-engine.Done():
	default:
		engine.OfferQuote(quote)
	}
}

// drain tells open engines to stop monitoring and waits for every engine
// to return. Engines still entering or exiting get the shutdown timeout to
// resolve before being force-cancelled.
func (s *Service) drain() error {
	s.mu.Lock()
	engines := make([]*position.Engine, 0, len(s.engines))
	for _, engine := range s.engines {
		engines = append(engines, engine)
	}
	s.mu.Unlock()

	for _, engine := range engines {
		engine.Drain()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("All position engines resolved")
	case <-time.After(s.cfg.ShutdownTimeout):
		s.log.Warn("Shutdown timeout, cancelling remaining engines",
			zap.Duration("timeout", s.cfg.ShutdownTimeout))
		s.engineCancel()
		<-done
	}

	s.engineCancel()
	s.logOutcomes(engines)
	return nil
}

// logOutcomes summarizes final position states at shutdown.
func (s *Service) logOutcomes(engines []*position.Engine) {
	counts := make(map[position.State]int)
	for _, engine := range engines {
		counts[engine.Snapshot().State]++
	}
	fields := make([]zap.Field, 0, len(counts))
	for state, n := range counts {
		fields = append(fields, zap.Int(string(state), n))
	}
	s.log.Info("Final position states", fields...)
}

// ActivePositions returns snapshots of all tracked positions.
func (s *Service) ActivePositions() []position.Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshots := make([]position.Position, 0, len(s.engines))
	for _, engine := range s.engines {
		snapshots = append(snapshots, engine.Snapshot())
	}
	return snapshots
}
