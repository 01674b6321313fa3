// internal/bot/runner.go
package bot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/solanatools/autotrader/internal/config"
	"github.com/solanatools/autotrader/internal/events"
	"github.com/solanatools/autotrader/internal/gateway"
	"github.com/solanatools/autotrader/internal/logger"
	"github.com/solanatools/autotrader/internal/market"
	"github.com/solanatools/autotrader/internal/position"
	"github.com/solanatools/autotrader/internal/risk"
	"github.com/solanatools/autotrader/internal/storage"
	"github.com/solanatools/autotrader/internal/storage/postgres"
)

// Runner assembles the full paper-trading stack from configuration and
// owns its startup and shutdown order.
type Runner struct {
	cfg *config.Config
	log *zap.Logger

	bus      *events.Bus
	notifier *Notifier
	journal  *Journal
	store    storage.Store
	paper    *gateway.Paper
	disp     *gateway.Dispatcher
	sim      *market.Simulator
	service  *Service
}

// NewRunner creates an uninitialized runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Logger returns the runner's logger, nil before Initialize succeeds.
func (r *Runner) Logger() *zap.Logger {
	return r.log
}

// Initialize loads configuration and wires every component. Storage is
// optional: without a postgres_url the bot runs without a journal.
func (r *Runner) Initialize(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	r.cfg = cfg

	logCfg := logger.DefaultConfig()
	logCfg.Development = cfg.DebugLogging
	logCfg.LogFile = cfg.LogFile
	r.log, err = logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	r.bus = events.NewBus(r.log, cfg.EventBuffer)
	r.notifier = NewNotifier(r.log)
	r.notifier.Attach(r.bus)

	var recorder position.Recorder
	if cfg.PostgresURL != "" {
		store, err := postgres.NewStore(cfg.PostgresURL, r.log)
		if err != nil {
			return fmt.Errorf("connect storage: %w", err)
		}
		if err := store.RunMigrations(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		r.store = store
		recorder = storage.NewPositionRecorder(store)
		r.journal = NewJournal(store, r.log)
		r.journal.Attach(r.bus)
		r.log.Info("Trade journal enabled")
	} else {
		r.log.Info("No postgres_url configured, running without a journal")
	}

	r.paper = gateway.NewPaper(gateway.DefaultPaperConfig(), r.log)
	r.disp = gateway.NewDispatcher(r.paper, r.log)
	r.sim = market.NewSimulator(market.DefaultSimulatorConfig(), r.log)

	riskMgr := risk.NewManager(&cfg.Trading, r.paper, r.log)
	r.service = New(Deps{
		Config:     cfg,
		Source:     r.sim,
		Gateway:    r.paper,
		Dispatcher: r.disp,
		Risk:       riskMgr,
		Bus:        r.bus,
		Recorder:   recorder,
		Logger:     r.log,
	})

	r.log.Info("Bot initialized",
		zap.Float64("max_buy_sol", cfg.Trading.MaxBuySOL),
		zap.Float64("stop_loss_percent", cfg.Trading.StopLossPercent),
		zap.Float64("take_profit_percent", cfg.Trading.TakeProfitPercent),
		zap.Float64("max_wallet_exposure_percent", cfg.Trading.MaxWalletExposurePercent))
	return nil
}

// Run starts the feed, dispatcher and trading service and blocks until ctx
// is cancelled and the drain completes.
func (r *Runner) Run(ctx context.Context) error {
	// The dispatcher outlives the intake context: engines resolving during
	// the drain still need their fill results delivered.
	dispCtx, dispCancel := context.WithCancel(context.Background())
	defer dispCancel()

	dispDone := make(chan struct{})
	go func() {
		defer close(dispDone)
		_ = r.disp.Run(dispCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.sim.Run(gctx) })
	g.Go(func() error { return r.service.Run(gctx) })

	err := g.Wait()

	r.paper.Close()
	dispCancel()
	<-dispDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if busErr := r.bus.Shutdown(shutdownCtx); busErr != nil {
		r.log.Warn("Event bus did not drain cleanly", zap.Error(busErr))
	}

	if r.store != nil {
		if closeErr := r.store.Close(); closeErr != nil {
			r.log.Warn("Failed to close storage", zap.Error(closeErr))
		}
	}

	r.log.Info("Bot stopped")
	return err
}
