// cmd/bot/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/solanatools/autotrader/internal/bot"
	"github.com/solanatools/autotrader/internal/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := bot.NewRunner()
	if err := runner.Initialize(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize bot: %v\n", err)
		os.Exit(1)
	}
	log := runner.Logger()
	defer func() { _ = logger.Sync(log) }()

	log.Info("Starting autotrader")
	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("Bot execution error", zap.Error(err))
	}
}
