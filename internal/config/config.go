// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the application configuration. Trading holds the immutable
// per-wallet trading parameters; everything else is plumbing.
type Config struct {
	LogFile         string        `mapstructure:"log_file"`
	DebugLogging    bool          `mapstructure:"debug_logging"`
	PostgresURL     string        `mapstructure:"postgres_url"`
	EventBuffer     int           `mapstructure:"event_buffer"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Trading         TradingConfig `mapstructure:"trading"`
}

// TradingConfig governs candidate selection, sizing and exits for one
// wallet. It is validated once at load and passed around read-only; decision
// code must never mutate or silently clamp it.
type TradingConfig struct {
	MinLiquidityUSD          float64       `mapstructure:"min_liquidity_usd"`
	MaxMarketCapUSD          float64       `mapstructure:"max_market_cap_usd"`
	MinBuySOL                float64       `mapstructure:"min_buy_sol"`
	MaxBuySOL                float64       `mapstructure:"max_buy_sol"`
	StopLossPercent          float64       `mapstructure:"stop_loss_percent"`
	TakeProfitPercent        float64       `mapstructure:"take_profit_percent"`
	TrailingStopPercent      float64       `mapstructure:"trailing_stop_percent"` // 0 disables
	MaxHold                  time.Duration `mapstructure:"max_hold"`              // 0 disables
	MaxSlippagePercent       float64       `mapstructure:"max_slippage_percent"`
	MaxWalletExposurePercent float64       `mapstructure:"max_wallet_exposure_percent"`
	QuoteMaxAge              time.Duration `mapstructure:"quote_max_age"`
	MaxTokenAge              time.Duration `mapstructure:"max_token_age"` // 0 disables
	BuyTimeout               time.Duration `mapstructure:"buy_timeout"`
	SellTimeout              time.Duration `mapstructure:"sell_timeout"`
	SellMaxAttempts          int           `mapstructure:"sell_max_attempts"`
}

const (
	DefaultMinLiquidityUSD = 10_000
	DefaultMaxMarketCapUSD = 5_000_000
	DefaultMinBuySOL       = 0.1
	DefaultMaxBuySOL       = 1.0
	DefaultStopLoss        = 10.0
	DefaultTakeProfit      = 30.0
	DefaultMaxSlippage     = 2.0
	DefaultMaxExposure     = 20.0
	DefaultQuoteMaxAge     = 30 * time.Second
	DefaultMaxTokenAge     = 24 * time.Hour
	DefaultBuyTimeout      = 30 * time.Second
	DefaultSellTimeout     = 30 * time.Second
	DefaultSellAttempts    = 5
	DefaultEventBuffer     = 256
	DefaultShutdownTimeout = 60 * time.Second
)

// ValidationError marks a configuration the core refuses to start with.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

// Load reads, defaults and validates configuration from path. Environment
// variables prefixed AUTOTRADER_ override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"event_buffer":                        DefaultEventBuffer,
		"shutdown_timeout":                    DefaultShutdownTimeout,
		"trading.min_liquidity_usd":           DefaultMinLiquidityUSD,
		"trading.max_market_cap_usd":          DefaultMaxMarketCapUSD,
		"trading.min_buy_sol":                 DefaultMinBuySOL,
		"trading.max_buy_sol":                 DefaultMaxBuySOL,
		"trading.stop_loss_percent":           DefaultStopLoss,
		"trading.take_profit_percent":         DefaultTakeProfit,
		"trading.max_slippage_percent":        DefaultMaxSlippage,
		"trading.max_wallet_exposure_percent": DefaultMaxExposure,
		"trading.quote_max_age":               DefaultQuoteMaxAge,
		"trading.max_token_age":               DefaultMaxTokenAge,
		"trading.buy_timeout":                 DefaultBuyTimeout,
		"trading.sell_timeout":                DefaultSellTimeout,
		"trading.sell_max_attempts":           DefaultSellAttempts,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("AUTOTRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config error: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}

	if err := cfg.Trading.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the trading core must not run with.
func (c *TradingConfig) Validate() error {
	if c.MinLiquidityUSD < 0 {
		return &ValidationError{"min_liquidity_usd", "must be >= 0"}
	}
	if c.MaxMarketCapUSD <= 0 {
		return &ValidationError{"max_market_cap_usd", "must be > 0"}
	}
	if c.MinBuySOL <= 0 {
		return &ValidationError{"min_buy_sol", "must be > 0"}
	}
	if c.MaxBuySOL < c.MinBuySOL {
		return &ValidationError{"max_buy_sol", "must be >= min_buy_sol"}
	}
	for field, pct := range map[string]float64{
		"stop_loss_percent":           c.StopLossPercent,
		"take_profit_percent":         c.TakeProfitPercent,
		"trailing_stop_percent":       c.TrailingStopPercent,
		"max_slippage_percent":        c.MaxSlippagePercent,
		"max_wallet_exposure_percent": c.MaxWalletExposurePercent,
	} {
		if pct < 0 || pct > 100 {
			return &ValidationError{field, "must be within [0, 100]"}
		}
	}
	if c.QuoteMaxAge <= 0 {
		return &ValidationError{"quote_max_age", "must be > 0"}
	}
	if c.MaxHold < 0 {
		return &ValidationError{"max_hold", "must be >= 0"}
	}
	if c.MaxTokenAge < 0 {
		return &ValidationError{"max_token_age", "must be >= 0"}
	}
	if c.BuyTimeout <= 0 {
		return &ValidationError{"buy_timeout", "must be > 0"}
	}
	if c.SellTimeout <= 0 {
		return &ValidationError{"sell_timeout", "must be > 0"}
	}
	if c.SellMaxAttempts <= 0 {
		return &ValidationError{"sell_max_attempts", "must be > 0"}
	}
	return nil
}

// StopLossPrice returns the price at or below which a position entered at
// entry must be closed.
func (c *TradingConfig) StopLossPrice(entry decimal.Decimal) decimal.Decimal {
	return entry.Mul(decimal.NewFromFloat(1 - c.StopLossPercent/100))
}

// TakeProfitPrice returns the price at or above which profit is taken.
func (c *TradingConfig) TakeProfitPrice(entry decimal.Decimal) decimal.Decimal {
	return entry.Mul(decimal.NewFromFloat(1 + c.TakeProfitPercent/100))
}

// TrailingStopPrice returns the exit level below the observed peak, valid
// only when TrailingStopPercent > 0.
func (c *TradingConfig) TrailingStopPrice(peak decimal.Decimal) decimal.Decimal {
	return peak.Mul(decimal.NewFromFloat(1 - c.TrailingStopPercent/100))
}

// MaxExposure returns the SOL amount that may be committed across open
// positions for the given wallet balance.
func (c *TradingConfig) MaxExposure(walletBalance decimal.Decimal) decimal.Decimal {
	return walletBalance.Mul(decimal.NewFromFloat(c.MaxWalletExposurePercent / 100))
}
