// internal/filter/filter_test.go
package filter

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/solanatools/autotrader/internal/config"
	"github.com/solanatools/autotrader/internal/market"
)

func testConfig() *config.TradingConfig {
	return &config.TradingConfig{
		MinLiquidityUSD: 10_000,
		MaxMarketCapUSD: 5_000_000,
		QuoteMaxAge:     30 * time.Second,
		MaxTokenAge:     24 * time.Hour,
	}
}

func TestEvaluate(t *testing.T) {
	now := time.Now()
	cfg := testConfig()

	token := market.Token{
		Mint:         "So11111111111111111111111111111111111111112",
		Symbol:       "MEME",
		DiscoveredAt: now.Add(-time.Hour),
	}
	goodQuote := market.Quote{
		Mint:         token.Mint,
		Price:        decimal.NewFromFloat(0.0001),
		LiquidityUSD: decimal.NewFromInt(50_000),
		MarketCapUSD: decimal.NewFromInt(1_000_000),
		Timestamp:    now,
	}

	tests := []struct {
		name       string
		mutate     func(*market.Token, *market.Quote)
		accepted   bool
		wantReason Reason
	}{
		{
			name:     "passes all thresholds",
			mutate:   func(*market.Token, *market.Quote) {},
			accepted: true,
		},
		{
			name: "liquidity exactly at threshold passes",
			mutate: func(_ *market.Token, q *market.Quote) {
				q.LiquidityUSD = decimal.NewFromInt(10_000)
			},
			accepted: true,
		},
		{
			name: "liquidity below threshold",
			mutate: func(_ *market.Token, q *market.Quote) {
				q.LiquidityUSD = decimal.NewFromFloat(9_999.99)
			},
			wantReason: ReasonLowLiquidity,
		},
		{
			name: "market cap exactly at threshold passes",
			mutate: func(_ *market.Token, q *market.Quote) {
				q.MarketCapUSD = decimal.NewFromInt(5_000_000)
			},
			accepted: true,
		},
		{
			name: "market cap above threshold",
			mutate: func(_ *market.Token, q *market.Quote) {
				q.MarketCapUSD = decimal.NewFromInt(5_000_001)
			},
			wantReason: ReasonMarketCapTooHigh,
		},
		{
			name: "stale quote rejected before thresholds",
			mutate: func(_ *market.Token, q *market.Quote) {
				q.Timestamp = now.Add(-time.Minute)
				q.LiquidityUSD = decimal.NewFromInt(1) // would also fail, staleness wins
			},
			wantReason: ReasonStaleQuote,
		},
		{
			name: "token older than max age",
			mutate: func(tok *market.Token, _ *market.Quote) {
				tok.DiscoveredAt = now.Add(-25 * time.Hour)
			},
			wantReason: ReasonTokenTooOld,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, quote := token, goodQuote
			tt.mutate(&tok, &quote)

			decision := Evaluate(tok, quote, cfg, now)
			assert.Equal(t, tt.accepted, decision.Accepted)
			assert.Equal(t, tt.wantReason, decision.Reason)
		})
	}
}

func TestEvaluateAgeRuleDisabled(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	cfg.MaxTokenAge = 0

	token := market.Token{Mint: "m", Symbol: "OLD", DiscoveredAt: now.Add(-30 * 24 * time.Hour)}
	quote := market.Quote{
		Mint:         "m",
		Price:        decimal.NewFromFloat(0.0001),
		LiquidityUSD: decimal.NewFromInt(50_000),
		MarketCapUSD: decimal.NewFromInt(1_000_000),
		Timestamp:    now,
	}

	assert.True(t, Evaluate(token, quote, cfg, now).Accepted)
}
