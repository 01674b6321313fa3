// internal/filter/filter.go
// Package filter decides whether a newly discovered token is worth entering.
// Evaluation is a pure function of its inputs; callers aggregate the
// enumerated reject reasons for observability.
package filter

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/solanatools/autotrader/internal/config"
	"github.com/solanatools/autotrader/internal/market"
)

// Reason enumerates why a candidate was rejected.
type Reason string

const (
	ReasonLowLiquidity     Reason = "low_liquidity"
	ReasonMarketCapTooHigh Reason = "market_cap_too_high"
	// ReasonStaleQuote is deliberately distinct from the threshold reasons:
	// it reports a data-quality problem, not a market verdict.
	ReasonStaleQuote  Reason = "stale_quote"
	ReasonTokenTooOld Reason = "token_too_old"
)

// Decision is the outcome of evaluating one candidate.
type Decision struct {
	Accepted bool
	Reason   Reason // empty when accepted
}

// Accept returns an accepting decision.
func Accept() Decision {
	return Decision{Accepted: true}
}

// Reject returns a rejecting decision with the given reason.
func Reject(reason Reason) Decision {
	return Decision{Reason: reason}
}

// Evaluate checks a token/quote pair against the configured thresholds.
// All rules must pass for an Accept. Quote freshness is checked first so a
// stale feed never masquerades as a threshold failure.
func Evaluate(token market.Token, quote market.Quote, cfg *config.TradingConfig, now time.Time) Decision {
	if !quote.FreshAt(now, cfg.QuoteMaxAge) {
		return Reject(ReasonStaleQuote)
	}

	if cfg.MaxTokenAge > 0 && now.Sub(token.DiscoveredAt) > cfg.MaxTokenAge {
		return Reject(ReasonTokenTooOld)
	}

	if quote.LiquidityUSD.LessThan(decimal.NewFromFloat(cfg.MinLiquidityUSD)) {
		return Reject(ReasonLowLiquidity)
	}

	if quote.MarketCapUSD.GreaterThan(decimal.NewFromFloat(cfg.MaxMarketCapUSD)) {
		return Reject(ReasonMarketCapTooHigh)
	}

	return Accept()
}
