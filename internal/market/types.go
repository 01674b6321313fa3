// internal/market/types.go
// Package market defines the token/quote model and the feed contract the
// trading core consumes. The real feed client lives outside the core; this
// package only specifies what it must deliver.
package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Token is a token observed on the feed. Immutable once discovered.
type Token struct {
	Mint         string
	Symbol       string
	Name         string
	DiscoveredAt time.Time
}

// ShortMint returns an abbreviated mint address for logs.
func (t Token) ShortMint() string {
	if len(t.Mint) >= 8 {
		return t.Mint[:4] + "..." + t.Mint[len(t.Mint)-4:]
	}
	return t.Mint
}

// Quote is a point-in-time snapshot of a token's market state. A later
// quote for the same mint always supersedes an earlier one.
type Quote struct {
	Mint         string
	Price        decimal.Decimal
	LiquidityUSD decimal.Decimal
	MarketCapUSD decimal.Decimal
	Timestamp    time.Time
}

// FreshAt reports whether the quote is within maxAge of now.
func (q Quote) FreshAt(now time.Time, maxAge time.Duration) bool {
	return now.Sub(q.Timestamp) <= maxAge
}

// Supersedes reports whether this quote should replace prev for
// decision-making. Equal timestamps are treated as duplicates.
func (q Quote) Supersedes(prev Quote) bool {
	return q.Timestamp.After(prev.Timestamp)
}
