// internal/gateway/gateway.go
// Package gateway defines the trade-execution contract. The real gateway
// (swap endpoint plus signing flow) is an external collaborator; the core
// submits opaque intents and consumes asynchronous fill/failure results.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// Side distinguishes buys from sells.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// FailureKind classifies gateway failures. Timeouts may be retried by the
// caller's policy; rejections are final for the intent.
type FailureKind string

const (
	FailTimeout  FailureKind = "timeout"
	FailRejected FailureKind = "rejected"
)

// Order is a trade intent. For buys AmountSOL is the SOL to spend; for
// sells AmountTokens is the token quantity to liquidate. QuotedPrice is the
// price the decision was made at. MaxSlippagePercent is advisory: the
// gateway aims to fill within it, and the core records any deviation rather
// than rejecting the fill after the fact.
type Order struct {
	Mint               string
	Side               Side
	AmountSOL          decimal.Decimal
	AmountTokens       decimal.Decimal
	QuotedPrice        decimal.Decimal
	MaxSlippagePercent float64
}

// Result reports the outcome of a submitted intent.
type Result struct {
	IntentID string
	Filled   bool

	// Fill fields
	Price  decimal.Decimal // actual execution price
	SOL    decimal.Decimal // SOL spent (buy) or received (sell)
	Tokens decimal.Decimal // tokens received (buy) or sold (sell)

	// Failure fields
	Failure FailureKind
	Reason  string
}

// Gateway accepts trade intents and reports their outcomes on Results.
// Submit calls return as soon as the intent is accepted for execution.
type Gateway interface {
	SubmitBuy(ctx context.Context, order Order) (intentID string, err error)
	SubmitSell(ctx context.Context, order Order) (intentID string, err error)
	Results() <-chan Result
}
