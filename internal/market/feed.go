// internal/market/feed.go
package market

import (
	"context"
	"errors"
)

// EventKind discriminates feed events.
type EventKind string

const (
	// KindTokenDiscovered signals a newly listed token.
	KindTokenDiscovered EventKind = "token.discovered"
	// KindQuoteUpdated carries a fresh quote for a known token.
	KindQuoteUpdated EventKind = "quote.updated"
)

// Event is a single feed delivery. Token is set for KindTokenDiscovered,
// Quote for KindQuoteUpdated. Delivery is at-least-once; consumers must
// tolerate duplicates.
type Event struct {
	Kind  EventKind
	Token Token
	Quote Quote
}

// ErrQuoteUnavailable is returned by Source.Quote when the feed has no
// usable quote for the mint.
var ErrQuoteUnavailable = errors.New("quote unavailable")

// Source is the pull+push contract the core requires from a feed adapter.
type Source interface {
	// Events returns the stream of discovery and quote events. The channel
	// is closed when the source shuts down.
	Events() <-chan Event

	// Quote fetches the latest quote for a mint on demand.
	Quote(ctx context.Context, mint string) (Quote, error)
}
