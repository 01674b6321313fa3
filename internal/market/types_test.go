// internal/market/types_test.go
package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQuoteFreshAt(t *testing.T) {
	now := time.Now()
	q := Quote{Timestamp: now.Add(-20 * time.Second)}

	assert.True(t, q.FreshAt(now, 30*time.Second))
	assert.True(t, q.FreshAt(now, 20*time.Second)) // boundary is inclusive
	assert.False(t, q.FreshAt(now, 19*time.Second))
}

func TestQuoteSupersedes(t *testing.T) {
	now := time.Now()
	older := Quote{Timestamp: now.Add(-time.Second)}
	newer := Quote{Timestamp: now}

	assert.True(t, newer.Supersedes(older))
	assert.False(t, older.Supersedes(newer))
	// Equal timestamps are duplicates, not updates.
	assert.False(t, newer.Supersedes(newer))
}

func TestShortMint(t *testing.T) {
	tok := Token{Mint: "So11111111111111111111111111111111111111112"}
	assert.Equal(t, "So11...1112", tok.ShortMint())

	short := Token{Mint: "abc"}
	assert.Equal(t, "abc", short.ShortMint())
}
