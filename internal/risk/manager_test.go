// internal/risk/manager_test.go
package risk

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/solanatools/autotrader/internal/config"
)

type stubBalance struct {
	balance decimal.Decimal
	err     error
}

func (s *stubBalance) Balance(context.Context) (decimal.Decimal, error) {
	return s.balance, s.err
}

func testConfig() *config.TradingConfig {
	return &config.TradingConfig{
		MinBuySOL:                0.1,
		MaxBuySOL:                1.0,
		MaxWalletExposurePercent: 20,
	}
}

func newTestManager(t *testing.T, balance float64) *Manager {
	t.Helper()
	return NewManager(testConfig(), &stubBalance{balance: decimal.NewFromFloat(balance)}, zaptest.NewLogger(t))
}

func TestRequestAllocation(t *testing.T) {
	m := newTestManager(t, 10) // cap = 2 SOL

	tests := []struct {
		name       string
		committed  float64
		approved   bool
		wantAmount float64
	}{
		{name: "full size with empty ledger", committed: 0, approved: true, wantAmount: 1.0},
		{name: "shrinks to remaining headroom", committed: 1.5, approved: true, wantAmount: 0.5},
		{name: "exactly min buy left", committed: 1.9, approved: true, wantAmount: 0.1},
		{name: "below min buy denies", committed: 1.95, approved: false},
		{name: "cap fully used", committed: 2.0, approved: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alloc := m.RequestAllocation(decimal.NewFromInt(10), decimal.NewFromFloat(tt.committed))
			assert.Equal(t, tt.approved, alloc.Approved)
			if tt.approved {
				assert.True(t, alloc.Amount.Equal(decimal.NewFromFloat(tt.wantAmount)),
					"got %s", alloc.Amount)
			} else {
				assert.Equal(t, DenyExposureCap, alloc.Reason)
				assert.True(t, alloc.Amount.IsZero())
			}
		})
	}
}

func TestReserveCommitsAtomically(t *testing.T) {
	m := newTestManager(t, 10)

	alloc, err := m.Reserve(context.Background(), "pos-1")
	require.NoError(t, err)
	require.True(t, alloc.Approved)
	assert.True(t, m.TotalCommitted().Equal(alloc.Amount))

	alloc2, err := m.Reserve(context.Background(), "pos-2")
	require.NoError(t, err)
	require.True(t, alloc2.Approved)
	assert.True(t, m.TotalCommitted().Equal(alloc.Amount.Add(alloc2.Amount)))

	// Cap is 2 SOL and both max-size entries consumed it.
	alloc3, err := m.Reserve(context.Background(), "pos-3")
	require.NoError(t, err)
	assert.False(t, alloc3.Approved)
	assert.Equal(t, DenyExposureCap, alloc3.Reason)
}

func TestReserveBalanceUnavailable(t *testing.T) {
	src := &stubBalance{err: fmt.Errorf("rpc unreachable")}
	m := NewManager(testConfig(), src, zaptest.NewLogger(t))

	alloc, err := m.Reserve(context.Background(), "pos-1")
	require.Error(t, err)
	assert.False(t, alloc.Approved)
	assert.Equal(t, DenyBalanceUnavailable, alloc.Reason)
	assert.True(t, m.TotalCommitted().IsZero())
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := newTestManager(t, 10)

	alloc, err := m.Reserve(context.Background(), "pos-1")
	require.NoError(t, err)
	require.True(t, alloc.Approved)

	released := m.Release("pos-1")
	assert.True(t, released.Equal(alloc.Amount))
	assert.True(t, m.TotalCommitted().IsZero())

	// Duplicate release and unknown position are both no-ops.
	assert.True(t, m.Release("pos-1").IsZero())
	assert.True(t, m.Release("never-seen").IsZero())
	assert.True(t, m.TotalCommitted().IsZero())
}

func TestDuplicateCommitIgnored(t *testing.T) {
	m := newTestManager(t, 10)

	m.Commit("pos-1", decimal.NewFromFloat(0.5))
	m.Commit("pos-1", decimal.NewFromFloat(0.7))

	assert.True(t, m.TotalCommitted().Equal(decimal.NewFromFloat(0.5)))
	assert.Equal(t, 1, m.OpenPositions())
}

func TestConcurrentReserveNeverExceedsCap(t *testing.T) {
	m := newTestManager(t, 10) // cap = 2 SOL, max buy 1 SOL

	const workers = 20
	var wg sync.WaitGroup
	approvals := make(chan decimal.Decimal, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			alloc, err := m.Reserve(context.Background(), fmt.Sprintf("pos-%d", n))
			if err == nil && alloc.Approved {
				approvals <- alloc.Amount
			}
		}(i)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent reserves did not finish")
	}
	close(approvals)

	total := decimal.Zero
	for amount := range approvals {
		total = total.Add(amount)
	}
	assert.True(t, total.LessThanOrEqual(decimal.NewFromInt(2)), "total approved %s", total)
	assert.True(t, m.TotalCommitted().Equal(total))
}
