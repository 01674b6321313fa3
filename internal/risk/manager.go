// internal/risk/manager.go
// Package risk owns the wallet exposure ledger. It is the sole authority
// allowed to approve capital commitment; no other component adjusts
// committed exposure.
package risk

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solanatools/autotrader/internal/config"
)

// DenyReason enumerates why an allocation request was refused.
type DenyReason string

const (
	DenyExposureCap        DenyReason = "exposure_cap"
	DenyBalanceUnavailable DenyReason = "balance_unavailable"
)

// Allocation is the result of a sizing request.
type Allocation struct {
	Approved bool
	Amount   decimal.Decimal // SOL, zero unless approved
	Reason   DenyReason      // set when denied
}

// BalanceSource supplies the current wallet balance in SOL. The call may
// suspend on I/O; the manager never holds its lock across it.
type BalanceSource interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
}

// Manager tracks committed exposure per position under a single mutex.
// Invariant: total always equals the sum of the per-position commitments.
type Manager struct {
	cfg     *config.TradingConfig
	balance BalanceSource
	logger  *zap.Logger

	mu        sync.Mutex
	committed map[string]decimal.Decimal // position ID -> SOL
	total     decimal.Decimal
}

// NewManager creates a risk manager for one wallet.
func NewManager(cfg *config.TradingConfig, balance BalanceSource, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		balance:   balance,
		logger:    logger.Named("risk"),
		committed: make(map[string]decimal.Decimal),
	}
}

// RequestAllocation sizes a buy against the exposure cap. Sizing starts at
// max_buy and shrinks toward min_buy as the cap tightens; it denies only
// when even min_buy would exceed the remaining headroom. The calculation is
// pure: it commits nothing.
func (m *Manager) RequestAllocation(walletBalance, currentExposure decimal.Decimal) Allocation {
	maxExposure := m.cfg.MaxExposure(walletBalance)
	remaining := maxExposure.Sub(currentExposure)

	amount := decimal.NewFromFloat(m.cfg.MaxBuySOL)
	if amount.GreaterThan(remaining) {
		amount = remaining
	}

	if amount.LessThan(decimal.NewFromFloat(m.cfg.MinBuySOL)) {
		return Allocation{Reason: DenyExposureCap}
	}
	return Allocation{Approved: true, Amount: amount}
}

// Reserve fetches the wallet balance, sizes an allocation against the live
// ledger and commits it for positionID. The cap check and the commit happen
// as one atomic step, so concurrent entries can never both pass against a
// stale exposure snapshot.
func (m *Manager) Reserve(ctx context.Context, positionID string) (Allocation, error) {
	walletBalance, err := m.balance.Balance(ctx)
	if err != nil {
		return Allocation{Reason: DenyBalanceUnavailable}, fmt.Errorf("wallet balance refresh: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	alloc := m.RequestAllocation(walletBalance, m.total)
	if !alloc.Approved {
		m.logger.Info("Allocation denied",
			zap.String("position_id", positionID),
			zap.String("wallet_balance", walletBalance.String()),
			zap.String("committed", m.total.String()),
			zap.String("reason", string(alloc.Reason)))
		return alloc, nil
	}

	m.commitLocked(positionID, alloc.Amount)
	m.logger.Info("Exposure committed",
		zap.String("position_id", positionID),
		zap.String("amount_sol", alloc.Amount.String()),
		zap.String("total_committed", m.total.String()))
	return alloc, nil
}

// Commit records exposure for positionID. A duplicate commit for the same
// position is a no-op.
func (m *Manager) Commit(positionID string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitLocked(positionID, amount)
}

func (m *Manager) commitLocked(positionID string, amount decimal.Decimal) {
	if _, exists := m.committed[positionID]; exists {
		m.logger.Warn("Duplicate commit ignored", zap.String("position_id", positionID))
		return
	}
	m.committed[positionID] = amount
	m.total = m.total.Add(amount)
}

// Release returns the exposure held by positionID to the wallet. Releasing
// an unknown or already-released position is a no-op, which makes duplicate
// close notifications harmless (at-most-once effect on the ledger).
func (m *Manager) Release(positionID string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()

	amount, exists := m.committed[positionID]
	if !exists {
		return decimal.Zero
	}
	delete(m.committed, positionID)
	m.total = m.total.Sub(amount)

	m.logger.Info("Exposure released",
		zap.String("position_id", positionID),
		zap.String("amount_sol", amount.String()),
		zap.String("total_committed", m.total.String()))
	return amount
}

// TotalCommitted returns the SOL currently committed across live positions.
func (m *Manager) TotalCommitted() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// OpenPositions returns the number of positions holding exposure.
func (m *Manager) OpenPositions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.committed)
}
