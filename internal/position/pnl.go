// internal/position/pnl.go
package position

import (
	"github.com/shopspring/decimal"
)

// PnL is the realized outcome of a closed position, in SOL terms.
type PnL struct {
	EntrySOL decimal.Decimal
	ExitSOL  decimal.Decimal
	NetSOL   decimal.Decimal
	Percent  float64
}

// ComputePnL calculates realized profit and loss from the SOL spent on
// entry and received on exit.
func ComputePnL(entrySOL, exitSOL decimal.Decimal) PnL {
	net := exitSOL.Sub(entrySOL)

	var pct float64
	if entrySOL.IsPositive() {
		pct, _ = net.Div(entrySOL).Mul(decimal.NewFromInt(100)).Float64()
	}

	return PnL{
		EntrySOL: entrySOL,
		ExitSOL:  exitSOL,
		NetSOL:   net,
		Percent:  pct,
	}
}

// Profitable reports whether the position closed above break-even.
func (p PnL) Profitable() bool {
	return p.NetSOL.IsPositive()
}
