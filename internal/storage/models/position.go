// internal/storage/models/position.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the persisted snapshot of a position. One row per position,
// upserted on every state transition; PositionID is the engine's UUID.
type Position struct {
	BaseModel
	PositionID string `gorm:"uniqueIndex;size:64;not null"`
	Mint       string `gorm:"index;size:64;not null"`
	Symbol     string `gorm:"size:32"`
	State      string `gorm:"index;size:16;not null"`

	EntryPrice decimal.Decimal `gorm:"column:entry_price;type:numeric(30,12)"`
	EntrySOL   decimal.Decimal `gorm:"column:entry_sol;type:numeric(20,9)"`
	Tokens     decimal.Decimal `gorm:"column:tokens;type:numeric(30,9)"`
	PeakPrice  decimal.Decimal `gorm:"column:peak_price;type:numeric(30,12)"`

	ExitReason string          `gorm:"size:16"`
	ExitPrice  decimal.Decimal `gorm:"column:exit_price;type:numeric(30,12)"`
	ExitSOL    decimal.Decimal `gorm:"column:exit_sol;type:numeric(20,9)"`
	PnLSOL     decimal.Decimal `gorm:"column:pnl_sol;type:numeric(20,9)"`

	EntrySlippagePercent float64
	FailReason           string `gorm:"type:text"`

	OpenedAt *time.Time
	ClosedAt *time.Time
}

// TableName sets the table name for the Position model.
func (Position) TableName() string {
	return "positions"
}
