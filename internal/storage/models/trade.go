// internal/storage/models/trade.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one confirmed fill, buy or sell. Appended once per fill from the
// lifecycle events; positions reference their trades by PositionID.
type Trade struct {
	BaseModel
	PositionID string `gorm:"index;size:64;not null"`
	Mint       string `gorm:"index;size:64;not null"`
	Symbol     string `gorm:"size:32"`
	Side       string `gorm:"size:4;not null"`

	Price  decimal.Decimal `gorm:"column:price;type:numeric(30,12)"`
	SOL    decimal.Decimal `gorm:"column:sol;type:numeric(20,9)"`
	Tokens decimal.Decimal `gorm:"column:tokens;type:numeric(30,9)"`

	ExecutedAt time.Time `gorm:"index"`
}

// TableName sets the table name for the Trade model.
func (Trade) TableName() string {
	return "trades"
}
