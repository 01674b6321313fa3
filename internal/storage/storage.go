// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/solanatools/autotrader/internal/storage/models"
)

// Store is the persistence contract for the trading journal.
type Store interface {
	// Positions
	SavePosition(ctx context.Context, pos *models.Position) error
	GetPosition(ctx context.Context, positionID string) (*models.Position, error)
	ListPositions(ctx context.Context, state string, limit, offset int) ([]*models.Position, error)

	// Trades
	SaveTrade(ctx context.Context, trade *models.Trade) error
	ListTrades(ctx context.Context, positionID string) ([]*models.Trade, error)

	// Migrations
	RunMigrations() error

	Close() error
}
