// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/solanatools/autotrader/internal/storage"
	"github.com/solanatools/autotrader/internal/storage/models"
)

const migrationLockID = 4217

// gormLogger adapts zap to GORM's logger.Interface.
type gormLogger struct {
	zapLogger *zap.Logger
	logLevel  logger.LogLevel
}

func newGormLogger(zapLogger *zap.Logger) logger.Interface {
	return &gormLogger{
		zapLogger: zapLogger,
		logLevel:  logger.Warn,
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	if err != nil {
		l.zapLogger.Error("trace", append(fields, zap.Error(err))...)
		return
	}

	if l.logLevel >= logger.Info {
		l.zapLogger.Info("trace", fields...)
	}
}

// store implements storage.Store on a gorm connection.
type store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore connects to PostgreSQL and returns a journal store.
func NewStore(dsn string, zapLogger *zap.Logger) (storage.Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newGormLogger(zapLogger.Named("gorm")),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &store{db: db, logger: zapLogger}, nil
}

// newStoreWithDB wraps an existing gorm connection. Used by tests.
func newStoreWithDB(db *gorm.DB, zapLogger *zap.Logger) storage.Store {
	return &store{db: db, logger: zapLogger}
}

// RunMigrations applies the schema under an advisory lock so concurrent
// instances cannot migrate at the same time.
func (s *store) RunMigrations() error {
	if s.db.Dialector.Name() == "postgres" {
		var lockObtained bool
		if err := s.db.Raw("SELECT pg_try_advisory_lock(?)", migrationLockID).Scan(&lockObtained).Error; err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		if !lockObtained {
			return fmt.Errorf("another migration is in progress")
		}
		defer s.db.Exec("SELECT pg_advisory_unlock(?)", migrationLockID)
	}

	if err := s.db.AutoMigrate(&models.Position{}, &models.Trade{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SavePosition upserts the snapshot keyed by position_id.
func (s *store) SavePosition(ctx context.Context, pos *models.Position) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "position_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"state", "entry_price", "entry_sol", "tokens", "peak_price",
				"exit_reason", "exit_price", "exit_sol", "pnl_sol",
				"entry_slippage_percent", "fail_reason",
				"opened_at", "closed_at", "updated_at",
			}),
		}).
		Create(pos).Error
}

func (s *store) GetPosition(ctx context.Context, positionID string) (*models.Position, error) {
	var pos models.Position
	err := s.db.WithContext(ctx).Where("position_id = ?", positionID).First(&pos).Error
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

func (s *store) ListPositions(ctx context.Context, state string, limit, offset int) ([]*models.Position, error) {
	var positions []*models.Position
	q := s.db.WithContext(ctx).Order("created_at desc").Limit(limit).Offset(offset)
	if state != "" {
		q = q.Where("state = ?", state)
	}
	err := q.Find(&positions).Error
	return positions, err
}

func (s *store) SaveTrade(ctx context.Context, trade *models.Trade) error {
	return s.db.WithContext(ctx).Create(trade).Error
}

func (s *store) ListTrades(ctx context.Context, positionID string) ([]*models.Trade, error) {
	var trades []*models.Trade
	err := s.db.WithContext(ctx).
		Where("position_id = ?", positionID).
		Order("executed_at asc").
		Find(&trades).Error
	return trades, err
}

func (s *store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
