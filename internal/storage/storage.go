// Package storage implements trade/position/risk persistence, adapted from storage/database.go
// (Postgres connection + migrate-then-query idiom) onto gorm so the schema
// doubles for sqlite in tests and development.
package storage

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dexsentinel/engine/internal/domain"
)

// TradeRecord persists one completed TradeExecution.
type TradeRecord struct {
	TradeID string `gorm:"primaryKey"`
	ChainID int64
	PairKey string `gorm:"index"`
	Action string
	Status string
	TxHash string
	AmountOutRaw string // decimal.Decimal stored as its canonical string form
	ActualSlippage string
	GasUsed uint64
	ExecutionTimeMs int64
	CorrelationID string `gorm:"index"`
	CreatedAt time.Time
}

// PositionRecord persists one Position's full lifecycle.
type PositionRecord struct {
	PositionID string `gorm:"primaryKey"`
	TokenAddress string
	ChainID int64
	QuantityRaw string
	EntryPriceRaw string
	ExitPriceRaw string
	InitialValueRaw string
	Status string `gorm:"index"` // OPEN, CLOSED
	OpenedAt time.Time
	ClosedAt *time.Time
}

// CircuitBreakerEventRecord persists one CircuitBreakerEvent.
type CircuitBreakerEventRecord struct {
	ID uint `gorm:"primaryKey;autoIncrement"`
	Type string `gorm:"index"`
	TriggerValue string
	ThresholdValue string
	TriggeredAt time.Time
	AutoRecoveryAt *time.Time
	Reason string
}

// RiskAssessmentRecord persists the Risk Assessment Engine's verdict trail
// for later audit.
type RiskAssessmentRecord struct {
	ID uint `gorm:"primaryKey;autoIncrement"`
	PairKey string `gorm:"index"`
	OverallScore string
	Confidence string
	IsTradeable bool
	AssessedAt time.Time
}

// Store wraps a gorm DB handle with the domain-typed helpers the rest of the
// engine calls.
type Store struct {
	db *gorm.DB
}

// Open connects to dsn using driver ("postgres" or "sqlite") and runs
// AutoMigrate for every model.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", driver, err)
	}

	if err := db.AutoMigrate(&TradeRecord{}, &PositionRecord{}, &CircuitBreakerEventRecord{}, &RiskAssessmentRecord{}); err != nil {
		return nil, fmt.Errorf("storage: automigrate: %w", err)
	}

	log.Info().Str("driver", driver).Msg("storage connected")
	return &Store{db: db}, nil
}

// RecordTrade persists a completed execution.
func (s *Store) RecordTrade(exec domain.TradeExecution) error {
	rec := TradeRecord{
		TradeID: exec.TradeID,
		ChainID: exec.Decision.PairID.ChainID,
		PairKey: exec.Decision.PairID.String(),
		Action: string(exec.Decision.Action),
		Status: string(exec.Status),
		TxHash: exec.TxHash,
		AmountOutRaw: exec.AmountOut.String(),
		ActualSlippage: exec.ActualSlippage.String(),
		GasUsed: exec.GasUsed,
		ExecutionTimeMs: exec.ExecutionTimeMs,
		CorrelationID: exec.CorrelationID,
		CreatedAt: time.Now(),
	}
	return s.db.Create(&rec).Error
}

// OpenPosition persists a newly opened position.
func (s *Store) OpenPosition(p domain.Position) error {
	rec := PositionRecord{
		PositionID: p.PositionID,
		TokenAddress: p.TokenAddress,
		ChainID: p.ChainID,
		QuantityRaw: p.Quantity.String(),
		EntryPriceRaw: p.EntryPriceUSD.String(),
		InitialValueRaw: p.InitialValueUSD.String(),
		Status: "OPEN",
		OpenedAt: p.OpenedAt,
	}
	return s.db.Create(&rec).Error
}

// ClosePosition marks a persisted position closed at exitPrice.
func (s *Store) ClosePosition(positionID string, exitPrice decimal.Decimal) error {
	now := time.Now()
	return s.db.Model(&PositionRecord{}).Where("position_id = ?", positionID).
	Updates(map[string]any{"status": "CLOSED", "exit_price_raw": exitPrice.String(), "closed_at": now}).Error
}

// OpenPositions returns every position still marked OPEN.
func (s *Store) OpenPositions() ([]PositionRecord, error) {
	var out []PositionRecord
	err := s.db.Where("status = ?", "OPEN").Find(&out).Error
	return out, err
}

// RecordCircuitBreakerEvent persists one breaker trip.
func (s *Store) RecordCircuitBreakerEvent(e domain.CircuitBreakerEvent) error {
	rec := CircuitBreakerEventRecord{
		Type: string(e.Type),
		TriggerValue: e.TriggerValue.String(),
		ThresholdValue: e.ThresholdValue.String(),
		TriggeredAt: e.TriggeredAt,
		AutoRecoveryAt: e.AutoRecoveryAt,
		Reason: e.Reason,
	}
	return s.db.Create(&rec).Error
}

// RecordRiskAssessment persists an assessment for later audit.
func (s *Store) RecordRiskAssessment(a domain.RiskAssessment) error {
	rec := RiskAssessmentRecord{
		PairKey: a.PairID.String(),
		OverallScore: a.OverallScore.String(),
		Confidence: a.Confidence.String(),
		IsTradeable: a.IsTradeable,
		AssessedAt: a.AssessedAt,
	}
	return s.db.Create(&rec).Error
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
