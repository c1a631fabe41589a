package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lvonguyen/sectorintel/internal/intel"
)

// RunRecord is the runs table row.
type RunRecord struct {
	ID                string    `gorm:"primaryKey;size:64"`
	CreatedAt         time.Time `gorm:"index"`
	TargetSector      string    `gorm:"size:64"`
	RecordsIn         int
	DuplicatesRemoved int
}

// TableName sets the runs table name.
func (RunRecord) TableName() string { return "runs" }

// IndicatorRecord is one analyzed indicator of a run, kept in run order.
type IndicatorRecord struct {
	ID          uint    `gorm:"primaryKey"`
	RunID       string  `gorm:"size:64;index:idx_run_position,priority:1;not null"`
	Position    int     `gorm:"index:idx_run_position,priority:2"`
	IndicatorID string  `gorm:"size:64;index"`
	Priority    string  `gorm:"size:16;index"`
	RiskScore   float64 `gorm:"index"`
	Document    string  `gorm:"type:jsonb;not null"`
}

// TableName sets the indicators table name.
func (IndicatorRecord) TableName() string { return "run_indicators" }

// PostgresStore keeps runs in PostgreSQL through gorm.
type PostgresStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenPostgres connects to dsn and migrates the schema.
func OpenPostgres(dsn string, log *zap.Logger) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return NewPostgresStore(db, log)
}

// NewPostgresStore wraps an open gorm connection and migrates the schema.
func NewPostgresStore(db *gorm.DB, log *zap.Logger) (*PostgresStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := db.AutoMigrate(&RunRecord{}, &IndicatorRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &PostgresStore{db: db, logger: log}, nil
}

// SaveRun inserts the run and its indicators in one transaction.
func (s *PostgresStore) SaveRun(ctx context.Context, run Run) error {
	if run.ID == "" || run.ID == LatestRunID {
		return fmt.Errorf("invalid run id %q", run.ID)
	}

	rows, err := indicatorRecords(run.ID, run.Indicators)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := RunRecord{
			ID:                run.ID,
			CreatedAt:         run.CreatedAt,
			TargetSector:      run.TargetSector,
			RecordsIn:         run.RecordsIn,
			DuplicatesRemoved: run.DuplicatesRemoved,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 200).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}

	s.logger.Debug("Saved run",
		zap.String("run_id", run.ID),
		zap.Int("indicators", len(rows)),
	)
	return nil
}

// LoadRun reads a run and its indicators in stored order.
func (s *PostgresStore) LoadRun(ctx context.Context, id string) (Run, error) {
	db := s.db.WithContext(ctx)

	var rec RunRecord
	query := db
	if id == LatestRunID {
		query = query.Order("created_at DESC")
	} else {
		query = query.Where("id = ?", id)
	}
	if err := query.First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Run{}, fmt.Errorf("failed to load run %s: %w", id, err)
	}

	var rows []IndicatorRecord
	if err := db.Where("run_id = ?", rec.ID).Order("position ASC").Find(&rows).Error; err != nil {
		return Run{}, fmt.Errorf("failed to load indicators for run %s: %w", rec.ID, err)
	}

	run := Run{
		ID:                rec.ID,
		CreatedAt:         rec.CreatedAt,
		TargetSector:      rec.TargetSector,
		RecordsIn:         rec.RecordsIn,
		DuplicatesRemoved: rec.DuplicatesRemoved,
		Indicators:        make([]intel.Indicator, 0, len(rows)),
	}
	for _, row := range rows {
		var ind intel.Indicator
		if err := json.Unmarshal([]byte(row.Document), &ind); err != nil {
			return Run{}, fmt.Errorf("failed to decode indicator %s: %w", row.IndicatorID, err)
		}
		run.Indicators = append(run.Indicators, ind)
	}
	return run, nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func indicatorRecords(runID string, indicators []intel.Indicator) ([]IndicatorRecord, error) {
	rows := make([]IndicatorRecord, 0, len(indicators))
	for i, ind := range indicators {
		doc, err := json.Marshal(ind)
		if err != nil {
			return nil, fmt.Errorf("failed to encode indicator %s: %w", ind.ID, err)
		}
		row := IndicatorRecord{
			RunID:       runID,
			Position:    i,
			IndicatorID: ind.ID,
			RiskScore:   ind.RiskScore(),
			Document:    string(doc),
		}
		if ind.Analysis != nil {
			row.Priority = ind.Analysis.Priority
		}
		rows = append(rows, row)
	}
	return rows, nil
}
