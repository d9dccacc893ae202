package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/healthylife/internal/ids"
	"github.com/MarcoPoloResearchLab/healthylife/internal/routines"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillCompletionLog = "2024-03-01_backfill_completion_log"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	migrations := []migrationDefinition{
		{name: migrationBackfillCompletionLog, apply: backfillCompletionLog(ids.NewUUIDProvider())},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

// backfillCompletionLog appends one completion entry for every routine that
// was marked completed before the completion log existed.
func backfillCompletionLog(idProvider ids.Provider) func(*gorm.DB) error {
	return func(tx *gorm.DB) error {
		var orphans []routines.Routine
		err := tx.Where("completed = ? AND completed_at IS NOT NULL", true).
			Where("NOT EXISTS (SELECT 1 FROM routine_completions c WHERE c.routine_id = routines.routine_id)").
			Find(&orphans).Error
		if err != nil {
			return err
		}
		for _, routine := range orphans {
			completionID, err := idProvider.NewID()
			if err != nil {
				return err
			}
			completion := routines.Completion{
				CompletionID: completionID,
				OwnerID:      routine.OwnerID,
				RoutineID:    routine.RoutineID,
				OccurredAt:   routine.CompletedAt.UTC(),
			}
			if err := tx.Create(&completion).Error; err != nil {
				return err
			}
		}
		return nil
	}
}
