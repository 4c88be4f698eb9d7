package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationTrimHighlightContexts = "2026-08-10_trim_highlight_context_windows"

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
	migrations := []migrationDefinition{
		{name: migrationTrimHighlightContexts, apply: trimHighlightContextWindows},
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
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// trimHighlightContextWindows repairs rows written before the context windows
// were bounded at capture time.
func trimHighlightContextWindows(db *gorm.DB) error {
	if err := db.Exec("UPDATE highlights SET before_context = substr(before_context, -50) WHERE length(before_context) > 50;").Error; err != nil {
		return err
	}
	return db.Exec("UPDATE highlights SET after_context = substr(after_context, 1, 50) WHERE length(after_context) > 50;").Error
}
