package db

import (
	"fmt"

	"github.com/zulandar/researchdesk/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Todo{},
		&models.ResearchResult{},
		&models.ResearchProgress{},
	}
}

// AutoMigrate creates or updates all tables. Safe to run on every start;
// existing rows are preserved.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
