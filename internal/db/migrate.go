package db

import (
	"fmt"

	"github.com/zulandar/modelyard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns every GORM model the dev backend persists.
func AllModels() []interface{} {
	return []interface{}{
		&models.DatasetRecord{},
		&models.ArtifactRecord{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// UpsertArtifact inserts rec or refreshes the row with the same job id.
func UpsertArtifact(db *gorm.DB, rec *models.ArtifactRecord) error {
	result := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"base_model_id", "adapter_path", "merged_path", "training_date",
			"eval_accuracy", "eval_loss", "lora_r", "description",
		}),
	}).Create(rec)
	if result.Error != nil {
		return fmt.Errorf("db: upsert artifact %q: %w", rec.JobID, result.Error)
	}
	return nil
}

// ReplaceDataset swaps every row of kind for rows in one transaction.
func ReplaceDataset(db *gorm.DB, kind models.TaskKind, rows []models.DatasetRecord) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_kind = ?", string(kind)).Delete(&models.DatasetRecord{}).Error; err != nil {
			return fmt.Errorf("db: clear %s dataset: %w", kind, err)
		}
		if len(rows) == 0 {
			return nil
		}
		for i := range rows {
			rows[i].ID = 0
			rows[i].TaskKind = string(kind)
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("db: import %s dataset: %w", kind, err)
		}
		return nil
	})
}
