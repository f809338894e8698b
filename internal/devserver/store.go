package devserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/modelyard/internal/db"
	"github.com/zulandar/modelyard/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a dataset row or artifact does not exist.
var ErrNotFound = errors.New("not found")

// Store is the dev backend's persistence layer.
type Store struct {
	db *gorm.DB
}

// NewStore wraps a migrated database.
func NewStore(gdb *gorm.DB) *Store {
	return &Store{db: gdb}
}

// ListDataset returns the rows of kind in insertion order.
func (s *Store) ListDataset(kind models.TaskKind) ([]models.DatasetEntry, error) {
	var recs []models.DatasetRecord
	if err := s.db.Where("task_kind = ?", string(kind)).Order("id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("devserver: list %s dataset: %w", kind, err)
	}
	out := make([]models.DatasetEntry, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Entry())
	}
	return out, nil
}

// CountDataset returns how many rows kind has.
func (s *Store) CountDataset(kind models.TaskKind) (int64, error) {
	var n int64
	if err := s.db.Model(&models.DatasetRecord{}).Where("task_kind = ?", string(kind)).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("devserver: count %s dataset: %w", kind, err)
	}
	return n, nil
}

// AddDataset stores a new row and returns its id.
func (s *Store) AddDataset(kind models.TaskKind, e models.NewDatasetEntry) (int64, error) {
	rec := models.DatasetRecord{
		TaskKind: string(kind),
		Question: e.Question,
		Answer:   e.Answer,
		Schema:   e.Schema,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return 0, fmt.Errorf("devserver: add %s entry: %w", kind, err)
	}
	return rec.ID, nil
}

// UpdateDataset replaces the text of an existing row.
func (s *Store) UpdateDataset(kind models.TaskKind, e models.UpdateDatasetEntry) error {
	result := s.db.Model(&models.DatasetRecord{}).
		Where("id = ? AND task_kind = ?", e.ID, string(kind)).
		Updates(map[string]interface{}{
			"question": e.Question,
			"answer":   e.Answer,
			"schema":   e.Schema,
		})
	if result.Error != nil {
		return fmt.Errorf("devserver: update %s entry %d: %w", kind, e.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("devserver: update %s entry %d: %w", kind, e.ID, ErrNotFound)
	}
	return nil
}

// DeleteDataset removes a row.
func (s *Store) DeleteDataset(kind models.TaskKind, id int64) error {
	result := s.db.Where("id = ? AND task_kind = ?", id, string(kind)).Delete(&models.DatasetRecord{})
	if result.Error != nil {
		return fmt.Errorf("devserver: delete %s entry %d: %w", kind, id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("devserver: delete %s entry %d: %w", kind, id, ErrNotFound)
	}
	return nil
}

// ReplaceDataset swaps the whole dataset of kind.
func (s *Store) ReplaceDataset(kind models.TaskKind, entries []models.NewDatasetEntry) error {
	recs := make([]models.DatasetRecord, 0, len(entries))
	for _, e := range entries {
		recs = append(recs, models.DatasetRecord{Question: e.Question, Answer: e.Answer, Schema: e.Schema})
	}
	return db.ReplaceDataset(s.db, kind, recs)
}

// ListArtifacts returns every registered artifact, newest first.
func (s *Store) ListArtifacts() ([]models.ModelArtifact, error) {
	var recs []models.ArtifactRecord
	if err := s.db.Order("training_date DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("devserver: list artifacts: %w", err)
	}
	out := make([]models.ModelArtifact, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Artifact())
	}
	return out, nil
}

// GetArtifact looks up one artifact.
func (s *Store) GetArtifact(jobID string) (*models.ArtifactRecord, error) {
	var rec models.ArtifactRecord
	err := s.db.Where("job_id = ?", jobID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("devserver: artifact %q: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("devserver: artifact %q: %w", jobID, err)
	}
	return &rec, nil
}

// RegisterArtifact records a finished training run.
func (s *Store) RegisterArtifact(rec *models.ArtifactRecord) error {
	if rec.TrainingDate.IsZero() {
		rec.TrainingDate = time.Now()
	}
	if rec.Status == "" {
		rec.Status = string(models.StatusTrained)
	}
	return db.UpsertArtifact(s.db, rec)
}

// Activate makes jobID the only deployed artifact. Nothing changes when
// jobID does not exist.
func (s *Store) Activate(jobID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.ArtifactRecord{}).Where("job_id = ?", jobID).Count(&n).Error; err != nil {
			return fmt.Errorf("devserver: activate %q: %w", jobID, err)
		}
		if n == 0 {
			return fmt.Errorf("devserver: activate %q: %w", jobID, ErrNotFound)
		}
		if err := tx.Model(&models.ArtifactRecord{}).
			Where("status = ?", string(models.StatusDeployed)).
			Update("status", string(models.StatusTrained)).Error; err != nil {
			return fmt.Errorf("devserver: retire deployed: %w", err)
		}
		if err := tx.Model(&models.ArtifactRecord{}).
			Where("job_id = ?", jobID).
			Update("status", string(models.StatusDeployed)).Error; err != nil {
			return fmt.Errorf("devserver: activate %q: %w", jobID, err)
		}
		return nil
	})
}

// DeleteArtifact removes the row and returns it so the caller can remove the
// backing files.
func (s *Store) DeleteArtifact(jobID string) (*models.ArtifactRecord, error) {
	rec, err := s.GetArtifact(jobID)
	if err != nil {
		return nil, err
	}
	if err := s.db.Delete(rec).Error; err != nil {
		return nil, fmt.Errorf("devserver: delete artifact %q: %w", jobID, err)
	}
	return rec, nil
}
