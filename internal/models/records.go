package models

import "time"

// DatasetRecord is the dev backend's row for one labeled example.
type DatasetRecord struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	TaskKind  string `gorm:"size:32;index;not null"`
	Question  string `gorm:"type:text"`
	Answer    string `gorm:"type:text"`
	Schema    string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Entry converts the record to its wire form.
func (r DatasetRecord) Entry() DatasetEntry {
	id := r.ID
	return DatasetEntry{ID: &id, Question: r.Question, Answer: r.Answer, Schema: r.Schema}
}

// ArtifactRecord is the dev backend's row for one trained model.
type ArtifactRecord struct {
	JobID        string `gorm:"primaryKey;size:64"`
	BaseModelID  string `gorm:"size:255;not null"`
	AdapterPath  string `gorm:"size:512;not null"`
	MergedPath   string `gorm:"size:512;not null"`
	TrainingDate time.Time
	EvalAccuracy *float64
	EvalLoss     *float64
	LoraR        int
	Status       string `gorm:"size:16;default:trained;index"`
	Description  string `gorm:"type:text"`
}

// Artifact converts the record to its wire form.
func (r ArtifactRecord) Artifact() ModelArtifact {
	return ModelArtifact{
		JobID:        r.JobID,
		BaseModelID:  r.BaseModelID,
		TrainingDate: Timestamp{Time: r.TrainingDate},
		EvalAccuracy: r.EvalAccuracy,
		EvalLoss:     r.EvalLoss,
		LoraR:        r.LoraR,
		Status:       ArtifactStatus(r.Status),
		Description:  r.Description,
		MergedPath:   r.MergedPath,
		AdapterPath:  r.AdapterPath,
	}
}
