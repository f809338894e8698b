package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ArtifactStatus is the lifecycle state of a trained model.
type ArtifactStatus string

const (
	StatusTrained  ArtifactStatus = "trained"
	StatusDeployed ArtifactStatus = "deployed"
)

// ModelArtifact is one registered training output.
type ModelArtifact struct {
	JobID        string         `json:"job_id"`
	BaseModelID  string         `json:"base_model_id"`
	TrainingDate Timestamp      `json:"training_date"`
	EvalAccuracy *float64       `json:"eval_accuracy"`
	EvalLoss     *float64       `json:"eval_loss"`
	LoraR        int            `json:"lora_r"`
	Status       ArtifactStatus `json:"status"`
	Description  string         `json:"description"`
	MergedPath   string         `json:"merged_path"`
	AdapterPath  string         `json:"adapter_path,omitempty"`
}

// Deployed reports whether the artifact is the active one.
func (a ModelArtifact) Deployed() bool { return a.Status == StatusDeployed }

// ModelAction is the body of the activate and delete endpoints.
type ModelAction struct {
	JobID string `json:"job_id"`
}

// timestampLayouts lists the formats the backend is known to emit. Python
// backends commonly serialize naive datetimes without a zone suffix.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Timestamp is a time.Time that tolerates zone-less ISO 8601 values. A
// string in no known layout decodes to the zero time and is kept in Unparsed,
// so one odd value does not fail a whole list.
type Timestamp struct {
	time.Time
	Unparsed string
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	t.Unparsed = ""
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if v, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = v
			return nil
		}
	}
	t.Time = time.Time{}
	t.Unparsed = s
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}
