package console

import (
	"context"
	"fmt"
	"sync"

	"github.com/zulandar/modelyard/internal/api"
	"github.com/zulandar/modelyard/internal/logging"
	"github.com/zulandar/modelyard/internal/models"
	"go.uber.org/zap"
)

// NoResult is shown when a successful inference response has no prediction.
const NoResult = "(no result)"

// Inference form field names.
const (
	InferTarget   = "model_id"
	InferQuestion = "question"
	InferSchema   = "schema_info"
	InferDtype    = "bnb_4bit_compute_dtype"
)

// Defaults for a fresh inference form.
const (
	DefaultInferenceQuestion = "Show total sales amount per employee"
	DefaultInferenceSchema   = `CREATE TABLE Employees (
    employee_id INT PRIMARY KEY,
    name VARCHAR(255),
    department VARCHAR(255),
    salary INT
);
CREATE TABLE Sales (
    sale_id INT PRIMARY KEY,
    employee_id INT,
    product VARCHAR(255),
    amount INT,
    sale_date DATE
);`
)

// InferenceAPI is the backend surface the inference session uses.
type InferenceAPI interface {
	RunInference(ctx context.Context, req models.InferenceRequest) (*string, error)
}

// InferenceView is a snapshot of the inference form.
type InferenceView struct {
	Target   string
	Question string
	Schema   string
	Dtype    string
	Result   string
	Phase    Phase
}

// InferenceSession runs one inference request at a time against a target
// artifact. The target follows the bridge: a new selection overwrites it, and
// a manual edit made afterwards holds until the next selection.
type InferenceSession struct {
	client InferenceAPI
	bridge *Bridge
	log    *zap.Logger

	mu       sync.Mutex
	seen     uint64
	target   string
	question string
	schema   string
	dtype    string
	result   string
	phase    Phase
}

// NewInferenceSession creates a session bound to bridge.
func NewInferenceSession(client InferenceAPI, bridge *Bridge, logger *zap.Logger) *InferenceSession {
	return &InferenceSession{
		client:   client,
		bridge:   bridge,
		log:      logging.OrNop(logger).With(zap.String("view", "inference")),
		target:   DefaultModelID,
		question: DefaultInferenceQuestion,
		schema:   DefaultInferenceSchema,
		dtype:    models.ComputeDtypes[0],
	}
}

// syncLocked applies a bridge selection not yet seen. The caller must hold s.mu.
func (s *InferenceSession) syncLocked() {
	if s.bridge == nil {
		return
	}
	path, gen := s.bridge.Value()
	if gen == 0 || gen == s.seen {
		return
	}
	s.seen = gen
	s.target = path
}

// View returns the current form, applying any pending bridge selection.
func (s *InferenceSession) View() InferenceView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncLocked()
	return InferenceView{
		Target:   s.target,
		Question: s.question,
		Schema:   s.schema,
		Dtype:    s.dtype,
		Result:   s.result,
		Phase:    s.phase,
	}
}

// Target returns the artifact the next Run will use.
func (s *InferenceSession) Target() string { return s.View().Target }

// Set edits one form field.
func (s *InferenceSession) Set(field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncLocked()
	switch field {
	case InferTarget:
		s.target = value
	case InferQuestion:
		s.question = value
	case InferSchema:
		s.schema = value
	case InferDtype:
		if !models.Contains(models.ComputeDtypes, value) {
			return fmt.Errorf("%s: %q is not one of %v", field, value, models.ComputeDtypes)
		}
		s.dtype = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

// Run issues one inference request with the current form. It returns
// ErrBusy while a previous run is pending. The result text is set on both
// success and failure.
func (s *InferenceSession) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.phase == PhaseSubmitting {
		s.mu.Unlock()
		return ErrBusy
	}
	s.syncLocked()
	req := models.InferenceRequest{
		ModelID:      s.target,
		Question:     s.question,
		SchemaInfo:   s.schema,
		ComputeDtype: s.dtype,
	}
	s.phase = PhaseSubmitting
	s.result = "Waiting for inference result..."
	s.mu.Unlock()

	s.log.Info("running inference", zap.String("model_id", req.ModelID), zap.String("dtype", req.ComputeDtype))
	pred, err := s.client.RunInference(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.phase = PhaseFailed
		s.result = "Error: " + api.Message(err)
		s.log.Warn("inference failed", zap.Error(err))
		return err
	}
	s.phase = PhaseSucceeded
	if pred == nil || *pred == "" {
		s.result = NoResult
	} else {
		s.result = *pred
	}
	return nil
}
