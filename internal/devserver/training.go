package devserver

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/modelyard/internal/models"
	"gopkg.in/yaml.v3"
)

// Metadata is written next to each artifact as metadata.yaml.
type Metadata struct {
	JobID        string                       `yaml:"job_id"`
	TaskKind     models.TaskKind              `yaml:"task_kind"`
	TrainedAt    time.Time                    `yaml:"trained_at"`
	Rows         int64                        `yaml:"rows"`
	EvalAccuracy float64                      `yaml:"eval_accuracy"`
	EvalLoss     float64                      `yaml:"eval_loss"`
	Config       models.TrainingConfiguration `yaml:"config"`
}

// MetadataFile is the metadata file name inside an artifact directory.
const MetadataFile = "metadata.yaml"

// Run is the outcome of one simulated training run.
type Run struct {
	Record *models.ArtifactRecord
	Logs   string
}

// Trainer simulates fine-tuning synchronously. It writes the directory
// layout a real run produces and derives deterministic metrics from the
// configuration and dataset size.
type Trainer struct {
	dir string
	now func() time.Time
	ids func() string
}

// NewTrainer creates a Trainer that writes artifacts under dir.
func NewTrainer(dir string) *Trainer {
	return &Trainer{dir: dir, now: time.Now, ids: newJobID}
}

func newJobID() string {
	return "job-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Validate returns one message per invalid configuration field.
func Validate(cfg models.TrainingConfiguration) []string {
	var errs []string
	if strings.TrimSpace(cfg.ModelID) == "" {
		errs = append(errs, "model_id: field required")
	}
	if !cfg.TaskKind.Valid() {
		errs = append(errs, fmt.Sprintf("file_type: unknown task kind %q", cfg.TaskKind))
	}
	checks := []struct {
		name string
		ok   bool
	}{
		{"lora_r", cfg.LoraR >= 1},
		{"lora_alpha", cfg.LoraAlpha >= 1},
		{"per_device_train_batch_size", cfg.PerDeviceTrainBatchSize >= 1},
		{"gradient_accumulation_steps", cfg.GradientAccumulationSteps >= 1},
		{"num_train_epochs", cfg.NumTrainEpochs >= 1},
	}
	for _, c := range checks {
		if !c.ok {
			errs = append(errs, c.name+": must be at least 1")
		}
	}
	if cfg.LoraDropout < 0 || cfg.LoraDropout > 1 {
		errs = append(errs, "lora_dropout: must be between 0 and 1")
	}
	if cfg.LearningRate <= 0 {
		errs = append(errs, "learning_rate: must be greater than 0")
	}
	enums := []struct {
		name, value string
		opts        []string
	}{
		{"bnb_4bit_compute_dtype", cfg.ComputeDtype, models.ComputeDtypes},
		{"attn_implementation", cfg.AttnImplementation, models.AttnImplementations},
		{"lr_scheduler_type", cfg.LRSchedulerType, models.SchedulerTypes},
		{"optim", cfg.Optimizer, models.Optimizers},
	}
	for _, e := range enums {
		if !models.Contains(e.opts, e.value) {
			errs = append(errs, fmt.Sprintf("%s: %q is not one of %s", e.name, e.value, strings.Join(e.opts, ", ")))
		}
	}
	return errs
}

// Train runs one simulated job over rows examples.
func (t *Trainer) Train(cfg models.TrainingConfiguration, rows int64) (*Run, error) {
	jobID := t.ids()
	root := filepath.Join(t.dir, jobID)
	adapter := filepath.Join(root, "adapter")
	merged := filepath.Join(root, "merged")
	for _, d := range []string{adapter, merged} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("devserver: train: %w", err)
		}
	}

	var logs strings.Builder
	fmt.Fprintf(&logs, "Loading base model %s (4-bit: %t, dtype: %s)\n", cfg.ModelID, cfg.LoadIn4Bit, cfg.ComputeDtype)
	fmt.Fprintf(&logs, "LoRA r=%d alpha=%d dropout=%g targets=%s\n", cfg.LoraR, cfg.LoraAlpha, cfg.LoraDropout, cfg.LoraTargetModules)
	fmt.Fprintf(&logs, "Training on %d %s examples\n", rows, cfg.TaskKind)

	steps := stepsPerEpoch(rows, cfg)
	loss := 2.5
	for epoch := 1; epoch <= cfg.NumTrainEpochs; epoch++ {
		loss = lossAfter(epoch, cfg)
		fmt.Fprintf(&logs, "epoch %d/%d: steps=%d loss=%.4f lr=%g\n", epoch, cfg.NumTrainEpochs, steps, loss, cfg.LearningRate)
	}
	acc := accuracyFor(loss, rows)
	fmt.Fprintf(&logs, "eval: loss=%.4f accuracy=%.4f\n", loss, acc)
	fmt.Fprintf(&logs, "Saved adapter to %s\nSaved merged model to %s\n", adapter, merged)

	now := t.now()
	meta := Metadata{
		JobID:        jobID,
		TaskKind:     cfg.TaskKind,
		TrainedAt:    now,
		Rows:         rows,
		EvalAccuracy: acc,
		EvalLoss:     loss,
		Config:       cfg,
	}
	data, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("devserver: train: metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, MetadataFile), data, 0o644); err != nil {
		return nil, fmt.Errorf("devserver: train: metadata: %w", err)
	}

	rec := &models.ArtifactRecord{
		JobID:        jobID,
		BaseModelID:  cfg.ModelID,
		AdapterPath:  adapter,
		MergedPath:   merged,
		TrainingDate: now,
		EvalAccuracy: &acc,
		EvalLoss:     &loss,
		LoraR:        cfg.LoraR,
		Status:       string(models.StatusTrained),
		Description:  fmt.Sprintf("%s, %d epochs, %d examples", cfg.TaskKind, cfg.NumTrainEpochs, rows),
	}
	return &Run{Record: rec, Logs: logs.String()}, nil
}

// ReadMetadata loads an artifact's metadata file.
func ReadMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("devserver: metadata: %w", err)
	}
	var m Metadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("devserver: metadata: %w", err)
	}
	return &m, nil
}

func stepsPerEpoch(rows int64, cfg models.TrainingConfiguration) int64 {
	per := int64(cfg.PerDeviceTrainBatchSize * cfg.GradientAccumulationSteps)
	if per < 1 {
		per = 1
	}
	return (rows + per - 1) / per
}

// lossAfter decays from 2.5 toward a floor that shrinks with adapter rank.
func lossAfter(epoch int, cfg models.TrainingConfiguration) float64 {
	floor := 0.2 + 1.0/float64(cfg.LoraR+1)
	rate := math.Min(cfg.LearningRate*2000, 1.5)
	return round4(floor + (2.5-floor)*math.Exp(-rate*float64(epoch)))
}

func accuracyFor(loss float64, rows int64) float64 {
	data := 1 - 1/math.Sqrt(float64(rows)+1)
	return round4(math.Max(0, math.Min(1, data*(1-loss/2.5))))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
