package devserver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/modelyard/internal/models"
)

func validConfig() models.TrainingConfiguration {
	return models.TrainingConfiguration{
		ModelID:                   "TinyLlama/TinyLlama-1.1B-Chat-v1.0",
		LoadIn4Bit:                true,
		ComputeDtype:              "bfloat16",
		AttnImplementation:        "eager",
		LoraAlpha:                 128,
		LoraDropout:               0.05,
		LoraR:                     64,
		LoraTargetModules:         "all-linear",
		PerDeviceTrainBatchSize:   1,
		GradientAccumulationSteps: 4,
		NumTrainEpochs:            3,
		LearningRate:              2e-4,
		LRSchedulerType:           "constant",
		Optimizer:                 "adamw_torch_fused",
		TaskKind:                  models.TaskTextToSQL,
	}
}

func TestValidate(t *testing.T) {
	if msgs := Validate(validConfig()); len(msgs) != 0 {
		t.Fatalf("valid config rejected: %v", msgs)
	}

	tests := []struct {
		name   string
		mutate func(*models.TrainingConfiguration)
		want   string
	}{
		{"zero batch", func(c *models.TrainingConfiguration) { c.PerDeviceTrainBatchSize = 0 }, "per_device_train_batch_size"},
		{"empty model", func(c *models.TrainingConfiguration) { c.ModelID = " " }, "model_id"},
		{"bad kind", func(c *models.TrainingConfiguration) { c.TaskKind = "chat" }, "file_type"},
		{"bad optimizer", func(c *models.TrainingConfiguration) { c.Optimizer = "lion" }, "optim"},
		{"dropout range", func(c *models.TrainingConfiguration) { c.LoraDropout = 2 }, "lora_dropout"},
		{"zero lr", func(c *models.TrainingConfiguration) { c.LearningRate = 0 }, "learning_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			msgs := Validate(cfg)
			if len(msgs) != 1 || !strings.HasPrefix(msgs[0], tt.want+":") {
				t.Errorf("Validate = %v, want one %s error", msgs, tt.want)
			}
		})
	}
}

func TestTrainer_Train(t *testing.T) {
	dir := t.TempDir()
	tr := NewTrainer(dir)
	tr.ids = func() string { return "job-fixed" }
	tr.now = func() time.Time { return time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC) }

	run, err := tr.Train(validConfig(), 40)
	if err != nil {
		t.Fatal(err)
	}
	rec := run.Record
	if rec.JobID != "job-fixed" || rec.Status != "trained" || rec.LoraR != 64 {
		t.Errorf("record = %+v", rec)
	}
	for _, p := range []string{rec.AdapterPath, rec.MergedPath} {
		if fi, err := os.Stat(p); err != nil || !fi.IsDir() {
			t.Errorf("%s not created: %v", p, err)
		}
	}
	if *rec.EvalAccuracy <= 0 || *rec.EvalAccuracy > 1 {
		t.Errorf("accuracy = %v", *rec.EvalAccuracy)
	}
	if strings.Count(run.Logs, "epoch ") != 3 {
		t.Errorf("logs = %q", run.Logs)
	}

	meta, err := ReadMetadata(filepath.Join(dir, "job-fixed"))
	if err != nil {
		t.Fatal(err)
	}
	if meta.Rows != 40 || meta.Config.ModelID != validConfig().ModelID || meta.EvalLoss != *rec.EvalLoss {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestTrainer_Deterministic(t *testing.T) {
	a, _ := NewTrainer(t.TempDir()).Train(validConfig(), 10)
	b, _ := NewTrainer(t.TempDir()).Train(validConfig(), 10)
	if *a.Record.EvalAccuracy != *b.Record.EvalAccuracy || *a.Record.EvalLoss != *b.Record.EvalLoss {
		t.Error("same inputs should give the same metrics")
	}
	if a.Record.JobID == b.Record.JobID {
		t.Error("job ids should be unique")
	}
}

func TestStepsPerEpoch(t *testing.T) {
	cfg := validConfig()
	if got := stepsPerEpoch(10, cfg); got != 3 {
		t.Errorf("stepsPerEpoch = %d, want 3", got)
	}
}
