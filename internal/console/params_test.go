package console

import (
	"context"
	"errors"
	"testing"

	"github.com/zulandar/modelyard/internal/api"
	"github.com/zulandar/modelyard/internal/models"
)

func TestParams_SubmitSuccess(t *testing.T) {
	fb := newFakeBackend()
	fb.trainResult = api.TrainingResult{Message: "Training completed", Logs: "step 1 loss 0.9\nstep 2 loss 0.7"}
	p := NewParameterSession(fb, models.TaskTextToSQL, nil)

	if err := p.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	out := p.Outcome()
	if out.Phase != PhaseSucceeded {
		t.Errorf("phase = %s, want succeeded", out.Phase)
	}
	if out.Status != "Training request succeeded: Training completed" {
		t.Errorf("status = %q", out.Status)
	}
	if out.Logs != fb.trainResult.Logs {
		t.Errorf("logs = %q, want verbatim", out.Logs)
	}
	if len(fb.trainCalls) != 1 {
		t.Fatalf("train calls = %d, want 1", len(fb.trainCalls))
	}
}

func TestParams_ZeroBatchSizeNeverSent(t *testing.T) {
	fb := newFakeBackend()
	p := NewParameterSession(fb, models.TaskTextToSQL, nil)
	if err := p.Set(FieldBatchSize, "0"); err != nil {
		t.Fatal(err)
	}
	if err := p.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := fb.trainCalls[0].PerDeviceTrainBatchSize; got != 1 {
		t.Errorf("transmitted batch size = %d, want 1", got)
	}
}

func TestParams_SubmitSnapshotsFields(t *testing.T) {
	fb := newFakeBackend()
	p := NewParameterSession(fb, models.TaskOAQnA, nil)
	p.Set(FieldModelID, "meta/llama")
	p.Set(FieldEpochs, "5")
	p.Submit(context.Background())
	got := fb.trainCalls[0]
	if got.ModelID != "meta/llama" || got.NumTrainEpochs != 5 || got.TaskKind != models.TaskOAQnA {
		t.Errorf("sent config = %+v", got)
	}
}

func TestParams_SubmitFailure(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus string
		wantLogs   string
	}{
		{
			name:       "declared with logs",
			err:        &api.DeclaredError{StatusCode: 500, Detail: "CUDA out of memory", Logs: "trace..."},
			wantStatus: "Training request failed: CUDA out of memory",
			wantLogs:   "trace...",
		},
		{
			name:       "declared without detail",
			err:        &api.DeclaredError{StatusCode: 200},
			wantStatus: "Training request failed: " + api.GenericFailure,
			wantLogs:   NoLogs,
		},
		{
			name:       "network",
			err:        errNetwork,
			wantStatus: "Training request failed: network error: connection refused",
			wantLogs:   NoLogs,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend()
			fb.trainErr = tt.err
			p := NewParameterSession(fb, models.TaskTextToSQL, nil)
			if err := p.Submit(context.Background()); err == nil {
				t.Fatal("expected error")
			}
			out := p.Outcome()
			if out.Phase != PhaseFailed {
				t.Errorf("phase = %s, want failed", out.Phase)
			}
			if out.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", out.Status, tt.wantStatus)
			}
			if out.Logs != tt.wantLogs {
				t.Errorf("logs = %q, want %q", out.Logs, tt.wantLogs)
			}
		})
	}
}

func TestParams_BusyWhileSubmitting(t *testing.T) {
	fb := newFakeBackend()
	fb.block = make(chan struct{})
	fb.entered = make(chan struct{}, 1)
	p := NewParameterSession(fb, models.TaskTextToSQL, nil)

	done := make(chan error, 1)
	go func() { done <- p.Submit(context.Background()) }()
	<-fb.entered

	if p.Phase() != PhaseSubmitting {
		t.Errorf("phase = %s, want submitting", p.Phase())
	}
	if err := p.Submit(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("second Submit err = %v, want ErrBusy", err)
	}
	close(fb.block)
	if err := <-done; err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if len(fb.trainCalls) != 1 {
		t.Errorf("train calls = %d, want 1", len(fb.trainCalls))
	}

	// A finished session accepts the next submit.
	fb.block = nil
	if err := p.Submit(context.Background()); err != nil {
		t.Errorf("resubmit: %v", err)
	}
}
