package console

import (
	"context"
	"errors"
	"testing"

	"github.com/zulandar/modelyard/internal/api"
)

func TestInference_RunShowsPrediction(t *testing.T) {
	fb := newFakeBackend()
	fb.prediction = ptr("SELECT name FROM Employees;")
	s := NewInferenceSession(fb, NewBridge(), nil)

	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	v := s.View()
	if v.Result != "SELECT name FROM Employees;" || v.Phase != PhaseSucceeded {
		t.Errorf("view = %+v", v)
	}
	req := fb.inferCalls[0]
	if req.ModelID != DefaultModelID || req.Question != DefaultInferenceQuestion || req.ComputeDtype != "bfloat16" {
		t.Errorf("request = %+v", req)
	}
}

func TestInference_MissingPredictionShowsPlaceholder(t *testing.T) {
	for _, pred := range []*string{nil, ptr("")} {
		fb := newFakeBackend()
		fb.prediction = pred
		s := NewInferenceSession(fb, NewBridge(), nil)
		if err := s.Run(context.Background()); err != nil {
			t.Fatal(err)
		}
		if got := s.View().Result; got != NoResult {
			t.Errorf("result = %q, want %q", got, NoResult)
		}
	}
}

func TestInference_Failure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"declared", &api.DeclaredError{StatusCode: 404, Detail: "model path not found"}, "Error: model path not found"},
		{"generic", &api.DeclaredError{StatusCode: 200}, "Error: " + api.GenericFailure},
		{"network", errNetwork, "Error: network error: connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend()
			fb.inferErr = tt.err
			s := NewInferenceSession(fb, NewBridge(), nil)
			if err := s.Run(context.Background()); err == nil {
				t.Fatal("expected error")
			}
			v := s.View()
			if v.Result != tt.want || v.Phase != PhaseFailed {
				t.Errorf("view = %q %s, want %q failed", v.Result, v.Phase, tt.want)
			}
		})
	}
}

func TestInference_BridgeOverridesEarlierEdit(t *testing.T) {
	bridge := NewBridge()
	s := NewInferenceSession(newFakeBackend(), bridge, nil)

	s.Set(InferTarget, "/manual/path")
	bridge.Publish("/out/job-a/merged")
	if got := s.Target(); got != "/out/job-a/merged" {
		t.Errorf("target = %q, want bridge value", got)
	}
}

func TestInference_EditAfterSelectionHolds(t *testing.T) {
	fb := newFakeBackend()
	bridge := NewBridge()
	s := NewInferenceSession(fb, bridge, nil)

	bridge.Publish("/out/job-a/merged")
	s.Set(InferTarget, "/manual/path")
	if got := s.Target(); got != "/manual/path" {
		t.Errorf("target = %q, want manual edit", got)
	}
	s.Run(context.Background())
	if got := fb.inferCalls[0].ModelID; got != "/manual/path" {
		t.Errorf("sent model_id = %q", got)
	}

	// Re-selecting the same path still counts as a new selection.
	bridge.Publish("/out/job-a/merged")
	if got := s.Target(); got != "/out/job-a/merged" {
		t.Errorf("target = %q after reselect", got)
	}
}

func TestInference_SetValidation(t *testing.T) {
	s := NewInferenceSession(newFakeBackend(), nil, nil)
	if err := s.Set(InferDtype, "int8"); err == nil {
		t.Error("expected error for unknown dtype")
	}
	if err := s.Set(InferDtype, "float16"); err != nil {
		t.Errorf("Set float16: %v", err)
	}
	if err := s.Set("temperature", "0.2"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("err = %v, want ErrUnknownField", err)
	}
	if v := s.View(); v.Dtype != "float16" {
		t.Errorf("dtype = %q", v.Dtype)
	}
}

func TestInference_BusyWhileRunning(t *testing.T) {
	fb := newFakeBackend()
	fb.block = make(chan struct{})
	fb.entered = make(chan struct{}, 1)
	s := NewInferenceSession(fb, NewBridge(), nil)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	<-fb.entered
	if err := s.Run(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("second Run err = %v, want ErrBusy", err)
	}
	close(fb.block)
	<-done
	if len(fb.inferCalls) != 1 {
		t.Errorf("infer calls = %d, want 1", len(fb.inferCalls))
	}
}
