package console

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/zulandar/modelyard/internal/api"
	"github.com/zulandar/modelyard/internal/models"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func seedArtifacts(fb *fakeBackend) {
	fb.arts = []models.ModelArtifact{
		{JobID: "job-a", BaseModelID: "tiny", Status: models.StatusTrained, EvalAccuracy: ptr(0.81234), MergedPath: "/out/job-a/merged"},
		{JobID: "job-b", BaseModelID: "tiny", Status: models.StatusDeployed, EvalAccuracy: ptr(0.9), MergedPath: "/out/job-b/merged"},
		{JobID: "job-c", BaseModelID: "tiny", Status: models.StatusTrained, MergedPath: "/out/job-c/merged"},
	}
}

func TestRegistry_RefreshFindsActive(t *testing.T) {
	fb := newFakeBackend()
	seedArtifacts(fb)
	r := NewRegistry(fb, RegistryOptions{})
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	a, ok := r.Active()
	if !ok || a.JobID != "job-b" {
		t.Errorf("active = %q %v, want job-b", a.JobID, ok)
	}
	if r.Loading() {
		t.Error("loading flag should clear")
	}
}

func TestRegistry_ActiveNeverGuessed(t *testing.T) {
	tests := []struct {
		name   string
		status []models.ArtifactStatus
		want   int
	}{
		{"none deployed", []models.ArtifactStatus{models.StatusTrained, models.StatusTrained}, -1},
		{"last deployed", []models.ArtifactStatus{models.StatusTrained, models.StatusDeployed}, 1},
		{"two deployed", []models.ArtifactStatus{models.StatusDeployed, models.StatusDeployed}, -1},
		{"empty", nil, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var list []models.ModelArtifact
			for _, s := range tt.status {
				list = append(list, models.ModelArtifact{Status: s})
			}
			if got := activeIndex(list); got != tt.want {
				t.Errorf("activeIndex = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRegistry_RefreshFailureClears(t *testing.T) {
	fb := newFakeBackend()
	seedArtifacts(fb)
	r := NewRegistry(fb, RegistryOptions{})
	r.Refresh(context.Background())

	fb.listModelErr = &api.ProtocolError{StatusCode: 502, Body: []byte("<html>"), Reason: "not JSON"}
	if err := r.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(r.Artifacts()) != 0 {
		t.Error("list should be cleared")
	}
	if _, ok := r.Active(); ok {
		t.Error("no artifact should be active")
	}
	if !r.Notice().IsError() {
		t.Error("expected error notice")
	}
}

func TestRegistry_PromoteThenRefresh(t *testing.T) {
	fb := newFakeBackend()
	seedArtifacts(fb)
	n := &recordingNotifier{}
	c := &recordingConfirmer{answer: true}
	r := NewRegistry(fb, RegistryOptions{Confirm: c, Notifier: n})
	ctx := context.Background()
	r.Refresh(ctx)

	if err := r.Promote(ctx, "job-a"); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if err := r.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	deployed := 0
	for _, a := range r.Artifacts() {
		if a.Deployed() {
			deployed++
			if a.JobID != "job-a" {
				t.Errorf("deployed = %q, want job-a", a.JobID)
			}
		}
	}
	if deployed != 1 {
		t.Errorf("deployed count = %d, want 1", deployed)
	}
	if r.Notice().Text != "Model job-a activated" {
		t.Errorf("notice = %q", r.Notice().Text)
	}
	if len(c.questions) != 1 || !strings.Contains(c.questions[0], "job-a") {
		t.Errorf("questions = %v", c.questions)
	}
	if len(n.events) != 1 || n.events[0].Kind != EventPromoted || n.events[0].Artifact == nil {
		t.Errorf("events = %+v", n.events)
	}
}

func TestRegistry_PromoteDeclined(t *testing.T) {
	fb := newFakeBackend()
	seedArtifacts(fb)
	r := NewRegistry(fb, RegistryOptions{Confirm: NeverConfirm})
	r.Refresh(context.Background())

	if err := r.Promote(context.Background(), "job-a"); !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	a, _ := r.Active()
	if a.JobID != "job-b" {
		t.Errorf("active = %q, want job-b unchanged", a.JobID)
	}
}

func TestRegistry_PromoteFailureLeavesState(t *testing.T) {
	fb := newFakeBackend()
	seedArtifacts(fb)
	r := NewRegistry(fb, RegistryOptions{Confirm: AlwaysConfirm})
	r.Refresh(context.Background())
	before := r.Artifacts()

	fb.activateErr = &api.DeclaredError{StatusCode: 500, Detail: "merge directory missing"}
	if err := r.Promote(context.Background(), "job-a"); err == nil {
		t.Fatal("expected error")
	}
	if r.Notice().Text != "Deploy failed: merge directory missing" {
		t.Errorf("notice = %q", r.Notice().Text)
	}
	after := r.Artifacts()
	if len(after) != len(before) {
		t.Fatal("list changed after failure")
	}
	for i := range before {
		if before[i].Status != after[i].Status {
			t.Errorf("status of %s changed", before[i].JobID)
		}
	}
	if r.Phase() != PhaseIdle {
		t.Errorf("phase = %s", r.Phase())
	}
}

func TestRegistry_RemoveThenRefresh(t *testing.T) {
	fb := newFakeBackend()
	seedArtifacts(fb)
	n := &recordingNotifier{err: errors.New("webhook down")}
	r := NewRegistry(fb, RegistryOptions{Confirm: AlwaysConfirm, Notifier: n})
	ctx := context.Background()
	r.Refresh(ctx)

	if err := r.Remove(ctx, "job-c"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	r.Refresh(ctx)
	if _, ok := r.Find("job-c"); ok {
		t.Error("job-c should be gone")
	}
	if len(r.Artifacts()) != 2 {
		t.Errorf("artifacts = %d, want 2", len(r.Artifacts()))
	}
	if len(n.events) != 1 || n.events[0].Kind != EventRemoved {
		t.Errorf("events = %+v", n.events)
	}
}

func TestRegistry_RemoveFailure(t *testing.T) {
	fb := newFakeBackend()
	seedArtifacts(fb)
	r := NewRegistry(fb, RegistryOptions{Confirm: AlwaysConfirm})
	r.Refresh(context.Background())
	fb.removeErr = errNetwork

	if err := r.Remove(context.Background(), "job-c"); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := r.Find("job-c"); !ok {
		t.Error("job-c should still be listed")
	}
	if !strings.HasPrefix(r.Notice().Text, "Delete failed: network error") {
		t.Errorf("notice = %q", r.Notice().Text)
	}
}

func TestRegistry_SelectForInference(t *testing.T) {
	bridge := NewBridge()
	r := NewRegistry(newFakeBackend(), RegistryOptions{Bridge: bridge})
	r.SelectForInference("job-a", "/out/job-a/merged")
	path, gen := bridge.Value()
	if path != "/out/job-a/merged" || gen != 1 {
		t.Errorf("bridge = %q gen %d", path, gen)
	}
	if !strings.Contains(r.Notice().Text, "job-a") {
		t.Errorf("notice = %q", r.Notice().Text)
	}
}
