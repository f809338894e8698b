package console

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/zulandar/modelyard/internal/api"
	"github.com/zulandar/modelyard/internal/models"
)

// fakeBackend is an in-memory Backend. Setting one of the *Err fields makes
// the matching call fail without touching state.
type fakeBackend struct {
	mu     sync.Mutex
	nextID int64
	rows   map[models.TaskKind][]models.DatasetEntry
	arts   []models.ModelArtifact

	listErr      error
	addErr       error
	updateErr    error
	deleteErr    error
	uploadErr    error
	trainErr     error
	listModelErr error
	activateErr  error
	removeErr    error
	inferErr     error

	trainResult api.TrainingResult
	prediction  *string

	trainCalls []models.TrainingConfiguration
	inferCalls []models.InferenceRequest
	added      []models.NewDatasetEntry
	deleted    []int64

	// block, when set, holds the next add, training or inference call until
	// closed.
	block chan struct{}
	// entered is signalled when a blocked call starts.
	entered chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		nextID: 1,
		rows:   map[models.TaskKind][]models.DatasetEntry{},
	}
}

func (f *fakeBackend) seedRow(kind models.TaskKind, q, a, s string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.rows[kind] = append(f.rows[kind], models.DatasetEntry{ID: &id, Question: q, Answer: a, Schema: s})
	return id
}

func (f *fakeBackend) wait() {
	if f.block == nil {
		return
	}
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	<-f.block
}

func (f *fakeBackend) ListDataset(_ context.Context, kind models.TaskKind) ([]models.DatasetEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.DatasetEntry, len(f.rows[kind]))
	copy(out, f.rows[kind])
	return out, nil
}

func (f *fakeBackend) AddDataset(_ context.Context, kind models.TaskKind, e models.NewDatasetEntry) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, e)
	id := f.nextID
	f.nextID++
	f.rows[kind] = append(f.rows[kind], models.DatasetEntry{ID: &id, Question: e.Question, Answer: e.Answer, Schema: e.Schema})
	return nil
}

func (f *fakeBackend) UpdateDataset(_ context.Context, kind models.TaskKind, e models.UpdateDatasetEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	for i, r := range f.rows[kind] {
		if *r.ID == e.ID {
			f.rows[kind][i].Question = e.Question
			f.rows[kind][i].Answer = e.Answer
			f.rows[kind][i].Schema = e.Schema
			return nil
		}
	}
	return &api.DeclaredError{StatusCode: 404, Detail: "entry not found"}
}

func (f *fakeBackend) DeleteDataset(_ context.Context, kind models.TaskKind, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	rows := f.rows[kind][:0]
	for _, r := range f.rows[kind] {
		if *r.ID != id {
			rows = append(rows, r)
		}
	}
	f.rows[kind] = rows
	return nil
}

func (f *fakeBackend) UploadDataset(_ context.Context, kind models.TaskKind, filename string, r io.Reader) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	f.seedRow(kind, "uploaded from "+filename, "ok", "")
	return "1 rows imported", nil
}

func (f *fakeBackend) StartTraining(_ context.Context, cfg models.TrainingConfiguration) (api.TrainingResult, error) {
	f.mu.Lock()
	f.trainCalls = append(f.trainCalls, cfg)
	f.mu.Unlock()
	f.wait()
	if f.trainErr != nil {
		return api.TrainingResult{}, f.trainErr
	}
	return f.trainResult, nil
}

func (f *fakeBackend) ListModels(context.Context) ([]models.ModelArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listModelErr != nil {
		return nil, f.listModelErr
	}
	out := make([]models.ModelArtifact, len(f.arts))
	copy(out, f.arts)
	sort.SliceStable(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out, nil
}

func (f *fakeBackend) ActivateModel(_ context.Context, jobID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activateErr != nil {
		return "", f.activateErr
	}
	found := false
	for i := range f.arts {
		if f.arts[i].JobID == jobID {
			found = true
		}
	}
	if !found {
		return "", &api.DeclaredError{StatusCode: 404, Detail: "model not found"}
	}
	for i := range f.arts {
		if f.arts[i].JobID == jobID {
			f.arts[i].Status = models.StatusDeployed
		} else {
			f.arts[i].Status = models.StatusTrained
		}
	}
	return "Model " + jobID + " activated", nil
}

func (f *fakeBackend) DeleteModel(_ context.Context, jobID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return "", f.removeErr
	}
	out := f.arts[:0]
	for _, a := range f.arts {
		if a.JobID != jobID {
			out = append(out, a)
		}
	}
	f.arts = out
	return "Model " + jobID + " deleted", nil
}

func (f *fakeBackend) RunInference(_ context.Context, req models.InferenceRequest) (*string, error) {
	f.mu.Lock()
	f.inferCalls = append(f.inferCalls, req)
	f.mu.Unlock()
	f.wait()
	if f.inferErr != nil {
		return nil, f.inferErr
	}
	return f.prediction, nil
}

var errNetwork = &api.TransportError{Op: "test", Err: errors.New("connection refused")}

func ptr[T any](v T) *T { return &v }

// recordingConfirmer approves or declines and records every question.
type recordingConfirmer struct {
	answer    bool
	questions []string
}

func (c *recordingConfirmer) Confirm(_ context.Context, q string) (bool, error) {
	c.questions = append(c.questions, q)
	return c.answer, nil
}
