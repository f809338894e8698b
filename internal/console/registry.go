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

// RegistryAPI is the backend surface the registry uses.
type RegistryAPI interface {
	ListModels(ctx context.Context) ([]models.ModelArtifact, error)
	ActivateModel(ctx context.Context, jobID string) (string, error)
	DeleteModel(ctx context.Context, jobID string) (string, error)
}

// EventKind classifies a registry event.
type EventKind string

const (
	EventPromoted   EventKind = "promoted"
	EventRemoved    EventKind = "removed"
	EventDiscovered EventKind = "discovered"
)

// Event describes a registry change worth telling people about.
type Event struct {
	Kind     EventKind
	JobID    string
	Message  string
	Artifact *models.ModelArtifact
}

// Notifier receives registry events. Delivery failures never change the
// outcome of the action that produced the event.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// RegistryOptions holds parameters for creating a Registry.
type RegistryOptions struct {
	Bridge   *Bridge
	Confirm  Confirmer
	Notifier Notifier
	Logger   *zap.Logger
}

// Registry lists trained artifacts and exposes promote, remove and
// select-for-inference. The fetched list is the only source of deployment
// state; nothing is inferred locally.
type Registry struct {
	client   RegistryAPI
	bridge   *Bridge
	confirm  Confirmer
	notifier Notifier
	log      *zap.Logger

	mu        sync.Mutex
	phase     Phase
	loading   bool
	artifacts []models.ModelArtifact
	active    int // index into artifacts, -1 when none
	notice    Notice
}

// NewRegistry creates a registry with an empty list. Call Refresh to load it.
func NewRegistry(client RegistryAPI, opts RegistryOptions) *Registry {
	return &Registry{
		client:   client,
		bridge:   opts.Bridge,
		confirm:  opts.Confirm,
		notifier: opts.Notifier,
		log:      logging.OrNop(opts.Logger).With(zap.String("view", "registry")),
		active:   -1,
	}
}

// Artifacts returns a copy of the last fetched list.
func (r *Registry) Artifacts() []models.ModelArtifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ModelArtifact, len(r.artifacts))
	copy(out, r.artifacts)
	return out
}

// Active returns the deployed artifact, if exactly one exists.
func (r *Registry) Active() (models.ModelArtifact, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active < 0 {
		return models.ModelArtifact{}, false
	}
	return r.artifacts[r.active], true
}

// Find looks up an artifact by job id in the last fetched list.
func (r *Registry) Find(jobID string) (models.ModelArtifact, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.artifacts {
		if a.JobID == jobID {
			return a, true
		}
	}
	return models.ModelArtifact{}, false
}

// Loading reports whether a refresh is in flight.
func (r *Registry) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// Phase returns the current phase.
func (r *Registry) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Notice returns the last status message.
func (r *Registry) Notice() Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notice
}

// Refresh fetches the artifact list and recomputes the active artifact.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if r.phase == PhaseSubmitting {
		r.mu.Unlock()
		return ErrBusy
	}
	r.phase = PhaseSubmitting
	r.mu.Unlock()

	err := r.refresh(ctx)

	r.mu.Lock()
	r.phase = PhaseIdle
	r.mu.Unlock()
	return err
}

// refresh does the fetch. The caller must own the mutation slot.
func (r *Registry) refresh(ctx context.Context) error {
	r.mu.Lock()
	r.loading = true
	r.mu.Unlock()

	list, err := r.client.ListModels(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.loading = false
	if err != nil {
		r.artifacts = nil
		r.active = -1
		r.notice = failure("Failed to load models: " + api.Message(err))
		r.log.Warn("refresh failed", zap.Error(err))
		return err
	}
	r.artifacts = list
	r.active = activeIndex(list)
	if r.active < 0 && countDeployed(list) > 1 {
		r.log.Warn("more than one artifact reports deployed; showing none as active")
	}
	return nil
}

// activeIndex returns the index of the unique deployed artifact, or -1.
func activeIndex(list []models.ModelArtifact) int {
	idx := -1
	for i, a := range list {
		if !a.Deployed() {
			continue
		}
		if idx >= 0 {
			return -1
		}
		idx = i
	}
	return idx
}

func countDeployed(list []models.ModelArtifact) int {
	n := 0
	for _, a := range list {
		if a.Deployed() {
			n++
		}
	}
	return n
}

// Promote deploys jobID after confirmation. The backend retires the previous
// active artifact; the refreshed list shows the result.
func (r *Registry) Promote(ctx context.Context, jobID string) error {
	question := fmt.Sprintf("Deploy model %q? The currently active model will be retired.", jobID)
	return r.mutate(ctx, question, "Deploy", EventPromoted, jobID, r.client.ActivateModel)
}

// Remove deletes jobID and its backing files after confirmation.
func (r *Registry) Remove(ctx context.Context, jobID string) error {
	question := fmt.Sprintf("Delete model %q? Its files are removed too and this cannot be undone.", jobID)
	return r.mutate(ctx, question, "Delete", EventRemoved, jobID, r.client.DeleteModel)
}

func (r *Registry) mutate(ctx context.Context, question, verb string, kind EventKind, jobID string,
	call func(context.Context, string) (string, error)) error {
	r.mu.Lock()
	if r.phase == PhaseSubmitting {
		r.mu.Unlock()
		return ErrBusy
	}
	r.mu.Unlock()

	if err := confirm(ctx, r.confirm, question); err != nil {
		return err
	}

	r.mu.Lock()
	if r.phase == PhaseSubmitting {
		r.mu.Unlock()
		return ErrBusy
	}
	r.phase = PhaseSubmitting
	prior, _ := r.findLocked(jobID)
	r.mu.Unlock()

	msg, err := call(ctx, jobID)
	if err != nil {
		r.mu.Lock()
		r.phase = PhaseIdle
		r.notice = failure(verb + " failed: " + api.Message(err))
		r.mu.Unlock()
		r.log.Warn("registry action failed", zap.String("action", string(kind)), zap.String("job_id", jobID), zap.Error(err))
		return err
	}

	r.log.Info("registry action done", zap.String("action", string(kind)), zap.String("job_id", jobID))
	r.mu.Lock()
	r.notice = info(msg)
	r.mu.Unlock()

	r.emit(ctx, Event{Kind: kind, JobID: jobID, Message: msg, Artifact: prior})
	r.refresh(ctx)

	r.mu.Lock()
	r.phase = PhaseIdle
	r.mu.Unlock()
	return nil
}

func (r *Registry) findLocked(jobID string) (*models.ModelArtifact, bool) {
	for i := range r.artifacts {
		if r.artifacts[i].JobID == jobID {
			a := r.artifacts[i]
			return &a, true
		}
	}
	return nil, false
}

func (r *Registry) emit(ctx context.Context, ev Event) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, ev); err != nil {
		r.log.Warn("notify failed", zap.String("event", string(ev.Kind)), zap.Error(err))
	}
}

// SelectForInference hands mergedPath to the inference session through the
// bridge. The registry never touches the inference session directly.
func (r *Registry) SelectForInference(jobID, mergedPath string) {
	if r.bridge != nil {
		r.bridge.Publish(mergedPath)
	}
	r.mu.Lock()
	r.notice = info(fmt.Sprintf("Model %q selected for inference: %s", jobID, mergedPath))
	r.mu.Unlock()
	r.log.Info("selected for inference", zap.String("job_id", jobID), zap.String("path", mergedPath))
}
