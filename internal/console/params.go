package console

import (
	"context"
	"errors"
	"sync"

	"github.com/zulandar/modelyard/internal/api"
	"github.com/zulandar/modelyard/internal/logging"
	"github.com/zulandar/modelyard/internal/models"
	"go.uber.org/zap"
)

// NoLogs is shown when a training response carried no log text.
const NoLogs = "(no logs)"

// TrainingAPI is the backend surface the parameter session uses.
type TrainingAPI interface {
	StartTraining(ctx context.Context, cfg models.TrainingConfiguration) (api.TrainingResult, error)
}

// TrainingOutcome is what the parameter view shows after a submit.
type TrainingOutcome struct {
	Phase  Phase
	Status string
	Logs   string
	Error  string
}

// ParameterSession turns the field store into one training request at a
// time. Phases run idle → submitting → succeeded|failed; the next Submit
// starts over.
type ParameterSession struct {
	client TrainingAPI
	fields *FieldStore
	log    *zap.Logger

	mu      sync.Mutex
	phase   Phase
	outcome TrainingOutcome
}

// NewParameterSession opens a session with kind's default configuration.
func NewParameterSession(client TrainingAPI, kind models.TaskKind, logger *zap.Logger) *ParameterSession {
	return &ParameterSession{
		client: client,
		fields: NewFieldStore(kind),
		log:    logging.OrNop(logger).With(zap.String("view", "parameters"), zap.String("task_kind", string(kind))),
	}
}

// Fields returns the session's field store.
func (p *ParameterSession) Fields() *FieldStore { return p.fields }

// Set updates one field. See FieldStore.Set.
func (p *ParameterSession) Set(name, raw string) error { return p.fields.Set(name, raw) }

// Phase returns the current phase.
func (p *ParameterSession) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Outcome returns the result of the last submit.
func (p *ParameterSession) Outcome() TrainingOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	o := p.outcome
	o.Phase = p.phase
	return o
}

// Submit snapshots the fields and issues one training request. It returns
// ErrBusy while a previous submit is pending. The backend runs training to
// completion before answering, so the outcome is final.
func (p *ParameterSession) Submit(ctx context.Context) error {
	p.mu.Lock()
	if p.phase == PhaseSubmitting {
		p.mu.Unlock()
		return ErrBusy
	}
	p.phase = PhaseSubmitting
	p.outcome = TrainingOutcome{Status: "Starting training...", Logs: "Waiting for the server..."}
	p.mu.Unlock()

	cfg := p.fields.Snapshot()
	p.log.Info("submitting training",
		zap.String("model_id", cfg.ModelID),
		zap.Int("epochs", cfg.NumTrainEpochs),
		zap.Int("batch_size", cfg.PerDeviceTrainBatchSize))

	res, err := p.client.StartTraining(ctx, cfg)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		msg := api.Message(err)
		logs := NoLogs
		var de *api.DeclaredError
		if errors.As(err, &de) && de.Logs != "" {
			logs = de.Logs
		}
		p.phase = PhaseFailed
		p.outcome = TrainingOutcome{
			Status: "Training request failed: " + msg,
			Logs:   logs,
			Error:  msg,
		}
		p.log.Warn("training failed", zap.Error(err))
		return err
	}
	logs := res.Logs
	if logs == "" {
		logs = NoLogs
	}
	p.phase = PhaseSucceeded
	p.outcome = TrainingOutcome{
		Status: "Training request succeeded: " + res.Message,
		Logs:   logs,
	}
	p.log.Info("training finished", zap.String("message", res.Message))
	return nil
}
