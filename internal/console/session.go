package console

import (
	"sync"

	"github.com/zulandar/modelyard/internal/models"
	"go.uber.org/zap"
)

// Backend is everything a session needs from the API server.
type Backend interface {
	DatasetAPI
	TrainingAPI
	RegistryAPI
	InferenceAPI
}

// SessionOptions holds parameters for creating a Session.
type SessionOptions struct {
	Kind             models.TaskKind
	Confirm          Confirmer
	Notifier         Notifier
	UploadExtensions []string
	Logger           *zap.Logger
}

// Session is one operator's console: all controllers sharing one bridge.
// The dataset table and parameter form belong to the selected task kind and
// are recreated when the kind changes; the registry, the inference session
// and the bridge live for the whole session.
type Session struct {
	backend Backend
	opts    SessionOptions

	Bridge    *Bridge
	Registry  *Registry
	Inference *InferenceSession

	mu      sync.Mutex
	dataset *DatasetTable
	params  *ParameterSession
}

// NewSession wires a session for opts.Kind.
func NewSession(backend Backend, opts SessionOptions) *Session {
	if opts.Kind == "" {
		opts.Kind = models.TaskTextToSQL
	}
	bridge := NewBridge()
	s := &Session{
		backend: backend,
		opts:    opts,
		Bridge:  bridge,
		Registry: NewRegistry(backend, RegistryOptions{
			Bridge:   bridge,
			Confirm:  opts.Confirm,
			Notifier: opts.Notifier,
			Logger:   opts.Logger,
		}),
		Inference: NewInferenceSession(backend, bridge, opts.Logger),
	}
	s.mountKind(opts.Kind)
	return s
}

func (s *Session) mountKind(kind models.TaskKind) {
	s.dataset = NewDatasetTable(s.backend, DatasetOptions{
		Kind:             kind,
		Confirm:          s.opts.Confirm,
		UploadExtensions: s.opts.UploadExtensions,
		Logger:           s.opts.Logger,
	})
	s.params = NewParameterSession(s.backend, kind, s.opts.Logger)
	s.opts.Kind = kind
}

// Kind returns the selected task kind.
func (s *Session) Kind() models.TaskKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.Kind
}

// SwitchKind selects another task kind. The previous kind's form and table
// are discarded, unsaved edits included.
func (s *Session) SwitchKind(kind models.TaskKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kind == s.opts.Kind {
		return
	}
	s.mountKind(kind)
}

// Dataset returns the table for the selected kind.
func (s *Session) Dataset() *DatasetTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataset
}

// Params returns the parameter form for the selected kind.
func (s *Session) Params() *ParameterSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}
