// Package console holds the operator-session controllers: the training
// parameter form, the dataset table, the model registry, the inference
// tester, and the bridge that carries a chosen artifact between the last two.
//
// Each controller allows at most one mutation at a time. The guard is an
// explicit Phase; a call that arrives while a request is pending fails with
// ErrBusy instead of queueing.
package console

import (
	"context"
	"errors"
)

// Phase is the state of a controller's single mutation slot.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseEditing
	PhaseSubmitting
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseEditing:
		return "editing"
	case PhaseSubmitting:
		return "submitting"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

var (
	// ErrBusy is returned when a request is already pending on the controller.
	ErrBusy = errors.New("a request is already in progress")
	// ErrNotEditing is returned when a row edit targets a row that is not in edit mode.
	ErrNotEditing = errors.New("row is not in edit mode")
	// ErrRowEditing is returned when deleting the row that is under edit.
	ErrRowEditing = errors.New("row is being edited; save it first")
	// ErrNoRow is returned for an out-of-range row index.
	ErrNoRow = errors.New("no such row")
	// ErrCancelled is returned when the operator declines a confirmation.
	ErrCancelled = errors.New("cancelled")
	// ErrUnknownField is returned for a field name the form does not have.
	ErrUnknownField = errors.New("unknown field")
	// ErrUnsupportedFile is returned when an upload has a disallowed extension.
	ErrUnsupportedFile = errors.New("unsupported file type")
)

// Level classifies a notice.
type Level int

const (
	LevelInfo Level = iota
	LevelError
)

// Notice is the status line a view shows after an action.
type Notice struct {
	Level Level
	Text  string
}

// IsError reports whether the notice describes a failure.
func (n Notice) IsError() bool { return n.Level == LevelError }

func info(text string) Notice    { return Notice{Level: LevelInfo, Text: text} }
func failure(text string) Notice { return Notice{Level: LevelError, Text: text} }

// Confirmer asks the operator to approve an irreversible action.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, question string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, question string) (bool, error) {
	return f(ctx, question)
}

// AlwaysConfirm approves every question. Used for --yes.
var AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })

// NeverConfirm declines every question.
var NeverConfirm Confirmer = ConfirmFunc(func(context.Context, string) (bool, error) { return false, nil })

// confirm returns ErrCancelled unless c approves question. A nil Confirmer
// declines, so destructive actions never run unconfirmed.
func confirm(ctx context.Context, c Confirmer, question string) error {
	if c == nil {
		return ErrCancelled
	}
	ok, err := c.Confirm(ctx, question)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCancelled
	}
	return nil
}
