// Package watch polls the model registry on a cron schedule and reports
// artifacts that appeared, disappeared or became deployed since the last
// poll.
package watch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/modelyard/internal/console"
	"github.com/zulandar/modelyard/internal/logging"
	"github.com/zulandar/modelyard/internal/models"
	"go.uber.org/zap"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextDuration parses a 5-field cron expression and returns the duration
// from now until the next fire time.
func NextDuration(expr string, now time.Time) (time.Duration, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0, fmt.Errorf("watch: schedule %q: %w", expr, err)
	}
	d := sched.Next(now).Sub(now)
	if d < 0 {
		d = 0
	}
	return d, nil
}

// Source is the registry view the watcher polls. *console.Registry
// satisfies it.
type Source interface {
	Refresh(ctx context.Context) error
	Artifacts() []models.ModelArtifact
}

// Watcher detects registry changes between polls.
type Watcher struct {
	source   Source
	notifier console.Notifier
	schedule string
	log      *zap.Logger

	mu       sync.Mutex
	snapshot map[string]models.ArtifactStatus // job id -> last-known status
	seeded   bool                             // true after the first poll
}

// Opts holds parameters for creating a Watcher.
type Opts struct {
	Source   Source
	Notifier console.Notifier // optional
	Schedule string           // 5-field cron expression
	Logger   *zap.Logger
}

// New creates a Watcher.
func New(opts Opts) (*Watcher, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("watch: source is required")
	}
	if _, err := cronParser.Parse(opts.Schedule); err != nil {
		return nil, fmt.Errorf("watch: schedule %q: %w", opts.Schedule, err)
	}
	return &Watcher{
		source:   opts.Source,
		notifier: opts.Notifier,
		schedule: opts.Schedule,
		log:      logging.OrNop(opts.Logger).With(zap.String("component", "watch")),
		snapshot: make(map[string]models.ArtifactStatus),
	}, nil
}

// Poll refreshes the registry and returns the changes since the previous
// poll. The first poll only records a baseline.
func (w *Watcher) Poll(ctx context.Context) ([]console.Event, error) {
	if err := w.source.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("watch: refresh: %w", err)
	}
	list := w.source.Artifacts()

	w.mu.Lock()
	defer w.mu.Unlock()

	current := make(map[string]models.ArtifactStatus, len(list))
	var events []console.Event
	for i := range list {
		a := list[i]
		current[a.JobID] = a.Status
		if !w.seeded {
			continue
		}
		prev, known := w.snapshot[a.JobID]
		switch {
		case !known:
			events = append(events, console.Event{
				Kind:     console.EventDiscovered,
				JobID:    a.JobID,
				Message:  fmt.Sprintf("Trained from %s on %s", a.BaseModelID, console.FormatDate(a.TrainingDate)),
				Artifact: &a,
			})
		case prev != a.Status && a.Deployed():
			events = append(events, console.Event{
				Kind:     console.EventPromoted,
				JobID:    a.JobID,
				Message:  "Deployed outside this console",
				Artifact: &a,
			})
		}
	}
	if w.seeded {
		var gone []string
		for id := range w.snapshot {
			if _, ok := current[id]; !ok {
				gone = append(gone, id)
			}
		}
		sort.Strings(gone)
		for _, id := range gone {
			events = append(events, console.Event{Kind: console.EventRemoved, JobID: id, Message: "No longer listed by the backend"})
		}
	}
	w.snapshot = current
	w.seeded = true
	return events, nil
}

// Run polls on the schedule until ctx is cancelled. Detected events are sent
// to the notifier, if any, and to the returned channel, which is closed when
// Run stops.
func (w *Watcher) Run(ctx context.Context) <-chan console.Event {
	ch := make(chan console.Event, 64)
	go func() {
		defer close(ch)

		// Establish the baseline immediately so the first scheduled poll
		// already reports changes.
		if _, err := w.Poll(ctx); err != nil {
			w.log.Warn("baseline poll failed", zap.Error(err))
		}

		for {
			d, err := NextDuration(w.schedule, time.Now())
			if err != nil {
				w.log.Error("bad schedule", zap.Error(err))
				return
			}
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			events, err := w.Poll(ctx)
			if err != nil {
				w.log.Warn("poll failed", zap.Error(err))
				continue
			}
			for _, ev := range events {
				w.deliver(ctx, ev)
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch
}

func (w *Watcher) deliver(ctx context.Context, ev console.Event) {
	w.log.Info("registry change", zap.String("event", string(ev.Kind)), zap.String("job_id", ev.JobID))
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Notify(ctx, ev); err != nil {
		w.log.Warn("notify failed", zap.String("job_id", ev.JobID), zap.Error(err))
	}
}
