// Package notify posts model registry events to chat webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/modelyard/internal/config"
	"github.com/zulandar/modelyard/internal/console"
	"go.uber.org/zap"
)

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
)

// Field is one labelled value in a Message.
type Field struct {
	Name  string
	Value string
}

// Message is the platform-neutral rendering of an event.
type Message struct {
	Title  string
	Body   string
	Color  string
	Fields []Field
}

// Format renders ev as a Message.
func Format(ev console.Event) Message {
	m := Message{Body: ev.Message}
	switch ev.Kind {
	case console.EventPromoted:
		m.Title = fmt.Sprintf("Model %s deployed", ev.JobID)
		m.Color = ColorSuccess
	case console.EventRemoved:
		m.Title = fmt.Sprintf("Model %s deleted", ev.JobID)
		m.Color = ColorWarning
	case console.EventDiscovered:
		m.Title = fmt.Sprintf("New model %s registered", ev.JobID)
		m.Color = ColorInfo
	default:
		m.Title = fmt.Sprintf("Model %s: %s", ev.JobID, ev.Kind)
		m.Color = ColorInfo
	}
	if a := ev.Artifact; a != nil {
		m.Fields = append(m.Fields,
			Field{Name: "Base model", Value: a.BaseModelID},
			Field{Name: "Accuracy", Value: console.FormatMetric(a.EvalAccuracy)},
			Field{Name: "Loss", Value: console.FormatMetric(a.EvalLoss)},
		)
		if a.MergedPath != "" {
			m.Fields = append(m.Fields, Field{Name: "Path", Value: a.MergedPath})
		}
	}
	return m
}

// Multi fans an event out to several notifiers. Every notifier is tried;
// the errors are joined.
type Multi []console.Notifier

// Notify implements console.Notifier.
func (m Multi) Notify(ctx context.Context, ev console.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds a notifier for every configured webhook. It returns nil
// when none is configured.
func FromConfig(cfg config.NotifyConfig, logger *zap.Logger) (console.Notifier, error) {
	var out Multi
	if url := cfg.Slack.WebhookURL; url != "" {
		out = append(out, NewSlack(SlackOpts{WebhookURL: url}))
	}
	if url := cfg.Discord.WebhookURL; url != "" {
		d, err := NewDiscord(DiscordOpts{WebhookURL: url})
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, nil
	}
	if logger != nil {
		logger.Debug("notifiers configured", zap.Int("count", len(out)))
	}
	return out, nil
}
