package notify

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/modelyard/internal/console"
)

// slackPoster abstracts the incoming-webhook call, enabling test mocks.
type slackPoster func(ctx context.Context, url string, msg *slackapi.WebhookMessage) error

// Slack posts events to a Slack incoming webhook.
type Slack struct {
	url  string
	post slackPoster
}

// SlackOpts holds parameters for creating a Slack notifier.
type SlackOpts struct {
	WebhookURL string
	// For testing: replace the webhook call.
	Post func(ctx context.Context, url string, msg *slackapi.WebhookMessage) error
}

// NewSlack creates a Slack notifier.
func NewSlack(opts SlackOpts) *Slack {
	s := &Slack{url: opts.WebhookURL, post: slackapi.PostWebhookContext}
	if opts.Post != nil {
		s.post = opts.Post
	}
	return s
}

// Notify implements console.Notifier.
func (s *Slack) Notify(ctx context.Context, ev console.Event) error {
	if err := s.post(ctx, s.url, slackMessage(Format(ev))); err != nil {
		return fmt.Errorf("notify: slack: %w", err)
	}
	return nil
}

func slackMessage(m Message) *slackapi.WebhookMessage {
	att := slackapi.Attachment{
		Color: m.Color,
		Title: m.Title,
		Text:  m.Body,
	}
	for _, f := range m.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{Title: f.Name, Value: f.Value, Short: true})
	}
	return &slackapi.WebhookMessage{
		Text:        m.Title,
		Attachments: []slackapi.Attachment{att},
	}
}
