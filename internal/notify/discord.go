package notify

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/modelyard/internal/console"
)

// webhookSession abstracts the discordgo.Session methods we use, enabling
// test mocks.
type webhookSession interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts events to a Discord channel webhook.
type Discord struct {
	sess  webhookSession
	id    string
	token string
}

// DiscordOpts holds parameters for creating a Discord notifier.
type DiscordOpts struct {
	WebhookURL string // https://discord.com/api/webhooks/{id}/{token}
	// For testing: inject a mock session instead of the real Discord API.
	Session webhookSession
}

// NewDiscord creates a Discord notifier.
func NewDiscord(opts DiscordOpts) (*Discord, error) {
	id, token, err := parseDiscordWebhook(opts.WebhookURL)
	if err != nil {
		return nil, err
	}
	d := &Discord{sess: opts.Session, id: id, token: token}
	if d.sess == nil {
		// Webhook execution is authorized by the token in the URL.
		dg, err := discordgo.New("")
		if err != nil {
			return nil, fmt.Errorf("notify: discord: create session: %w", err)
		}
		d.sess = dg
	}
	return d, nil
}

// parseDiscordWebhook extracts the webhook id and token from its URL.
func parseDiscordWebhook(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("notify: discord: webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("notify: discord: webhook url %q has no /webhooks/{id}/{token} path", raw)
}

// Notify implements console.Notifier.
func (d *Discord) Notify(ctx context.Context, ev console.Event) error {
	_, err := d.sess.WebhookExecute(d.id, d.token, false, discordParams(Format(ev)), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("notify: discord: %w", err)
	}
	return nil
}

func discordParams(m Message) *discordgo.WebhookParams {
	embed := &discordgo.MessageEmbed{
		Title:       m.Title,
		Description: m.Body,
		Color:       hexColor(m.Color),
	}
	for _, f := range m.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: true})
	}
	return &discordgo.WebhookParams{
		Username: "modelyard",
		Embeds:   []*discordgo.MessageEmbed{embed},
	}
}

// hexColor converts "#rrggbb" to the integer Discord embeds use.
func hexColor(s string) int {
	n, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(n)
}
