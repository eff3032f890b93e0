package notify

import (
	"context"
	"net/http"
	"time"
)

// alertColor is the embed sidebar colour (red).
const alertColor = 0xE74C3C

// DiscordSender posts alerts to a Discord webhook as a single embed.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

// NewDiscordSender creates a DiscordSender with a 10s HTTP timeout.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: sendTimeout},
		now:        time.Now,
	}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	// The webhook URL carries its token in the path.
	return postJSON(ctx, d.client, "discord", d.webhookURL, discordPayload{
		Username: "coinstats",
		Embeds: []discordEmbed{{
			Title:       title,
			Description: message,
			Color:       alertColor,
			Timestamp:   d.now().UTC().Format(time.RFC3339),
		}},
	}, true)
}

func (d *DiscordSender) Name() string { return "discord" }
