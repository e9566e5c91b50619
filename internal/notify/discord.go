package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lavirtualzone/transfers/internal/domain"
)

// DiscordSender delivers notifications via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: newHTTPClient()}
}

// Send posts the notification; Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, n domain.Notification) error {
	return postJSON(ctx, d.client, "discord", d.webhookURL, map[string]string{
		"content": fmt.Sprintf("**%s**\n%s", n.Title, n.Message),
	})
}

func (d *DiscordSender) Name() string { return "discord" }
