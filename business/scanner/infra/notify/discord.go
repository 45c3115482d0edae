package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"arbscan/internal/httpclient"
)

// DiscordSender delivers notifications via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     httpclient.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) (*DiscordSender, error) {
	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("discord"),
		httpclient.WithRequestTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("building discord client: %w", err)
	}
	return &DiscordSender{webhookURL: webhookURL, client: client}, nil
}

// Send posts a message to the webhook. The title is rendered in bold
// using Discord markdown.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	payload := map[string]string{
		"content": fmt.Sprintf("**%s**\n%s", title, message),
	}

	resp, err := d.client.NewRequest().
		SetBody(payload).
		Post(ctx, d.webhookURL)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	// Discord returns 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, resp.Body())
	}
	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
