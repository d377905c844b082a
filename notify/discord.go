package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/K3das/qin-bridge/messages"
	"github.com/bwmarrin/discordgo"
)

// DiscordWebhook posts notifications to a channel through an incoming
// webhook, no bot user needed.
type DiscordWebhook struct {
	session *discordgo.Session

	id    string
	token string
}

func NewDiscordWebhook(webhookURL string) (*DiscordWebhook, error) {
	id, token, err := ParseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}

	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}

	return &DiscordWebhook{
		session: session,
		id:      id,
		token:   token,
	}, nil
}

// ParseWebhookURL splits https://discord.com/api/webhooks/<id>/<token>.
func ParseWebhookURL(webhookURL string) (id, token string, err error) {
	u, err := url.Parse(webhookURL)
	if err != nil {
		return "", "", fmt.Errorf("parsing webhook url: %w", err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}

	return "", "", fmt.Errorf("not a webhook url: %q", u.Redacted())
}

func (d *DiscordWebhook) Notify(ctx context.Context, n *messages.Notification) error {
	_, err := d.session.WebhookExecute(d.id, d.token, false, &discordgo.WebhookParams{
		Content: fmt.Sprintf("**%s**\n%s", n.Title, n.Body),
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("executing webhook: %w", err)
	}
	return nil
}
