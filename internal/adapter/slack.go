package adapter

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/slack-go/slack"

	wardenErrors "github.com/harunnryd/warden/internal/errors"
)

type SlackAdapter struct {
	client *slack.Client
}

// NewSlackAdapter builds a Slack sender. apiURL overrides the Slack Web API
// base URL and is empty in production.
func NewSlackAdapter(botToken, apiURL string) *SlackAdapter {
	if botToken == "" {
		botToken = os.Getenv("SLACK_BOT_TOKEN")
	}
	var opts []slack.Option
	if apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(strings.TrimRight(apiURL, "/")+"/"))
	}
	return &SlackAdapter{client: slack.New(botToken, opts...)}
}

func (s *SlackAdapter) Name() string {
	return "slack"
}

func (s *SlackAdapter) Send(ctx context.Context, channel string, content string) error {
	_, _, err := s.client.PostMessageContext(ctx, channel, slack.MsgOptionText(content, false))
	if err != nil {
		return wardenErrors.Wrap(err, "failed to send Slack message")
	}
	slog.Debug("Slack message sent", "channel", channel)
	return nil
}

func (s *SlackAdapter) Health(ctx context.Context) error {
	if _, err := s.client.AuthTestContext(ctx); err != nil {
		return wardenErrors.Unavailable("Slack connection failed")
	}
	return nil
}
