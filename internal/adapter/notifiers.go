package adapter

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/harunnryd/warden/internal/approval"
	"github.com/harunnryd/warden/internal/config"
)

// NewNotifiers builds one approval notifier per enabled platform. With
// none enabled, a NullAdapter logs each item so operators still see it.
func NewNotifiers(cfg config.NotifyConfig) ([]approval.Notifier, error) {
	var out []approval.Notifier

	if cfg.Slack.Enabled {
		if strings.TrimSpace(cfg.Slack.BotToken) == "" && strings.TrimSpace(os.Getenv("SLACK_BOT_TOKEN")) == "" {
			return nil, fmt.Errorf("notify.slack.bot_token is required when slack notifications are enabled")
		}
		if strings.TrimSpace(cfg.Slack.Channel) == "" {
			return nil, fmt.Errorf("notify.slack.channel is required when slack notifications are enabled")
		}
		out = append(out, NewApprovalNotifier(NewSlackAdapter(cfg.Slack.BotToken, cfg.Slack.APIURL), cfg.Slack.Channel))
	}

	if cfg.Telegram.Enabled {
		token := strings.TrimSpace(cfg.Telegram.BotToken)
		if token == "" {
			return nil, fmt.Errorf("notify.telegram.bot_token is required when telegram notifications are enabled")
		}
		if cfg.Telegram.ChatID == 0 {
			return nil, fmt.Errorf("notify.telegram.chat_id is required when telegram notifications are enabled")
		}
		chat := strconv.FormatInt(cfg.Telegram.ChatID, 10)
		out = append(out, NewApprovalNotifier(NewTelegramAdapter(token, cfg.Telegram.APIEndpoint), chat))
	}

	if len(out) == 0 {
		out = append(out, NewApprovalNotifier(NewNullAdapter("log"), "operator"))
	}
	return out, nil
}
