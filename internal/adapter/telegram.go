package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	wardenErrors "github.com/harunnryd/warden/internal/errors"
)

// TelegramAdapter sends messages through the Bot API. The bot is created
// on first use because creating it calls getMe.
type TelegramAdapter struct {
	token    string
	endpoint string

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegramAdapter builds a Telegram sender. endpoint is a Bot API URL
// template with two %s verbs (token, method); empty means the public API.
func NewTelegramAdapter(token, endpoint string) *TelegramAdapter {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	return &TelegramAdapter{token: token, endpoint: endpoint}
}

func (t *TelegramAdapter) Name() string {
	return "telegram"
}

func (t *TelegramAdapter) client() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(t.token, t.endpoint)
	if err != nil {
		return nil, wardenErrors.Unavailable(fmt.Sprintf("failed to init telegram bot: %v", err))
	}
	slog.Info("Telegram notifier connected", "user", bot.Self.UserName)
	t.bot = bot
	return bot, nil
}

func (t *TelegramAdapter) Send(ctx context.Context, chat string, content string) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(chat), 10, 64)
	if err != nil {
		return wardenErrors.InvalidInput(fmt.Sprintf("telegram chat id %q", chat))
	}
	bot, err := t.client()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, content)
	if _, err := bot.Send(msg); err != nil {
		return wardenErrors.Wrap(err, "failed to send Telegram message")
	}
	slog.Debug("Telegram message sent", "chat_id", chatID)
	return nil
}

func (t *TelegramAdapter) Health(ctx context.Context) error {
	_, err := t.client()
	return err
}
