package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/warden/internal/approval"
	"github.com/harunnryd/warden/internal/config"
	wardenErrors "github.com/harunnryd/warden/internal/errors"
)

func testItem(t *testing.T) approval.Item {
	t.Helper()
	payload, err := json.Marshal(approval.Payload{Rationale: "deploy needs the registry token", Needs: "REGISTRY_TOKEN", RequestType: "credential"})
	require.NoError(t, err)
	return approval.Item{
		ID:          "6f1c2a4e-1111-4222-8333-944455556666",
		RequestedBy: "codebot",
		Kind:        approval.KindCredential,
		Subject:     "REGISTRY_TOKEN",
		Payload:     payload,
		State:       approval.StatePending,
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ExpiresAt:   time.Date(2026, 1, 2, 3, 9, 5, 0, time.UTC),
	}
}

func TestFormatApproval(t *testing.T) {
	msg := FormatApproval(testItem(t))
	assert.Contains(t, msg, "Approval needed: REGISTRY_TOKEN")
	assert.Contains(t, msg, "Requested by: codebot")
	assert.Contains(t, msg, "Rationale: deploy needs the registry token")
	assert.Contains(t, msg, "Expires: 2026-01-02T03:09:05Z")
	assert.Contains(t, msg, "warden approvals resolve 6f1c2a4e-1111-4222-8333-944455556666 approve|reject")
}

func TestSlackAdapter_Send(t *testing.T) {
	var (
		mu      sync.Mutex
		channel string
		text    string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.URL.Path == "/chat.postMessage" {
			mu.Lock()
			channel = r.Form.Get("channel")
			text = r.Form.Get("text")
			mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1700000000.000100"}`))
	}))
	defer srv.Close()

	n := NewApprovalNotifier(NewSlackAdapter("xoxb-test", srv.URL), "C123")
	assert.Equal(t, "slack", n.Name())
	require.NoError(t, n.Notify(context.Background(), testItem(t)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "C123", channel)
	assert.Contains(t, text, "REGISTRY_TOKEN")
}

func TestSlackAdapter_SendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer srv.Close()

	err := NewSlackAdapter("xoxb-test", srv.URL).Send(context.Background(), "C404", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func telegramServer(t *testing.T, sent chan<- [2]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/botTOKEN/getMe":
			w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Warden","username":"warden_bot"}}`))
		case "/botTOKEN/sendMessage":
			sent <- [2]string{r.Form.Get("chat_id"), r.Form.Get("text")}
			w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":1700000000,"chat":{"id":42,"type":"private"},"text":"ok"}}`))
		default:
			w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
		}
	}))
}

func TestTelegramAdapter_Send(t *testing.T) {
	sent := make(chan [2]string, 1)
	srv := telegramServer(t, sent)
	defer srv.Close()

	tg := NewTelegramAdapter("TOKEN", srv.URL+"/bot%s/%s")
	require.NoError(t, tg.Health(context.Background()))

	n := NewApprovalNotifier(tg, "42")
	require.NoError(t, n.Notify(context.Background(), testItem(t)))

	got := <-sent
	assert.Equal(t, "42", got[0])
	assert.Contains(t, got[1], "Kind: credential")
}

func TestTelegramAdapter_RejectsBadChatID(t *testing.T) {
	tg := NewTelegramAdapter("TOKEN", "http://127.0.0.1:1/bot%s/%s")
	err := tg.Send(context.Background(), "not-a-chat", "hi")
	assert.ErrorIs(t, err, wardenErrors.ErrInvalidInput)
}

func TestTelegramAdapter_UnreachableIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tg := NewTelegramAdapter("TOKEN", url+"/bot%s/%s")
	err := tg.Send(context.Background(), "42", "hi")
	assert.ErrorIs(t, err, wardenErrors.ErrCollaboratorUnavailable)
}

func TestNewNotifiers(t *testing.T) {
	notifiers, err := NewNotifiers(config.NotifyConfig{})
	require.NoError(t, err)
	require.Len(t, notifiers, 1)
	assert.Equal(t, "log", notifiers[0].Name())

	notifiers, err = NewNotifiers(config.NotifyConfig{
		Slack:    config.SlackConfig{Enabled: true, BotToken: "xoxb-1", Channel: "C1"},
		Telegram: config.TelegramConfig{Enabled: true, BotToken: "T", ChatID: 42},
	})
	require.NoError(t, err)
	require.Len(t, notifiers, 2)
	assert.Equal(t, "slack", notifiers[0].Name())
	assert.Equal(t, "telegram", notifiers[1].Name())

	t.Setenv("SLACK_BOT_TOKEN", "")
	_, err = NewNotifiers(config.NotifyConfig{Slack: config.SlackConfig{Enabled: true, Channel: "C1"}})
	assert.Error(t, err)
	_, err = NewNotifiers(config.NotifyConfig{Telegram: config.TelegramConfig{Enabled: true, BotToken: "T"}})
	assert.Error(t, err)
}

func TestNullAdapter(t *testing.T) {
	a := NewNullAdapter("")
	assert.Equal(t, "null", a.Name())
	require.NoError(t, a.Send(context.Background(), "operator", "hello"))
	assert.Equal(t, []string{"hello"}, a.Sent())
	assert.NoError(t, a.Health(context.Background()))
}
