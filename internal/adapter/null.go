package adapter

import (
	"context"
	"log/slog"
	"sync"
)

// NullAdapter logs instead of sending. It stands in when no chat platform
// is configured and keeps what it was asked to send.
type NullAdapter struct {
	name string

	mu   sync.Mutex
	sent []string
}

func NewNullAdapter(name string) *NullAdapter {
	if name == "" {
		name = "null"
	}
	return &NullAdapter{name: name}
}

func (a *NullAdapter) Name() string {
	return a.name
}

func (a *NullAdapter) Send(ctx context.Context, target string, content string) error {
	a.mu.Lock()
	a.sent = append(a.sent, content)
	a.mu.Unlock()
	slog.Info("Notification", "adapter", a.name, "target", target, "content", content)
	return nil
}

func (a *NullAdapter) Sent() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.sent...)
}

func (a *NullAdapter) Health(ctx context.Context) error {
	return nil
}
