// Package adapter delivers operator notifications to chat platforms.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/harunnryd/warden/internal/approval"
)

// OutputAdapter defines the interface for adapters that send messages to external platforms
type OutputAdapter interface {
	// Name returns the adapter name.
	Name() string

	// Send sends a message to the platform.
	// target maps to the platform-specific destination (channel ID, chat ID, etc.).
	Send(ctx context.Context, target string, content string) error

	// Health checks if the adapter can send messages.
	Health(ctx context.Context) error
}

// ApprovalNotifier posts every newly filed approval item to one destination.
type ApprovalNotifier struct {
	out    OutputAdapter
	target string
}

func NewApprovalNotifier(out OutputAdapter, target string) *ApprovalNotifier {
	return &ApprovalNotifier{out: out, target: target}
}

func (n *ApprovalNotifier) Name() string {
	return n.out.Name()
}

func (n *ApprovalNotifier) Notify(ctx context.Context, item approval.Item) error {
	return n.out.Send(ctx, n.target, FormatApproval(item))
}

// FormatApproval renders an item as a plain-text operator message.
func FormatApproval(item approval.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Approval needed: %s\n", item.Subject)
	fmt.Fprintf(&b, "Kind: %s\n", item.Kind)
	fmt.Fprintf(&b, "Requested by: %s\n", item.RequestedBy)

	var p approval.Payload
	if err := json.Unmarshal(item.Payload, &p); err == nil && p.Rationale != "" {
		fmt.Fprintf(&b, "Rationale: %s\n", p.Rationale)
	}

	fmt.Fprintf(&b, "Expires: %s\n", item.ExpiresAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "ID: %s\n\n", item.ID)
	fmt.Fprintf(&b, "warden approvals resolve %s approve|reject", item.ID)
	return b.String()
}
