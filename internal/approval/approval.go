// Package approval holds the durable queue of human decisions that gate
// unattended actions, plus the polling client agents use to wait on them.
package approval

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	wardenErrors "github.com/harunnryd/warden/internal/errors"
)

type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
	StateExpired  State = "expired"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateApproved || s == StateRejected || s == StateExpired
}

type Kind string

const (
	KindCredential   Kind = "credential"
	KindPermission   Kind = "permission"
	KindNotification Kind = "notification"
	KindSkill        Kind = "skill"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindCredential, nil
	case KindCredential, KindPermission, KindNotification, KindSkill:
		return k, nil
	default:
		return "", wardenErrors.InvalidInput(fmt.Sprintf("unknown request_type %q", s))
	}
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(s))); d {
	case DecisionApprove, DecisionReject:
		return d, nil
	default:
		return "", wardenErrors.InvalidInput(fmt.Sprintf("decision must be approve or reject, got %q", s))
	}
}

func (d Decision) state() State {
	if d == DecisionApprove {
		return StateApproved
	}
	return StateRejected
}

// Item is one decision awaiting, or past, operator sign-off.
type Item struct {
	ID          string          `json:"id"`
	RequestedBy string          `json:"requested_by"`
	Kind        Kind            `json:"kind"`
	Subject     string          `json:"subject"`
	Payload     json.RawMessage `json:"payload"`
	State       State           `json:"state"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy  string          `json:"resolved_by,omitempty"`
}

// Payload is the body an agent submits to request approval.
type Payload struct {
	Rationale   string `json:"rationale"`
	Needs       string `json:"needs"`
	RequestType string `json:"request_type,omitempty"`
}

// ParsePayload validates a submitted body and returns it in canonical form.
func ParsePayload(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, wardenErrors.InvalidInput(fmt.Sprintf("payload: %v", err))
	}
	p.Rationale = strings.TrimSpace(p.Rationale)
	p.Needs = strings.TrimSpace(p.Needs)
	if p.Rationale == "" {
		return Payload{}, wardenErrors.InvalidInput("payload: rationale is required")
	}
	if p.Needs == "" {
		return Payload{}, wardenErrors.InvalidInput("payload: needs is required")
	}
	kind, err := ParseKind(p.RequestType)
	if err != nil {
		return Payload{}, err
	}
	if kind == KindSkill {
		return Payload{}, wardenErrors.InvalidInput("payload: skill approvals are filed internally")
	}
	p.RequestType = string(kind)
	return p, nil
}

// FileRequest describes an item filed from inside the process.
type FileRequest struct {
	RequestedBy string
	Kind        Kind
	Subject     string
	Payload     any
}
