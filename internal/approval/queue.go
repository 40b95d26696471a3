package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/warden/internal/concurrency"
	wardenErrors "github.com/harunnryd/warden/internal/errors"
	"github.com/harunnryd/warden/internal/logger"
)

// DefaultTTL is how long an item stays approvable.
const DefaultTTL = 5 * time.Minute

const notifyTimeout = 10 * time.Second

// Notifier tells an operator that a new item is waiting.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, item Item) error
}

// ResolvedHook runs after an item reaches approved, rejected or expired.
type ResolvedHook func(ctx context.Context, item Item)

// Queue is the server side of the approval flow. Every mutation is
// persisted before it is visible.
type Queue struct {
	mu       sync.Mutex
	store    *Store
	active   map[string]Item
	archived map[string]Item
	ttl      time.Duration
	now      func() time.Time

	hooks     []ResolvedHook
	notifiers []Notifier
	notifyWG  sync.WaitGroup
}

type Option func(*Queue)

func WithTTL(ttl time.Duration) Option {
	return func(q *Queue) {
		if ttl > 0 {
			q.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func WithNotifier(n Notifier) Option {
	return func(q *Queue) { q.notifiers = append(q.notifiers, n) }
}

// NewQueue loads the queue from store. Items present in both the active
// file and the archive were resolved mid-write; the archive wins.
func NewQueue(store *Store, opts ...Option) (*Queue, error) {
	active, err := store.LoadActive()
	if err != nil {
		return nil, err
	}
	archived, err := store.LoadArchive()
	if err != nil {
		return nil, err
	}

	q := &Queue{
		store:    store,
		active:   active,
		archived: archived,
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}

	dropped := 0
	for id := range q.active {
		if _, ok := q.archived[id]; ok {
			delete(q.active, id)
			dropped++
		}
	}
	if dropped > 0 {
		if err := store.SaveActive(q.active); err != nil {
			return nil, err
		}
	}

	slog.Info("Approval queue loaded", "pending", len(q.active), "archived", len(q.archived))
	return q, nil
}

// OnResolved registers a hook. Hooks run synchronously, outside the queue
// lock, after the resolution is durable.
func (q *Queue) OnResolved(hook ResolvedHook) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.hooks = append(q.hooks, hook)
}

// Request files an item on behalf of an authenticated agent.
func (q *Queue) Request(ctx context.Context, agent string, raw []byte) (string, error) {
	p, err := ParsePayload(raw)
	if err != nil {
		return "", err
	}
	return q.File(ctx, FileRequest{
		RequestedBy: agent,
		Kind:        Kind(p.RequestType),
		Subject:     p.Needs,
		Payload:     p,
	})
}

// File creates a pending item and notifies operators.
func (q *Queue) File(ctx context.Context, req FileRequest) (string, error) {
	if req.RequestedBy == "" {
		return "", wardenErrors.InvalidInput("requested_by is required")
	}
	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return "", wardenErrors.InvalidInput(fmt.Sprintf("payload: %v", err))
	}

	now := q.now().UTC()
	item := Item{
		ID:          uuid.NewString(),
		RequestedBy: req.RequestedBy,
		Kind:        req.Kind,
		Subject:     req.Subject,
		Payload:     payload,
		State:       StatePending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(q.ttl),
	}

	q.mu.Lock()
	q.active[item.ID] = item
	if err := q.store.SaveActive(q.active); err != nil {
		delete(q.active, item.ID)
		q.mu.Unlock()
		return "", wardenErrors.Internal(fmt.Sprintf("persist approval: %v", err))
	}
	notifiers := q.notifiers
	q.mu.Unlock()

	logger.FromContext(ctx).Info("Approval requested", "id", item.ID, "kind", item.Kind, "subject", item.Subject, "requested_by", item.RequestedBy)
	q.notify(item, notifiers)
	return item.ID, nil
}

func (q *Queue) notify(item Item, notifiers []Notifier) {
	for _, n := range notifiers {
		concurrency.Go(&q.notifyWG, "notify-"+n.Name(), func() {
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			if err := n.Notify(ctx, item); err != nil {
				slog.Warn("Approval notification failed", "notifier", n.Name(), "id", item.ID, "error", err)
			}
		})
	}
}

// Close waits for in-flight notifications.
func (q *Queue) Close() {
	q.notifyWG.Wait()
}

// Status returns the current item, expiring it first if it is overdue.
func (q *Queue) Status(ctx context.Context, id string) (Item, error) {
	q.mu.Lock()
	if item, ok := q.active[id]; ok {
		if !q.overdue(item) {
			q.mu.Unlock()
			return item, nil
		}
		expired, err := q.expireLocked(ctx, item)
		hooks := q.hooksLocked()
		q.mu.Unlock()
		if err != nil {
			return Item{}, err
		}
		runHooks(ctx, hooks, expired)
		return expired, nil
	}
	item, ok := q.archived[id]
	q.mu.Unlock()
	if ok {
		return item, nil
	}
	return Item{}, wardenErrors.NotFound(id)
}

// Pending lists items still awaiting a decision, newest first.
func (q *Queue) Pending(ctx context.Context) []Item {
	q.Sweep(ctx)

	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, 0, len(q.active))
	for _, item := range q.active {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Resolve records the operator's decision. Anything but a live pending
// item fails: unknown ids with ErrApprovalNotFound, resolved or expired
// ones with ErrAlreadyResolved.
func (q *Queue) Resolve(ctx context.Context, id string, decision Decision, operator string) (Item, error) {
	if decision != DecisionApprove && decision != DecisionReject {
		return Item{}, wardenErrors.InvalidInput(fmt.Sprintf("unknown decision %q", decision))
	}

	q.mu.Lock()
	item, ok := q.active[id]
	if !ok {
		_, archived := q.archived[id]
		q.mu.Unlock()
		if archived {
			return Item{}, fmt.Errorf("approval %s: %w", id, wardenErrors.ErrAlreadyResolved)
		}
		return Item{}, wardenErrors.NotFound(id)
	}
	if q.overdue(item) {
		expired, err := q.expireLocked(ctx, item)
		hooks := q.hooksLocked()
		q.mu.Unlock()
		if err != nil {
			return Item{}, err
		}
		runHooks(ctx, hooks, expired)
		return Item{}, fmt.Errorf("approval %s expired: %w", id, wardenErrors.ErrAlreadyResolved)
	}

	resolvedAt := q.now().UTC()
	item.State = decision.state()
	item.ResolvedAt = &resolvedAt
	item.ResolvedBy = operator
	if err := q.archiveLocked(item); err != nil {
		q.mu.Unlock()
		return Item{}, err
	}
	hooks := q.hooksLocked()
	q.mu.Unlock()

	logger.FromContext(ctx).Info("Approval resolved", "id", id, "state", item.State, "operator", operator)
	runHooks(ctx, hooks, item)
	return item, nil
}

// Sweep expires every overdue pending item and reports how many it
// expired. The sweeper runs it on a schedule so expiry never depends on
// someone polling.
func (q *Queue) Sweep(ctx context.Context) int {
	q.mu.Lock()
	var expired []Item
	for _, item := range q.active {
		if !q.overdue(item) {
			continue
		}
		done, err := q.expireLocked(ctx, item)
		if err != nil {
			slog.Error("Failed to expire approval", "id", item.ID, "error", err)
			continue
		}
		expired = append(expired, done)
	}
	hooks := q.hooksLocked()
	q.mu.Unlock()

	if len(expired) > 0 {
		slog.Info("Expired approvals", "count", len(expired))
	}
	for _, item := range expired {
		runHooks(ctx, hooks, item)
	}
	return len(expired)
}

// Len is the number of pending items, including overdue ones not yet swept.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

func (q *Queue) hooksLocked() []ResolvedHook {
	return append([]ResolvedHook(nil), q.hooks...)
}

func runHooks(ctx context.Context, hooks []ResolvedHook, item Item) {
	for _, hook := range hooks {
		hook(ctx, item)
	}
}

func (q *Queue) overdue(item Item) bool {
	return item.State == StatePending && !q.now().Before(item.ExpiresAt)
}

func (q *Queue) expireLocked(ctx context.Context, item Item) (Item, error) {
	at := item.ExpiresAt
	item.State = StateExpired
	item.ResolvedAt = &at
	item.ResolvedBy = "system"
	if err := q.archiveLocked(item); err != nil {
		return Item{}, err
	}
	logger.FromContext(ctx).Info("Approval expired", "id", item.ID, "kind", item.Kind)
	return item, nil
}

// archiveLocked appends to the archive before rewriting the active file,
// so a crash between the two leaves a duplicate that NewQueue drops
// rather than a lost decision.
func (q *Queue) archiveLocked(item Item) error {
	if err := q.store.Append(item); err != nil {
		return wardenErrors.Internal(fmt.Sprintf("archive approval: %v", err))
	}
	q.archived[item.ID] = item
	delete(q.active, item.ID)
	if err := q.store.SaveActive(q.active); err != nil {
		return wardenErrors.Internal(fmt.Sprintf("persist approvals: %v", err))
	}
	return nil
}
