package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	wardenErrors "github.com/harunnryd/warden/internal/errors"
	"github.com/harunnryd/warden/internal/logger"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxWait      = 5 * time.Minute
)

// StatusSource answers status queries for a waiter. Both the in-process
// Queue and the HTTP Client satisfy it.
type StatusSource interface {
	Status(ctx context.Context, id string) (Item, error)
}

// Requester files approval requests on an agent's behalf.
type Requester interface {
	Request(ctx context.Context, payload Payload) (string, error)
}

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Waiter blocks an agent until an operator decides, polling at a fixed
// interval up to a maximum wait.
type Waiter struct {
	source   StatusSource
	clock    Clock
	interval time.Duration
	maxWait  time.Duration
}

type WaiterOption func(*Waiter)

func WithWaiterClock(c Clock) WaiterOption {
	return func(w *Waiter) { w.clock = c }
}

func NewWaiter(source StatusSource, interval, maxWait time.Duration, opts ...WaiterOption) *Waiter {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	w := &Waiter{source: source, clock: systemClock{}, interval: interval, maxWait: maxWait}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Wait returns once id reaches a terminal state. Approved and rejected
// return a nil error; expiry on the server, or the local deadline passing
// first, returns StateExpired with ErrApprovalTimeout. Unknown ids fail
// immediately. Other poll errors are logged and polling continues.
func (w *Waiter) Wait(ctx context.Context, id string) (State, error) {
	log := logger.FromContext(ctx).With("approval_id", id)
	deadline := w.clock.Now().Add(w.maxWait)

	for {
		item, err := w.source.Status(ctx, id)
		switch {
		case err == nil:
			switch item.State {
			case StateApproved, StateRejected:
				return item.State, nil
			case StateExpired:
				return StateExpired, fmt.Errorf("approval %s expired: %w", id, wardenErrors.ErrApprovalTimeout)
			}
		case errors.Is(err, wardenErrors.ErrApprovalNotFound), wardenErrors.IsAuthFailure(err):
			return "", err
		case ctx.Err() != nil:
			return "", ctx.Err()
		default:
			log.Warn("Approval status poll failed, retrying", "error", err)
		}

		remaining := deadline.Sub(w.clock.Now())
		if remaining <= 0 {
			return StateExpired, fmt.Errorf("approval %s not resolved within %s: %w", id, w.maxWait, wardenErrors.ErrApprovalTimeout)
		}
		wait := w.interval
		if remaining < wait {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-w.clock.After(wait):
		}
	}
}

// RequestAndWait files payload and waits for the decision.
func RequestAndWait(ctx context.Context, r Requester, w *Waiter, payload Payload) (string, State, error) {
	id, err := r.Request(ctx, payload)
	if err != nil {
		return "", "", err
	}
	state, err := w.Wait(ctx, id)
	return id, state, err
}
