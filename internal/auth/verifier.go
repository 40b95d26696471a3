package auth

import (
	"context"
	"crypto/hmac"
	"fmt"
	"slices"
	"strings"
	"time"

	wardenErrors "github.com/harunnryd/warden/internal/errors"
)

// Verifier checks signed requests against the shared secret, the freshness
// window and the replay set.
type Verifier struct {
	secret []byte
	window time.Duration
	nonces NonceStore
	now    func() time.Time
}

type VerifierOption func(*Verifier)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

func NewVerifier(secret string, window time.Duration, nonces NonceStore, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		secret: []byte(secret),
		window: window,
		nonces: nonces,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify returns the authenticated service id, or one of ErrUnauthenticated,
// ErrExpired, ErrForbidden or ErrReplayed. The nonce is recorded only after
// every other check has passed.
func (v *Verifier) Verify(ctx context.Context, h Headers, method, path string, body []byte, allowed []string) (string, error) {
	ts, err := h.parse()
	if err != nil {
		return "", err
	}

	skew := v.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.window {
		return "", fmt.Errorf("timestamp skew %s exceeds %s: %w", skew.Truncate(time.Second), v.window, wardenErrors.ErrExpired)
	}

	expected := computeSignature(v.secret, method, path, h.Timestamp, h.Nonce, body)
	got := strings.TrimPrefix(h.Signature, signaturePrefix)
	if !hmac.Equal([]byte(expected), []byte(got)) {
		return "", wardenErrors.Wrap(wardenErrors.ErrUnauthenticated, "signature mismatch")
	}

	if !slices.Contains(allowed, h.ServiceID) {
		return "", fmt.Errorf("service %q not allowed: %w", h.ServiceID, wardenErrors.ErrForbidden)
	}

	// A timestamp may sit up to one window in the future, so the nonce has to
	// outlive two windows to cover every acceptable arrival.
	seen, err := v.nonces.Seen(ctx, h.ServiceID, h.Nonce, 2*v.window)
	if err != nil {
		return "", fmt.Errorf("nonce store: %v: %w", err, wardenErrors.ErrUnauthenticated)
	}
	if seen {
		return "", fmt.Errorf("nonce %s from %s: %w", h.Nonce, h.ServiceID, wardenErrors.ErrReplayed)
	}

	return h.ServiceID, nil
}
