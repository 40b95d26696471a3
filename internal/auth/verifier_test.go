package auth

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wardenErrors "github.com/harunnryd/warden/internal/errors"
)

const testSecret = "s3cret-shared-key"

type countingStore struct {
	inner NonceStore
	calls int
}

func (c *countingStore) Seen(ctx context.Context, serviceID, nonce string, ttl time.Duration) (bool, error) {
	c.calls++
	return c.inner.Seen(ctx, serviceID, nonce, ttl)
}

type failingStore struct{}

func (failingStore) Seen(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("store down")
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestPair(now time.Time) (*Signer, *Verifier, *countingStore) {
	store := &countingStore{inner: NewMemoryNonceStore()}
	signer := NewSigner("cli", testSecret)
	signer.now = fixedClock(now)
	verifier := NewVerifier(testSecret, 30*time.Second, store, WithClock(fixedClock(now)))
	return signer, verifier, store
}

func TestVerifyAcceptsFreshSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	signer, verifier, _ := newTestPair(now)
	body := []byte(`{"text":"hello"}`)

	h := signer.Sign("POST", "/message", body)
	id, err := verifier.Verify(context.Background(), h, "POST", "/message", body, []string{"cli"})
	require.NoError(t, err)
	assert.Equal(t, "cli", id)
}

func TestVerifyRejectsReplay(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	signer, verifier, _ := newTestPair(now)

	h := signer.Sign("GET", "/skills", nil)
	_, err := verifier.Verify(context.Background(), h, "GET", "/skills", nil, []string{"cli"})
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), h, "GET", "/skills", nil, []string{"cli"})
	assert.ErrorIs(t, err, wardenErrors.ErrReplayed)
}

func TestVerifyConcurrentReplayAcceptsOnce(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	signer := NewSigner("cli", testSecret)
	signer.now = fixedClock(now)
	verifier := NewVerifier(testSecret, 30*time.Second, NewMemoryNonceStore(), WithClock(fixedClock(now)))
	body := []byte(`{"text":"once"}`)
	h := signer.Sign("POST", "/message", body)

	const callers = 32
	var accepted, replayed atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := verifier.Verify(context.Background(), h, "POST", "/message", body, []string{"cli"})
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, wardenErrors.ErrReplayed):
				replayed.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, int32(callers-1), replayed.Load())
}

func TestVerifyWindowBoundaries(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tests := []struct {
		name    string
		skew    time.Duration
		wantErr error
	}{
		{name: "at window in past", skew: -30 * time.Second},
		{name: "at window in future", skew: 30 * time.Second},
		{name: "past window", skew: -31 * time.Second, wantErr: wardenErrors.ErrExpired},
		{name: "future window", skew: 31 * time.Second, wantErr: wardenErrors.ErrExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer, verifier, store := newTestPair(now)
			signer.now = fixedClock(now.Add(tt.skew))

			h := signer.Sign("GET", "/skills", nil)
			_, err := verifier.Verify(context.Background(), h, "GET", "/skills", nil, []string{"cli"})
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, store.calls, "rejected request must not touch the replay set")
		})
	}
}

func TestVerifyFailuresDoNotRecordNonce(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"a":1}`)

	tests := []struct {
		name    string
		mutate  func(h *Headers)
		method  string
		path    string
		body    []byte
		allowed []string
		wantErr error
	}{
		{
			name:    "missing nonce",
			mutate:  func(h *Headers) { h.Nonce = "" },
			wantErr: wardenErrors.ErrUnauthenticated,
		},
		{
			name:    "non numeric timestamp",
			mutate:  func(h *Headers) { h.Timestamp = "yesterday" },
			wantErr: wardenErrors.ErrUnauthenticated,
		},
		{
			name:    "signature without prefix",
			mutate:  func(h *Headers) { h.Signature = h.Signature[len(signaturePrefix):] },
			wantErr: wardenErrors.ErrUnauthenticated,
		},
		{
			name:    "tampered body",
			body:    []byte(`{"a":2}`),
			wantErr: wardenErrors.ErrUnauthenticated,
		},
		{
			name:    "different path",
			path:    "/approvals/pending",
			wantErr: wardenErrors.ErrUnauthenticated,
		},
		{
			name:    "different method",
			method:  "PUT",
			wantErr: wardenErrors.ErrUnauthenticated,
		},
		{
			name:    "caller not allowed",
			allowed: []string{"codebot"},
			wantErr: wardenErrors.ErrForbidden,
		},
		{
			name:    "empty allow list",
			allowed: []string{},
			wantErr: wardenErrors.ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer, verifier, store := newTestPair(now)
			h := signer.Sign("POST", "/message", body)
			if tt.mutate != nil {
				tt.mutate(&h)
			}
			method, path, reqBody, allowed := "POST", "/message", body, []string{"cli"}
			if tt.method != "" {
				method = tt.method
			}
			if tt.path != "" {
				path = tt.path
			}
			if tt.body != nil {
				reqBody = tt.body
			}
			if tt.allowed != nil {
				allowed = tt.allowed
			}

			_, err := verifier.Verify(context.Background(), h, method, path, reqBody, allowed)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, store.calls)
		})
	}
}

func TestVerifyExpiredWinsOverBadSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	_, verifier, _ := newTestPair(now)

	h := Headers{
		ServiceID: "cli",
		Timestamp: strconv.FormatInt(now.Add(-time.Hour).Unix(), 10),
		Nonce:     "n-1",
		Signature: "sha256=" + "00000000000000000000000000000000000000000000000000000000000000aa",
	}
	_, err := verifier.Verify(context.Background(), h, "GET", "/skills", nil, []string{"cli"})
	assert.ErrorIs(t, err, wardenErrors.ErrExpired)
}

func TestVerifyWrongSecret(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	_, verifier, _ := newTestPair(now)
	other := NewSigner("cli", "another-secret")
	other.now = fixedClock(now)

	_, err := verifier.Verify(context.Background(), other.Sign("GET", "/skills", nil), "GET", "/skills", nil, []string{"cli"})
	assert.ErrorIs(t, err, wardenErrors.ErrUnauthenticated)
}

func TestVerifyFailsClosedOnStoreError(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	signer := NewSigner("cli", testSecret)
	signer.now = fixedClock(now)
	verifier := NewVerifier(testSecret, 30*time.Second, failingStore{}, WithClock(fixedClock(now)))

	_, err := verifier.Verify(context.Background(), signer.Sign("GET", "/skills", nil), "GET", "/skills", nil, []string{"cli"})
	assert.ErrorIs(t, err, wardenErrors.ErrUnauthenticated)
}

func TestSignUsesFreshNonces(t *testing.T) {
	signer := NewSigner("cli", testSecret)
	a := signer.Sign("GET", "/skills", nil)
	b := signer.Sign("GET", "/skills", nil)
	assert.NotEqual(t, a.Nonce, b.Nonce)
	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, a.Signature)
}

func TestCanonicalString(t *testing.T) {
	got := CanonicalString("post", "/message", "1700000000", "abc", []byte(""))
	assert.Equal(t,
		"POST\n/message\n1700000000\nabc\ne3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		got)
}
