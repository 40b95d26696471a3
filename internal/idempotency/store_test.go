package idempotency

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRememberAndLookup(t *testing.T) {
	s, err := NewStore("")
	require.NoError(t, err)

	_, ok := s.Lookup("cli:abc")
	assert.False(t, ok)

	require.NoError(t, s.Remember("cli:abc", json.RawMessage(`{"id":"r1"}`), time.Minute))
	got, ok := s.Lookup("cli:abc")
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"r1"}`, string(got))

	// First response wins.
	require.NoError(t, s.Remember("cli:abc", json.RawMessage(`{"id":"r2"}`), time.Minute))
	got, _ = s.Lookup("cli:abc")
	assert.JSONEq(t, `{"id":"r1"}`, string(got))
}

func TestExpiredKeysAreForgotten(t *testing.T) {
	s, err := NewStore("")
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Remember("old", json.RawMessage(`1`), time.Minute))
	now = now.Add(2 * time.Minute)

	_, ok := s.Lookup("old")
	assert.False(t, ok)

	require.NoError(t, s.Remember("new", json.RawMessage(`2`), time.Minute))
	assert.Equal(t, 1, s.Len())
}

func TestStoreSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idempotency.json")
	s, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Remember("gateway:k1", json.RawMessage(`{"path":"search-pipeline"}`), time.Hour))

	reopened, err := NewStore(path)
	require.NoError(t, err)
	got, ok := reopened.Lookup("gateway:k1")
	require.True(t, ok)
	assert.JSONEq(t, `{"path":"search-pipeline"}`, string(got))
}

func TestReserveRoutesConcurrentRetriesOnce(t *testing.T) {
	s, err := NewStore("")
	require.NoError(t, err)

	var routed atomic.Int32
	results := make([]string, 8)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw, ok, err := s.Reserve(context.Background(), "gateway:k1")
			if err != nil {
				return
			}
			if !ok {
				routed.Add(1)
				raw = json.RawMessage(`{"id":"r1"}`)
				_ = s.Remember("gateway:k1", raw, time.Minute)
			}
			results[i] = string(raw)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), routed.Load())
	for _, got := range results {
		assert.JSONEq(t, `{"id":"r1"}`, got)
	}
}

func TestReleaseLetsTheNextRequestRoute(t *testing.T) {
	s, err := NewStore("")
	require.NoError(t, err)

	_, ok, err := s.Reserve(context.Background(), "gateway:k1")
	require.NoError(t, err)
	require.False(t, ok)

	waited := make(chan bool, 1)
	go func() {
		_, ok, err := s.Reserve(context.Background(), "gateway:k1")
		waited <- err == nil && !ok
	}()

	select {
	case <-waited:
		t.Fatal("second reservation did not wait for the first")
	case <-time.After(20 * time.Millisecond):
	}

	s.Release("gateway:k1")
	select {
	case claimed := <-waited:
		assert.True(t, claimed)
	case <-time.After(time.Second):
		t.Fatal("second reservation never proceeded")
	}
	_, ok = s.Lookup("gateway:k1")
	assert.False(t, ok)
}

func TestReserveHonoursContext(t *testing.T) {
	s, err := NewStore("")
	require.NoError(t, err)

	_, _, err = s.Reserve(context.Background(), "gateway:k1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err = s.Reserve(ctx, "gateway:k1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
