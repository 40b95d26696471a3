// Package idempotency remembers the response to a keyed request so a
// retried request is answered without routing it twice.
package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

type entry struct {
	ExpiresAt int64           `json:"expires_at"`
	Response  json.RawMessage `json:"response"`
}

type state struct {
	Keys map[string]entry `json:"keys"`
}

// Store is safe for concurrent use. With a path, every change is written
// through to disk so replays survive a restart. Reservations live in memory
// only.
type Store struct {
	path     string
	state    state
	inflight map[string]chan struct{}
	mu       sync.Mutex
	now      func() time.Time
}

func NewStore(path string) (*Store, error) {
	s := &Store{
		path:     path,
		state:    state{Keys: make(map[string]entry)},
		inflight: make(map[string]chan struct{}),
		now:      time.Now,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) || (err == nil && len(data) == 0) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read idempotency store: %w", err)
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return fmt.Errorf("parse idempotency store %s: %w", s.path, err)
	}
	if s.state.Keys == nil {
		s.state.Keys = make(map[string]entry)
	}
	s.pruneLocked()
	return nil
}

func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(s.path, bytes.NewReader(data))
}

// Lookup returns the remembered response for key while it is live.
func (s *Store) Lookup(key string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.state.Keys[key]
	if !ok || e.ExpiresAt <= s.now().Unix() {
		return nil, false
	}
	return e.Response, true
}

// Reserve claims key for one request. It returns the remembered response
// when key is live. When another request holds key, Reserve waits for it to
// Remember or Release. Otherwise the caller now holds key and must finish
// with Remember or Release.
func (s *Store) Reserve(ctx context.Context, key string) (json.RawMessage, bool, error) {
	for {
		s.mu.Lock()
		if e, ok := s.state.Keys[key]; ok && e.ExpiresAt > s.now().Unix() {
			s.mu.Unlock()
			return e.Response, true, nil
		}
		done, busy := s.inflight[key]
		if !busy {
			s.inflight[key] = make(chan struct{})
			s.mu.Unlock()
			return nil, false, nil
		}
		s.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

// Release gives up a reservation without remembering anything, so the next
// request with key is routed again.
func (s *Store) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked(key)
}

func (s *Store) releaseLocked(key string) {
	if done, ok := s.inflight[key]; ok {
		delete(s.inflight, key)
		close(done)
	}
}

// Remember stores response under key for ttl and ends any reservation on
// it. The first response wins; a live key is never overwritten.
func (s *Store) Remember(key string, response json.RawMessage, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.releaseLocked(key)

	now := s.now().Unix()
	if e, ok := s.state.Keys[key]; ok && e.ExpiresAt > now {
		return nil
	}
	s.pruneLocked()
	s.state.Keys[key] = entry{ExpiresAt: now + int64(ttl.Seconds()), Response: response}
	return s.save()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.Keys)
}

func (s *Store) pruneLocked() int {
	now := s.now().Unix()
	count := 0
	for k, e := range s.state.Keys {
		if e.ExpiresAt <= now {
			delete(s.state.Keys, k)
			count++
		}
	}
	return count
}
