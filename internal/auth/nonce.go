package auth

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// NonceStore is the replay set. Seen inserts (serviceID, nonce) if absent
// and reports whether it was already present; the check and the insert are
// one atomic step.
type NonceStore interface {
	Seen(ctx context.Context, serviceID, nonce string, ttl time.Duration) (bool, error)
}

// MemoryNonceStore keeps nonces in process with per-entry expiry.
type MemoryNonceStore struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{
		keys: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (s *MemoryNonceStore) Seen(_ context.Context, serviceID, nonce string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	key := serviceID + ":" + nonce
	if expiry, exists := s.keys[key]; exists {
		if expiry.After(now) {
			return true, nil
		}
		delete(s.keys, key)
	}

	s.keys[key] = now.Add(ttl)
	return false, nil
}

// Prune drops expired entries and returns how many were removed.
func (s *MemoryNonceStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for k, expiry := range s.keys {
		if !expiry.After(now) {
			delete(s.keys, k)
			count++
		}
	}
	return count
}

func (s *MemoryNonceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// RedisNonceStore shares the replay set across replicas. Keys expire on
// their own, so it needs no pruning.
type RedisNonceStore struct {
	client *redis.Client
	prefix string
}

func NewRedisNonceStore(addr, password string, db int, prefix string) *RedisNonceStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisNonceStore{client: rdb, prefix: prefix}
}

func (s *RedisNonceStore) Seen(ctx context.Context, serviceID, nonce string, ttl time.Duration) (bool, error) {
	set, err := s.client.SetNX(ctx, s.prefix+serviceID+":"+nonce, "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}

func (s *RedisNonceStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisNonceStore) Close() error {
	return s.client.Close()
}
