package internal

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// DefaultQuotaBytes is the per-value storage budget used by the CLI
const DefaultQuotaBytes = 5 * 1024 * 1024

// Store is a key/value backend for the session cache
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// MemoryStore keeps values in a map
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

// Get returns the value stored under key
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Put stores value under key
func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	s.mu.Lock()
	s.values[key] = v
	s.mu.Unlock()
	return nil
}

// Delete removes key
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
	return nil
}

// Keys lists keys with the given prefix in sorted order
func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}

// quotaStore rejects values larger than its budget
type quotaStore struct {
	Store
	maxBytes int
}

// WithQuota wraps a store so that values over maxBytes fail with ErrQuotaExceeded
func WithQuota(store Store, maxBytes int) Store {
	if maxBytes <= 0 {
		return store
	}
	return &quotaStore{Store: store, maxBytes: maxBytes}
}

func (s *quotaStore) Put(ctx context.Context, key string, value []byte) error {
	if len(value) > s.maxBytes {
		return &StorageError{Key: key, Op: "put", Err: ErrQuotaExceeded}
	}
	return s.Store.Put(ctx, key, value)
}
