package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/yndnr/diagsave-go/internal/storage"
)

// DefaultQuotaBytes matches the 5MB per-origin budget browsers give
// local storage.
const DefaultQuotaBytes = 5 << 20

// Store is an in-memory storage.Store.
type Store struct {
	mu     sync.RWMutex
	items  map[string][]byte
	used     int64
	quota    int64
	maxEntry int64
	closed   bool
}

// Option configures the Store.
type Option func(*Store)

// WithQuota sets the byte quota. Zero or negative disables the limit.
func WithQuota(bytes int64) Option {
	return func(s *Store) {
		s.quota = bytes
	}
}

// WithMaxEntry caps the size of a single key plus value. Zero or negative
// disables the limit.
func WithMaxEntry(bytes int64) Option {
	return func(s *Store) {
		s.maxEntry = bytes
	}
}

// New creates a new in-memory store with DefaultQuotaBytes.
func New(opts ...Option) *Store {
	s := &Store{
		items: make(map[string][]byte),
		quota: DefaultQuotaBytes,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Put stores a copy of value under key.
func (s *Store) Put(ctx context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}

	if size := int64(len(key) + len(value)); s.maxEntry > 0 && size > s.maxEntry {
		return fmt.Errorf("%w: entry of %d bytes exceeds %d",
			storage.ErrQuotaExceeded, size, s.maxEntry)
	}

	k := string(key)
	delta := int64(len(value))
	if old, ok := s.items[k]; ok {
		delta -= int64(len(old))
	} else {
		delta += int64(len(key))
	}

	if s.quota > 0 && s.used+delta > s.quota {
		return fmt.Errorf("%w: %d of %d bytes used, write needs %d more",
			storage.ErrQuotaExceeded, s.used, s.quota, delta)
	}

	s.items[k] = bytes.Clone(value)
	s.used += delta
	return nil
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}

	v, ok := s.items[string(key)]
	if !ok {
		return nil, storage.ErrKeyNotFound
	}
	return bytes.Clone(v), nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}

	k := string(key)
	if v, ok := s.items[k]; ok {
		s.used -= int64(len(k) + len(v))
		delete(s.items, k)
	}
	return nil
}

// ListKeys returns keys with the given prefix in ascending order.
func (s *Store) ListKeys(ctx context.Context, prefix []byte) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}

	p := string(prefix)
	names := make([]string, 0)
	for k := range s.items {
		if len(k) >= len(p) && k[:len(p)] == p {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	keys := make([][]byte, len(names))
	for i, k := range names {
		keys[i] = []byte(k)
	}
	return keys, nil
}

// Used returns the number of bytes currently charged against the quota.
func (s *Store) Used() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Close releases the store. Further calls fail with storage.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.items = nil
	s.used = 0
	return nil
}

var _ storage.Store = (*Store)(nil)
