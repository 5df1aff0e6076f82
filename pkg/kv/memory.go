package kv

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-node development.
// TTL semantics match the NATS implementation: expired entries read as
// missing and their slots can be taken over by SetNX.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	closed  bool

	// now is swappable so expiry behavior can be tested without sleeping.
	now func() time.Time
}

type memoryEntry struct {
	value   []byte
	expires time.Time // zero = never
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}

	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if entry.expired(s.now()) {
		delete(s.entries, key)
		return nil, false, nil
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.entries[key] = s.newEntry(value, ttl)
	return nil
}

func (s *MemoryStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	if existing, ok := s.entries[key]; ok && !existing.expired(s.now()) {
		return false, nil
	}
	s.entries[key] = s.newEntry(value, ttl)
	return true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) IncrFloat(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	current := 0.0
	entry, ok := s.entries[key]
	if ok && !entry.expired(s.now()) {
		current, _ = strconv.ParseFloat(string(entry.value), 64)
		next := current + delta
		entry.value = formatFloat(next)
		s.entries[key] = entry
		return next, nil
	}

	// Missing or expired: the increment starts a fresh window.
	s.entries[key] = s.newEntry(formatFloat(delta), ttl)
	return delta, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return nil
}

// SetClock overrides the store's time source. Test helper.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) newEntry(value []byte, ttl time.Duration) memoryEntry {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expires = s.now().Add(ttl)
	}
	return entry
}
