// Package kv provides the shared key/value store that backs the budget
// counter, distributed locks, and caches. The default implementation uses
// NATS JetStream KV, with an in-memory option for testing.
package kv

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrUnavailable is returned when the backing store cannot be reached.
	// Callers are expected to fail open on it.
	ErrUnavailable = errors.New("kv store unavailable")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("kv store closed")
)

// Store is the interface every shared-state consumer depends on.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value for key. The second return is false when the
	// key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set writes key unconditionally. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX writes key only if it does not already exist. Returns true if
	// the write happened. This is the primitive behind lock acquisition.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// IncrFloat atomically adds delta to the float64 counter at key and
	// returns the new value. When the increment creates the key, ttl is
	// applied; subsequent increments leave the existing expiry alone.
	IncrFloat(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error)

	// Close releases the underlying connection.
	Close() error
}

// Config holds configuration for creating a Store.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	// Ignored for the in-memory store.
	URL string `yaml:"url"`

	// Bucket is the JetStream KV bucket name.
	Bucket string `yaml:"bucket"`

	// InMemory selects the in-process store. Intended for tests and
	// single-node development.
	InMemory bool `yaml:"in_memory"`

	// Timeout is the default timeout for store operations.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:     "nats://localhost:4222",
		Bucket:  "etymon",
		Timeout: 5 * time.Second,
	}
}

// New creates a Store from config.
func New(cfg Config) (Store, error) {
	if cfg.InMemory {
		return NewMemoryStore(), nil
	}
	return NewNATSStore(cfg)
}

// encodeKey maps logical keys ("etym:v3:telephone") onto the character set
// JetStream KV accepts. Colons become dots; anything else odd becomes an
// underscore.
func encodeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r == ':':
			b.WriteByte('.')
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '/', r == '=':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
