// Package cache is the versioned, schema-validated cache over the shared
// store. Reads that fail validation are misses, never errors: schema drift
// after a deploy falls through to recomputation instead of surfacing to
// users. Writes validate first and refuse to persist bad data.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/odvcencio/etymon/pkg/config"
	"github.com/odvcencio/etymon/pkg/kv"
	"github.com/odvcencio/etymon/pkg/logging"
	"github.com/odvcencio/etymon/pkg/telemetry"
)

// Kind describes one cached value shape. The version is baked into every
// key, so bumping it invalidates all prior entries without migration.
type Kind struct {
	Name    string
	Version int
	TTL     time.Duration

	// Validate checks a decoded value against the kind's schema. The
	// target passed to Get/Set is handed through unchanged.
	Validate func(value any) error
}

// Key returns the namespaced store key for a word.
func (k Kind) Key(word string) string {
	return fmt.Sprintf("%s:v%d:%s", k.Name, k.Version, word)
}

// Store wraps the kv store with validation and TTL jitter.
type Store struct {
	kv      kv.Store
	cfg     config.CacheConfig
	log     *logging.Logger
	metrics *telemetry.Registry
}

// New creates a cache store.
func New(store kv.Store, cfg config.CacheConfig, log *logging.Logger, metrics *telemetry.Registry) *Store {
	return &Store{kv: store, cfg: cfg, log: log, metrics: metrics}
}

// Get loads the cached value for word into out. Any failure along the way
// (store trouble, undecodable bytes, schema mismatch) reads as a miss.
func (s *Store) Get(ctx context.Context, kind Kind, word string, out any) bool {
	data, ok, err := s.kv.Get(ctx, kind.Key(word))
	if err != nil {
		s.log.Warn(logging.CategoryCache, "store_read_failed", err.Error(),
			map[string]any{"kind": kind.Name, "word": word})
		return false
	}
	if !ok {
		s.metrics.Counter(telemetry.MetricCacheMisses, telemetry.Labels{"kind": kind.Name}).Inc()
		return false
	}

	if err := json.Unmarshal(data, out); err != nil {
		s.recordInvalid(kind, word, err)
		return false
	}
	if kind.Validate != nil {
		if err := kind.Validate(out); err != nil {
			s.recordInvalid(kind, word, err)
			return false
		}
	}

	s.metrics.Counter(telemetry.MetricCacheHits, telemetry.Labels{"kind": kind.Name}).Inc()
	return true
}

// Set validates and persists value. Invalid values are logged and dropped;
// the request that produced them has already succeeded or failed on its own
// terms, so cache write problems never propagate.
func (s *Store) Set(ctx context.Context, kind Kind, word string, value any) {
	if kind.Validate != nil {
		if err := kind.Validate(value); err != nil {
			s.log.Error(logging.CategoryCache, "write_refused", err.Error(),
				map[string]any{"kind": kind.Name, "word": word})
			s.metrics.Counter(telemetry.MetricCacheValidationFails, telemetry.Labels{"kind": kind.Name, "op": "write"}).Inc()
			return
		}
	}

	data, err := json.Marshal(value)
	if err != nil {
		s.log.Error(logging.CategoryCache, "write_marshal_failed", err.Error(),
			map[string]any{"kind": kind.Name, "word": word})
		return
	}

	if err := s.kv.Set(ctx, kind.Key(word), data, s.jitter(kind.TTL)); err != nil {
		s.log.Warn(logging.CategoryCache, "store_write_failed", err.Error(),
			map[string]any{"kind": kind.Name, "word": word})
	}
}

func (s *Store) recordInvalid(kind Kind, word string, err error) {
	s.metrics.Counter(telemetry.MetricCacheValidationFails, telemetry.Labels{"kind": kind.Name, "op": "read"}).Inc()
	s.log.Warn(logging.CategoryCache, "stale_shape_dropped", err.Error(),
		map[string]any{"kind": kind.Name, "word": word})
}

// jitter spreads a TTL uniformly within ±JitterPct so entries written in a
// burst don't all expire together.
func (s *Store) jitter(base time.Duration) time.Duration {
	return Jitter(base, s.cfg.JitterPct, rand.Float64)
}

// Jitter computes base scaled by a uniform factor in [1-pct/100, 1+pct/100].
// rnd supplies a value in [0,1); exposed for deterministic tests.
func Jitter(base time.Duration, pct float64, rnd func() float64) time.Duration {
	if pct <= 0 || base <= 0 {
		return base
	}
	factor := 1 + (2*rnd()-1)*pct/100
	return time.Duration(float64(base) * factor)
}
