package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// casAttempts bounds the optimistic-concurrency retry loop for counters.
const casAttempts = 5

// envelope wraps every stored value with its expiry deadline. JetStream KV
// buckets only support bucket-wide TTLs, so per-entry expiry is enforced
// here: expired entries read as missing and are lazily deleted.
type envelope struct {
	Value   []byte `json:"v"`
	Expires int64  `json:"exp,omitempty"` // unix nanos, 0 = never
}

func (e envelope) expired(now time.Time) bool {
	return e.Expires != 0 && now.UnixNano() >= e.Expires
}

func newEnvelope(value []byte, ttl time.Duration) envelope {
	env := envelope{Value: value}
	if ttl > 0 {
		env.Expires = time.Now().Add(ttl).UnixNano()
	}
	return env
}

// NATSStore implements Store on a JetStream KV bucket.
type NATSStore struct {
	conn   *nats.Conn
	bucket jetstream.KeyValue
	closed atomic.Bool
}

// NewNATSStore connects to NATS and creates or binds the configured bucket.
func NewNATSStore(cfg Config) (*NATSStore, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "etymon"
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("etymon"),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  cfg.Bucket,
		History: 1,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("kv bucket %q: %w", cfg.Bucket, err)
	}

	return &NATSStore{conn: conn, bucket: bucket}, nil
}

func (s *NATSStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}
	entry, err := s.bucket.Get(ctx, encodeKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
	}

	var env envelope
	if err := json.Unmarshal(entry.Value(), &env); err != nil {
		// Unreadable entries are treated as missing; the writer validates
		// shapes, so this only happens across incompatible deploys.
		return nil, false, nil
	}
	if env.expired(time.Now()) {
		_ = s.bucket.Delete(ctx, encodeKey(key))
		return nil, false, nil
	}
	return env.Value, true, nil
}

func (s *NATSStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	data, err := json.Marshal(newEnvelope(value, ttl))
	if err != nil {
		return err
	}
	if _, err := s.bucket.Put(ctx, encodeKey(key), data); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *NATSStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	data, err := json.Marshal(newEnvelope(value, ttl))
	if err != nil {
		return false, err
	}

	_, err = s.bucket.Create(ctx, encodeKey(key), data)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, jetstream.ErrKeyExists) {
		return false, fmt.Errorf("%w: setnx %s: %v", ErrUnavailable, key, err)
	}

	// The key exists, but its envelope may have expired. Take over the
	// slot with a revision-checked update; losing the race means someone
	// else owns it now.
	entry, err := s.bucket.Get(ctx, encodeKey(key))
	if err != nil {
		return false, nil
	}
	var env envelope
	if json.Unmarshal(entry.Value(), &env) == nil && !env.expired(time.Now()) {
		return false, nil
	}
	if _, err := s.bucket.Update(ctx, encodeKey(key), data, entry.Revision()); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *NATSStore) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	err := s.bucket.Delete(ctx, encodeKey(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("%w: delete %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// IncrFloat implements the counter with a revision-CAS loop; JetStream KV
// has no native numeric increment.
func (s *NATSStore) IncrFloat(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	encoded := encodeKey(key)
	for attempt := 0; attempt < casAttempts; attempt++ {
		entry, err := s.bucket.Get(ctx, encoded)
		switch {
		case errors.Is(err, jetstream.ErrKeyNotFound):
			data, merr := json.Marshal(newEnvelope(formatFloat(delta), ttl))
			if merr != nil {
				return 0, merr
			}
			if _, cerr := s.bucket.Create(ctx, encoded, data); cerr == nil {
				return delta, nil
			} else if !errors.Is(cerr, jetstream.ErrKeyExists) {
				return 0, fmt.Errorf("%w: incr %s: %v", ErrUnavailable, key, cerr)
			}
			continue // lost the create race, re-read

		case err != nil:
			return 0, fmt.Errorf("%w: incr %s: %v", ErrUnavailable, key, err)
		}

		var env envelope
		current := 0.0
		if json.Unmarshal(entry.Value(), &env) == nil && !env.expired(time.Now()) {
			current, _ = strconv.ParseFloat(string(env.Value), 64)
		} else {
			// Expired counter: restart the window and its expiry.
			env = newEnvelope(nil, ttl)
		}

		next := current + delta
		env.Value = formatFloat(next)
		data, merr := json.Marshal(env)
		if merr != nil {
			return 0, merr
		}
		if _, uerr := s.bucket.Update(ctx, encoded, data, entry.Revision()); uerr == nil {
			return next, nil
		}
		// Revision conflict; retry.
	}
	return 0, fmt.Errorf("%w: incr %s: contention exceeded %d attempts", ErrUnavailable, key, casAttempts)
}

func (s *NATSStore) Close() error {
	if s.closed.Swap(true) {
		return ErrClosed
	}
	s.conn.Close()
	return nil
}

func formatFloat(f float64) []byte {
	return strconv.AppendFloat(nil, f, 'f', -1, 64)
}
