// Package coordination ensures at most one in-flight synthesis per word
// across processes. The lock is an ephemeral key in the shared store;
// existence is ownership, TTL covers holder crashes, and an unreachable
// store fails open so an outage never deadlocks every request.
package coordination

import (
	"context"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/odvcencio/etymon/pkg/config"
	"github.com/odvcencio/etymon/pkg/kv"
	"github.com/odvcencio/etymon/pkg/logging"
	"github.com/odvcencio/etymon/pkg/telemetry"
)

// Coordinator manages per-word locks.
type Coordinator struct {
	store   kv.Store
	cfg     config.LockConfig
	log     *logging.Logger
	metrics *telemetry.Registry
	owner   string

	// sleep is swappable so poll timing can be tested without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Coordinator with a fresh owner token.
func New(store kv.Store, cfg config.LockConfig, log *logging.Logger, metrics *telemetry.Registry) *Coordinator {
	return &Coordinator{
		store:   store,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		owner:   ulid.MustNew(ulid.Timestamp(time.Now()), ulid.DefaultEntropy()).String(),
		sleep:   sleepCtx,
	}
}

func lockKey(word string) string {
	return "lock:" + word
}

// TryAcquire attempts to take the lock for word. True means the caller owns
// the computation and must call Release when done. A store failure returns
// true: uncoordinated duplicate work beats refusing the request.
func (c *Coordinator) TryAcquire(ctx context.Context, word string) bool {
	acquired, err := c.store.SetNX(ctx, lockKey(word), []byte(c.owner), c.cfg.TTL)
	if err != nil {
		c.log.Warn(logging.CategoryLock, "acquire_failed_open", err.Error(), map[string]any{"word": word})
		return true
	}
	if acquired {
		c.metrics.Counter(telemetry.MetricLockAcquired, nil).Inc()
	} else {
		c.metrics.Counter(telemetry.MetricLockContended, nil).Inc()
	}
	return acquired
}

// Release drops the lock. Best effort: the TTL is the backstop.
func (c *Coordinator) Release(ctx context.Context, word string) {
	// Only delete our own lock; a crashed-and-expired slot may have been
	// taken over by another process.
	data, ok, err := c.store.Get(ctx, lockKey(word))
	if err == nil && ok && string(data) != c.owner {
		return
	}
	if err := c.store.Delete(ctx, lockKey(word)); err != nil {
		c.log.Warn(logging.CategoryLock, "release_failed", err.Error(), map[string]any{"word": word})
	}
}

// PollForResult waits for the lock holder's cache write, re-checking via
// lookup at a fixed interval for a bounded number of attempts. Returns
// false when polling exhausts (holder crashed or is slow); the caller
// should then compute independently rather than hang.
func (c *Coordinator) PollForResult(ctx context.Context, word string, lookup func(context.Context) bool) bool {
	// Small initial stagger so a thundering herd doesn't re-check in
	// lockstep with the cache write.
	_ = c.sleep(ctx, time.Duration(rand.Int63n(int64(c.cfg.PollInterval)/2+1)))

	for attempt := 0; attempt < c.cfg.PollAttempts; attempt++ {
		if ctx.Err() != nil {
			return false
		}
		if lookup(ctx) {
			return true
		}
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return false
		}
	}
	c.log.Info(logging.CategoryLock, "poll_exhausted", "falling back to local computation",
		map[string]any{"word": word, "attempts": c.cfg.PollAttempts})
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
