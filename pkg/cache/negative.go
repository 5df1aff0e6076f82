package cache

import (
	"context"
	"fmt"

	"github.com/odvcencio/etymon/pkg/logging"
	"github.com/odvcencio/etymon/pkg/telemetry"
)

// NegativeReason categorizes a confirmed-invalid input. Only the closed set
// below may populate the negative cache; transient failures must stay
// retryable.
type NegativeReason string

const (
	NegativeNoSources    NegativeReason = "no_sources_found"
	NegativeInvalidShape NegativeReason = "invalid_word_shape"
)

var negativeAllowList = map[NegativeReason]bool{
	NegativeNoSources:    true,
	NegativeInvalidShape: true,
}

// NegativeAllowed reports whether a reason may enter the negative cache.
func NegativeAllowed(reason NegativeReason) bool {
	return negativeAllowList[reason]
}

func (s *Store) negativeKey(word string) string {
	return fmt.Sprintf("neg:v%d:%s", s.cfg.ResultVersion, word)
}

// SetNegative records word as confirmed invalid. Reasons outside the
// allow-list are rejected with an error so callers can't accidentally
// poison the cache with a timeout.
func (s *Store) SetNegative(ctx context.Context, word string, reason NegativeReason) error {
	if !NegativeAllowed(reason) {
		return fmt.Errorf("negative cache refuses reason %q for %q", reason, word)
	}

	if err := s.kv.Set(ctx, s.negativeKey(word), []byte(reason), s.jitter(s.cfg.NegativeTTL)); err != nil {
		s.log.Warn(logging.CategoryCache, "negative_write_failed", err.Error(), map[string]any{"word": word})
		return nil // fail open, the marker is an optimization
	}
	s.metrics.Counter(telemetry.MetricNegativeCacheWrites, telemetry.Labels{"reason": string(reason)}).Inc()
	return nil
}

// GetNegative reports whether word is marked invalid, and why.
func (s *Store) GetNegative(ctx context.Context, word string) (NegativeReason, bool) {
	data, ok, err := s.kv.Get(ctx, s.negativeKey(word))
	if err != nil || !ok {
		return "", false
	}
	reason := NegativeReason(data)
	if !NegativeAllowed(reason) {
		// Stale marker from an older allow-list; ignore it.
		return "", false
	}
	return reason, true
}
