// Package budget tracks cumulative LLM spend for the billing period and
// derives the service's operating mode from it. The ledger is deliberately
// approximate: it fails open on store trouble because availability beats
// billing precision here.
package budget

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/odvcencio/etymon/pkg/config"
	"github.com/odvcencio/etymon/pkg/kv"
	"github.com/odvcencio/etymon/pkg/logging"
	"github.com/odvcencio/etymon/pkg/telemetry"
)

// Mode is the operating mode derived from spend. Higher is more restricted.
type Mode int

const (
	// ModeNormal admits fresh computation.
	ModeNormal Mode = iota
	// ModeProtected rejects new expensive work but still serves cache.
	ModeProtected
	// ModeCacheOnly serves cache and negative cache only.
	ModeCacheOnly
	// ModeBlocked refuses everything new.
	ModeBlocked
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeProtected:
		return "protected"
	case ModeCacheOnly:
		return "cacheOnly"
	case ModeBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Snapshot is the admin-facing view of the ledger.
type Snapshot struct {
	Mode     string  `json:"mode"`
	SpentUSD float64 `json:"spentUSD"`
	LimitUSD float64 `json:"limitUSD"`
	Period   string  `json:"period"`
}

// Ledger tracks period spend in the shared store.
type Ledger struct {
	store   kv.Store
	cfg     config.BudgetConfig
	log     *logging.Logger
	metrics *telemetry.Registry
	now     func() time.Time

	// lastMode feeds hysteresis so the ladder doesn't flap around a
	// threshold. Per-process state only; the mode itself is always
	// recomputed from spend.
	mu       sync.Mutex
	lastMode Mode
	hasLast  bool
}

// New creates a Ledger.
func New(store kv.Store, cfg config.BudgetConfig, log *logging.Logger, metrics *telemetry.Registry) *Ledger {
	return &Ledger{
		store:   store,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		now:     time.Now,
	}
}

// SetClock overrides the ledger's time source. Test helper.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// RecordSpend converts token counts to USD for the given model and adds
// them to the period counter. The USD amount is returned even when the
// store write fails; spend recording never blocks the request path.
func (l *Ledger) RecordSpend(ctx context.Context, modelID string, inputTokens, outputTokens int) float64 {
	price, ok := l.cfg.Prices[modelID]
	if !ok {
		// Unknown models are charged at the most expensive configured rate
		// so a price-table gap can't silently undercount.
		for _, p := range l.cfg.Prices {
			if p.OutputPerMTok > price.OutputPerMTok {
				price = p
			}
		}
		l.log.Warn(logging.CategoryBudget, "unknown_model_price", "charging at highest configured rate",
			map[string]any{"model": modelID})
	}

	usd := float64(inputTokens)/1e6*price.InputPerMTok + float64(outputTokens)/1e6*price.OutputPerMTok
	if usd <= 0 {
		return 0
	}

	period := l.periodKey()
	total, err := l.store.IncrFloat(ctx, counterKey(period), usd, l.counterTTL())
	if err != nil {
		// Fail open: the charge is dropped, not the request.
		l.log.Warn(logging.CategoryBudget, "spend_record_failed", err.Error(),
			map[string]any{"usd": usd, "period": period})
		return usd
	}

	l.metrics.Counter(telemetry.MetricSpendRecorded, nil).Inc()
	l.log.Info(logging.CategoryBudget, "spend_recorded", "",
		map[string]any{"model": modelID, "usd": usd, "total_usd": total, "period": period})
	return usd
}

// Mode reads the period counter and returns the operating mode. Absence of
// the counter means zero spend; an unreachable store means ModeNormal.
func (l *Ledger) Mode(ctx context.Context) Mode {
	spent, err := l.spent(ctx)
	if err != nil {
		l.log.Warn(logging.CategoryBudget, "mode_check_failed", err.Error(), nil)
		return ModeNormal
	}
	return l.modeFor(spent)
}

// Snapshot returns the admin view.
func (l *Ledger) Snapshot(ctx context.Context) Snapshot {
	spent, err := l.spent(ctx)
	if err != nil {
		spent = 0
	}
	return Snapshot{
		Mode:     l.modeFor(spent).String(),
		SpentUSD: spent,
		LimitUSD: l.cfg.MonthlyLimitUSD,
		Period:   l.periodKey(),
	}
}

func (l *Ledger) spent(ctx context.Context) (float64, error) {
	data, ok, err := l.store.Get(ctx, counterKey(l.periodKey()))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	spent, _ := strconv.ParseFloat(string(data), 64)
	return spent, nil
}

// modeFor derives the mode from spend, applying downgrade hysteresis.
func (l *Ledger) modeFor(spent float64) Mode {
	ratio := spent / l.cfg.MonthlyLimitUSD

	raw := ModeNormal
	switch {
	case ratio >= 1:
		raw = ModeBlocked
	case ratio >= l.cfg.CacheOnlyAt:
		raw = ModeCacheOnly
	case ratio >= l.cfg.ProtectedAt:
		raw = ModeProtected
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	mode := raw
	if l.hasLast && raw < l.lastMode {
		// Only step down once the ratio clears the old threshold by the
		// hysteresis margin. Upgrades always apply immediately.
		if ratio > l.thresholdFor(l.lastMode)-l.cfg.HysteresisPts/100 {
			mode = l.lastMode
		}
	}

	if !l.hasLast || mode != l.lastMode {
		if l.hasLast {
			l.metrics.Counter(telemetry.MetricModeChanges, telemetry.Labels{"to": mode.String()}).Inc()
			l.log.Warn(logging.CategoryBudget, "mode_change", "",
				map[string]any{"from": l.lastMode.String(), "to": mode.String(), "ratio": ratio})
		}
		l.lastMode = mode
		l.hasLast = true
	}
	return mode
}

func (l *Ledger) thresholdFor(m Mode) float64 {
	switch m {
	case ModeBlocked:
		return 1
	case ModeCacheOnly:
		return l.cfg.CacheOnlyAt
	case ModeProtected:
		return l.cfg.ProtectedAt
	default:
		return 0
	}
}

// periodKey is the calendar month in UTC, e.g. "2026-08".
func (l *Ledger) periodKey() string {
	return l.now().UTC().Format("2006-01")
}

// counterTTL expires the counter at the start of the next period plus the
// configured buffer, so stale periods clean themselves up.
func (l *Ledger) counterTTL() time.Duration {
	now := l.now().UTC()
	nextPeriod := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return nextPeriod.Sub(now) + l.cfg.PeriodExpiryBuffer
}

func counterKey(period string) string {
	return "cost:usd:" + period
}
