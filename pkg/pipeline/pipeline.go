// Package pipeline is the request path for one word: admission, cache,
// budget gate, cross-process coordination, research, synthesis,
// enrichment, validation, and the cache writes on the way out.
package pipeline

import (
	"context"
	"fmt"

	"github.com/odvcencio/etymon/pkg/budget"
	"github.com/odvcencio/etymon/pkg/cache"
	"github.com/odvcencio/etymon/pkg/config"
	"github.com/odvcencio/etymon/pkg/enrich"
	etymerrors "github.com/odvcencio/etymon/pkg/errors"
	"github.com/odvcencio/etymon/pkg/etym"
	"github.com/odvcencio/etymon/pkg/logging"
	"github.com/odvcencio/etymon/pkg/model"
	"github.com/odvcencio/etymon/pkg/research"
	"github.com/odvcencio/etymon/pkg/telemetry"
)

type researcher interface {
	Research(ctx context.Context, word string) (*research.Context, error)
}

type synthesizer interface {
	Synthesize(ctx context.Context, rc *research.Context) (*etym.EtymologyResult, model.Usage, error)
}

type ledger interface {
	Mode(ctx context.Context) budget.Mode
	RecordSpend(ctx context.Context, modelID string, inputTokens, outputTokens int) float64
}

type coordinator interface {
	TryAcquire(ctx context.Context, word string) bool
	Release(ctx context.Context, word string)
	PollForResult(ctx context.Context, word string, lookup func(context.Context) bool) bool
}

// Suggester proposes alternatives for a word that has no entry.
type Suggester interface {
	Suggest(ctx context.Context, word string) []etym.WordSuggestion
}

type noopSuggester struct{}

func (noopSuggester) Suggest(context.Context, string) []etym.WordSuggestion { return nil }

// Pipeline wires the full lookup path.
type Pipeline struct {
	cfg       config.Config
	cache     *cache.Store
	ledger    ledger
	coord     coordinator
	research  researcher
	synth     synthesizer
	suggester Suggester
	log       *logging.Logger
	metrics   *telemetry.Registry
}

// New creates a Pipeline with a no-op suggester.
func New(cfg config.Config, cacheStore *cache.Store, led ledger, coord coordinator,
	res researcher, synth synthesizer, log *logging.Logger, metrics *telemetry.Registry) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		cache:     cacheStore,
		ledger:    led,
		coord:     coord,
		research:  res,
		synth:     synth,
		suggester: noopSuggester{},
		log:       log,
		metrics:   metrics,
	}
}

// SetSuggester replaces the not-found suggester.
func (p *Pipeline) SetSuggester(s Suggester) {
	if s != nil {
		p.suggester = s
	}
}

func (p *Pipeline) resultKind() cache.Kind {
	return cache.Kind{
		Name:    "etym",
		Version: p.cfg.Cache.ResultVersion,
		TTL:     p.cfg.Cache.ResultTTL,
		Validate: func(v any) error {
			result, ok := v.(*etym.EtymologyResult)
			if !ok {
				return fmt.Errorf("unexpected type %T", v)
			}
			return enrich.Validate(result)
		},
	}
}

// Lookup runs the full path for one raw word.
func (p *Pipeline) Lookup(ctx context.Context, rawWord string) (*etym.EtymologyResult, error) {
	word, err := Normalize(rawWord)
	if err != nil {
		return nil, err
	}

	if reason, ok := p.cache.GetNegative(ctx, word); ok {
		return nil, p.negativeError(ctx, word, reason)
	}

	kind := p.resultKind()
	var cached etym.EtymologyResult
	if p.cache.Get(ctx, kind, word, &cached) {
		return &cached, nil
	}

	// Protected and above reject fresh work; cache reads already happened.
	mode := p.ledger.Mode(ctx)
	if mode >= budget.ModeProtected {
		return nil, etymerrors.New(etymerrors.ErrCodeBudgetExceeded,
			fmt.Sprintf("budget mode %s refuses new synthesis", mode)).
			WithContext("mode", mode.String()).
			WithRetryable(true).
			WithUserMessage("the monthly budget is under pressure, only cached words are available right now")
	}

	if !p.coord.TryAcquire(ctx, word) {
		// Someone else is computing this word; wait for their cache write.
		found := p.coord.PollForResult(ctx, word, func(pollCtx context.Context) bool {
			return p.cache.Get(pollCtx, kind, word, &cached)
		})
		if found {
			return &cached, nil
		}
		if reason, ok := p.cache.GetNegative(ctx, word); ok {
			return nil, p.negativeError(ctx, word, reason)
		}
		// The holder crashed or is slow; compute locally rather than fail.
	} else {
		defer p.coord.Release(ctx, word)
	}

	return p.compute(ctx, word, mode)
}

// compute runs research, synthesis, enrichment, and the cache writes.
func (p *Pipeline) compute(ctx context.Context, word string, mode budget.Mode) (*etym.EtymologyResult, error) {
	rc, err := p.research.Research(ctx, word)
	if rc != nil && rc.Usage.TotalTokens > 0 {
		p.ledger.RecordSpend(ctx, p.cfg.Model.RootModel, rc.Usage.PromptTokens, rc.Usage.CompletionTokens)
	}
	if err != nil {
		return nil, etymerrors.Wrap(err, etymerrors.ErrCodeInternal, "research interrupted")
	}

	if !rc.HasSources() {
		// Confirmed absence across every source; remember it.
		if err := p.cache.SetNegative(ctx, word, cache.NegativeNoSources); err != nil {
			p.log.Warn(logging.CategoryAdmission, "negative_write_rejected", err.Error(),
				map[string]any{"word": word})
		}
		return nil, p.notFound(ctx, word)
	}

	result, usage, synthErr := p.synth.Synthesize(ctx, rc)
	if usage.TotalTokens > 0 {
		p.ledger.RecordSpend(ctx, p.cfg.Model.SynthesisModel, usage.PromptTokens, usage.CompletionTokens)
	}
	if synthErr != nil {
		// Transient by definition: timeouts, malformed output, provider
		// trouble. Never negative-cached.
		return nil, synthErr
	}

	enrich.Enrich(result, p.allChains(rc))
	result.Sources = rc.SourceRefs()

	if err := enrich.Validate(result); err != nil {
		// An invalid result must never reach the cache.
		return nil, err
	}

	p.cache.Set(ctx, p.resultKind(), word, result)
	p.log.Info(logging.CategoryAdmission, "lookup_done", "",
		map[string]any{"word": word, "mode": mode.String(), "fetches": rc.FetchesUsed,
			"tokens": rc.Usage.TotalTokens + usage.TotalTokens})
	return result, nil
}

func (p *Pipeline) allChains(rc *research.Context) []etym.ParsedEtymChain {
	chains := make([]etym.ParsedEtymChain, 0, len(rc.Chains))
	chains = append(chains, rc.Chains...)
	for _, data := range rc.RootData {
		chains = append(chains, data.Chains...)
	}
	return chains
}

func (p *Pipeline) negativeError(ctx context.Context, word string, reason cache.NegativeReason) error {
	if reason == cache.NegativeInvalidShape {
		return etymerrors.New(etymerrors.ErrCodeInputInvalid, "word previously rejected as invalid").
			WithUserMessage("that doesn't look like a word")
	}
	return p.notFound(ctx, word)
}

func (p *Pipeline) notFound(ctx context.Context, word string) error {
	err := etymerrors.New(etymerrors.ErrCodeWordNotFound,
		fmt.Sprintf("no source has an entry for %q", word)).
		WithUserMessage("no etymology found for that word")
	if suggestions := p.suggester.Suggest(ctx, word); len(suggestions) > 0 {
		err = err.WithContext("suggestions", suggestions)
	}
	return err
}
