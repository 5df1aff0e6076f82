package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/etymon/pkg/budget"
	"github.com/odvcencio/etymon/pkg/cache"
	"github.com/odvcencio/etymon/pkg/config"
	"github.com/odvcencio/etymon/pkg/coordination"
	etymerrors "github.com/odvcencio/etymon/pkg/errors"
	"github.com/odvcencio/etymon/pkg/etym"
	"github.com/odvcencio/etymon/pkg/kv"
	"github.com/odvcencio/etymon/pkg/model"
	"github.com/odvcencio/etymon/pkg/research"
	"github.com/odvcencio/etymon/pkg/sources"
)

type fakeResearcher struct {
	rc    *research.Context
	calls atomic.Int32
}

func (f *fakeResearcher) Research(ctx context.Context, word string) (*research.Context, error) {
	f.calls.Add(1)
	return f.rc, nil
}

type fakeSynth struct {
	result *etym.EtymologyResult
	usage  model.Usage
	err    error
	delay  time.Duration
	calls  atomic.Int32
}

func (f *fakeSynth) Synthesize(ctx context.Context, rc *research.Context) (*etym.EtymologyResult, model.Usage, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.usage, f.err
	}
	// Copy so enrichment doesn't mutate the fixture across calls.
	out := *f.result
	return &out, f.usage, nil
}

type fakeLedger struct {
	mode budget.Mode

	mu    sync.Mutex
	spend map[string]int
}

func (f *fakeLedger) Mode(ctx context.Context) budget.Mode { return f.mode }

func (f *fakeLedger) RecordSpend(ctx context.Context, modelID string, in, out int) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.spend == nil {
		f.spend = map[string]int{}
	}
	f.spend[modelID] += in + out
	return 0.01
}

func (f *fakeLedger) spendFor(modelID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spend[modelID]
}

func validResult() *etym.EtymologyResult {
	return &etym.EtymologyResult{
		Word:       "telephone",
		Definition: "a device for speech at a distance",
		Roots:      []etym.Root{{Text: "tele"}, {Text: "phone"}},
		Graph: etym.AncestryGraph{
			Branches: []etym.Branch{
				{Root: "tele", Stages: []etym.Stage{{Language: "Greek", Form: "tele"}}},
				{Root: "phone", Stages: []etym.Stage{{Language: "Greek", Form: "phone"}}},
			},
			MergePoint: &etym.Stage{Language: "French", Form: "téléphone"},
			PostMerge:  []etym.Stage{{Language: "English", Form: "telephone"}},
		},
	}
}

func researchedContext() *research.Context {
	return &research.Context{
		Word: "telephone",
		MainResults: map[string]*sources.Result{
			"etymonline": {SourceName: "etymonline", Term: "telephone", Text: "from Greek tele", URL: "https://example.test/telephone"},
		},
		Chains: []etym.ParsedEtymChain{{
			SourceName: "etymonline",
			Word:       "telephone",
			Links: []etym.ParsedEtymLink{
				{Language: "Greek", Form: "tele", RawSnippet: "Greek tele"},
			},
		}},
		Usage: model.Usage{PromptTokens: 50, CompletionTokens: 10, TotalTokens: 60},
	}
}

type pipelineParts struct {
	pipe   *Pipeline
	store  *kv.MemoryStore
	cache  *cache.Store
	ledger *fakeLedger
	res    *fakeResearcher
	synth  *fakeSynth
}

func newTestPipeline(t *testing.T) *pipelineParts {
	t.Helper()
	cfg := config.Default()
	cfg.Lock.PollInterval = 5 * time.Millisecond
	cfg.Lock.PollAttempts = 40

	store := kv.NewMemoryStore()
	cacheStore := cache.New(store, cfg.Cache, nil, nil)
	led := &fakeLedger{mode: budget.ModeNormal}
	res := &fakeResearcher{rc: researchedContext()}
	synth := &fakeSynth{result: validResult(), usage: model.Usage{PromptTokens: 500, CompletionTokens: 200, TotalTokens: 700}}
	coord := coordination.New(store, cfg.Lock, nil, nil)

	return &pipelineParts{
		pipe:   New(cfg, cacheStore, led, coord, res, synth, nil, nil),
		store:  store,
		cache:  cacheStore,
		ledger: led,
		res:    res,
		synth:  synth,
	}
}

func TestLookupHappyPathAndCacheHit(t *testing.T) {
	parts := newTestPipeline(t)
	ctx := context.Background()

	result, err := parts.pipe.Lookup(ctx, "telephone")
	require.NoError(t, err)
	assert.Equal(t, "telephone", result.Word)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "etymonline", result.Sources[0].Name)
	assert.Equal(t, etym.ConfidenceMedium, result.Graph.Branches[0].Stages[0].Confidence,
		"enrichment must run before the result is served")

	again, err := parts.pipe.Lookup(ctx, "telephone")
	require.NoError(t, err)
	assert.Equal(t, result.Word, again.Word)
	assert.Equal(t, int32(1), parts.synth.calls.Load(), "second lookup is a cache hit")
}

func TestLookupNormalizesInput(t *testing.T) {
	parts := newTestPipeline(t)
	ctx := context.Background()

	_, err := parts.pipe.Lookup(ctx, "  Telephone ")
	require.NoError(t, err)
	_, err = parts.pipe.Lookup(ctx, "telephone")
	require.NoError(t, err)
	assert.Equal(t, int32(1), parts.synth.calls.Load())
}

func TestLookupRejectsInvalidInput(t *testing.T) {
	parts := newTestPipeline(t)

	for _, bad := range []string{"", "tele phone", "tele;drop", "42"} {
		_, err := parts.pipe.Lookup(context.Background(), bad)
		require.Error(t, err, "input: %q", bad)
		assert.True(t, etymerrors.IsCode(err, etymerrors.ErrCodeInputInvalid), "input: %q", bad)
	}
	assert.Equal(t, int32(0), parts.res.calls.Load())
}

func TestLookupNoSourcesWritesNegativeCache(t *testing.T) {
	parts := newTestPipeline(t)
	ctx := context.Background()
	parts.res.rc = &research.Context{Word: "zzxqj", MainResults: map[string]*sources.Result{}}

	_, err := parts.pipe.Lookup(ctx, "zzxqj")
	require.Error(t, err)
	assert.True(t, etymerrors.IsCode(err, etymerrors.ErrCodeWordNotFound))

	reason, ok := parts.cache.GetNegative(ctx, "zzxqj")
	require.True(t, ok)
	assert.Equal(t, cache.NegativeNoSources, reason)

	_, err = parts.pipe.Lookup(ctx, "zzxqj")
	require.Error(t, err)
	assert.True(t, etymerrors.IsCode(err, etymerrors.ErrCodeWordNotFound))
	assert.Equal(t, int32(1), parts.res.calls.Load(), "negative cache must stop the second research")
}

type fakeSuggester struct{ suggestions []etym.WordSuggestion }

func (f *fakeSuggester) Suggest(context.Context, string) []etym.WordSuggestion {
	return f.suggestions
}

func TestLookupNotFoundCarriesSuggestions(t *testing.T) {
	parts := newTestPipeline(t)
	parts.res.rc = &research.Context{Word: "telefone", MainResults: map[string]*sources.Result{}}
	parts.pipe.SetSuggester(&fakeSuggester{suggestions: []etym.WordSuggestion{
		{Word: "telephone", Reason: "one letter differs"},
	}})

	_, err := parts.pipe.Lookup(context.Background(), "telefone")
	require.Error(t, err)
	assert.True(t, etymerrors.IsCode(err, etymerrors.ErrCodeWordNotFound))

	structured, ok := err.(*etymerrors.Error)
	require.True(t, ok)
	suggestions, ok := structured.Context["suggestions"].([]etym.WordSuggestion)
	require.True(t, ok)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "telephone", suggestions[0].Word)
}

func TestLookupCacheOnlyModeRefusesNewWork(t *testing.T) {
	parts := newTestPipeline(t)
	ctx := context.Background()

	// Warm the cache while the budget is healthy.
	_, err := parts.pipe.Lookup(ctx, "telephone")
	require.NoError(t, err)

	parts.ledger.mode = budget.ModeCacheOnly

	cachedResult, err := parts.pipe.Lookup(ctx, "telephone")
	require.NoError(t, err, "cached words stay available in cacheOnly mode")
	assert.Equal(t, "telephone", cachedResult.Word)

	_, err = parts.pipe.Lookup(ctx, "perfidy")
	require.Error(t, err)
	assert.True(t, etymerrors.IsCode(err, etymerrors.ErrCodeBudgetExceeded))
	assert.True(t, etymerrors.IsRetryable(err))
	assert.Equal(t, int32(1), parts.res.calls.Load(), "only the warming lookup may research")
}

func TestLookupBlockedModeRefusesNewWork(t *testing.T) {
	parts := newTestPipeline(t)
	parts.ledger.mode = budget.ModeBlocked

	_, err := parts.pipe.Lookup(context.Background(), "telephone")
	require.Error(t, err)
	assert.True(t, etymerrors.IsCode(err, etymerrors.ErrCodeBudgetExceeded))
}

func TestLookupProtectedModeRejectsFreshSynthesis(t *testing.T) {
	parts := newTestPipeline(t)
	ctx := context.Background()

	// Warm the cache while the budget is healthy.
	_, err := parts.pipe.Lookup(ctx, "telephone")
	require.NoError(t, err)

	parts.ledger.mode = budget.ModeProtected

	cached, err := parts.pipe.Lookup(ctx, "telephone")
	require.NoError(t, err, "cached words stay available in protected mode")
	assert.Equal(t, "telephone", cached.Word)

	_, err = parts.pipe.Lookup(ctx, "perfidy")
	require.Error(t, err, "a cache miss in protected mode must not start fresh work")
	assert.True(t, etymerrors.IsCode(err, etymerrors.ErrCodeBudgetExceeded))
	assert.True(t, etymerrors.IsRetryable(err))
	assert.Equal(t, int32(1), parts.res.calls.Load(), "only the warming lookup may research")
	assert.Equal(t, int32(1), parts.synth.calls.Load(), "only the warming lookup may synthesize")
}

func TestLookupRecordsSpendForBothModels(t *testing.T) {
	parts := newTestPipeline(t)

	_, err := parts.pipe.Lookup(context.Background(), "telephone")
	require.NoError(t, err)

	cfg := config.Default()
	assert.Equal(t, 60, parts.ledger.spendFor(cfg.Model.RootModel))
	assert.Equal(t, 700, parts.ledger.spendFor(cfg.Model.SynthesisModel))
}

func TestLookupSynthesisFailureIsNeverNegativeCached(t *testing.T) {
	parts := newTestPipeline(t)
	ctx := context.Background()
	parts.synth.err = etymerrors.New(etymerrors.ErrCodeMalformedModelOutput, "model kept rambling")
	parts.synth.usage = model.Usage{PromptTokens: 300, CompletionTokens: 100, TotalTokens: 400}

	_, err := parts.pipe.Lookup(ctx, "telephone")
	require.Error(t, err)
	assert.True(t, etymerrors.IsCode(err, etymerrors.ErrCodeMalformedModelOutput))

	_, ok := parts.cache.GetNegative(ctx, "telephone")
	assert.False(t, ok, "failures are retryable and must not be negative cached")

	var cached etym.EtymologyResult
	assert.False(t, parts.cache.Get(ctx, parts.pipe.resultKind(), "telephone", &cached))

	assert.Equal(t, 400, parts.ledger.spendFor(config.Default().Model.SynthesisModel),
		"failed synthesis still costs tokens")
}

func TestLookupInvalidResultIsNeverCached(t *testing.T) {
	parts := newTestPipeline(t)
	ctx := context.Background()
	broken := validResult()
	broken.Graph.Branches = nil
	parts.synth.result = broken

	_, err := parts.pipe.Lookup(ctx, "telephone")
	require.Error(t, err)
	assert.True(t, etymerrors.IsCode(err, etymerrors.ErrCodeSchemaValidation))

	var cached etym.EtymologyResult
	assert.False(t, parts.cache.Get(ctx, parts.pipe.resultKind(), "telephone", &cached))
}

func TestConcurrentLookupsSynthesizeOnce(t *testing.T) {
	parts := newTestPipeline(t)
	parts.synth.delay = 20 * time.Millisecond

	const n = 8
	var wg sync.WaitGroup
	results := make([]*etym.EtymologyResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = parts.pipe.Lookup(context.Background(), "telephone")
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Equal(t, "telephone", results[i].Word)
	}
	assert.Equal(t, int32(1), parts.synth.calls.Load(),
		"one process computes, the rest wait for its cache write")
}

func TestNormalize(t *testing.T) {
	word, err := Normalize("  Café ")
	require.NoError(t, err)
	assert.Equal(t, "café", word)

	// Decomposed input folds to the same key.
	word2, err := Normalize("Café")
	require.NoError(t, err)
	assert.Equal(t, word, word2)

	_, err = Normalize("o'clock")
	assert.NoError(t, err)
	_, err = Normalize("self-evident")
	assert.NoError(t, err)
}
