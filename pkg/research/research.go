// Package research gathers raw material for synthesis: source texts for
// the word, identified roots, per-root source texts, and the parsed
// derivation chains. Every fetch draws from a fixed per-word budget and
// partial failure is normal; synthesis works with whatever arrived.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/etymon/pkg/cache"
	"github.com/odvcencio/etymon/pkg/config"
	"github.com/odvcencio/etymon/pkg/etym"
	"github.com/odvcencio/etymon/pkg/logging"
	"github.com/odvcencio/etymon/pkg/model"
	"github.com/odvcencio/etymon/pkg/schema"
	"github.com/odvcencio/etymon/pkg/sources"
	"github.com/odvcencio/etymon/pkg/telemetry"
)

// RootData is the research gathered for one root morpheme.
type RootData struct {
	Root         etym.Root
	Results      map[string]*sources.Result
	Chains       []etym.ParsedEtymChain
	RelatedTerms []string
}

// Context is everything research produced for one word.
type Context struct {
	Word           string
	MainResults    map[string]*sources.Result
	Chains         []etym.ParsedEtymChain
	Roots          []etym.Root
	RootData       []RootData
	Related        []string
	RelatedResults map[string]*sources.Result
	FetchesUsed    int
	Usage          model.Usage
}

// HasSources reports whether any primary source had an entry.
func (c *Context) HasSources() bool {
	for _, r := range c.MainResults {
		if r != nil {
			return true
		}
	}
	return false
}

// SourceRefs lists the sources that contributed, for result attribution.
func (c *Context) SourceRefs() []etym.SourceRef {
	var refs []etym.SourceRef
	for _, name := range sortedKeys(c.MainResults) {
		if r := c.MainResults[name]; r != nil {
			refs = append(refs, etym.SourceRef{Name: r.SourceName, URL: r.URL})
		}
	}
	return refs
}

type chatClient interface {
	ChatCompletion(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error)
}

// Researcher runs the four research phases for a word.
type Researcher struct {
	fetchers []sources.Fetcher
	cache    *cache.Store
	client   chatClient
	cfg      config.ResearchConfig
	cacheCfg config.CacheConfig
	modelCfg config.ModelConfig
	log      *logging.Logger
	metrics  *telemetry.Registry
}

// New creates a Researcher. client may be nil, which skips root
// identification entirely (sources and chains still flow through).
func New(fetchers []sources.Fetcher, cacheStore *cache.Store, client chatClient,
	cfg config.Config, log *logging.Logger, metrics *telemetry.Registry) *Researcher {
	return &Researcher{
		fetchers: fetchers,
		cache:    cacheStore,
		client:   client,
		cfg:      cfg.Research,
		cacheCfg: cfg.Cache,
		modelCfg: cfg.Model,
		log:      log,
		metrics:  metrics,
	}
}

// fetchBudget is the per-word cap on outbound source fetches. Reservations
// are atomic because root research runs concurrently.
type fetchBudget struct {
	remaining atomic.Int32
	used      atomic.Int32
}

func newFetchBudget(n int) *fetchBudget {
	b := &fetchBudget{}
	b.remaining.Store(int32(n))
	return b
}

func (b *fetchBudget) tryReserve(n int) bool {
	for {
		cur := b.remaining.Load()
		if cur < int32(n) {
			return false
		}
		if b.remaining.CompareAndSwap(cur, cur-int32(n)) {
			b.used.Add(int32(n))
			return true
		}
	}
}

func (b *fetchBudget) left() int { return int(b.remaining.Load()) }

// Research gathers everything needed to synthesize word. It only errors on
// context cancellation; missing sources, failed fetches, and a failed root
// call all degrade instead.
func (r *Researcher) Research(ctx context.Context, word string) (*Context, error) {
	rc := &Context{
		Word:           word,
		MainResults:    make(map[string]*sources.Result, len(r.fetchers)),
		RelatedResults: make(map[string]*sources.Result),
	}
	budget := newFetchBudget(r.cfg.FetchBudget)

	if err := r.fetchPrimary(ctx, word, rc, budget); err != nil {
		return nil, err
	}
	for _, name := range sortedKeys(rc.MainResults) {
		if res := rc.MainResults[name]; res != nil {
			rc.Chains = append(rc.Chains, etym.Parse(res.SourceName, word, res.Text))
		}
	}

	if !rc.HasSources() {
		// Nothing to ground a synthesis on; skip the spend entirely.
		rc.FetchesUsed = int(budget.used.Load())
		return rc, ctx.Err()
	}

	r.identifyRoots(ctx, rc)
	r.researchRoots(ctx, rc, budget)
	r.fetchRelated(ctx, rc, budget)

	rc.FetchesUsed = int(budget.used.Load())
	r.log.Info(logging.CategoryResearch, "research_done", "",
		map[string]any{
			"word": word, "fetches": rc.FetchesUsed,
			"roots": len(rc.Roots), "chains": len(rc.Chains),
			"related": len(rc.Related),
		})
	return rc, ctx.Err()
}

// fetchPrimary pulls the word's entry from every configured source in
// parallel. Individual failures are logged and absorbed.
func (r *Researcher) fetchPrimary(ctx context.Context, word string, rc *Context, budget *fetchBudget) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(r.fetchers) + 1)

	for _, f := range r.fetchers {
		f := f
		if !budget.tryReserve(1) {
			break
		}
		g.Go(func() error {
			res := r.fetchCached(gctx, f, word)
			mu.Lock()
			rc.MainResults[f.Name()] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// fetchCached consults the source cache before going to the network.
// Failures return nil, indistinguishable here from absence; the caller
// tracks failure separately only where the distinction matters (pipeline
// checks fetch errors through the chains' source names).
func (r *Researcher) fetchCached(ctx context.Context, f sources.Fetcher, term string) *sources.Result {
	kind := r.sourceKind(f.Name())

	var cached sources.Result
	if r.cache.Get(ctx, kind, term, &cached) {
		return &cached
	}

	res, err := f.Fetch(ctx, term)
	if err != nil {
		r.log.Warn(logging.CategorySources, "fetch_failed", err.Error(),
			map[string]any{"source": f.Name(), "term": term})
		return nil
	}
	r.metrics.Counter(telemetry.MetricFetchesTotal, telemetry.Labels{"source": f.Name()}).Inc()
	if res == nil {
		return nil
	}
	r.cache.Set(ctx, kind, term, res)
	return res
}

func (r *Researcher) sourceKind(sourceName string) cache.Kind {
	return cache.Kind{
		Name:    "src:" + sourceName,
		Version: r.cacheCfg.SourceVersion,
		TTL:     r.cacheCfg.SourceTTL,
		Validate: func(v any) error {
			res, ok := v.(*sources.Result)
			if !ok {
				return fmt.Errorf("unexpected type %T", v)
			}
			if res.Text == "" {
				return fmt.Errorf("empty source text")
			}
			return nil
		},
	}
}

// identifyRoots asks the cheap model which root morphemes compose the
// word. A failure here just means a flat ancestry.
func (r *Researcher) identifyRoots(ctx context.Context, rc *Context) {
	if r.client == nil {
		return
	}

	resp, err := r.client.ChatCompletion(ctx, model.ChatRequest{
		Model:          r.modelCfg.RootModel,
		Messages:       rootPromptMessages(rc),
		Temperature:    0,
		MaxTokens:      1024,
		ResponseFormat: model.StructuredFormat("word_roots", rootsSchema()),
	})
	if err != nil {
		r.log.Warn(logging.CategoryResearch, "root_identification_failed", err.Error(),
			map[string]any{"word": rc.Word})
		return
	}
	rc.Usage.Add(resp.Usage)

	var parsed struct {
		Roots []struct {
			Text    string `json:"text"`
			Origin  string `json:"origin"`
			Meaning string `json:"meaning"`
		} `json:"roots"`
	}
	if err := json.Unmarshal([]byte(resp.Content()), &parsed); err != nil {
		r.log.Warn(logging.CategoryResearch, "root_parse_failed", err.Error(),
			map[string]any{"word": rc.Word})
		return
	}
	for _, root := range parsed.Roots {
		if root.Text == "" {
			continue
		}
		rc.Roots = append(rc.Roots, etym.Root{Text: root.Text, Origin: root.Origin, Meaning: root.Meaning})
		if len(rc.Roots) >= r.cfg.MaxRoots {
			break
		}
	}
}

func rootsSchema() schema.Schema {
	return schema.ObjectSchema(map[string]schema.Property{
		"roots": schema.ArrayProperty("root morphemes composing the word, in order",
			schema.ObjectProperty("one root morpheme", map[string]schema.Property{
				"text":    schema.StringProperty("the root as usually cited, e.g. tele or *bheid-"),
				"origin":  schema.StringProperty("language of origin"),
				"meaning": schema.StringProperty("core meaning"),
			}, "text")),
	}, "roots")
}

func rootPromptMessages(rc *Context) []model.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Identify the root morphemes of the word %q using these dictionary entries.\n", rc.Word)
	for _, name := range sortedKeys(rc.MainResults) {
		res := rc.MainResults[name]
		if res == nil {
			continue
		}
		fmt.Fprintf(&sb, "\n[%s]\n%s\n", name, truncate(res.Text, 2000))
	}
	return []model.Message{
		{Role: "system", Content: "You identify the root morphemes of English words. Answer only from the provided dictionary text."},
		{Role: "user", Content: sb.String()},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// researchRoots fetches source entries for each identified root, bounded
// by the remaining fetch budget. A root that is just the word itself is
// skipped: phase 1 already fetched it.
func (r *Researcher) researchRoots(ctx context.Context, rc *Context, budget *fetchBudget) {
	roots := make([]etym.Root, 0, len(rc.Roots))
	for _, root := range rc.Roots {
		if strings.EqualFold(rootLookupTerm(root.Text), rc.Word) {
			continue
		}
		roots = append(roots, root)
	}

	count := len(roots)
	if limit := budget.left() / r.cfg.CostPerRoot; count > limit {
		count = limit
	}
	if count <= 0 {
		return
	}

	data := make([]RootData, count)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for i := 0; i < count; i++ {
		i := i
		if !budget.tryReserve(r.cfg.CostPerRoot) {
			break
		}
		g.Go(func() error {
			data[i] = r.researchOneRoot(gctx, rc.Word, roots[i])
			return nil
		})
	}
	_ = g.Wait()

	for _, d := range data {
		if d.Root.Text != "" {
			rc.RootData = append(rc.RootData, d)
		}
	}
}

func (r *Researcher) researchOneRoot(ctx context.Context, word string, root etym.Root) RootData {
	data := RootData{Root: root, Results: make(map[string]*sources.Result)}

	term := rootLookupTerm(root.Text)
	fetches := 0
	for _, f := range r.fetchers {
		if fetches >= r.cfg.CostPerRoot {
			break
		}
		fetches++
		res := r.fetchCached(ctx, f, term)
		data.Results[f.Name()] = res
		if res != nil {
			data.Chains = append(data.Chains, etym.Parse(res.SourceName, term, res.Text))
		}
	}
	data.RelatedTerms = relatedFromChains(data.Chains, word, term, r.cfg.RelatedPerRoot)
	return data
}

// fetchRelated chases the related terms each root's chains surfaced. One
// budget unit buys one lookup in the first configured source; the terms
// are cousins, not the subject, so a single dictionary's view is enough.
func (r *Researcher) fetchRelated(ctx context.Context, rc *Context, budget *fetchBudget) {
	if len(r.fetchers) == 0 {
		return
	}
	seen := map[string]bool{rc.Word: true}
	for _, data := range rc.RootData {
		seen[rootLookupTerm(data.Root.Text)] = true
	}

	for _, data := range rc.RootData {
		for _, term := range data.RelatedTerms {
			if seen[term] {
				continue
			}
			seen[term] = true
			if !budget.tryReserve(1) {
				return
			}
			rc.Related = append(rc.Related, term)
			if res := r.fetchCached(ctx, r.fetchers[0], term); res != nil {
				rc.RelatedResults[term] = res
			}
		}
	}
}

// rootLookupTerm strips citation decorations so "tele-" and "*bheid-" can
// be looked up as entries.
func rootLookupTerm(text string) string {
	term := text
	for len(term) > 0 && (term[0] == '*' || term[0] == '-') {
		term = term[1:]
	}
	for len(term) > 0 && term[len(term)-1] == '-' {
		term = term[:len(term)-1]
	}
	if term == "" {
		return text
	}
	return term
}

// relatedFromChains proposes sibling words from the deeper links of one
// root's chains: words that share an ancestor form are etymological
// cousins. Reconstructed forms are unfetchable and skipped, as are the
// word and the root themselves.
func relatedFromChains(chains []etym.ParsedEtymChain, word, rootTerm string, perRoot int) []string {
	if perRoot <= 0 {
		return nil
	}
	seen := map[string]bool{word: true, rootTerm: true}
	var related []string
	for _, chain := range chains {
		for _, link := range chain.Links {
			if len(related) >= perRoot {
				return related
			}
			form := rootLookupTerm(link.Form)
			if form == "" || link.IsReconstructed || seen[form] {
				continue
			}
			seen[form] = true
			related = append(related, form)
		}
	}
	return related
}

func sortedKeys(m map[string]*sources.Result) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
