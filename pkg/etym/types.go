// Package etym holds the etymology domain types and the deterministic
// chain parser whose output grounds the model's claims.
package etym

// Confidence grades how well a claimed ancestry stage is corroborated by
// parsed source evidence.
type Confidence string

const (
	// ConfidenceHigh: corroborated by evidence from multiple sources.
	ConfidenceHigh Confidence = "high"
	// ConfidenceMedium: supported by exactly one source.
	ConfidenceMedium Confidence = "medium"
	// ConfidenceLow: no parser evidence; pure model inference.
	ConfidenceLow Confidence = "low"
)

// ParsedEtymLink is one step in a deterministically extracted ancestry
// chain, ordered newest to oldest within its chain.
type ParsedEtymLink struct {
	Language        string `json:"language"`
	Form            string `json:"form"`
	Meaning         string `json:"meaning,omitempty"`
	IsReconstructed bool   `json:"isReconstructed"`
	RawSnippet      string `json:"rawSnippet,omitempty"`
}

// ParsedEtymChain is the parser's output for one source text. It is a pure
// function of that text; no external state is consulted.
type ParsedEtymChain struct {
	SourceName   string           `json:"sourceName"`
	Word         string           `json:"word"`
	Links        []ParsedEtymLink `json:"links"`
	DateAttested string           `json:"dateAttested,omitempty"`
}

// Evidence is one source snippet backing an ancestry stage.
type Evidence struct {
	Source  string `json:"source"`
	Snippet string `json:"snippet"`
}

// Stage is one node in the ancestry graph.
type Stage struct {
	Language      string     `json:"language"`
	Form          string     `json:"form"`
	Meaning       string     `json:"meaning,omitempty"`
	Reconstructed bool       `json:"reconstructed,omitempty"`
	Confidence    Confidence `json:"confidence,omitempty"`
	Evidence      []Evidence `json:"evidence,omitempty"`
}

// Branch traces one root morpheme back through its ancestry.
type Branch struct {
	Root   string  `json:"root"`
	Stages []Stage `json:"stages"`
}

// AncestryGraph is the parallel-branch ancestry of a word. Compound words
// carry one branch per root plus a merge point where they combine.
type AncestryGraph struct {
	Branches          []Branch `json:"branches"`
	ConvergencePoints []Stage  `json:"convergencePoints,omitempty"`
	MergePoint        *Stage   `json:"mergePoint,omitempty"`
	PostMerge         []Stage  `json:"postMerge,omitempty"`
}

// Root is one identified root morpheme.
type Root struct {
	Text    string `json:"text"`
	Origin  string `json:"origin,omitempty"`
	Meaning string `json:"meaning,omitempty"`
}

// SourceRef credits a consulted source.
type SourceRef struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// WordSuggestion is a near-miss proposal for an unfound word.
type WordSuggestion struct {
	Word   string `json:"word"`
	Reason string `json:"reason,omitempty"`
}

// EtymologyResult is the final artifact served to clients and cached.
type EtymologyResult struct {
	Word          string        `json:"word"`
	Pronunciation string        `json:"pronunciation,omitempty"`
	Definition    string        `json:"definition"`
	Roots         []Root        `json:"roots"`
	Graph         AncestryGraph `json:"ancestryGraph"`
	Lore          string        `json:"lore,omitempty"`
	Sources       []SourceRef   `json:"sources,omitempty"`
	Suggestions   []string      `json:"suggestions,omitempty"`
	ModernUsage   string        `json:"modernUsage,omitempty"`
}
