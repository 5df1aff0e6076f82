package synthesis

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/odvcencio/etymon/pkg/model"
	"github.com/odvcencio/etymon/pkg/research"
)

// maxSourceTokens caps each source's contribution to the prompt.
const maxSourceTokens = 1000

const systemPrompt = `You are an etymologist. You synthesize a word's history from the provided dictionary entries.
Rules:
- The PARSED CHAINS block is deterministic extraction from the sources. Where your reading of the prose disagrees with a parsed chain, prefer the chain.
- Never invent forms, languages, or dates that appear in neither the sources nor the chains.
- Prefix reconstructed forms with * and mark them reconstructed.
- For compound words, give each root its own branch and describe where they merged.
- suggestions must be bare lowercase words, nothing appended.
Respond with a single JSON object matching the requested schema.`

// sourceDelimiterRe matches our own delimiter syntax so source text can
// never smuggle in a fake section.
var sourceDelimiterRe = regexp.MustCompile(`<<<[^>]*>>>`)

// buildPrompt renders the research context into the user message.
func buildPrompt(rc *research.Context) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Explain the etymology of the word %q.\n", rc.Word)

	names := make([]string, 0, len(rc.MainResults))
	for name, res := range rc.MainResults {
		if res != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		writeSource(&sb, name, rc.MainResults[name].Text)
	}

	for _, data := range rc.RootData {
		for _, name := range sortedResultKeys(data.Results) {
			res := data.Results[name]
			if res == nil {
				continue
			}
			writeSource(&sb, fmt.Sprintf("%s:%s", name, data.Root.Text), res.Text)
		}
	}

	if len(rc.Roots) > 0 {
		sb.WriteString("\nIdentified roots:\n")
		for _, root := range rc.Roots {
			fmt.Fprintf(&sb, "- %s (%s): %s\n", root.Text, root.Origin, root.Meaning)
		}
	}

	if chains := allChains(rc); len(chains) > 0 {
		encoded, err := json.Marshal(chains)
		if err == nil {
			sb.WriteString("\n<<<PARSED CHAINS>>>\n")
			sb.Write(encoded)
			sb.WriteString("\n<<<END PARSED CHAINS>>>\n")
		}
	}

	for _, term := range sortedResultKeys(rc.RelatedResults) {
		writeSource(&sb, "related:"+term, rc.RelatedResults[term].Text)
	}
	if len(rc.Related) > 0 {
		fmt.Fprintf(&sb, "\nCandidate related words: %s\n", strings.Join(rc.Related, ", "))
	}
	return sb.String()
}

func writeSource(sb *strings.Builder, label, text string) {
	text = sourceDelimiterRe.ReplaceAllString(text, "")
	if tokens := model.CountTokens(text); tokens > maxSourceTokens {
		// Proportional cut lands close enough to the cap for dictionary prose.
		keep := len(text) * maxSourceTokens / tokens
		text = strings.ToValidUTF8(text[:keep], "")
	}
	fmt.Fprintf(sb, "\n<<<SOURCE:%s>>>\n%s\n<<<END SOURCE>>>\n", label, text)
}

func allChains(rc *research.Context) []any {
	var chains []any
	for _, c := range rc.Chains {
		if len(c.Links) > 0 {
			chains = append(chains, c)
		}
	}
	for _, data := range rc.RootData {
		for _, c := range data.Chains {
			if len(c.Links) > 0 {
				chains = append(chains, c)
			}
		}
	}
	return chains
}

func sortedResultKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
