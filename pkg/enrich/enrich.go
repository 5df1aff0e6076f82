// Package enrich cross-references a synthesized ancestry graph against the
// deterministically parsed chains, attaching evidence and grading each
// stage's confidence by how many independent sources corroborate it.
package enrich

import (
	"strings"

	"github.com/odvcencio/etymon/pkg/etym"
)

// Enrich walks every stage of the graph and attaches matching chain links
// as evidence. Confidence is high with two or more distinct corroborating
// sources, medium with one, low with none.
func Enrich(result *etym.EtymologyResult, chains []etym.ParsedEtymChain) {
	if result == nil {
		return
	}
	for i := range result.Graph.Branches {
		enrichStages(result.Graph.Branches[i].Stages, chains)
	}
	enrichStages(result.Graph.ConvergencePoints, chains)
	if result.Graph.MergePoint != nil {
		enrichStage(result.Graph.MergePoint, chains)
	}
	enrichStages(result.Graph.PostMerge, chains)
}

func enrichStages(stages []etym.Stage, chains []etym.ParsedEtymChain) {
	for i := range stages {
		enrichStage(&stages[i], chains)
	}
}

func enrichStage(stage *etym.Stage, chains []etym.ParsedEtymChain) {
	sources := map[string]bool{}
	for _, chain := range chains {
		for _, link := range chain.Links {
			if !stageMatchesLink(stage, link) {
				continue
			}
			if !sources[chain.SourceName] {
				sources[chain.SourceName] = true
				stage.Evidence = append(stage.Evidence, etym.Evidence{
					Source:  chain.SourceName,
					Snippet: link.RawSnippet,
				})
			}
			if link.IsReconstructed {
				stage.Reconstructed = true
			}
		}
	}

	switch {
	case len(sources) >= 2:
		stage.Confidence = etym.ConfidenceHigh
	case len(sources) == 1:
		stage.Confidence = etym.ConfidenceMedium
	default:
		stage.Confidence = etym.ConfidenceLow
	}
}

// stageMatchesLink pairs a graph stage with a parsed link when the
// languages agree and the forms are the same word modulo citation
// decoration and small spelling drift.
func stageMatchesLink(stage *etym.Stage, link etym.ParsedEtymLink) bool {
	if !strings.EqualFold(stage.Language, link.Language) {
		return false
	}
	return formsMatch(stage.Form, link.Form)
}

func formsMatch(a, b string) bool {
	a, b = normalizeForm(a), normalizeForm(b)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	// Citation forms drift: inflection endings, macrons dropped, one
	// letter of difference. A shared prefix of 4+ letters covering most of
	// the shorter form is the same word for evidence purposes.
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) >= 4 && strings.HasPrefix(longer, shorter) {
		return true
	}
	return len(a) == len(b) && editDistanceIsOne(a, b)
}

func normalizeForm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "*")
	s = strings.Trim(s, "-")
	return s
}

func editDistanceIsOne(a, b string) bool {
	diff := 0
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			diff++
			if diff > 1 {
				return false
			}
		}
	}
	return diff == 1
}
