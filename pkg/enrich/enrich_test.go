package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	etymerrors "github.com/odvcencio/etymon/pkg/errors"
	"github.com/odvcencio/etymon/pkg/etym"
)

func chain(source string, links ...etym.ParsedEtymLink) etym.ParsedEtymChain {
	return etym.ParsedEtymChain{SourceName: source, Word: "telephone", Links: links}
}

func link(lang, form string) etym.ParsedEtymLink {
	return etym.ParsedEtymLink{Language: lang, Form: form, RawSnippet: lang + " " + form}
}

func telephoneResult() *etym.EtymologyResult {
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

func TestEnrichGradesByDistinctSources(t *testing.T) {
	result := telephoneResult()
	chains := []etym.ParsedEtymChain{
		chain("etymonline", link("Greek", "tele"), link("Greek", "phone")),
		chain("wiktionary", link("Greek", "tele")),
	}

	Enrich(result, chains)

	teleStage := result.Graph.Branches[0].Stages[0]
	assert.Equal(t, etym.ConfidenceHigh, teleStage.Confidence)
	require.Len(t, teleStage.Evidence, 2)
	assert.Equal(t, "etymonline", teleStage.Evidence[0].Source)

	phoneStage := result.Graph.Branches[1].Stages[0]
	assert.Equal(t, etym.ConfidenceMedium, phoneStage.Confidence)

	assert.Equal(t, etym.ConfidenceLow, result.Graph.PostMerge[0].Confidence,
		"no chain mentions the English stage")
}

func TestEnrichRequiresLanguageAgreement(t *testing.T) {
	result := telephoneResult()
	Enrich(result, []etym.ParsedEtymChain{chain("etymonline", link("Latin", "tele"))})
	assert.Equal(t, etym.ConfidenceLow, result.Graph.Branches[0].Stages[0].Confidence)
}

func TestEnrichPropagatesReconstruction(t *testing.T) {
	result := &etym.EtymologyResult{
		Word: "bite", Definition: "to cut with teeth",
		Graph: etym.AncestryGraph{Branches: []etym.Branch{{
			Root: "bite",
			Stages: []etym.Stage{
				{Language: "Proto-Germanic", Form: "beitanan"},
			},
		}}},
	}
	chains := []etym.ParsedEtymChain{chain("etymonline",
		etym.ParsedEtymLink{Language: "Proto-Germanic", Form: "*beitanan", IsReconstructed: true})}

	Enrich(result, chains)
	stage := result.Graph.Branches[0].Stages[0]
	assert.True(t, stage.Reconstructed, "evidence says this form is reconstructed")
	assert.Equal(t, etym.ConfidenceMedium, stage.Confidence)
}

func TestFormsMatch(t *testing.T) {
	assert.True(t, formsMatch("tele", "tele-"))
	assert.True(t, formsMatch("*bheid-", "bheid"))
	assert.True(t, formsMatch("perfidia", "perfidiam"), "inflection drift shares a long prefix")
	assert.True(t, formsMatch("Tele", "tele"))
	assert.True(t, formsMatch("graphein", "grafhein"), "one letter of spelling drift")
	assert.False(t, formsMatch("tele", "phone"))
	assert.False(t, formsMatch("per", "perfidia"), "short prefixes are not a match")
	assert.False(t, formsMatch("", "tele"))
}

func TestValidateAcceptsGoodResult(t *testing.T) {
	assert.NoError(t, Validate(telephoneResult()))
}

func TestValidateRejectsEmptyGraph(t *testing.T) {
	result := telephoneResult()
	result.Graph.Branches = nil
	err := Validate(result)
	require.Error(t, err)
	assert.True(t, etymerrors.IsCode(err, etymerrors.ErrCodeSchemaValidation))
	assert.Contains(t, err.Error(), "no branches")
}

func TestValidateRejectsUnmarkedReconstruction(t *testing.T) {
	result := telephoneResult()
	result.Graph.Branches[0].Stages[0].Form = "*tele"
	err := Validate(result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not marked reconstructed")
}

func TestValidateRejectsDisconnectedBranches(t *testing.T) {
	result := telephoneResult()
	result.Graph.MergePoint = nil
	err := Validate(result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no merge or convergence point")
}

func TestValidateCollectsAllProblems(t *testing.T) {
	result := telephoneResult()
	result.Definition = ""
	result.Graph.PostMerge[0].Language = ""
	err := Validate(result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty definition")
	assert.Contains(t, err.Error(), "postMerge stage 0: empty language")
}
