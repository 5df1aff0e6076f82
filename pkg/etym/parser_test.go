package etym

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLanguageInheritance(t *testing.T) {
	text := `1590s, "deceitfulness," from French perfidie, from Latin perfidia "faithlessness," from perfidus "faithless," from per- "through" + fides "faith."`

	chain := Parse("etymonline", "perfidy", text)

	require.Len(t, chain.Links, 4)
	assert.Equal(t, "1590s", chain.DateAttested)

	assert.Equal(t, "French", chain.Links[0].Language)
	assert.Equal(t, "perfidie", chain.Links[0].Form)

	assert.Equal(t, "Latin", chain.Links[1].Language)
	assert.Equal(t, "perfidia", chain.Links[1].Form)
	assert.Equal(t, "faithlessness", chain.Links[1].Meaning)

	// No language named in the segment: inherited from the previous link.
	assert.Equal(t, "Latin", chain.Links[2].Language)
	assert.Equal(t, "perfidus", chain.Links[2].Form)
	assert.Equal(t, "faithless", chain.Links[2].Meaning)
	assert.False(t, chain.Links[2].IsReconstructed)

	assert.Equal(t, "Latin", chain.Links[3].Language)
	assert.Equal(t, "per-", chain.Links[3].Form)
}

func TestParseSingleQuotedMeanings(t *testing.T) {
	chain := Parse("wiktionary", "perfidy",
		"from Latin perfidia 'faithlessness,' from perfidus 'faithless'")

	require.Len(t, chain.Links, 2)
	assert.Equal(t, "faithlessness", chain.Links[0].Meaning)
	assert.Equal(t, "Latin", chain.Links[1].Language)
	assert.Equal(t, "faithless", chain.Links[1].Meaning)
}

func TestParseReconstructedForms(t *testing.T) {
	text := `from Old English bitan "to pierce," from Proto-Germanic *beitanan, from PIE root *bheid- "to split"`

	chain := Parse("etymonline", "bite", text)
	require.Len(t, chain.Links, 3)

	assert.Equal(t, "Old English", chain.Links[0].Language)
	assert.False(t, chain.Links[0].IsReconstructed)

	assert.Equal(t, "Proto-Germanic", chain.Links[1].Language)
	assert.Equal(t, "*beitanan", chain.Links[1].Form)
	assert.True(t, chain.Links[1].IsReconstructed)

	assert.Equal(t, "Proto-Indo-European", chain.Links[2].Language)
	assert.Equal(t, "*bheid-", chain.Links[2].Form)
	assert.True(t, chain.Links[2].IsReconstructed)
	assert.Equal(t, "to split", chain.Links[2].Meaning)
}

func TestParsePrefersLongestLanguageName(t *testing.T) {
	chain := Parse("etymonline", "joy", `c. 1200, from Old French joie "pleasure"`)

	require.Len(t, chain.Links, 1)
	assert.Equal(t, "Old French", chain.Links[0].Language)
	assert.Equal(t, "joie", chain.Links[0].Form)
	assert.Equal(t, "c. 1200", chain.DateAttested)
}

func TestParseFillerTokensBeforeForm(t *testing.T) {
	chain := Parse("etymonline", "telephone",
		`from Greek tele "far off" + phone "sound," from PIE root *bha- "to speak"`)

	require.Len(t, chain.Links, 2)
	assert.Equal(t, "Greek", chain.Links[0].Language)
	assert.Equal(t, "tele", chain.Links[0].Form)
	assert.Equal(t, "*bha-", chain.Links[1].Form)
}

func TestParseDates(t *testing.T) {
	cases := map[string]string{
		`1590s, "deceitfulness"`:    "1590s",
		`c. 1600, from Latin`:       "c. 1600",
		`late 14c., from Old Norse`: "late 14c.",
		`attested by 1876`:          "1876",
		`no date anywhere`:          "",
	}
	for text, want := range cases {
		assert.Equal(t, want, Parse("etymonline", "w", text).DateAttested, "text: %s", text)
	}
}

func TestParseNoDerivationYieldsEmptyChain(t *testing.T) {
	chain := Parse("wiktionary", "zzxqj", "No etymology is recorded for this word.")
	assert.Empty(t, chain.Links)
	assert.Empty(t, chain.DateAttested)
}

func TestParseLeadingSegmentWithoutLanguageIsSkipped(t *testing.T) {
	// The first segment names no language and there is nothing to inherit.
	chain := Parse("etymonline", "x", `borrowed from the earlier form, from Latin exemplum "sample"`)

	require.Len(t, chain.Links, 1)
	assert.Equal(t, "Latin", chain.Links[0].Language)
	assert.Equal(t, "exemplum", chain.Links[0].Form)
}

func TestParseIsDeterministic(t *testing.T) {
	text := `1844, from French télégraphe, from Greek tele "far" + graphein "to write"`
	first := Parse("etymonline", "telegraph", text)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Parse("etymonline", "telegraph", text))
	}
}
