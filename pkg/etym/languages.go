package etym

import "sort"

// knownLanguages is the set of language names the parser recognizes at the
// head of a derivation segment. Multi-word names must be listed in full so
// "Old French" never matches as "French".
var knownLanguages = []string{
	"Proto-Indo-European",
	"PIE",
	"Proto-Germanic",
	"Proto-Italic",
	"Proto-Celtic",
	"Proto-Slavic",
	"Proto-Balto-Slavic",
	"Proto-Norse",
	"Vulgar Latin",
	"Late Latin",
	"Medieval Latin",
	"Church Latin",
	"New Latin",
	"Modern Latin",
	"Latin",
	"Ancient Greek",
	"Modern Greek",
	"Greek",
	"Old English",
	"Middle English",
	"Anglo-French",
	"Anglo-Norman",
	"Old French",
	"Middle French",
	"Old North French",
	"French",
	"Old Norse",
	"Old High German",
	"Middle High German",
	"Middle Low German",
	"Middle Dutch",
	"Old Dutch",
	"Dutch",
	"German",
	"Old Saxon",
	"Old Frisian",
	"West Germanic",
	"Germanic",
	"Gothic",
	"Old Italian",
	"Italian",
	"Old Spanish",
	"Spanish",
	"Old Portuguese",
	"Portuguese",
	"Old Provençal",
	"Provençal",
	"Occitan",
	"Catalan",
	"Romanian",
	"Old Church Slavonic",
	"Russian",
	"Polish",
	"Czech",
	"Old Irish",
	"Irish",
	"Scottish Gaelic",
	"Welsh",
	"Breton",
	"Gaulish",
	"Old Persian",
	"Persian",
	"Sanskrit",
	"Hindi",
	"Urdu",
	"Arabic",
	"Hebrew",
	"Aramaic",
	"Turkish",
	"Ottoman Turkish",
	"Japanese",
	"Mandarin",
	"Cantonese",
	"Chinese",
	"Korean",
	"Malay",
	"Tamil",
	"Swahili",
	"Nahuatl",
	"Quechua",
	"Tupi",
	"Algonquian",
	"Hawaiian",
	"Maori",
	"Yiddish",
	"Norwegian",
	"Danish",
	"Swedish",
	"Icelandic",
	"Finnish",
	"Hungarian",
	"Lithuanian",
	"Latvian",
	"Etruscan",
	"Phoenician",
	"Egyptian",
	"Coptic",
	"Akkadian",
	"Sumerian",
	"English",
}

// reconstructedLanguages are unattested proto-languages; any form in them is
// a scholarly reconstruction even without the asterisk convention.
var reconstructedLanguages = map[string]bool{
	"Proto-Indo-European": true,
	"PIE":                 true,
	"Proto-Germanic":      true,
	"Proto-Italic":        true,
	"Proto-Celtic":        true,
	"Proto-Slavic":        true,
	"Proto-Balto-Slavic":  true,
	"Proto-Norse":         true,
	"West Germanic":       true,
	"Germanic":            true,
}

// canonicalLanguage maps abbreviations to the display name used in results.
var canonicalLanguage = map[string]string{
	"PIE": "Proto-Indo-European",
}

// languagesByLength is knownLanguages sorted longest first, so prefix
// matching always prefers the most specific name.
var languagesByLength = func() []string {
	out := make([]string, len(knownLanguages))
	copy(out, knownLanguages)
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i]) > len(out[j])
	})
	return out
}()

// IsReconstructedLanguage reports whether lang is an unattested
// proto-language.
func IsReconstructedLanguage(lang string) bool {
	return reconstructedLanguages[lang]
}
