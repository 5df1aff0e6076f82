package etym

import (
	"regexp"
	"strings"
	"unicode"
)

// The parser walks a dictionary entry's "from X, from Y" derivation chain
// and emits one link per step. It is deliberately dumb: no model, no
// network, same input same output. Its links are what the synthesizer is
// told to treat as ground truth.

var (
	fromRe = regexp.MustCompile(`(?i)\bfrom\s+`)

	// Cut a segment at the start of the next sentence so a quote two
	// sentences later is never mistaken for this link's gloss.
	sentenceCutRe = regexp.MustCompile(`[.!?]\s+["“]?[A-Z]`)

	meaningRe = regexp.MustCompile(`["'“”‘’]([^"'“”‘’]+)["'“”‘’]`)
)

// fillerTokens may sit between a language name and the form itself, as in
// "from PIE root *bheid-".
var fillerTokens = map[string]bool{
	"root":      true,
	"word":      true,
	"stem":      true,
	"base":      true,
	"form":      true,
	"verb":      true,
	"noun":      true,
	"adjective": true,
	"prefix":    true,
	"suffix":    true,
	"combining": true,
	"element":   true,
	"of":        true,
}

// Parse extracts the derivation chain for word from one source's entry
// text. Links appear in text order, newest ancestor first. A segment with
// no recognizable language inherits the previous link's language, which is
// how "from Latin perfidia, from perfidus" yields two Latin links.
func Parse(sourceName, word, text string) ParsedEtymChain {
	chain := ParsedEtymChain{
		SourceName:   sourceName,
		Word:         word,
		DateAttested: findDate(text),
	}

	locs := fromRe.FindAllStringIndex(text, -1)
	prevLang := ""
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		seg := cutSegment(text[loc[1]:end])
		link, ok := parseSegment(seg, prevLang)
		if !ok {
			continue
		}
		chain.Links = append(chain.Links, link)
		prevLang = link.Language
	}
	return chain
}

func cutSegment(seg string) string {
	if loc := sentenceCutRe.FindStringIndex(seg); loc != nil {
		return seg[:loc[0]+1]
	}
	return seg
}

func parseSegment(seg, prevLang string) (ParsedEtymLink, bool) {
	s := strings.TrimSpace(seg)
	for _, article := range []string{"the ", "a ", "an "} {
		if strings.HasPrefix(s, article) {
			s = s[len(article):]
			break
		}
	}

	lang, rest, matched := matchLanguage(s)
	if !matched {
		if prevLang == "" {
			return ParsedEtymLink{}, false
		}
		lang, rest = prevLang, s
	}
	reconstructedLang := IsReconstructedLanguage(lang)
	if canonical, ok := canonicalLanguage[lang]; ok {
		lang = canonical
	}

	form, remainder := extractForm(rest)
	if form == "" {
		return ParsedEtymLink{}, false
	}

	meaning := ""
	if m := meaningRe.FindStringSubmatch(remainder); m != nil {
		meaning = strings.TrimRight(strings.TrimSpace(m[1]), ",;")
	}

	return ParsedEtymLink{
		Language:        lang,
		Form:            form,
		Meaning:         meaning,
		IsReconstructed: strings.HasPrefix(form, "*") || reconstructedLang,
		RawSnippet:      truncateRunes(s, 120),
	}, true
}

// matchLanguage tries the longest known language name first so
// "Old French" wins over "French".
func matchLanguage(s string) (lang, rest string, ok bool) {
	for _, name := range languagesByLength {
		if !strings.HasPrefix(s, name) {
			continue
		}
		tail := s[len(name):]
		if tail != "" {
			r := []rune(tail)[0]
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
				continue
			}
		}
		return name, strings.TrimSpace(tail), true
	}
	return "", s, false
}

// extractForm takes the first non-filler token and returns it with the
// unconsumed remainder of the segment.
func extractForm(rest string) (string, string) {
	s := strings.TrimSpace(rest)
	for {
		token, tail := nextToken(s)
		if token == "" {
			return "", ""
		}
		if fillerTokens[strings.ToLower(token)] {
			s = strings.TrimSpace(tail)
			continue
		}
		form := strings.TrimRight(token, ".,;")
		if form == "" {
			return "", ""
		}
		return form, tail
	}
}

func nextToken(s string) (token, tail string) {
	end := len(s)
	for i, r := range s {
		if unicode.IsSpace(r) || strings.ContainsRune(`,;:()"'`, r) ||
			r == '“' || r == '”' || r == '‘' || r == '’' {
			end = i
			break
		}
	}
	return s[:end], s[end:]
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(runes[:n]))
}
