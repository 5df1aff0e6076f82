package etym

import (
	"regexp"
	"strings"
)

// dateRe matches the attestation styles dictionary entries actually use:
// "1590s", "c. 1600", "late 14c.".
var dateRe = regexp.MustCompile(`(?:c\.\s*)?\b1[0-9]{3}s?\b|(?:early|mid|late)[ -]1?[0-9]c\.|\b1?[0-9]c\.`)

// findDate extracts the first attestation date in text, or "".
func findDate(text string) string {
	return strings.TrimSpace(dateRe.FindString(text))
}
