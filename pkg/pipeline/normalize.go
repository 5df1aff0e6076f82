package pipeline

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	etymerrors "github.com/odvcencio/etymon/pkg/errors"
)

const maxWordLength = 64

// Normalize canonicalizes a raw lookup so "Café", "café", and its
// decomposed spelling all hit the same cache key. Returns an
// ErrCodeInputInvalid error when the input is not a single plausible word.
func Normalize(raw string) (string, error) {
	word := norm.NFC.String(strings.ToLower(strings.TrimSpace(raw)))

	if word == "" {
		return "", etymerrors.New(etymerrors.ErrCodeInputInvalid, "empty word").
			WithUserMessage("provide a word to look up")
	}
	if utf8.RuneCountInString(word) > maxWordLength {
		return "", etymerrors.New(etymerrors.ErrCodeInputInvalid, "word too long").
			WithUserMessage("words are at most 64 characters")
	}
	for _, r := range word {
		if unicode.IsLetter(r) || r == '-' || r == '\'' {
			continue
		}
		return "", etymerrors.New(etymerrors.ErrCodeInputInvalid, "word contains invalid characters").
			WithContext("word", word).
			WithUserMessage("words may only contain letters, hyphens, and apostrophes")
	}
	return word, nil
}
