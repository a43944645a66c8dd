// Package catalog provides read access to the indexed clip corpus: word
// clips, pre-indexed phrases, and full video transcripts.
package catalog

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var lowerCaser = cases.Lower(language.Und)

// Normalize canonicalizes text for lookups: NFKC fold, lowercase, punctuation
// stripped except apostrophes inside a word, whitespace collapsed to single
// spaces and trimmed. The ingestion tooling applies the same transform, so a
// normalized query matches the stored keys exactly. Normalize is idempotent.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = lowerCaser.String(s)

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true // suppress leading whitespace

	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case r == '\'' || r == '’':
			// Keep apostrophes only between letters ("don't", "we're").
			if i > 0 && i < len(runes)-1 &&
				isWordRune(runes[i-1]) && isWordRune(runes[i+1]) {
				b.WriteRune('\'')
				lastSpace = false
			}
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		default:
			// Other punctuation separates words rather than vanishing
			// inside them ("rock-and-roll" -> "rock and roll").
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}

	return strings.TrimRight(b.String(), " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// NormalizeTokens splits text into normalized word tokens.
func NormalizeTokens(s string) []string {
	normalized := Normalize(s)
	if normalized == "" {
		return nil
	}
	return strings.Split(normalized, " ")
}

// PhraseHash returns the hex MD5 of the normalized phrase text. It is the
// primary key prefix of the phrase index.
func PhraseHash(phrase string) string {
	sum := md5.Sum([]byte(Normalize(phrase)))
	return hex.EncodeToString(sum[:])
}
