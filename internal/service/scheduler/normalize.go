package scheduler

import (
	"regexp"
	"strings"
	"unicode"
)

// annotationPattern matches engine annotations wrapped in bracket, paren or
// brace delimiters, e.g. "[background noise]" or "(silence)".
var annotationPattern = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\{[^}]*\}`)

// noiseTokens is the vocabulary of non-speech results engines emit for
// silent or noisy segments. Matched case- and punctuation-insensitively
// against the whole normalized result.
var noiseTokens = map[string]struct{}{
	"noise":            {},
	"silence":          {},
	"inaudible":        {},
	"music":            {},
	"static":           {},
	"applause":         {},
	"laughter":         {},
	"background noise": {},
	"blank audio":      {},
	"no speech":        {},
	"unintelligible":   {},
}

// Normalize cleans one raw engine result: annotation spans are stripped,
// whitespace is collapsed, and results that are empty, pure punctuation or
// a known noise token become empty text. Speech surviving annotation
// stripping is kept.
func Normalize(raw string) string {
	s := annotationPattern.ReplaceAllString(raw, " ")
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}

	key := foldToken(s)
	if key == "" {
		// Pure punctuation
		return ""
	}
	if _, ok := noiseTokens[key]; ok {
		return ""
	}
	return s
}

// Words counts whitespace-delimited words.
func Words(s string) int {
	return len(strings.Fields(s))
}

// foldToken lowercases s and drops punctuation so "Noise." and "noise"
// compare equal against the noise vocabulary.
func foldToken(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
