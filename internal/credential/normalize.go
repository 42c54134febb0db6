package credential

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// separators become spaces; '.', '@', '_' and '-' survive because they carry
// meaning inside e-mail addresses.
var separators = strings.NewReplacer(
	",", " ", ";", " ", ":", " ", "!", " ", "¡", " ",
	"?", " ", "¿", " ", "\"", " ", "(", " ", ")", " ", "«", " ", "»", " ",
)

// normalize lowercases, trims, folds accents (keeping ñ), drops sentence
// punctuation and collapses whitespace.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = foldAccents(s)
	s = separators.Replace(s)
	tokens := strings.Fields(s)
	out := tokens[:0]
	for _, t := range tokens {
		t = strings.TrimRight(t, ".")
		t = strings.TrimLeft(t, ".")
		if t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, " ")
}

// foldAccents strips combining marks (á → a, ü → u) but keeps ñ, which is a
// distinct letter in Spanish.
func foldAccents(s string) string {
	if !strings.ContainsFunc(s, func(r rune) bool { return r > unicode.MaxASCII }) {
		return s
	}
	parts := strings.Split(norm.NFC.String(s), "ñ")
	for i, p := range parts {
		t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
		if folded, _, err := transform.String(t, p); err == nil {
			parts[i] = folded
		}
	}
	return strings.Join(parts, "ñ")
}

// containsPhrase reports whether phrase occurs in tokens on token boundaries.
func containsPhrase(tokens []string, phrase string) bool {
	want := strings.Fields(phrase)
	if len(want) == 0 || len(want) > len(tokens) {
		return false
	}
outer:
	for i := 0; i+len(want) <= len(tokens); i++ {
		for j, w := range want {
			if tokens[i+j] != w {
				continue outer
			}
		}
		return true
	}
	return false
}
