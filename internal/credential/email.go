package credential

import (
	"maps"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

var (
	// emailCandidate finds an address-shaped substring.
	emailCandidate = regexp.MustCompile(`[^\s@]+@[^\s@]+\.[^\s@]+`)

	// emailValid is the acceptance check every candidate must pass.
	emailValid = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// literalWords are kept verbatim during phonetic decoding even when they
// resemble a letter name.
var literalWords = map[string]bool{
	"gmail": true, "hotmail": true, "outlook": true, "yahoo": true, "icloud": true,
	"live": true, "com": true, "net": true, "org": true, "edu": true,
}

// letterCandidates lists the single-token letter names for fuzzy recovery.
var letterCandidates = slices.Sorted(maps.Keys(letterNames))

// letterLenSlack is how far a misheard token's length may stray from the
// letter name it is recovered as. Longer tokens are words such as names.
const letterLenSlack = 1

// recoverLetter maps a misheard letter name ("ache") to its letter.
func (i *Interpreter) recoverLetter(tok string) (string, bool) {
	n := utf8.RuneCountInString(tok)
	near := make([]string, 0, len(letterCandidates))
	for _, c := range letterCandidates {
		if d := n - utf8.RuneCountInString(c); d >= -letterLenSlack && d <= letterLenSlack {
			near = append(near, c)
		}
	}
	name := i.vocab.closest(tok, near)
	if name == "" {
		return "", false
	}
	return letterNames[name], true
}

// extractEmail runs the direct-match phase and then the phonetic-decode
// phase. A direct match always wins.
func (i *Interpreter) extractEmail(text string) Field {
	if addr, ok := findEmail(text); ok {
		return Field{Kind: KindEmail, Value: addr}
	}
	if addr, ok := findEmail(i.decodeSpelled(text)); ok {
		return Field{Kind: KindEmail, Value: addr}
	}
	return Field{}
}

func findEmail(s string) (string, bool) {
	c := emailCandidate.FindString(s)
	if c == "" || !emailValid.MatchString(c) {
		return "", false
	}
	return c, true
}

// decodeSpelled maps each spoken token to characters and concatenates them:
// letter names and number words become single characters, punctuation words
// become their symbols, fillers vanish and anything else is kept literally.
func (i *Interpreter) decodeSpelled(text string) string {
	tokens := strings.Fields(text)
	var b strings.Builder
	for n := 0; n < len(tokens); n++ {
		if n+1 < len(tokens) {
			if sym, ok := letterPhrases[tokens[n]+" "+tokens[n+1]]; ok {
				b.WriteString(sym)
				n++
				continue
			}
		}
		if tokens[n] == "es" {
			// The verb in "mi correo es", unless it names the .es domain.
			if strings.HasSuffix(b.String(), ".") {
				b.WriteString("es")
			}
			continue
		}
		b.WriteString(i.decodeToken(tokens[n]))
	}
	return b.String()
}

func (i *Interpreter) decodeToken(tok string) string {
	if emailFillers[tok] {
		return ""
	}
	if sym, ok := specialWords[tok]; ok {
		return sym
	}
	if d, ok := numberWords[tok]; ok {
		return d
	}
	if l, ok := letterNames[tok]; ok {
		return l
	}
	if literalWords[tok] {
		return tok
	}
	if i.fuzzy {
		if l, ok := i.recoverLetter(tok); ok {
			return l
		}
	}
	return tok
}
