package credential

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// digitRun is a contiguous run of two or more digits, e.g. "245".
var digitRun = regexp.MustCompile(`\d{2,}`)

var anyDigit = regexp.MustCompile(`\d`)

// dotWords are the spoken braille dot numbers.
var dotWords = map[string]int{
	"uno": 1, "una": 1, "dos": 2, "tres": 3, "cuatro": 4, "cinco": 5, "seis": 6,
}

// numberModeWords announce that the next pattern is a digit.
var numberModeWords = []string{"numero", "number", "signo de numero"}

// extractDigits finds braille dot numbers. Rules, first match wins:
//  1. a contiguous run of two or more digits ("245"), which must be the only
//     digits in the text: "2, 45" or "24 56" is rejected as ambiguous;
//  2. space or comma separated single digits ("2, 4 5");
//  3. exactly one spoken dot number ("cuatro") with no other number word.
//
// Every digit must be a dot number 1..6. The result is deduplicated and
// sorted, which the braille table key depends on.
func extractDigits(text string) ([]int, bool) {
	if run := digitRun.FindString(text); run != "" {
		if len(anyDigit.FindAllString(text, -1)) != len(run) {
			return nil, false
		}
		return dotSet(strings.Split(run, ""))
	}

	tokens := strings.Fields(text)
	var singles []string
	for _, tok := range tokens {
		if len(tok) == 1 && tok[0] >= '0' && tok[0] <= '9' {
			singles = append(singles, tok)
		}
	}
	if len(singles) > 0 {
		return dotSet(singles)
	}

	var found []int
	for _, tok := range tokens {
		if d, ok := dotWords[tok]; ok {
			found = append(found, d)
		} else if _, ok := numberWords[tok]; ok {
			found = append(found, -1)
		}
	}
	if len(found) == 1 && found[0] > 0 {
		return found, true
	}
	return nil, false
}

func dotSet(digits []string) ([]int, bool) {
	out := make([]int, 0, len(digits))
	for _, s := range digits {
		d, err := strconv.Atoi(s)
		if err != nil || d < 1 || d > 6 {
			return nil, false
		}
		out = append(out, d)
	}
	slices.Sort(out)
	return slices.Compact(out), true
}

func numberMode(tokens []string) bool {
	for _, w := range numberModeWords {
		if containsPhrase(tokens, w) {
			return true
		}
	}
	return false
}

// extractBraille reads either a control answer ("siguiente", "borrar",
// "terminar") or a dot pattern. Answers take precedence so that "borrar el
// 3" deletes rather than entering dot 3.
func (i *Interpreter) extractBraille(text string) Field {
	tokens := strings.Fields(text)
	if a, ok := matchAnswer(tokens); ok {
		return Field{Kind: KindAnswer, Answer: a}
	}
	if digits, ok := extractDigits(text); ok {
		return Field{Kind: KindBrailleDigits, Digits: digits, NumberMode: numberMode(tokens)}
	}
	return Field{}
}

// positionWords extends the spoken numbers used for 1-based positions.
var positionWords = map[string]int{
	"primera": 1, "primero": 1, "segunda": 2, "segundo": 2, "tercera": 3, "tercero": 3,
	"siete": 7, "ocho": 8, "nueve": 9, "diez": 10, "once": 11, "doce": 12,
	"trece": 13, "catorce": 14, "quince": 15, "dieciseis": 16, "diecisiete": 17,
	"dieciocho": 18, "diecinueve": 19, "veinte": 20,
}

var anyNumber = regexp.MustCompile(`\d+`)

// extractPosition reads a 1-based position. Range checking against the
// password length is the braille machine's job, not the interpreter's.
func extractPosition(text string) Field {
	if n := anyNumber.FindString(text); n != "" {
		if p, err := strconv.Atoi(n); err == nil && p > 0 {
			return Field{Kind: KindPosition, Position: p}
		}
	}
	for _, tok := range strings.Fields(text) {
		if p, ok := dotWords[tok]; ok {
			return Field{Kind: KindPosition, Position: p}
		}
		if p, ok := positionWords[tok]; ok {
			return Field{Kind: KindPosition, Position: p}
		}
	}
	return Field{}
}
