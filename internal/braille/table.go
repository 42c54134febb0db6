// Package braille maps six-dot braille cells to characters and implements
// the password entry state machine driven by spoken dot numbers.
package braille

import (
	"slices"
	"strings"
)

// NumberPrefix marks keys in the digit namespace. A digit shares its cell
// with a letter (1 = a, 2 = b, ...), so digits are keyed as "#" + dots.
const NumberPrefix = "#"

// letters is the Spanish grade-1 alphabet keyed by sorted dot string.
var letters = map[string]rune{
	"1": 'a', "12": 'b', "14": 'c', "145": 'd', "15": 'e', "124": 'f',
	"1245": 'g', "125": 'h', "24": 'i', "245": 'j', "13": 'k', "123": 'l',
	"134": 'm', "1345": 'n', "135": 'o', "1234": 'p', "12345": 'q', "1235": 'r',
	"234": 's', "2345": 't', "136": 'u', "1236": 'v', "2456": 'w', "1346": 'x',
	"13456": 'y', "1356": 'z', "12456": 'ñ',
	"12356": 'á', "2346": 'é', "34": 'í', "346": 'ó', "23456": 'ú', "1256": 'ü',
	"3": '.', "2": ',', "26": '?', "235": '!', "36": '-',
}

// digits uses the cells of a..j after the number sign.
var digits = map[string]rune{
	"1": '1', "12": '2', "14": '3', "145": '4', "15": '5',
	"124": '6', "1245": '7', "125": '8', "24": '9', "245": '0',
}

// Key returns the lookup key for a dot set: sorted, deduplicated digits,
// prefixed with [NumberPrefix] in number mode. The input is not modified.
func Key(dots []int, numberMode bool) string {
	sorted := slices.Clone(dots)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	var b strings.Builder
	if numberMode {
		b.WriteString(NumberPrefix)
	}
	for _, d := range sorted {
		b.WriteByte(byte('0' + d))
	}
	return b.String()
}

// Lookup returns the character for key.
func Lookup(key string) (rune, bool) {
	if k, ok := strings.CutPrefix(key, NumberPrefix); ok {
		r, found := digits[k]
		return r, found
	}
	r, ok := letters[key]
	return r, ok
}

// Dots returns the dot set for r, in letter or number mode. It is the
// inverse of [Lookup] and is used to describe characters back to the user.
func Dots(r rune) (dots []int, numberMode bool, ok bool) {
	for k, v := range digits {
		if v == r {
			return keyDots(k), true, true
		}
	}
	for k, v := range letters {
		if v == r {
			return keyDots(k), false, true
		}
	}
	return nil, false, false
}

func keyDots(k string) []int {
	out := make([]int, len(k))
	for i := range k {
		out[i] = int(k[i] - '0')
	}
	return out
}
