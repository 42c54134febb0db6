package credential

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// usernamePatterns are tried in order; the first capture wins.
var usernamePatterns = []*regexp.Regexp{
	// "my (user)name is X"
	regexp.MustCompile(`(?:^|\s)(?:mi|my)\s+(?:nombre\s+de\s+usuario|usuario|nombre|user\s?name|name)\s+(?:es|is)\s+(\S+)`),
	// "X is my name"
	regexp.MustCompile(`(\S+)\s+(?:es\s+mi\s+(?:nombre(?:\s+de\s+usuario)?|usuario)|is\s+my\s+(?:user\s?)?name)(?:\s|$)`),
	// "my name is called X"
	regexp.MustCompile(`(?:^|\s)(?:my\s+name\s+is\s+called|mi\s+nombre\s+se\s+llama|me\s+llamo|mi\s+usuario\s+se\s+llama)\s+(\S+)`),
}

// notAName rejects captures that are really the next word of a longer
// phrasing, e.g. "my name is called ana" must not yield "called".
var notAName = map[string]bool{
	"called": true, "llama": true, "es": true, "is": true, "mi": true, "my": true,
}

const (
	minUsernameLen = 3
	maxUsernameLen = 19
)

// extractUsername applies the declarative phrasings, then the single-token
// fallback. The fallback is lossy: any lone word of plausible length is
// taken as the username.
func extractUsername(text string) Field {
	for _, re := range usernamePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil || notAName[m[1]] {
			continue
		}
		return Field{Kind: KindUsername, Value: m[1]}
	}
	if !strings.Contains(text, " ") {
		if n := utf8.RuneCountInString(text); n >= minUsernameLen && n <= maxUsernameLen {
			return Field{Kind: KindUsername, Value: text}
		}
	}
	return Field{}
}
