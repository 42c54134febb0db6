package credential

import "github.com/antzucaro/matchr"

const (
	defaultFuzzyThreshold    = 0.9
	defaultPhoneticThreshold = 0.8
	minFuzzyTokenLen         = 3
)

// vocabulary recovers misheard vocabulary words. A token matches a word when
// their Double Metaphone codes overlap and Jaro-Winkler similarity reaches
// the phonetic threshold, or, failing any phonetic overlap, when similarity
// alone reaches the stricter fuzzy threshold.
type vocabulary struct {
	threshold         float64
	phoneticThreshold float64
}

func newVocabulary() *vocabulary {
	return &vocabulary{
		threshold:         defaultFuzzyThreshold,
		phoneticThreshold: defaultPhoneticThreshold,
	}
}

// closest returns the candidate most similar to token, or "" when none
// clears the thresholds. Exact matches are expected to be handled by the
// caller's table lookup first.
func (v *vocabulary) closest(token string, candidates []string) string {
	if len([]rune(token)) < minFuzzyTokenLen {
		return ""
	}
	tp, ts := matchr.DoubleMetaphone(token)

	var (
		best      string
		bestScore float64
		bestPhon  bool
	)
	for _, c := range candidates {
		score := matchr.JaroWinkler(token, c, false)
		cp, cs := matchr.DoubleMetaphone(c)
		phon := overlap(tp, ts, cp, cs)
		switch {
		case phon && score >= v.phoneticThreshold:
			if !bestPhon || score > bestScore {
				best, bestScore, bestPhon = c, score, true
			}
		case !bestPhon && score >= v.threshold && score > bestScore:
			best, bestScore = c, score
		}
	}
	return best
}

func overlap(ap, as, bp, bs string) bool {
	for _, a := range [...]string{ap, as} {
		if a == "" {
			continue
		}
		if a == bp || a == bs {
			return true
		}
	}
	return false
}
