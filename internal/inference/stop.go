package inference

import "strings"

// MatchStop returns the first sequence in stops, in configured order, that
// text ends with. Matching is on raw bytes and ignores token boundaries.
// Empty sequences never match.
func MatchStop(text string, stops []string) (string, bool) {
	for _, s := range stops {
		if s != "" && strings.HasSuffix(text, s) {
			return s, true
		}
	}
	return "", false
}

// TrimStop removes exactly one trailing occurrence of seq from text.
func TrimStop(text, seq string) string {
	return strings.TrimSuffix(text, seq)
}
