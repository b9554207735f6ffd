// Package counter counts how many entries of a vocabulary appear in a body of
// text. Matching is literal, case-sensitive substring containment: "art"
// matches inside "party".
package counter

import "strings"

// Count returns the number of distinct, non-empty vocabulary entries that
// occur at least once in text. Repeated occurrences of one entry count once.
func Count(vocabulary []string, text string) int {
	return len(Matched(vocabulary, text))
}

// Matched returns the distinct, non-empty vocabulary entries found in text,
// in vocabulary order.
func Matched(vocabulary []string, text string) []string {
	if len(vocabulary) == 0 || text == "" {
		return nil
	}
	seen := make(map[string]struct{}, len(vocabulary))
	var found []string
	for _, entry := range vocabulary {
		if entry == "" {
			continue
		}
		if _, dup := seen[entry]; dup {
			continue
		}
		seen[entry] = struct{}{}
		if strings.Contains(text, entry) {
			found = append(found, entry)
		}
	}
	return found
}
