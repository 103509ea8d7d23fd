package analytics

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultFillerWords is the fixed disfluency vocabulary scanned in every
// user turn. Multi-word entries are matched as literal phrases.
var DefaultFillerWords = []string{"um", "ah", "like", "you know", "uh", "hmm"}

// fillerMatcher holds the compiled whole-word patterns for a vocabulary.
// Compiled once per engine; the patterns are safe for concurrent use.
type fillerMatcher struct {
	words    []string
	patterns map[string]*regexp.Regexp
}

func newFillerMatcher(vocabulary []string) (*fillerMatcher, error) {
	m := &fillerMatcher{
		words:    make([]string, 0, len(vocabulary)),
		patterns: make(map[string]*regexp.Regexp, len(vocabulary)),
	}
	for _, word := range vocabulary {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" {
			continue
		}
		if _, dup := m.patterns[word]; dup {
			continue
		}
		// Word boundaries on both ends keep "like" from matching inside
		// "likely"; the text is lowercased before matching.
		pattern, err := regexp.Compile(`\b` + regexp.QuoteMeta(word) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("failed to compile filler pattern %q: %w", word, err)
		}
		m.words = append(m.words, word)
		m.patterns[word] = pattern
	}
	return m, nil
}

// newCounts returns a zeroed count map with every configured word present.
func (m *fillerMatcher) newCounts() map[string]int {
	counts := make(map[string]int, len(m.words))
	for _, word := range m.words {
		counts[word] = 0
	}
	return counts
}

// scan counts whole-word occurrences in text, accumulating into counts.
// Returns the number of fillers found in this text.
func (m *fillerMatcher) scan(text string, counts map[string]int) int {
	lower := strings.ToLower(text)
	found := 0
	for _, word := range m.words {
		n := len(m.patterns[word].FindAllStringIndex(lower, -1))
		counts[word] += n
		found += n
	}
	return found
}

func sortFillerCounts(breakdown []FillerCount) {
	sort.Slice(breakdown, func(i, j int) bool {
		if breakdown[i].Count != breakdown[j].Count {
			return breakdown[i].Count > breakdown[j].Count
		}
		return breakdown[i].Word < breakdown[j].Word
	})
}
