// Package match maps free-text symptom descriptions to ranked catalog tests.
// It is intentionally small and dependency-free, but engineered with
// production-grade ergonomics:
//
//   - No logging in the library (callers decide how/what to log)
//   - Pluggable scoring behind a narrow Scorer interface
//   - Unicode-aware tokenization with stop-word removal
//   - Deterministic scoring and sorting (stable order for ties)
//
// The default scorer uses Jaccard similarity between the symptom token set
// and each test's token set (name, category, keywords):
// score = |Q ∩ T| / |Q ∪ T|.
package match

import (
	"regexp"
	"strings"

	"github.com/healthlab/go-lab-backend/internal/domain"
)

// Scorer rates the relevance of a catalog test to free-text symptom input.
// Implementations must be pure (no side effects) and return a value in [0,1];
// out-of-range values are clamped by the suggester.
type Scorer interface {
	Score(text string, t domain.Test) float64
}

// JaccardScorer is the default Scorer: token-set Jaccard similarity between
// the symptom text and the test's name, category, and keywords. It is
// deterministic and safe for concurrent use.
type JaccardScorer struct{}

// Score implements Scorer.
func (JaccardScorer) Score(text string, t domain.Test) float64 {
	q := tokenize(text)
	if len(q) == 0 {
		return 0
	}
	d := testTokens(t)
	if len(d) == 0 {
		return 0
	}
	over := overlap(q, d)
	if over == 0 {
		return 0
	}
	union := float64(len(q) + len(d) - over)
	if union <= 0 {
		return 0
	}
	return float64(over) / union
}

// testTokens builds the token set describing a test. Keywords dominate the
// set; name and category are included so direct mentions ("lipid profile")
// also match.
func testTokens(t domain.Test) map[string]struct{} {
	parts := make([]string, 0, len(t.Keywords)+2)
	parts = append(parts, t.Name, t.Category)
	parts = append(parts, t.Keywords...)
	return tokenize(strings.Join(parts, " "))
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

// stopwords are dropped from both query and test token sets so filler words
// ("i", "have", "my") do not dilute the similarity.
var stopwords = map[string]struct{}{
	"i": {}, "a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "to": {},
	"in": {}, "is": {}, "am": {}, "are": {}, "my": {}, "me": {}, "have": {}, "has": {},
	"had": {}, "with": {}, "feel": {}, "feeling": {}, "been": {}, "for": {}, "some": {},
	"lot": {}, "very": {}, "since": {}, "days": {}, "day": {}, "test": {}, "tests": {},
}

func tokenize(s string) map[string]struct{} {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stopwords[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
