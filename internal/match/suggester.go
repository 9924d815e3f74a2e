// Suggester: orchestrates scoring over the catalog and enforces the result
// contract: bounded size, descending score, stable ties, deduplication, and
// a minimum relevance threshold. Empty or unmatched input yields an empty
// list, never an error.
package match

import (
	"context"
	"sort"
	"strings"

	"github.com/healthlab/go-lab-backend/internal/domain"
)

// Suggestion pairs a catalog test with its relevance score in [0,1].
type Suggestion struct {
	Test  domain.Test
	Score float64
}

// Suggester ranks catalog tests against free-text symptom input using a
// pluggable Scorer. The zero value is not usable; construct with NewSuggester.
type Suggester struct {
	scorer Scorer
	tests  []domain.Test

	// Threshold drops candidates scoring below it. Zero keeps everything
	// with a positive score.
	Threshold float64
	// Max caps the number of suggestions returned. Values <= 0 default to 5.
	Max int
}

// NewSuggester constructs a Suggester over the given tests. The tests slice
// is treated as immutable reference data; its order defines the tie-break
// order of equal scores.
func NewSuggester(sc Scorer, tests []domain.Test, threshold float64, max int) *Suggester {
	if sc == nil {
		sc = JaccardScorer{}
	}
	return &Suggester{scorer: sc, tests: tests, Threshold: threshold, Max: max}
}

// Suggest returns up to Max suggestions for text, sorted by descending score
// with ties broken by catalog order. Blank input returns nil. The context
// bounds the scoring work: when the deadline expires mid-scan the context
// error is returned so the caller can degrade to an empty list.
func (s *Suggester) Suggest(ctx context.Context, text string) ([]Suggestion, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	max := s.Max
	if max <= 0 {
		max = 5
	}

	type scored struct {
		sug   Suggestion
		order int
	}
	seen := make(map[string]struct{}, len(s.tests))
	buf := make([]scored, 0, len(s.tests))

	for i, t := range s.tests {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if _, dup := seen[t.Code]; dup {
			continue
		}
		seen[t.Code] = struct{}{}

		sc := s.scorer.Score(text, t)
		if sc < 0 {
			sc = 0
		}
		if sc > 1 {
			sc = 1
		}
		if sc <= 0 || sc < s.Threshold {
			continue
		}
		buf = append(buf, scored{sug: Suggestion{Test: t, Score: sc}, order: i})
	}
	if len(buf) == 0 {
		return nil, nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].sug.Score != buf[b].sug.Score {
			return buf[a].sug.Score > buf[b].sug.Score
		}
		return buf[a].order < buf[b].order
	})

	if max > len(buf) {
		max = len(buf)
	}
	out := make([]Suggestion, max)
	for i := 0; i < max; i++ {
		out[i] = buf[i].sug
	}
	return out, nil
}
