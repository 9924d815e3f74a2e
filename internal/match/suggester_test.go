package match

import (
	"context"
	"testing"
	"time"

	"github.com/healthlab/go-lab-backend/internal/domain"
)

var sampleTests = []domain.Test{
	{Code: "CBC", Name: "Complete Blood Count", Category: "Hematology",
		Keywords: []string{"fever", "chills", "fatigue", "weakness", "infection"}},
	{Code: "CRP", Name: "C-Reactive Protein", Category: "Immunology",
		Keywords: []string{"fever", "inflammation", "pain", "swelling"}},
	{Code: "TSH", Name: "Thyroid Stimulating Hormone", Category: "Endocrinology",
		Keywords: []string{"weight", "hair", "cold", "tired"}},
}

func TestJaccardScorer_Basics(t *testing.T) {
	sc := JaccardScorer{}

	if got := sc.Score("", sampleTests[0]); got != 0 {
		t.Fatalf("empty text must score 0, got %v", got)
	}
	if got := sc.Score("I have a fever and chills", sampleTests[0]); got <= 0 {
		t.Fatalf("overlapping symptoms must score > 0, got %v", got)
	}
	if got := sc.Score("completely unrelated gibberish", sampleTests[0]); got != 0 {
		t.Fatalf("no overlap must score 0, got %v", got)
	}

	// Direct mention of the test name matches via name tokens.
	if got := sc.Score("thyroid check please", sampleTests[2]); got <= 0 {
		t.Fatalf("name mention must score > 0, got %v", got)
	}

	// Stop words alone contribute nothing.
	if got := sc.Score("i have been feeling", sampleTests[0]); got != 0 {
		t.Fatalf("stopword-only text must score 0, got %v", got)
	}
}

func TestJaccardScorer_Deterministic(t *testing.T) {
	sc := JaccardScorer{}
	first := sc.Score("fever fatigue weakness", sampleTests[0])
	for i := 0; i < 50; i++ {
		if got := sc.Score("fever fatigue weakness", sampleTests[0]); got != first {
			t.Fatalf("score changed between runs: %v vs %v", got, first)
		}
	}
}

func TestSuggest_RankingAndThreshold(t *testing.T) {
	s := NewSuggester(JaccardScorer{}, sampleTests, 0.01, 5)

	got, err := s.Suggest(context.Background(), "fever chills fatigue weakness infection")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) == 0 || got[0].Test.Code != "CBC" {
		t.Fatalf("expected CBC first, got %+v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("not sorted by descending score: %+v", got)
		}
	}
	for _, sug := range got {
		if sug.Score < s.Threshold || sug.Score > 1 {
			t.Fatalf("score out of contract: %+v", sug)
		}
	}
}

func TestSuggest_BlankAndUnmatched(t *testing.T) {
	s := NewSuggester(JaccardScorer{}, sampleTests, 0.01, 5)

	if got, err := s.Suggest(context.Background(), "   "); err != nil || got != nil {
		t.Fatalf("blank input: got %+v err=%v", got, err)
	}
	if got, err := s.Suggest(context.Background(), "zzzz qqqq"); err != nil || got != nil {
		t.Fatalf("unmatched input: got %+v err=%v", got, err)
	}
}

func TestSuggest_MaxCapAndStableTies(t *testing.T) {
	// Two tests with identical token sets score identically; catalog order
	// breaks the tie.
	twins := []domain.Test{
		{Code: "A1", Name: "Panel", Keywords: []string{"ache"}},
		{Code: "A2", Name: "Panel", Keywords: []string{"ache"}},
		{Code: "A3", Name: "Panel", Keywords: []string{"ache"}},
	}
	s := NewSuggester(JaccardScorer{}, twins, 0, 2)

	got, err := s.Suggest(context.Background(), "ache")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected cap of 2, got %d", len(got))
	}
	if got[0].Test.Code != "A1" || got[1].Test.Code != "A2" {
		t.Fatalf("tie-break must follow catalog order, got %+v", got)
	}
}

func TestSuggest_DeduplicatesCodes(t *testing.T) {
	dup := []domain.Test{
		{Code: "CBC", Name: "Complete Blood Count", Keywords: []string{"fever"}},
		{Code: "CBC", Name: "Complete Blood Count", Keywords: []string{"fever"}},
	}
	s := NewSuggester(JaccardScorer{}, dup, 0, 5)

	got, err := s.Suggest(context.Background(), "fever")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected deduplication by code, got %+v", got)
	}
}

// slowScorer blocks long enough for a short deadline to expire.
type slowScorer struct{}

func (slowScorer) Score(string, domain.Test) float64 {
	time.Sleep(20 * time.Millisecond)
	return 1
}

func TestSuggest_ContextDeadline(t *testing.T) {
	s := NewSuggester(slowScorer{}, sampleTests, 0, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := s.Suggest(ctx, "fever")
	if err == nil {
		t.Fatal("expected a context error once the deadline expires")
	}
}

func TestSuggest_ClampsScores(t *testing.T) {
	s := NewSuggester(outOfRangeScorer{}, sampleTests[:1], 0, 5)
	got, err := s.Suggest(context.Background(), "fever")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) != 1 || got[0].Score != 1 {
		t.Fatalf("expected clamped score of 1, got %+v", got)
	}
}

type outOfRangeScorer struct{}

func (outOfRangeScorer) Score(string, domain.Test) float64 { return 7.5 }
