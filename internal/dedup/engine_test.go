package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/harvest/internal/news"
)

type stubStore struct {
	linkMatches  map[string]int64
	recent       []StoredArticle
	linkCalls    int
	recentCalls  int
	failOnRecent func(t *testing.T)
	t            *testing.T
}

func (s *stubStore) FindByCanonicalLink(_ context.Context, link string) (int64, bool, error) {
	s.linkCalls++
	id, ok := s.linkMatches[link]
	return id, ok, nil
}

func (s *stubStore) FindRecentForSimilarity(_ context.Context, _ time.Time) ([]StoredArticle, error) {
	s.recentCalls++
	if s.failOnRecent != nil {
		s.failOnRecent(s.t)
	}
	return s.recent, nil
}

func TestJaccard_Identity(t *testing.T) {
	t.Parallel()

	if got := Jaccard("the quick brown fox", "the quick brown fox"); got != 1 {
		t.Fatalf("Jaccard(t, t) = %f, want 1", got)
	}
}

func TestJaccard_BothEmpty(t *testing.T) {
	t.Parallel()

	if got := Jaccard("", ""); got != 1 {
		t.Fatalf("Jaccard(\"\", \"\") = %f, want 1", got)
	}
	if got := Jaccard("  ...  ", "!!!"); got != 1 {
		t.Fatalf("punctuation-only inputs tokenize to empty sets, got %f want 1", got)
	}
}

func TestJaccard_OneEmpty(t *testing.T) {
	t.Parallel()

	if got := Jaccard("a b", ""); got != 0 {
		t.Fatalf("Jaccard(\"a b\", \"\") = %f, want 0", got)
	}
}

func TestJaccard_PartialOverlap(t *testing.T) {
	t.Parallel()

	// Sets {a,b,c} and {b,c,d}: intersection 2, union 4.
	if got := Jaccard("a b c", "b c d"); got != 0.5 {
		t.Fatalf("unexpected partial overlap: got %f want 0.5", got)
	}
}

func TestCombinedSimilarity_TitleBoostClearsThreshold(t *testing.T) {
	t.Parallel()

	// Titles share 19 of 20 distinct tokens (Jaccard 19/21 ≈ 0.905).
	titleA := "w1 w2 w3 w4 w5 w6 w7 w8 w9 w10 w11 w12 w13 w14 w15 w16 w17 w18 w19 w20"
	titleB := "w1 w2 w3 w4 w5 w6 w7 w8 w9 w10 w11 w12 w13 w14 w15 w16 w17 w18 w19 x1"
	// Bodies share 4 of 10 union tokens (Jaccard 0.4).
	bodyA := "b1 b2 b3 b4 a1 a2 a3"
	bodyB := "b1 b2 b3 b4 c1 c2 c3"

	similarity := CombinedSimilarity(titleA, bodyA, titleB, bodyB)
	if similarity < DefaultThreshold {
		t.Fatalf("near-identical titles must clear the threshold: got %f want >= %f", similarity, DefaultThreshold)
	}
}

func TestCombinedSimilarity_NoBoostBelowFloor(t *testing.T) {
	t.Parallel()

	// Title Jaccard 0.5, body Jaccard 0.5: plain weighted average, no boost.
	similarity := CombinedSimilarity("a b c", "e f g", "b c d", "f g h")
	if similarity != 0.5 {
		t.Fatalf("unexpected similarity without boost: got %f want 0.5", similarity)
	}
}

func TestCheck_ExactLinkWinsBeforeFuzzy(t *testing.T) {
	t.Parallel()

	store := &stubStore{
		t:           t,
		linkMatches: map[string]int64{"https://news.example.com/a/1": 42},
		failOnRecent: func(t *testing.T) {
			t.Fatalf("fuzzy comparison must not run after an exact-link match")
		},
	}
	engine := NewEngine(store, zerolog.Nop(), DefaultWindowDays, DefaultThreshold)

	decision, err := engine.Check(context.Background(), news.Article{
		Title:         "정부, 내년 예산안 국회 제출",
		Body:          "본문",
		PublishedDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		CanonicalLink: "https://news.example.com/a/1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.IsDuplicate || decision.MatchedID != 42 {
		t.Fatalf("expected exact-link duplicate with id 42, got %+v", decision)
	}
}

func TestCheck_MalformedLinkFallsThroughToFuzzy(t *testing.T) {
	t.Parallel()

	store := &stubStore{t: t}
	engine := NewEngine(store, zerolog.Nop(), DefaultWindowDays, DefaultThreshold)

	decision, err := engine.Check(context.Background(), news.Article{
		Title:         "정부, 내년 예산안 국회 제출",
		Body:          "본문 내용",
		PublishedDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		CanonicalLink: "::not-a-url::",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.IsDuplicate {
		t.Fatalf("no stored items, must not be a duplicate: %+v", decision)
	}
	if store.linkCalls != 0 {
		t.Fatalf("malformed link must skip the exact check, got %d lookups", store.linkCalls)
	}
	if store.recentCalls != 1 {
		t.Fatalf("fuzzy check must still run, got %d lookups", store.recentCalls)
	}
}

func TestCheck_FuzzyDuplicateInWindow(t *testing.T) {
	t.Parallel()

	store := &stubStore{
		t: t,
		recent: []StoredArticle{
			{
				ID:            7,
				Title:         "정부 내년 예산안 국회 제출",
				Body:          "정부가 내년도 예산안을 국회에 제출했다 심사가 시작된다",
				PublishedDate: time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
			},
		},
	}
	engine := NewEngine(store, zerolog.Nop(), DefaultWindowDays, DefaultThreshold)

	decision, err := engine.Check(context.Background(), news.Article{
		Title:         "정부 내년 예산안 국회 제출",
		Body:          "정부가 내년도 예산안을 국회에 제출했다 심사가 시작된다",
		PublishedDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.IsDuplicate || decision.MatchedID != 7 {
		t.Fatalf("expected fuzzy duplicate with id 7, got %+v", decision)
	}
	if decision.Similarity < DefaultThreshold {
		t.Fatalf("similarity below threshold: %f", decision.Similarity)
	}
}
