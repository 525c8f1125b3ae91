package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/harvest/internal/globaltime"
	"horse.fit/harvest/internal/news"
	"horse.fit/harvest/internal/source"
	"horse.fit/harvest/internal/store"
	"horse.fit/harvest/internal/translation"
	"horse.fit/harvest/internal/validate"
)

const mockDay = "2026-03-02"

func mockRunClock(t *testing.T) time.Time {
	t.Helper()
	ref := time.Date(2026, 3, 2, 11, 0, 0, 0, globaltime.Seoul())
	globaltime.SetMockTime(ref)
	t.Cleanup(globaltime.ResetTime)
	return ref
}

// validCandidate builds a candidate that survives validation and scores as
// normal content. Bodies vary per index so no fabrication signal fires.
func validCandidate(category news.Category, tag string, i int) news.Candidate {
	title := fmt.Sprintf("지역 현안 점검 브리핑 정리 %s %d", tag, i)
	body := fmt.Sprintf(
		"서울 지역 %s %d번째 현장 취재 결과를 정리한 기사입니다. "+
			"담당 기자는 오전 회견 내용과 오후 브리핑 발언을 비교했습니다. "+
			"관계 부처 실무진은 추가 설명 자료를 배포하며 일정 조율 계획을 밝혔습니다. "+
			"전문가들은 향후 제도 개선 방향과 현장 적용 과제를 함께 짚었습니다. "+
			"주민 의견 수렴 절차는 다음 주 공청회에서 이어질 예정입니다.",
		tag, i,
	)
	return news.Candidate{
		Title:         title,
		Body:          body,
		SourceCountry: "대한민국",
		SourceMedia:   "연합신문",
		Category:      category.String(),
		Topic:         "society",
		PublishedDate: mockDay,
		CanonicalLink: fmt.Sprintf("https://news.example.kr/%s/%s/%d", category, tag, i),
		SourceName:    "stub",
	}
}

func staleCandidate(category news.Category, i int) news.Candidate {
	c := validCandidate(category, "stale", i)
	c.PublishedDate = "2026-03-01"
	return c
}

// hallucinatedCandidate passes validation but trips the fabrication scorer
// through stacked AI-disclosure vocabulary.
func hallucinatedCandidate(category news.Category, i int) news.Candidate {
	c := validCandidate(category, "fake", i)
	c.Body += " 이 기사는 생성된 예시 샘플 테스트 문장으로 마무리됩니다."
	return c
}

type fetchCall struct {
	Category news.Category
	Limit    int
}

// scriptedAdapter pops pre-built batches per category, one per Fetch call.
type scriptedAdapter struct {
	name    string
	batches map[news.Category][][]news.Candidate
	err     error

	mu    sync.Mutex
	calls []fetchCall
}

func (a *scriptedAdapter) Name() string { return a.name }

func (a *scriptedAdapter) Fetch(ctx context.Context, date time.Time, category news.Category, limit int) ([]news.Candidate, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, fetchCall{Category: category, Limit: limit})

	if a.err != nil {
		return nil, a.err
	}
	queue := a.batches[category]
	if len(queue) == 0 {
		return nil, nil
	}
	batch := queue[0]
	a.batches[category] = queue[1:]
	return batch, nil
}

func (a *scriptedAdapter) callsFor(category news.Category) []fetchCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []fetchCall
	for _, call := range a.calls {
		if call.Category == category {
			out = append(out, call)
		}
	}
	return out
}

// memoryPersister emulates exact-link dedup: a link seen twice is skipped.
type memoryPersister struct {
	mu        sync.Mutex
	seenLinks map[string]bool
	persisted []news.Article
	nextID    int64
}

func newMemoryPersister(preSeen ...string) *memoryPersister {
	seen := make(map[string]bool, len(preSeen))
	for _, link := range preSeen {
		seen[link] = true
	}
	return &memoryPersister{seenLinks: seen}
}

func (p *memoryPersister) InsertBatch(ctx context.Context, items []news.Article) (store.BatchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var result store.BatchResult
	for _, item := range items {
		if item.CanonicalLink != "" && p.seenLinks[item.CanonicalLink] {
			result.Skipped++
			continue
		}
		if item.CanonicalLink != "" {
			p.seenLinks[item.CanonicalLink] = true
		}
		p.nextID++
		result.Success++
		result.PersistedIDs = append(result.PersistedIDs, p.nextID)
		p.persisted = append(p.persisted, item)
	}
	return result, nil
}

type stubTranslator struct {
	failMarker string
}

func (s *stubTranslator) TranslateIfNeeded(ctx context.Context, text string) translation.Outcome {
	if s.failMarker != "" && strings.Contains(text, s.failMarker) {
		return translation.Outcome{Text: text, Failed: true}
	}
	return translation.Outcome{Text: "(번역) " + text, Failed: false}
}

func newTestBalancer(adapters []source.Adapter, persister Persister, translator Translator, opts Options) *Balancer {
	logger := zerolog.Nop()
	return NewBalancer(adapters, validate.NewNormalizer(logger), translator, persister, logger, opts)
}

func fullBatch(category news.Category, tag string, n int) []news.Candidate {
	out := make([]news.Candidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, validCandidate(category, tag, i))
	}
	return out
}

func TestRunBackfillsCategoryShortfall(t *testing.T) {
	mockRunClock(t)

	// Round zero yields 10 domestic candidates across three sources: four
	// look fabricated, two carry already-stored links, four survive.
	alpha := &scriptedAdapter{
		name: "alpha",
		batches: map[news.Category][][]news.Candidate{
			news.CategoryDomestic: {
				{
					hallucinatedCandidate(news.CategoryDomestic, 0),
					hallucinatedCandidate(news.CategoryDomestic, 1),
					hallucinatedCandidate(news.CategoryDomestic, 2),
					hallucinatedCandidate(news.CategoryDomestic, 3),
				},
				fullBatch(news.CategoryDomestic, "r1", 6),
			},
			news.CategoryForeign: {fullBatch(news.CategoryForeign, "r0", 10)},
			news.CategoryRelated: {fullBatch(news.CategoryRelated, "r0", 10)},
		},
	}
	beta := &scriptedAdapter{
		name: "beta",
		batches: map[news.Category][][]news.Candidate{
			news.CategoryDomestic: {fullBatch(news.CategoryDomestic, "dup", 3)},
		},
	}
	gamma := &scriptedAdapter{
		name: "gamma",
		batches: map[news.Category][][]news.Candidate{
			news.CategoryDomestic: {fullBatch(news.CategoryDomestic, "ok", 3)},
		},
	}

	// Two of beta's links are already stored.
	persister := newMemoryPersister(
		"https://news.example.kr/domestic/dup/0",
		"https://news.example.kr/domestic/dup/1",
	)

	balancer := newTestBalancer([]source.Adapter{alpha, beta, gamma}, persister, &stubTranslator{}, Options{
		CategoryTarget:       10,
		InitialBatch:         10,
		BackfillRounds:       2,
		TranslateConcurrency: 5,
	})

	result, err := balancer.CollectAndPersist(context.Background(), globaltime.Today())
	if err != nil {
		t.Fatalf("CollectAndPersist() error = %v", err)
	}

	if !result.Complete() {
		t.Fatalf("expected a complete run, got %+v", result.Categories)
	}
	if result.Rounds != 2 {
		t.Fatalf("Rounds = %d, want 2 (one backfill round)", result.Rounds)
	}
	if got := result.Categories[news.CategoryDomestic].Collected; got != 10 {
		t.Fatalf("domestic collected = %d, want 10", got)
	}
	if result.DuplicatesSkipped != 2 {
		t.Fatalf("DuplicatesSkipped = %d, want 2", result.DuplicatesSkipped)
	}
	if result.Suspicious != 4 {
		t.Fatalf("Suspicious = %d, want 4 flagged candidates", result.Suspicious)
	}

	calls := alpha.callsFor(news.CategoryDomestic)
	if len(calls) != 2 {
		t.Fatalf("domestic fetches = %d, want 2", len(calls))
	}
	if calls[0].Limit != 10 {
		t.Fatalf("initial request = %d, want 10", calls[0].Limit)
	}
	// Deficit of 6 over-fetches to ceil(6*1.5) = 9.
	if calls[1].Limit != 9 {
		t.Fatalf("backfill request = %d, want 9", calls[1].Limit)
	}
}

func TestRunReportsShortfallWithoutError(t *testing.T) {
	mockRunClock(t)

	domestic := append(fullBatch(news.CategoryDomestic, "r0", 9), staleCandidate(news.CategoryDomestic, 0))
	adapter := &scriptedAdapter{
		name: "alpha",
		batches: map[news.Category][][]news.Candidate{
			news.CategoryDomestic: {domestic},
			news.CategoryForeign:  {fullBatch(news.CategoryForeign, "r0", 10)},
			news.CategoryRelated:  {fullBatch(news.CategoryRelated, "r0", 10)},
		},
	}
	persister := newMemoryPersister()

	balancer := newTestBalancer([]source.Adapter{adapter}, persister, &stubTranslator{}, Options{
		CategoryTarget: 10,
		InitialBatch:   10,
		BackfillRounds: 2,
	})

	result, err := balancer.CollectAndPersist(context.Background(), globaltime.Today())
	if err != nil {
		t.Fatalf("shortfall must not be an error, got %v", err)
	}
	if result.Complete() {
		t.Fatalf("expected incomplete run")
	}
	if got := result.Categories[news.CategoryDomestic]; got.Collected != 9 || got.Target != 10 {
		t.Fatalf("domestic outcome = %+v, want 9/10", got)
	}
	if result.Rejected != 1 {
		t.Fatalf("Rejected = %d, want 1 stale candidate", result.Rejected)
	}
	if result.Rounds != 3 {
		t.Fatalf("Rounds = %d, want 3 (initial plus both backfill rounds)", result.Rounds)
	}
}

func TestRunRequiresSources(t *testing.T) {
	mockRunClock(t)

	balancer := newTestBalancer(nil, newMemoryPersister(), &stubTranslator{}, Options{})
	if _, err := balancer.CollectAndPersist(context.Background(), globaltime.Today()); !errors.Is(err, ErrNoSources) {
		t.Fatalf("expected ErrNoSources, got %v", err)
	}
}

func TestRunBenchesRateLimitedSource(t *testing.T) {
	mockRunClock(t)

	throttledAdapter := &scriptedAdapter{
		name: "beta",
		err:  &source.RateLimitError{Source: "beta"},
	}
	healthy := &scriptedAdapter{
		name: "alpha",
		batches: map[news.Category][][]news.Candidate{
			news.CategoryDomestic: {fullBatch(news.CategoryDomestic, "r0", 10)},
			news.CategoryForeign:  {fullBatch(news.CategoryForeign, "r0", 10)},
			news.CategoryRelated:  {fullBatch(news.CategoryRelated, "r0", 10)},
		},
	}
	persister := newMemoryPersister()

	balancer := newTestBalancer([]source.Adapter{throttledAdapter, healthy}, persister, &stubTranslator{}, Options{
		CategoryTarget: 10,
		InitialBatch:   10,
		BackfillRounds: 2,
	})

	result, err := balancer.CollectAndPersist(context.Background(), globaltime.Today())
	if err != nil {
		t.Fatalf("CollectAndPersist() error = %v", err)
	}
	if !result.Complete() {
		t.Fatalf("expected healthy source to fill all categories")
	}

	throttledAdapter.mu.Lock()
	callCount := len(throttledAdapter.calls)
	throttledAdapter.mu.Unlock()
	if callCount != 1 {
		t.Fatalf("throttled source fetched %d times, want 1", callCount)
	}
}

func TestRunIsolatesFailingSource(t *testing.T) {
	mockRunClock(t)

	broken := &scriptedAdapter{
		name: "gamma",
		err:  errors.New("upstream exploded"),
	}
	healthy := &scriptedAdapter{
		name: "alpha",
		batches: map[news.Category][][]news.Candidate{
			news.CategoryDomestic: {fullBatch(news.CategoryDomestic, "r0", 10)},
			news.CategoryForeign:  {fullBatch(news.CategoryForeign, "r0", 10)},
			news.CategoryRelated:  {fullBatch(news.CategoryRelated, "r0", 10)},
		},
	}
	persister := newMemoryPersister()

	balancer := newTestBalancer([]source.Adapter{broken, healthy}, persister, &stubTranslator{}, Options{
		CategoryTarget: 10,
		InitialBatch:   10,
		BackfillRounds: 2,
	})

	result, err := balancer.CollectAndPersist(context.Background(), globaltime.Today())
	if err != nil {
		t.Fatalf("a failing source must not abort the run, got %v", err)
	}
	if !result.Complete() {
		t.Fatalf("expected healthy source to fill all categories")
	}
}

func TestRunTranslationPreservesOrderAndCountsFailures(t *testing.T) {
	mockRunClock(t)

	batch := fullBatch(news.CategoryDomestic, "r0", 5)
	adapter := &scriptedAdapter{
		name: "alpha",
		batches: map[news.Category][][]news.Candidate{
			news.CategoryDomestic: {batch},
		},
	}
	persister := newMemoryPersister()

	// The marker sits in candidate index 2's body only.
	translator := &stubTranslator{failMarker: "r0 2번째"}

	balancer := newTestBalancer([]source.Adapter{adapter}, persister, translator, Options{
		CategoryTarget:       5,
		InitialBatch:         5,
		BackfillRounds:       0,
		TranslateConcurrency: 3,
	})

	result, err := balancer.CollectAndPersist(context.Background(), globaltime.Today())
	if err != nil {
		t.Fatalf("CollectAndPersist() error = %v", err)
	}
	if result.TranslationFailures != 1 {
		t.Fatalf("TranslationFailures = %d, want 1", result.TranslationFailures)
	}

	persister.mu.Lock()
	defer persister.mu.Unlock()
	if len(persister.persisted) != 5 {
		t.Fatalf("persisted %d articles, want 5", len(persister.persisted))
	}
	for i, article := range persister.persisted {
		if article.Title != batch[i].Title {
			t.Fatalf("article %d out of order: got %q, want %q", i, article.Title, batch[i].Title)
		}
		if i == 2 {
			if !article.TranslationFailed || article.TranslatedBody != batch[i].Body {
				t.Fatalf("article 2 should keep its original body with TranslationFailed set")
			}
			continue
		}
		if article.TranslationFailed || !strings.HasPrefix(article.TranslatedBody, "(번역) ") {
			t.Fatalf("article %d not translated: %+v", i, article)
		}
	}
}

// clockAdvancingAdapter moves the mocked clock forward after every fetch,
// simulating slow sources running against the deadline.
type clockAdvancingAdapter struct {
	*scriptedAdapter
	advance time.Duration
}

func (a *clockAdvancingAdapter) Fetch(ctx context.Context, date time.Time, category news.Category, limit int) ([]news.Candidate, error) {
	batch, err := a.scriptedAdapter.Fetch(ctx, date, category, limit)
	globaltime.SetMockTime(globaltime.Now().Add(a.advance))
	return batch, err
}

func TestRunDeadlineStopsBackfillButReturnsPartialResult(t *testing.T) {
	mockRunClock(t)

	// Each fetch costs two minutes of mocked time, so a five-minute
	// deadline lets the initial round finish and nothing more.
	adapter := &clockAdvancingAdapter{
		scriptedAdapter: &scriptedAdapter{
			name: "alpha",
			batches: map[news.Category][][]news.Candidate{
				news.CategoryDomestic: {fullBatch(news.CategoryDomestic, "r0", 10)},
				news.CategoryForeign:  {fullBatch(news.CategoryForeign, "r0", 10)},
				news.CategoryRelated: {
					fullBatch(news.CategoryRelated, "r0", 5),
					fullBatch(news.CategoryRelated, "r1", 5),
				},
			},
		},
		advance: 2 * time.Minute,
	}
	persister := newMemoryPersister()

	balancer := newTestBalancer([]source.Adapter{adapter}, persister, &stubTranslator{}, Options{
		CategoryTarget: 10,
		InitialBatch:   10,
		BackfillRounds: 2,
		RunDeadline:    5 * time.Minute,
	})

	result, err := balancer.CollectAndPersist(context.Background(), globaltime.Today())
	if err != nil {
		t.Fatalf("deadline expiry must not be an error, got %v", err)
	}
	if result.Rounds != 1 {
		t.Fatalf("Rounds = %d, want 1 (no backfill after the deadline)", result.Rounds)
	}
	if result.Complete() {
		t.Fatalf("expected the related shortfall to remain")
	}
	if got := result.Categories[news.CategoryRelated]; got.Collected != 5 {
		t.Fatalf("related collected = %d, want the partial 5", got.Collected)
	}
	if result.Persisted != 25 {
		t.Fatalf("Persisted = %d, want 25 items from the completed round", result.Persisted)
	}

	adapter.mu.Lock()
	callCount := len(adapter.calls)
	adapter.mu.Unlock()
	if callCount != 3 {
		t.Fatalf("fetches = %d, want 3 (one per category, no backfill fetch)", callCount)
	}
}

func TestRunClampsPastReferenceDate(t *testing.T) {
	ref := mockRunClock(t)

	adapter := &scriptedAdapter{
		name: "alpha",
		batches: map[news.Category][][]news.Candidate{
			news.CategoryDomestic: {fullBatch(news.CategoryDomestic, "r0", 10)},
			news.CategoryForeign:  {fullBatch(news.CategoryForeign, "r0", 10)},
			news.CategoryRelated:  {fullBatch(news.CategoryRelated, "r0", 10)},
		},
	}
	persister := newMemoryPersister()

	balancer := newTestBalancer([]source.Adapter{adapter}, persister, &stubTranslator{}, Options{
		CategoryTarget: 10,
		InitialBatch:   10,
	})

	// A stale request date still collects for today.
	result, err := balancer.CollectAndPersist(context.Background(), ref.AddDate(0, 0, -3))
	if err != nil {
		t.Fatalf("CollectAndPersist() error = %v", err)
	}
	if !globaltime.SameDay(result.ReferenceDate, ref) {
		t.Fatalf("ReferenceDate = %s, want clamped to %s", result.ReferenceDate, ref)
	}
	if !result.Complete() {
		t.Fatalf("expected candidates dated today to pass validation after clamping")
	}
}
