package collector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/harvest/internal/globaltime"
	"horse.fit/harvest/internal/halluc"
	"horse.fit/harvest/internal/news"
	"horse.fit/harvest/internal/source"
	"horse.fit/harvest/internal/store"
	"horse.fit/harvest/internal/translation"
	"horse.fit/harvest/internal/validate"
)

const (
	DefaultCategoryTarget = 10
	DefaultInitialBatch   = 10
	DefaultBackfillRounds = 2

	// Backfill never asks a source for fewer than this many items; tiny
	// requests waste a round when most of a batch gets filtered.
	minBackfillRequest = 3
	backfillOverfetch  = 1.5
)

// ErrNoSources is returned when a run starts with no adapters at all.
// Individual source failures never abort a run; having nothing to ask does.
var ErrNoSources = errors.New("no source adapters configured")

// Translator is the slice of translation.Translator the balancer needs.
type Translator interface {
	TranslateIfNeeded(ctx context.Context, text string) translation.Outcome
}

// Persister is the slice of store.Gateway the balancer needs.
type Persister interface {
	InsertBatch(ctx context.Context, items []news.Article) (store.BatchResult, error)
}

// Options bounds one collection run.
type Options struct {
	CategoryTarget       int
	InitialBatch         int
	BackfillRounds       int
	TranslateConcurrency int
	// RunDeadline caps the whole run; zero means unbounded. The deadline is
	// checked before each new category batch, so in-flight work completes.
	RunDeadline time.Duration
}

// CategoryOutcome reports fill progress for one category.
type CategoryOutcome struct {
	Collected int
	Target    int
}

// RunResult summarizes one collection run. A shortfall after all backfill
// rounds is reported here, never as an error.
type RunResult struct {
	ReferenceDate       time.Time
	Persisted           int
	Failed              int
	DuplicatesSkipped   int
	Rejected            int
	Suspicious          int
	TranslationFailures int
	Rounds              int
	Categories          map[news.Category]CategoryOutcome
}

// Total returns every candidate the run fully processed.
func (r RunResult) Total() int {
	return r.Persisted + r.Failed + r.DuplicatesSkipped
}

// Complete reports whether every category reached its target.
func (r RunResult) Complete() bool {
	for _, outcome := range r.Categories {
		if outcome.Collected < outcome.Target {
			return false
		}
	}
	return true
}

// Balancer orchestrates one run: fetch per category from every source,
// validate, score, translate, and persist, then backfill categories that
// fell short of target.
type Balancer struct {
	adapters   []source.Adapter
	normalizer *validate.Normalizer
	translator Translator
	persister  Persister
	logger     zerolog.Logger
	opts       Options
}

func NewBalancer(adapters []source.Adapter, normalizer *validate.Normalizer, translator Translator, persister Persister, logger zerolog.Logger, opts Options) *Balancer {
	if opts.CategoryTarget < 1 {
		opts.CategoryTarget = DefaultCategoryTarget
	}
	if opts.InitialBatch < 1 {
		opts.InitialBatch = DefaultInitialBatch
	}
	if opts.BackfillRounds < 0 {
		opts.BackfillRounds = DefaultBackfillRounds
	}
	if opts.TranslateConcurrency < 1 {
		opts.TranslateConcurrency = 1
	}
	return &Balancer{
		adapters:   adapters,
		normalizer: normalizer,
		translator: translator,
		persister:  persister,
		logger:     logger,
		opts:       opts,
	}
}

// CollectAndPersist runs one full collection for refDate. Dates outside the
// current Seoul day are clamped to today.
func (b *Balancer) CollectAndPersist(ctx context.Context, refDate time.Time) (RunResult, error) {
	if b == nil {
		return RunResult{}, fmt.Errorf("balancer is nil")
	}
	if len(b.adapters) == 0 {
		return RunResult{}, ErrNoSources
	}

	today := globaltime.Today()
	if refDate.IsZero() || !globaltime.SameDay(refDate, today) {
		b.logger.Info().
			Time("requested", refDate).
			Time("clamped", today).
			Msg("reference date outside current day, clamping to today")
		refDate = today
	}
	refDate = globaltime.DayOf(refDate)

	var deadlineAt time.Time
	if b.opts.RunDeadline > 0 {
		deadlineAt = globaltime.Now().Add(b.opts.RunDeadline)
	}

	result := RunResult{
		ReferenceDate: refDate,
		Categories:    make(map[news.Category]CategoryOutcome, len(news.Categories())),
	}
	for _, category := range news.Categories() {
		result.Categories[category] = CategoryOutcome{Target: b.opts.CategoryTarget}
	}

	// Sources that report a rate limit sit out the rest of the run.
	throttled := make(map[string]bool)

	maxRounds := 1 + b.opts.BackfillRounds
	for round := 0; round < maxRounds; round++ {
		deficits := b.deficits(result)
		if len(deficits) == 0 {
			break
		}
		if b.pastDeadline(deadlineAt) {
			b.logger.Warn().Int("round", round).Msg("run deadline reached, stopping before next round")
			break
		}

		result.Rounds = round + 1
		b.logger.Info().
			Int("round", round).
			Interface("deficits", deficitLog(deficits)).
			Msg("starting collection round")

		for _, category := range news.Categories() {
			deficit, ok := deficits[category]
			if !ok {
				continue
			}
			if b.pastDeadline(deadlineAt) {
				b.logger.Warn().Str("category", category.String()).Msg("run deadline reached, skipping remaining categories")
				break
			}

			request := b.opts.InitialBatch
			if round > 0 {
				request = backfillRequest(deficit)
			}

			candidates := b.collectCategory(ctx, refDate, category, request, throttled)
			b.processBatch(ctx, refDate, category, deficit, candidates, &result)
		}
	}

	b.logger.Info().
		Int("persisted", result.Persisted).
		Int("failed", result.Failed).
		Int("duplicates", result.DuplicatesSkipped).
		Int("rejected", result.Rejected).
		Int("suspicious", result.Suspicious).
		Int("translation_failures", result.TranslationFailures).
		Int("rounds", result.Rounds).
		Bool("complete", result.Complete()).
		Msg("collection run finished")
	return result, nil
}

// deficits returns categories still short of target.
func (b *Balancer) deficits(result RunResult) map[news.Category]int {
	deficits := make(map[news.Category]int)
	for category, outcome := range result.Categories {
		if gap := outcome.Target - outcome.Collected; gap > 0 {
			deficits[category] = gap
		}
	}
	return deficits
}

// backfillRequest over-fetches relative to the deficit so that filtering
// losses still leave enough items to close the gap.
func backfillRequest(deficit int) int {
	request := int(math.Ceil(float64(deficit) * backfillOverfetch))
	if request < minBackfillRequest {
		request = minBackfillRequest
	}
	return request
}

func (b *Balancer) pastDeadline(deadlineAt time.Time) bool {
	return !deadlineAt.IsZero() && globaltime.Now().After(deadlineAt)
}

// collectCategory asks every available source for candidates. A failing
// source is logged and skipped; a rate-limited source is benched for the
// rest of the run.
func (b *Balancer) collectCategory(ctx context.Context, refDate time.Time, category news.Category, request int, throttled map[string]bool) []news.Candidate {
	var candidates []news.Candidate
	for _, adapter := range b.adapters {
		if throttled[adapter.Name()] {
			continue
		}

		batch, err := adapter.Fetch(ctx, refDate, category, request)
		if err != nil {
			if source.IsRateLimited(err) {
				throttled[adapter.Name()] = true
				b.logger.Warn().
					Err(err).
					Str("source", adapter.Name()).
					Msg("source rate limited, benching for the rest of the run")
				continue
			}
			b.logger.Warn().
				Err(err).
				Str("source", adapter.Name()).
				Str("category", category.String()).
				Msg("source fetch failed, continuing with remaining sources")
			continue
		}
		candidates = append(candidates, batch...)
	}
	return candidates
}

// processBatch runs one category batch through the full pipeline and folds
// the outcome into the running result.
func (b *Balancer) processBatch(ctx context.Context, refDate time.Time, category news.Category, deficit int, candidates []news.Candidate, result *RunResult) {
	if len(candidates) == 0 {
		return
	}

	articles := make([]news.Article, 0, len(candidates))
	for _, candidate := range candidates {
		article, ok := b.normalizer.Normalize(candidate, refDate)
		if !ok {
			result.Rejected++
			continue
		}
		if article.Category != category {
			result.Rejected++
			continue
		}

		if score := halluc.Evaluate(article.Title, article.Body, article.SourceMedia); score.Suspicious {
			result.Suspicious++
			b.logger.Debug().
				Int("score", score.Score).
				Strs("reasons", score.Reasons).
				Str("title", article.Title).
				Msg("candidate flagged as suspicious, dropping")
			continue
		}
		articles = append(articles, article)
	}

	// Items beyond the category's remaining gap are dropped here rather
	// than persisted past target.
	if len(articles) > deficit {
		articles = articles[:deficit]
	}
	if len(articles) == 0 {
		return
	}

	b.translateAll(ctx, articles)
	for _, article := range articles {
		if article.TranslationFailed {
			result.TranslationFailures++
		}
	}

	batchResult, err := b.persister.InsertBatch(ctx, articles)
	if err != nil {
		b.logger.Error().Err(err).Str("category", category.String()).Msg("persist batch failed")
		result.Failed += len(articles)
		return
	}

	result.Persisted += batchResult.Success
	result.Failed += batchResult.Failed
	result.DuplicatesSkipped += batchResult.Skipped

	outcome := result.Categories[category]
	outcome.Collected += batchResult.Success
	result.Categories[category] = outcome
}

// translateAll runs the bounded translation fan-out, writing results back in
// place so batch order is preserved.
func (b *Balancer) translateAll(ctx context.Context, articles []news.Article) {
	if b.translator == nil {
		return
	}

	workers := b.opts.TranslateConcurrency
	if workers > len(articles) {
		workers = len(articles)
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indexes {
				outcome := b.translator.TranslateIfNeeded(ctx, articles[i].Body)
				articles[i].TranslatedBody = outcome.Text
				articles[i].TranslationFailed = outcome.Failed
			}
		}()
	}

	for i := range articles {
		indexes <- i
	}
	close(indexes)
	wg.Wait()
}

func deficitLog(deficits map[news.Category]int) map[string]int {
	out := make(map[string]int, len(deficits))
	for category, gap := range deficits {
		out[category.String()] = gap
	}
	return out
}
