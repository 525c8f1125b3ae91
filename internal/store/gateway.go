package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"horse.fit/harvest/internal/db"
	"horse.fit/harvest/internal/dedup"
	"horse.fit/harvest/internal/news"
)

const (
	DefaultChunkSize   = 10
	DefaultConcurrency = 10
)

// Inserter persists one article. Unique-constraint violations must surface
// unchanged so the gateway can count them as skipped duplicates.
type Inserter interface {
	InsertArticle(ctx context.Context, item news.Article) (int64, error)
}

// Checker runs the pre-insert duplicate check.
type Checker interface {
	Check(ctx context.Context, item news.Article) (dedup.Decision, error)
}

// BatchResult reports one InsertBatch invocation.
type BatchResult struct {
	Success      int
	Failed       int
	Skipped      int
	PersistedIDs []int64
}

// Gateway writes accepted articles in concurrent chunks, running the
// duplicate check just before each insert. A storage-level conflict is the
// same outcome as an engine-detected duplicate: skipped, never failed.
type Gateway struct {
	inserter    Inserter
	checker     Checker
	logger      zerolog.Logger
	chunkSize   int
	concurrency int
}

func NewGateway(inserter Inserter, checker Checker, logger zerolog.Logger, chunkSize, concurrency int) *Gateway {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Gateway{
		inserter:    inserter,
		checker:     checker,
		logger:      logger,
		chunkSize:   chunkSize,
		concurrency: concurrency,
	}
}

// InsertBatch persists items chunk by chunk. Chunks run concurrently up to
// the configured bound; a failing item never aborts its chunk or the batch.
func (g *Gateway) InsertBatch(ctx context.Context, items []news.Article) (BatchResult, error) {
	if g == nil || g.inserter == nil {
		return BatchResult{}, fmt.Errorf("persistence gateway is not initialized")
	}
	if len(items) == 0 {
		return BatchResult{}, nil
	}

	chunks := chunkItems(items, g.chunkSize)
	results := make([]BatchResult, len(chunks))

	var wg sync.WaitGroup
	sem := make(chan struct{}, g.concurrency)
	for idx, chunk := range chunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, chunk []news.Article) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = g.insertChunk(ctx, chunk)
		}(idx, chunk)
	}
	wg.Wait()

	total := BatchResult{}
	for _, r := range results {
		total.Success += r.Success
		total.Failed += r.Failed
		total.Skipped += r.Skipped
		total.PersistedIDs = append(total.PersistedIDs, r.PersistedIDs...)
	}
	sort.Slice(total.PersistedIDs, func(i, j int) bool {
		return total.PersistedIDs[i] < total.PersistedIDs[j]
	})
	return total, nil
}

func (g *Gateway) insertChunk(ctx context.Context, chunk []news.Article) BatchResult {
	result := BatchResult{}
	for _, item := range chunk {
		g.insertOne(ctx, item, &result)
	}
	return result
}

func (g *Gateway) insertOne(ctx context.Context, item news.Article, result *BatchResult) {
	if g.checker != nil {
		decision, err := g.checker.Check(ctx, item)
		if err != nil {
			// The unique constraint backstops the exact check; a failed
			// lookup falls through to the insert rather than dropping data.
			g.logger.Warn().Err(err).Str("title", item.Title).Msg("dedup check failed, attempting insert")
		} else if decision.IsDuplicate {
			result.Skipped++
			return
		}
	}

	id, err := g.inserter.InsertArticle(ctx, item)
	if err != nil {
		if db.IsUniqueViolation(err) {
			result.Skipped++
			return
		}
		g.logger.Error().Err(err).Str("title", item.Title).Msg("article insert failed")
		result.Failed++
		return
	}

	result.Success++
	result.PersistedIDs = append(result.PersistedIDs, id)
}

func chunkItems(items []news.Article, size int) [][]news.Article {
	chunks := make([][]news.Article, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
