package dedup

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"horse.fit/harvest/internal/news"
)

const (
	// DefaultWindowDays is the trailing range fuzzy comparison looks at.
	DefaultWindowDays = 7
	// DefaultThreshold is the combined similarity at which an item is a duplicate.
	DefaultThreshold = 0.85

	titleWeight      = 0.5
	bodyWeight       = 0.5
	titleBoostFloor  = 0.90
	titleBoostFactor = 0.2
)

// StoredArticle is the slice of a persisted item the fuzzy check needs.
type StoredArticle struct {
	ID            int64
	Title         string
	Body          string
	PublishedDate time.Time
}

// Store is the read-only query surface the engine runs against.
type Store interface {
	FindByCanonicalLink(ctx context.Context, link string) (int64, bool, error)
	FindRecentForSimilarity(ctx context.Context, since time.Time) ([]StoredArticle, error)
}

// Decision is the outcome of one duplicate check.
type Decision struct {
	IsDuplicate bool
	MatchedID   int64
	Similarity  float64
}

// Engine performs the two-stage duplicate check: exact canonical-link
// lookup first, then fuzzy Jaccard similarity over the trailing window.
type Engine struct {
	store      Store
	logger     zerolog.Logger
	windowDays int
	threshold  float64
}

func NewEngine(store Store, logger zerolog.Logger, windowDays int, threshold float64) *Engine {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Engine{
		store:      store,
		logger:     logger,
		windowDays: windowDays,
		threshold:  threshold,
	}
}

// Check runs the exact-link check and, when that does not match, the fuzzy
// check against items published within the trailing window before refDate.
func (e *Engine) Check(ctx context.Context, article news.Article) (Decision, error) {
	if e == nil || e.store == nil {
		return Decision{}, fmt.Errorf("dedup engine is not initialized")
	}

	if link, ok := canonicalLink(article.CanonicalLink); ok {
		matchedID, found, err := e.store.FindByCanonicalLink(ctx, link)
		if err != nil {
			return Decision{}, fmt.Errorf("exact-link lookup: %w", err)
		}
		if found {
			return Decision{IsDuplicate: true, MatchedID: matchedID, Similarity: 1}, nil
		}
	}

	since := article.PublishedDate.AddDate(0, 0, -e.windowDays)
	recent, err := e.store.FindRecentForSimilarity(ctx, since)
	if err != nil {
		return Decision{}, fmt.Errorf("fuzzy window lookup: %w", err)
	}

	best := Decision{}
	for _, stored := range recent {
		similarity := CombinedSimilarity(article.Title, article.Body, stored.Title, stored.Body)
		if similarity >= e.threshold && similarity > best.Similarity {
			best = Decision{IsDuplicate: true, MatchedID: stored.ID, Similarity: similarity}
		}
	}
	if best.IsDuplicate {
		e.logger.Debug().
			Int64("matched_id", best.MatchedID).
			Float64("similarity", best.Similarity).
			Msg("fuzzy duplicate detected")
	}
	return best, nil
}

// CombinedSimilarity weighs title and body token Jaccard equally. When the
// titles are near-identical (>= 0.90) the boosted title similarity,
// titleSim + (titleSim - 0.90) × 0.2, takes over so a rewritten body cannot
// hide a re-published story. The result is capped at 1.
func CombinedSimilarity(titleA, bodyA, titleB, bodyB string) float64 {
	titleSim := Jaccard(titleA, titleB)
	bodySim := Jaccard(bodyA, bodyB)

	combined := titleWeight*titleSim + bodyWeight*bodySim
	if titleSim >= titleBoostFloor {
		boosted := titleSim + (titleSim-titleBoostFloor)*titleBoostFactor
		if boosted > combined {
			combined = boosted
		}
	}
	if combined > 1 {
		combined = 1
	}
	return combined
}

// Jaccard is intersection over union of word-token sets. Two empty sets
// are defined as identical (1); one empty set against a non-empty one is 0.
func Jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if field != "" {
			set[field] = struct{}{}
		}
	}
	return set
}

// canonicalLink validates that a link is a well-formed absolute URL.
// Malformed links fall through to the fuzzy check.
func canonicalLink(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", false
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return "", false
	}
	return parsed.String(), true
}
