package validate

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/harvest/internal/globaltime"
	"horse.fit/harvest/internal/news"
)

// Normalizer converts raw candidates into articles pinned to a run's
// reference date. Rejections are logged, never raised.
type Normalizer struct {
	logger zerolog.Logger
}

func NewNormalizer(logger zerolog.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

var candidateDateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006.01.02",
	"20060102",
	time.RFC1123Z,
	time.RFC1123,
}

// Normalize validates one candidate against the reference date. The second
// return value is false when the candidate was filtered out.
func (n *Normalizer) Normalize(candidate news.Candidate, refDate time.Time) (news.Article, bool) {
	title := strings.TrimSpace(candidate.Title)
	body := strings.TrimSpace(candidate.Body)

	if title == "" {
		n.reject(candidate, "empty title")
		return news.Article{}, false
	}
	if body == "" {
		n.reject(candidate, "empty body")
		return news.Article{}, false
	}

	category, ok := news.ParseCategory(candidate.Category)
	if !ok {
		n.reject(candidate, "category outside closed set")
		return news.Article{}, false
	}

	published, ok := parseCandidateDate(candidate.PublishedDate)
	if !ok {
		n.reject(candidate, "unparseable published date")
		return news.Article{}, false
	}
	if !globaltime.SameDay(published, refDate) {
		n.reject(candidate, "published date outside reference day")
		return news.Article{}, false
	}

	// Unknown topics degrade to none rather than rejecting the item.
	topic, _ := news.ParseTopic(candidate.Topic)

	return news.Article{
		Title:         title,
		Body:          body,
		SourceCountry: strings.TrimSpace(candidate.SourceCountry),
		SourceMedia:   strings.TrimSpace(candidate.SourceMedia),
		Category:      category,
		Topic:         topic,
		PublishedDate: globaltime.DayOf(refDate),
		CanonicalLink: strings.TrimSpace(candidate.CanonicalLink),
	}, true
}

func (n *Normalizer) reject(candidate news.Candidate, reason string) {
	n.logger.Debug().
		Str("source", candidate.SourceName).
		Str("category", candidate.Category).
		Str("title", truncate(candidate.Title, 80)).
		Str("reason", reason).
		Msg("candidate rejected by validator")
}

func parseCandidateDate(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range candidateDateLayouts {
		if ts, err := time.ParseInLocation(layout, trimmed, globaltime.Seoul()); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
