package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"horse.fit/harvest/internal/globaltime"
	"horse.fit/harvest/internal/news"
	"horse.fit/harvest/internal/reader"
)

// RSSAdapter pulls candidates from configured per-category RSS feeds.
// A feed that fails to fetch or parse is skipped; the adapter errors only
// when no feed for the category could be read at all. Items that carry
// only a description snippet get their body re-fetched from the article
// page through readability extraction.
type RSSAdapter struct {
	feeds    map[string][]string
	client   *http.Client
	enricher *reader.Enricher
	logger   zerolog.Logger
}

func NewRSSAdapter(feeds map[string][]string, enricher *reader.Enricher, logger zerolog.Logger) *RSSAdapter {
	return &RSSAdapter{
		feeds:    feeds,
		client:   &http.Client{Timeout: 15 * time.Second},
		enricher: enricher,
		logger:   logger.With().Str("source", "rss").Logger(),
	}
}

func (a *RSSAdapter) Name() string {
	return "rss"
}

// HasFeeds reports whether any category has at least one configured feed.
func (a *RSSAdapter) HasFeeds() bool {
	if a == nil {
		return false
	}
	for _, urls := range a.feeds {
		if len(urls) > 0 {
			return true
		}
	}
	return false
}

func (a *RSSAdapter) Fetch(ctx context.Context, date time.Time, category news.Category, limit int) ([]news.Candidate, error) {
	if a == nil {
		return nil, fmt.Errorf("rss adapter is nil")
	}
	if limit < 1 {
		return nil, nil
	}

	feedURLs := a.feeds[category.String()]
	if len(feedURLs) == 0 {
		return nil, nil
	}

	parser := gofeed.NewParser()
	out := make([]news.Candidate, 0, limit)
	readable := 0

	for _, feedURL := range feedURLs {
		if len(out) >= limit {
			break
		}

		feed, err := a.fetchFeed(ctx, parser, feedURL)
		if err != nil {
			a.logger.Warn().Err(err).Str("feed", feedURL).Msg("feed fetch failed, skipping")
			continue
		}
		readable++

		for _, item := range feed.Items {
			if len(out) >= limit {
				break
			}

			published := itemPublished(item)
			if published.IsZero() || !globaltime.SameDay(published, date) {
				continue
			}

			title := strings.TrimSpace(item.Title)
			body := strings.TrimSpace(item.Content)
			if body == "" {
				body = strings.TrimSpace(item.Description)
			}
			if title == "" || body == "" {
				continue
			}
			body = stripMarkup(body)

			link := strings.TrimSpace(item.Link)
			if a.enricher != nil && link != "" && reader.NeedsEnrichment(body) {
				if full, err := a.enricher.FetchBody(ctx, link); err == nil {
					body = full
				} else {
					a.logger.Debug().Err(err).Str("link", link).Msg("body enrichment failed, keeping snippet")
				}
			}

			out = append(out, news.Candidate{
				Title:         title,
				Body:          body,
				SourceMedia:   strings.TrimSpace(feed.Title),
				Category:      category.String(),
				PublishedDate: published.In(globaltime.Seoul()).Format("2006-01-02"),
				CanonicalLink: link,
				SourceName:    a.Name(),
			})
		}
	}

	if readable == 0 {
		return nil, fmt.Errorf("no readable feeds for category %q", category)
	}
	return out, nil
}

func (a *RSSAdapter) fetchFeed(ctx context.Context, parser *gofeed.Parser, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("feed status %d", resp.StatusCode)
	}

	feed, err := parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

func itemPublished(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}
