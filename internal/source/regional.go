package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/harvest/internal/news"
	"horse.fit/harvest/internal/reader"
)

// RegionalAPIAdapter pulls candidates from a regional news aggregation API.
// The API often truncates bodies, so short ones are re-fetched from the
// article page and run through readability extraction.
type RegionalAPIAdapter struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	enricher *reader.Enricher
	logger   zerolog.Logger
}

func NewRegionalAPIAdapter(baseURL, apiKey string, enricher *reader.Enricher, logger zerolog.Logger) *RegionalAPIAdapter {
	return &RegionalAPIAdapter{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:   strings.TrimSpace(apiKey),
		client:   &http.Client{Timeout: 20 * time.Second},
		enricher: enricher,
		logger:   logger.With().Str("source", "regional").Logger(),
	}
}

func (a *RegionalAPIAdapter) Name() string {
	return "regional"
}

func (a *RegionalAPIAdapter) Fetch(ctx context.Context, date time.Time, category news.Category, limit int) ([]news.Candidate, error) {
	if a == nil {
		return nil, fmt.Errorf("regional adapter is nil")
	}
	if a.baseURL == "" {
		return nil, fmt.Errorf("regional API base URL is not configured")
	}
	if limit < 1 {
		return nil, nil
	}

	endpoint := a.baseURL + "/v1/articles?" + url.Values{
		"date":     []string{date.Format("2006-01-02")},
		"category": []string{category.String()},
		"size":     []string{strconv.Itoa(limit)},
	}.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build regional request: %w", err)
	}
	httpReq.Header.Set("X-API-Key", a.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send regional request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read regional response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Source: a.Name(), RetryAfter: retryAfterHint(resp.Header)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("regional endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed regionalResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode regional response: %w", err)
	}

	return a.mapItems(ctx, parsed.Articles, category, limit), nil
}

func (a *RegionalAPIAdapter) mapItems(ctx context.Context, items []regionalItem, category news.Category, limit int) []news.Candidate {
	out := make([]news.Candidate, 0, limit)
	for _, item := range items {
		if len(out) >= limit {
			break
		}

		title := strings.TrimSpace(item.Title)
		body := strings.TrimSpace(item.Content)
		if title == "" || body == "" {
			continue
		}

		link := strings.TrimSpace(item.URL)
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
			SourceCountry: strings.TrimSpace(item.Country),
			SourceMedia:   strings.TrimSpace(item.Media),
			Category:      category.String(),
			Topic:         strings.TrimSpace(item.Topic),
			PublishedDate: strings.TrimSpace(item.PublishedAt),
			CanonicalLink: link,
			SourceName:    a.Name(),
		})
	}
	return out
}

type regionalResponse struct {
	Articles []regionalItem `json:"articles"`
}

type regionalItem struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	Country     string `json:"country"`
	Media       string `json:"media"`
	Topic       string `json:"topic"`
	PublishedAt string `json:"published_at"`
	URL         string `json:"url"`
}
