package source

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"horse.fit/harvest/internal/globaltime"
	"horse.fit/harvest/internal/news"
)

// Category queries for the news search endpoint. The search API has no
// category concept of its own, so each bucket maps to a query expression.
var searchCategoryQueries = map[news.Category]string{
	news.CategoryDomestic: "국내 뉴스",
	news.CategoryForeign:  "해외 국제 뉴스",
	news.CategoryRelated:  "한국 관련 해외 보도",
}

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// SearchAPIAdapter pulls candidates from a Naver-style news search API.
// Results carry only snippets, so its candidates lean on downstream
// enrichment for full bodies.
type SearchAPIAdapter struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client
}

func NewSearchAPIAdapter(baseURL, clientID, clientSecret string) *SearchAPIAdapter {
	return &SearchAPIAdapter{
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		clientID:     strings.TrimSpace(clientID),
		clientSecret: strings.TrimSpace(clientSecret),
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

func (a *SearchAPIAdapter) Name() string {
	return "searchapi"
}

func (a *SearchAPIAdapter) Fetch(ctx context.Context, date time.Time, category news.Category, limit int) ([]news.Candidate, error) {
	if a == nil {
		return nil, fmt.Errorf("search adapter is nil")
	}
	if a.baseURL == "" {
		return nil, fmt.Errorf("search API base URL is not configured")
	}
	if limit < 1 {
		return nil, nil
	}

	query, ok := searchCategoryQueries[category]
	if !ok {
		return nil, fmt.Errorf("unsupported category %q", category)
	}

	// The API pages in display-sized chunks; over-fetch so that date
	// filtering still leaves enough items.
	display := limit * 3
	if display > 100 {
		display = 100
	}

	endpoint := a.baseURL + "/v1/search/news.json?" + url.Values{
		"query":   []string{query},
		"display": []string{strconv.Itoa(display)},
		"sort":    []string{"date"},
	}.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	httpReq.Header.Set("X-Naver-Client-Id", a.clientID)
	httpReq.Header.Set("X-Naver-Client-Secret", a.clientSecret)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send search request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Source: a.Name(), RetryAfter: retryAfterHint(resp.Header)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("search endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed searchResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	return a.mapItems(parsed.Items, date, category, limit), nil
}

func (a *SearchAPIAdapter) mapItems(items []searchItem, date time.Time, category news.Category, limit int) []news.Candidate {
	out := make([]news.Candidate, 0, limit)
	for _, item := range items {
		if len(out) >= limit {
			break
		}

		published, err := time.Parse(time.RFC1123Z, strings.TrimSpace(item.PubDate))
		if err != nil {
			continue
		}
		if !globaltime.SameDay(published, date) {
			continue
		}

		title := stripMarkup(item.Title)
		body := stripMarkup(item.Description)
		if title == "" || body == "" {
			continue
		}

		link := strings.TrimSpace(item.OriginalLink)
		if link == "" {
			link = strings.TrimSpace(item.Link)
		}

		out = append(out, news.Candidate{
			Title:         title,
			Body:          body,
			SourceCountry: "대한민국",
			SourceMedia:   mediaFromLink(link),
			Category:      category.String(),
			PublishedDate: published.In(globaltime.Seoul()).Format("2006-01-02"),
			CanonicalLink: link,
			SourceName:    a.Name(),
		})
	}
	return out
}

// stripMarkup removes the <b> highlighting tags and HTML entities the
// search API embeds in titles and snippets.
func stripMarkup(raw string) string {
	cleaned := htmlTagPattern.ReplaceAllString(raw, "")
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

func mediaFromLink(link string) string {
	parsed, err := url.Parse(link)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return strings.TrimPrefix(parsed.Host, "www.")
}

type searchResponse struct {
	Items []searchItem `json:"items"`
}

type searchItem struct {
	Title        string `json:"title"`
	OriginalLink string `json:"originallink"`
	Link         string `json:"link"`
	Description  string `json:"description"`
	PubDate      string `json:"pubDate"`
}
