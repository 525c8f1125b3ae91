package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"horse.fit/harvest/internal/news"
)

const (
	// DefaultGenerativeEndpoint points to a local OpenAI-compatible endpoint.
	DefaultGenerativeEndpoint = "http://127.0.0.1:8845/v1"
	// DefaultGenerativeModel is the default candidate generation model.
	DefaultGenerativeModel = "Qwen/Qwen2.5-14B-Instruct"

	// Generated bodies shorter than this are discarded before validation.
	generativeMinBodyRunes = 80
)

// GenerativeAdapter asks an OpenAI-compatible chat endpoint to surface news
// candidates for a date and category. Responses are schema-validated before
// they enter the pipeline.
type GenerativeAdapter struct {
	endpointURL string
	model       string
	client      *http.Client
}

func NewGenerativeAdapter(endpoint, model string) *GenerativeAdapter {
	trimmedModel := strings.TrimSpace(model)
	if trimmedModel == "" {
		trimmedModel = DefaultGenerativeModel
	}
	return &GenerativeAdapter{
		endpointURL: generativeChatURL(endpoint),
		model:       trimmedModel,
		client: &http.Client{
			Timeout: 180 * time.Second,
		},
	}
}

func (a *GenerativeAdapter) Name() string {
	return "generative"
}

func (a *GenerativeAdapter) Fetch(ctx context.Context, date time.Time, category news.Category, limit int) ([]news.Candidate, error) {
	if a == nil {
		return nil, fmt.Errorf("generative adapter is nil")
	}
	if limit < 1 {
		return nil, nil
	}

	body, err := json.Marshal(generativeChatRequest{
		Model: a.model,
		Messages: []generativeChatMessage{
			{
				Role:    "user",
				Content: buildCandidatePrompt(date, category, limit),
			},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpointURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send generation request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read generation response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Source: a.Name(), RetryAfter: retryAfterHint(resp.Header)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("generation endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed generativeChatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode generation response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("generation response missing choices")
	}

	payload, err := validateCandidatePayload([]byte(extractJSONDocument(parsed.Choices[0].Message.Content)))
	if err != nil {
		return nil, fmt.Errorf("validate generated payload: %w", err)
	}

	return a.mapCandidates(payload, date, category, limit), nil
}

func (a *GenerativeAdapter) mapCandidates(payload *candidatePayload, date time.Time, category news.Category, limit int) []news.Candidate {
	wantDate := date.Format("2006-01-02")
	out := make([]news.Candidate, 0, limit)
	for _, item := range payload.Articles {
		if len(out) >= limit {
			break
		}
		title := strings.TrimSpace(item.Title)
		body := strings.TrimSpace(item.Body)
		if title == "" || len([]rune(body)) < generativeMinBodyRunes {
			continue
		}
		if !strings.HasPrefix(strings.TrimSpace(item.PublishedDate), wantDate) {
			continue
		}
		out = append(out, news.Candidate{
			Title:         title,
			Body:          body,
			SourceCountry: strings.TrimSpace(item.SourceCountry),
			SourceMedia:   strings.TrimSpace(item.SourceMedia),
			Category:      category.String(),
			Topic:         strings.TrimSpace(item.Topic),
			PublishedDate: strings.TrimSpace(item.PublishedDate),
			CanonicalLink: strings.TrimSpace(item.CanonicalLink),
			SourceName:    a.Name(),
		})
	}
	return out
}

func buildCandidatePrompt(date time.Time, category news.Category, limit int) string {
	var scope string
	switch category {
	case news.CategoryDomestic:
		scope = "published by South Korean media about domestic affairs"
	case news.CategoryForeign:
		scope = "published by international media about world affairs"
	case news.CategoryRelated:
		scope = "published by international media and related to Korea"
	default:
		scope = "published by any media"
	}

	return fmt.Sprintf(
		"List up to %d real news articles %s, dated %s. "+
			"Respond with a single JSON object only, no prose or code fences, shaped as "+
			`{"articles":[{"title":"...","body":"...","source_country":"...","source_media":"...","topic":"...","published_date":"%s","canonical_link":"https://..."}]}. `+
			"The body field must carry the full article text. Allowed topic values: science, politics, economy, society, culture, sports, entertainment, technology.",
		limit, scope, date.Format("2006-01-02"), date.Format("2006-01-02"),
	)
}

// extractJSONDocument tolerates models that wrap JSON in code fences or
// surrounding prose.
func extractJSONDocument(content string) string {
	content = strings.TrimSpace(content)
	if fenced, ok := strings.CutPrefix(content, "```json"); ok {
		content = fenced
	} else if fenced, ok := strings.CutPrefix(content, "```"); ok {
		content = fenced
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	content = strings.TrimSpace(content)

	start := strings.IndexAny(content, "{[")
	if start < 0 {
		return content
	}
	end := strings.LastIndexAny(content, "}]")
	if end < start {
		return content
	}
	return content[start : end+1]
}

func generativeChatURL(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = DefaultGenerativeEndpoint
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}

	parsed, err := url.Parse(endpoint)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return DefaultGenerativeEndpoint + "/chat/completions"
	}

	path := strings.TrimRight(parsed.Path, "/")
	switch {
	case strings.HasSuffix(path, "/chat/completions"):
		parsed.Path = path
	case strings.HasSuffix(path, "/v1"):
		parsed.Path = path + "/chat/completions"
	case path == "":
		parsed.Path = "/v1/chat/completions"
	default:
		parsed.Path = path + "/v1/chat/completions"
	}
	return parsed.String()
}

// retryAfterHint reads both Retry-After forms: delay seconds and an
// HTTP date. An unparseable or already-elapsed value yields zero.
func retryAfterHint(header http.Header) time.Duration {
	raw := strings.TrimSpace(header.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	if secs, err := time.ParseDuration(raw + "s"); err == nil {
		return secs
	}
	if at, err := http.ParseTime(raw); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}

type generativeChatRequest struct {
	Model       string                  `json:"model"`
	Messages    []generativeChatMessage `json:"messages"`
	Temperature float64                 `json:"temperature,omitempty"`
}

type generativeChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type generativeChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
