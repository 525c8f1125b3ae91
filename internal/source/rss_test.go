package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/harvest/internal/news"
	"horse.fit/harvest/internal/reader"
)

const rssFeedTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>연합신문 속보</title>
<item>
<title>지역 경제 동향 브리핑</title>
<link>%s</link>
<description>짧은 요약만 담긴 항목입니다.</description>
<pubDate>Mon, 02 Mar 2026 09:00:00 +0900</pubDate>
</item>
</channel>
</rss>`

func serveRSSFeed(t *testing.T, articleURL string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
		fmt.Fprintf(w, rssFeedTemplate, articleURL)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRSSFetchEnrichesSnippetBodies(t *testing.T) {
	t.Parallel()

	fullBody := strings.Repeat("서울 지역 현장 취재 결과를 정리한 본문 문장입니다. ", 12)
	articles := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, fullBody)
	}))
	defer articles.Close()

	feed := serveRSSFeed(t, articles.URL+"/full")
	adapter := NewRSSAdapter(
		map[string][]string{"domestic": {feed.URL}},
		reader.NewEnricher(nil),
		zerolog.Nop(),
	)

	date := time.Date(2026, 3, 2, 12, 0, 0, 0, time.FixedZone("KST", 9*3600))
	got, err := adapter.Fetch(context.Background(), date, news.CategoryDomestic, 5)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Fetch() returned %d candidates, want 1", len(got))
	}
	if want := reader.CleanText(fullBody); got[0].Body != want {
		t.Fatalf("Body = %q, want the enriched page text", got[0].Body)
	}
	if got[0].CanonicalLink != articles.URL+"/full" {
		t.Fatalf("CanonicalLink = %q", got[0].CanonicalLink)
	}
}

func TestRSSFetchKeepsSnippetWhenEnrichmentFails(t *testing.T) {
	t.Parallel()

	articles := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusInternalServerError)
	}))
	defer articles.Close()

	feed := serveRSSFeed(t, articles.URL+"/full")
	adapter := NewRSSAdapter(
		map[string][]string{"domestic": {feed.URL}},
		reader.NewEnricher(nil),
		zerolog.Nop(),
	)

	date := time.Date(2026, 3, 2, 12, 0, 0, 0, time.FixedZone("KST", 9*3600))
	got, err := adapter.Fetch(context.Background(), date, news.CategoryDomestic, 5)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Fetch() returned %d candidates, want 1", len(got))
	}
	if got[0].Body != "짧은 요약만 담긴 항목입니다." {
		t.Fatalf("Body = %q, want the original snippet", got[0].Body)
	}
}
