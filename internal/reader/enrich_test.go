package reader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCleanTextCollapsesWhitespace(t *testing.T) {
	t.Parallel()

	raw := "  첫 번째   문단입니다.  \r\n\r\n\t두 번째\t문단입니다.  \n\n\n"
	got := CleanText(raw)
	want := "첫 번째 문단입니다.\n\n두 번째 문단입니다."
	if got != want {
		t.Fatalf("CleanText() = %q, want %q", got, want)
	}
}

func TestNeedsEnrichment(t *testing.T) {
	t.Parallel()

	if !NeedsEnrichment("짧은 요약문") {
		t.Fatalf("expected short snippet to need enrichment")
	}
	long := strings.Repeat("충분히 긴 본문 문장입니다. ", 30)
	if NeedsEnrichment(long) {
		t.Fatalf("expected long body to skip enrichment")
	}
}

func TestFetchBodyPlainText(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("본문 내용입니다.\n\n후속 문단입니다."))
	}))
	defer srv.Close()

	enricher := NewEnricher(srv.Client())
	got, err := enricher.FetchBody(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchBody() error = %v", err)
	}
	if !strings.Contains(got, "본문 내용입니다.") {
		t.Fatalf("FetchBody() = %q, missing expected text", got)
	}
}

func TestFetchBodyRejectsErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	enricher := NewEnricher(srv.Client())
	if _, err := enricher.FetchBody(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error for non-2xx status")
	}
}
