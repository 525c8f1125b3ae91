package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"horse.fit/harvest/internal/news"
)

// Adapter fetches raw candidates for one category from one upstream source.
// Adapters return candidates as delivered; validation, dedup, and translation
// happen downstream.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, date time.Time, category news.Category, limit int) ([]news.Candidate, error)
}

// RateLimitError marks a source as throttled. The collector skips a
// rate-limited source for the rest of the run instead of retrying it.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("source %s rate limited, retry after %s", e.Source, e.RetryAfter)
	}
	return fmt.Sprintf("source %s rate limited", e.Source)
}

// IsRateLimited reports whether err carries a RateLimitError anywhere in
// its chain.
func IsRateLimited(err error) bool {
	var rateErr *RateLimitError
	return errors.As(err, &rateErr)
}
