package translation

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/harvest/internal/langdetect"
	"horse.fit/harvest/internal/retry"
)

// Outcome is the result of one translation attempt chain. Failed is true
// iff the final text still equals the input after the whole retry budget.
type Outcome struct {
	Text   string
	Failed bool
}

// Options bounds the translator's retry behavior.
type Options struct {
	// Provider selects a registry entry; empty uses the default.
	Provider string
	// MaxRetries is the number of additional attempts after a transient
	// provider error, and separately after a no-op translation.
	MaxRetries int
	BaseDelay  time.Duration
}

// Translator wraps a provider registry with detection, bounded retries and
// quota short-circuiting. It holds no global state; construct it once and
// pass it to the orchestrator.
type Translator struct {
	registry *Registry
	logger   zerolog.Logger
	opts     Options
}

func NewTranslator(registry *Registry, logger zerolog.Logger, opts Options) *Translator {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	return &Translator{
		registry: registry,
		logger:   logger,
		opts:     opts,
	}
}

// TranslateIfNeeded returns the text unchanged when it is already Korean;
// otherwise it translates with bounded retries. Provider errors are retried
// with exponential backoff unless the error is quota exhaustion, which
// returns the original text immediately with Failed=true. A provider
// response equal to the input is treated as a silent failure and retried
// on its own budget.
//
// Known limitation: a provider that legitimately returns an
// identical-but-correct translation for a short or ambiguous phrase is
// indistinguishable from a no-op and will be recorded as failed.
func (t *Translator) TranslateIfNeeded(ctx context.Context, text string) Outcome {
	if t == nil || t.registry == nil {
		return Outcome{Text: text, Failed: true}
	}
	if text == "" {
		return Outcome{Text: text}
	}
	if langdetect.IsKorean(text) {
		return Outcome{Text: text}
	}

	provider, err := t.registry.Provider(t.opts.Provider)
	if err != nil {
		t.logger.Error().Err(err).Msg("translation provider unavailable")
		return Outcome{Text: text, Failed: true}
	}

	sourceHint := langdetect.SourceLanguageHint(text)

	result, err := t.translateOnce(ctx, provider, text, sourceHint)
	if err != nil {
		t.logFailure(err)
		return Outcome{Text: text, Failed: true}
	}

	// No-op translations get their own bounded retry budget.
	for attempt := 0; result == text && attempt < t.opts.MaxRetries; attempt++ {
		if err := backoffSleep(ctx, t.opts.BaseDelay, attempt); err != nil {
			break
		}
		next, err := t.translateOnce(ctx, provider, text, sourceHint)
		if err != nil {
			t.logFailure(err)
			break
		}
		result = next
	}

	if result == text {
		t.logger.Warn().Str("provider", provider.Name()).Msg("translation returned input unchanged after retries")
		return Outcome{Text: text, Failed: true}
	}
	return Outcome{Text: result, Failed: false}
}

func (t *Translator) translateOnce(ctx context.Context, provider Provider, text, sourceHint string) (string, error) {
	var result string
	err := retry.Do(ctx, retry.Policy{
		MaxAttempts: t.opts.MaxRetries + 1,
		BaseDelay:   t.opts.BaseDelay,
		Terminal:    IsQuotaExhausted,
	}, func() error {
		resp, err := provider.Translate(ctx, TranslateRequest{
			Text:       text,
			SourceLang: sourceHint,
			TargetLang: TargetLang,
		})
		if err != nil {
			return err
		}
		result = resp.Text
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func (t *Translator) logFailure(err error) {
	if IsQuotaExhausted(err) {
		t.logger.Warn().Err(err).Msg("translation quota exhausted, keeping original text")
		return
	}
	t.logger.Warn().Err(err).Msg("translation failed after retries, keeping original text")
}

func backoffSleep(ctx context.Context, base time.Duration, attempt int) error {
	delay := retry.Backoff(base, attempt)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
