package translation

import (
	"errors"
	"fmt"
)

// ErrQuotaExhausted marks a provider quota that will not reset within the
// current run. Callers must not spend retry budget on it.
var ErrQuotaExhausted = errors.New("translation quota exhausted")

// QuotaError wraps a provider-specific quota failure so errors.Is against
// ErrQuotaExhausted works across providers.
type QuotaError struct {
	Provider string
	Detail   string
}

func (e *QuotaError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("provider %s: quota exhausted", e.Provider)
	}
	return fmt.Sprintf("provider %s: quota exhausted: %s", e.Provider, e.Detail)
}

func (e *QuotaError) Unwrap() error {
	return ErrQuotaExhausted
}

// IsQuotaExhausted reports whether an error chain contains a quota failure.
func IsQuotaExhausted(err error) bool {
	return errors.Is(err, ErrQuotaExhausted)
}
