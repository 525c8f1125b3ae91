package langdetect

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	hangulRatioThreshold = 0.30
	shortTextRuneLimit   = 10
)

// IsKorean reports whether the text is already written in the target
// script. A text qualifies when at least 30% of its non-whitespace runes
// are Hangul, or when any single Hangul rune appears in a very short
// string (fewer than 10 non-whitespace runes).
func IsKorean(text string) bool {
	total := 0
	hangul := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if isHangul(r) {
			hangul++
		}
	}
	if total == 0 {
		return false
	}
	if total < shortTextRuneLimit && hangul > 0 {
		return true
	}
	return float64(hangul)/float64(total) >= hangulRatioThreshold
}

func isHangul(r rune) bool {
	return unicode.Is(unicode.Hangul, r)
}

// trimSample caps detector input so large bodies do not dominate latency.
// The cut lands on a rune boundary so the sample stays valid UTF-8.
func trimSample(text string, limit int) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= limit {
		return trimmed
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
		cut--
	}
	return trimmed[:cut]
}
