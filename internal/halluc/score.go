package halluc

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Score is the derived verdict for one candidate. It is never stored;
// callers drop suspicious items before translation and dedup run.
type Score struct {
	Score      int
	Suspicious bool
	Reasons    []string
}

const (
	suspicionThreshold = 30
	maxScore           = 100

	titleLengthPenalty     = 15
	bodyLengthPenalty      = 15
	repeatedBlockPenalty   = 20
	aiKeywordUnitPenalty   = 10
	aiKeywordPenaltyCap    = 30
	wordSkewPenalty        = 15
	lowAlnumPenalty        = 15
	weakAttributionPenalty = 10
	punctuationPenalty     = 10
	leadRepeatPenalty      = 15
	quotedStatPenalty      = 25
	entertainStatPenalty   = 15
	yearStatQuotePenalty   = 20
)

var aiTellKeywords = []string{
	"generated",
	"sample",
	"test",
	"lorem ipsum",
	"as an ai",
	"언어 모델",
	"생성된",
	"생성형",
	"예시",
	"샘플",
	"테스트",
}

var entertainmentKeywords = []string{
	"배우",
	"아이돌",
	"가수",
	"드라마",
	"영화",
	"콘서트",
	"앨범",
	"데뷔",
	"컴백",
	"시청률",
}

var (
	// Quoted work titles: 『소년이 온다』, 「기생충」, "오징어 게임", <미나리>.
	quotedTitlePattern = regexp.MustCompile(`[『「“"'《<〈][^』」”"'》>〉]{1,60}[』」”"'》>〉]`)
	// Numeric statistics common in fabricated claims: 300만 명, 1.2억 원, 85%.
	statisticPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?\s*(?:만\s*명|억\s*원|만\s*원|만\s*부|회|%|퍼센트)`)
	yearPattern      = regexp.MustCompile(`(?:19|20)\d{2}년`)
)

// Evaluate scores a candidate for fabricated-content signals. All signals
// are additive; suspicion starts at a combined score of 30.
func Evaluate(title, body, sourceMedia string) Score {
	var result Score

	titleLen := len([]rune(strings.TrimSpace(title)))
	if titleLen < 10 || titleLen > 200 {
		result.add(titleLengthPenalty, fmt.Sprintf("title length %d outside 10-200", titleLen))
	}

	bodyTrimmed := strings.TrimSpace(body)
	bodyRunes := []rune(bodyTrimmed)
	bodyLen := len(bodyRunes)
	if bodyLen < 100 || bodyLen > 10000 {
		result.add(bodyLengthPenalty, fmt.Sprintf("body length %d outside 100-10000", bodyLen))
	}

	if hasRepeatedBlock(bodyTrimmed) {
		result.add(repeatedBlockPenalty, "same long substring repeated 3+ times")
	}

	if count := aiKeywordCount(title + " " + bodyTrimmed); count > 0 {
		penalty := count * aiKeywordUnitPenalty
		if penalty > aiKeywordPenaltyCap {
			penalty = aiKeywordPenaltyCap
		}
		result.add(penalty, fmt.Sprintf("AI-disclosure vocabulary found %d time(s)", count))
	}

	if word, ratio, skewed := dominantWordRatio(bodyTrimmed); skewed {
		result.add(wordSkewPenalty, fmt.Sprintf("word %q occupies %.0f%% of body tokens", word, ratio*100))
	}

	if bodyLen > 50 {
		if ratio := alnumRatio(bodyRunes); ratio < 0.5 {
			result.add(lowAlnumPenalty, fmt.Sprintf("alphanumeric ratio %.2f below 0.50", ratio))
		}
	}

	if len([]rune(strings.TrimSpace(sourceMedia))) < 2 {
		result.add(weakAttributionPenalty, "source attribution missing or too short")
	}

	if bodyLen > 500 {
		if density := sentencePunctuationDensity(bodyRunes); density < 0.005 {
			result.add(punctuationPenalty, fmt.Sprintf("sentence punctuation density %.4f below 0.005", density))
		}
	}

	if leadSentenceRepeated(bodyTrimmed) {
		result.add(leadRepeatPenalty, "first sentence repeated across >30% of sentences")
	}

	combined := title + "\n" + bodyTrimmed
	hasQuoted := quotedTitlePattern.MatchString(combined)
	hasStat := statisticPattern.MatchString(combined)
	hasYear := yearPattern.MatchString(combined)

	if hasQuoted && hasStat {
		result.add(quotedStatPenalty, "quoted work title combined with numeric statistic")
	}
	if hasStat && containsAny(combined, entertainmentKeywords) {
		result.add(entertainStatPenalty, "entertainment keywords combined with numeric statistic")
	}
	if hasYear && hasStat && hasQuoted {
		result.add(yearStatQuotePenalty, "year, statistic and quoted title co-occur")
	}

	if result.Score > maxScore {
		result.Score = maxScore
	}
	result.Suspicious = result.Score >= suspicionThreshold
	return result
}

func (s *Score) add(points int, reason string) {
	s.Score += points
	s.Reasons = append(s.Reasons, reason)
}

// hasRepeatedBlock detects the same >10-character substring occurring at
// least 3 times. Windows are sampled with a stride to keep the scan linear.
func hasRepeatedBlock(body string) bool {
	runes := []rune(body)
	const window = 12
	const stride = 4
	if len(runes) < window*3 {
		return false
	}
	for start := 0; start+window <= len(runes); start += stride {
		block := string(runes[start : start+window])
		if strings.TrimSpace(block) == "" {
			continue
		}
		if strings.Count(body, block) >= 3 {
			return true
		}
	}
	return false
}

func aiKeywordCount(text string) int {
	lowered := strings.ToLower(text)
	count := 0
	for _, keyword := range aiTellKeywords {
		count += strings.Count(lowered, keyword)
	}
	return count
}

func dominantWordRatio(body string) (string, float64, bool) {
	tokens := strings.Fields(body)
	if len(tokens) < 20 {
		return "", 0, false
	}
	counts := make(map[string]int, len(tokens))
	for _, token := range tokens {
		counts[strings.ToLower(token)]++
	}
	for word, count := range counts {
		ratio := float64(count) / float64(len(tokens))
		if ratio > 0.15 {
			return word, ratio, true
		}
	}
	return "", 0, false
}

func alnumRatio(runes []rune) float64 {
	if len(runes) == 0 {
		return 0
	}
	alnum := 0
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	return float64(alnum) / float64(len(runes))
}

func sentencePunctuationDensity(runes []rune) float64 {
	if len(runes) == 0 {
		return 0
	}
	terminators := 0
	for _, r := range runes {
		switch r {
		case '.', '!', '?', '。', '！', '？':
			terminators++
		}
	}
	return float64(terminators) / float64(len(runes))
}

func leadSentenceRepeated(body string) bool {
	sentences := splitSentences(body)
	if len(sentences) < 4 {
		return false
	}
	lead := sentences[0]
	if len([]rune(lead)) < 5 {
		return false
	}
	occurrences := 0
	for _, sentence := range sentences {
		if sentence == lead {
			occurrences++
		}
	}
	return float64(occurrences)/float64(len(sentences)) > 0.30
}

func splitSentences(body string) []string {
	raw := strings.FieldsFunc(body, func(r rune) bool {
		switch r {
		case '.', '!', '?', '。', '！', '？', '\n':
			return true
		}
		return false
	})
	sentences := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
