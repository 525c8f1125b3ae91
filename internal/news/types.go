package news

import (
	"strings"
	"time"
)

// Category is the closed set of top-level news buckets a run balances over.
type Category string

const (
	CategoryDomestic Category = "domestic"
	CategoryForeign  Category = "foreign"
	CategoryRelated  Category = "related"
)

var allCategories = []Category{
	CategoryDomestic,
	CategoryForeign,
	CategoryRelated,
}

// Categories returns every valid category in a stable order.
func Categories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// ParseCategory resolves a raw category string against the closed set.
func ParseCategory(raw string) (Category, bool) {
	normalized := Category(strings.ToLower(strings.TrimSpace(raw)))
	for _, c := range allCategories {
		if c == normalized {
			return c, true
		}
	}
	return "", false
}

func (c Category) String() string {
	return string(c)
}

// TopicCategory is the optional secondary subject classification.
type TopicCategory string

const (
	TopicScience       TopicCategory = "science"
	TopicPolitics      TopicCategory = "politics"
	TopicEconomy       TopicCategory = "economy"
	TopicSociety       TopicCategory = "society"
	TopicCulture       TopicCategory = "culture"
	TopicSports        TopicCategory = "sports"
	TopicEntertainment TopicCategory = "entertainment"
	TopicTechnology    TopicCategory = "technology"
)

var allTopics = []TopicCategory{
	TopicScience,
	TopicPolitics,
	TopicEconomy,
	TopicSociety,
	TopicCulture,
	TopicSports,
	TopicEntertainment,
	TopicTechnology,
}

// ParseTopic resolves a raw topic string. Unknown or blank values resolve
// to the empty topic rather than an error.
func ParseTopic(raw string) (TopicCategory, bool) {
	normalized := TopicCategory(strings.ToLower(strings.TrimSpace(raw)))
	for _, t := range allTopics {
		if t == normalized {
			return t, true
		}
	}
	return "", false
}

func (t TopicCategory) String() string {
	return string(t)
}

// Candidate is a raw article record produced by a source adapter. Fields
// arrive as the provider sent them; nothing is trusted until validation.
type Candidate struct {
	Title         string
	Body          string
	SourceCountry string
	SourceMedia   string
	Category      string
	Topic         string
	PublishedDate string
	CanonicalLink string
	SourceName    string
}

// Article is a candidate that survived validation. PublishedDate is always
// the run's reference date and Category is always a member of the closed set.
type Article struct {
	Title             string
	Body              string
	TranslatedBody    string
	SourceCountry     string
	SourceMedia       string
	Category          Category
	Topic             TopicCategory
	PublishedDate     time.Time
	CanonicalLink     string
	TranslationFailed bool
}
