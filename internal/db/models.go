package db

import "time"

// ArticleRow is the persisted shape of an accepted article. CanonicalLink
// carries the unique constraint the persistence gateway leans on for
// conflict-as-duplicate handling.
type ArticleRow struct {
	ArticleID         int64      `gorm:"column:article_id;primaryKey;autoIncrement"`
	Title             string     `gorm:"column:title;not null"`
	Body              string     `gorm:"column:body;not null"`
	TranslatedBody    *string    `gorm:"column:translated_body"`
	SourceCountry     string     `gorm:"column:source_country"`
	SourceMedia       string     `gorm:"column:source_media"`
	Category          string     `gorm:"column:category;not null;index"`
	Topic             *string    `gorm:"column:topic"`
	PublishedDate     time.Time  `gorm:"column:published_date;not null;index"`
	CanonicalLink     *string    `gorm:"column:canonical_link;uniqueIndex"`
	TranslationFailed bool       `gorm:"column:translation_failed;not null;default:false"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	DeletedAt         *time.Time `gorm:"column:deleted_at;index"`
}

func (ArticleRow) TableName() string {
	return "harvest_articles"
}
