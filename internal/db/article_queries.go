package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"horse.fit/harvest/internal/dedup"
	"horse.fit/harvest/internal/news"
)

// Articles is the query surface over harvest_articles. It implements the
// dedup engine's Store and the persistence gateway's Inserter.
type Articles struct {
	pool *Pool
}

func NewArticles(pool *Pool) *Articles {
	return &Articles{pool: pool}
}

// InsertArticle persists one accepted article and returns its id. Unique
// constraint violations surface unchanged so the gateway can classify them.
func (a *Articles) InsertArticle(ctx context.Context, item news.Article) (int64, error) {
	if a == nil || a.pool == nil || a.pool.gdb == nil {
		return 0, fmt.Errorf("articles store is not initialized")
	}

	row := ArticleRow{
		Title:             item.Title,
		Body:              item.Body,
		SourceCountry:     item.SourceCountry,
		SourceMedia:       item.SourceMedia,
		Category:          item.Category.String(),
		PublishedDate:     item.PublishedDate,
		TranslationFailed: item.TranslationFailed,
	}
	if translated := strings.TrimSpace(item.TranslatedBody); translated != "" {
		row.TranslatedBody = &translated
	}
	if topic := item.Topic.String(); topic != "" {
		row.Topic = &topic
	}
	if link := strings.TrimSpace(item.CanonicalLink); link != "" {
		row.CanonicalLink = &link
	}

	if err := a.pool.gdb.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ArticleID, nil
}

// FindByCanonicalLink resolves an exact canonical-link match.
func (a *Articles) FindByCanonicalLink(ctx context.Context, link string) (int64, bool, error) {
	if a == nil || a.pool == nil || a.pool.gdb == nil {
		return 0, false, fmt.Errorf("articles store is not initialized")
	}

	var row ArticleRow
	err := a.pool.gdb.WithContext(ctx).
		Select("article_id").
		Where("canonical_link = ? AND deleted_at IS NULL", strings.TrimSpace(link)).
		Take(&row).Error
	if err != nil {
		if IsNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("query canonical link: %w", err)
	}
	return row.ArticleID, true, nil
}

// FindRecentForSimilarity loads the trailing window the fuzzy check
// compares against.
func (a *Articles) FindRecentForSimilarity(ctx context.Context, since time.Time) ([]dedup.StoredArticle, error) {
	if a == nil || a.pool == nil || a.pool.gdb == nil {
		return nil, fmt.Errorf("articles store is not initialized")
	}

	var rows []ArticleRow
	err := a.pool.gdb.WithContext(ctx).
		Select("article_id", "title", "body", "published_date").
		Where("published_date >= ? AND deleted_at IS NULL", since).
		Order("published_date DESC, article_id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query similarity window: %w", err)
	}

	items := make([]dedup.StoredArticle, 0, len(rows))
	for _, row := range rows {
		items = append(items, dedup.StoredArticle{
			ID:            row.ArticleID,
			Title:         row.Title,
			Body:          row.Body,
			PublishedDate: row.PublishedDate,
		})
	}
	return items, nil
}

// CountByCategorySince returns per-category totals for the stats endpoint.
func (a *Articles) CountByCategorySince(ctx context.Context, since time.Time) (map[string]int64, error) {
	if a == nil || a.pool == nil || a.pool.gdb == nil {
		return nil, fmt.Errorf("articles store is not initialized")
	}

	type categoryCount struct {
		Category string
		Total    int64
	}
	var rows []categoryCount
	err := a.pool.gdb.WithContext(ctx).
		Model(&ArticleRow{}).
		Select("category, COUNT(*) AS total").
		Where("published_date >= ? AND deleted_at IS NULL", since).
		Group("category").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query category counts: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Category] = row.Total
	}
	return counts, nil
}
