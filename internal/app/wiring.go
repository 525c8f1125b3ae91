package app

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/harvest/internal/collector"
	"horse.fit/harvest/internal/config"
	"horse.fit/harvest/internal/db"
	"horse.fit/harvest/internal/dedup"
	"horse.fit/harvest/internal/reader"
	"horse.fit/harvest/internal/source"
	"horse.fit/harvest/internal/store"
	"horse.fit/harvest/internal/translation"
	"horse.fit/harvest/internal/validate"
)

// buildAdapters assembles every source adapter the configuration enables.
// The generative adapter is always on; the rest join when their credentials
// or feeds are configured.
func buildAdapters(cfg *config.Config, logger zerolog.Logger) []source.Adapter {
	adapters := []source.Adapter{
		source.NewGenerativeAdapter(cfg.GenerativeEndpoint, cfg.GenerativeModel),
	}

	if strings.TrimSpace(cfg.SearchAPIBaseURL) != "" {
		adapters = append(adapters, source.NewSearchAPIAdapter(cfg.SearchAPIBaseURL, cfg.SearchAPIClientID, cfg.SearchAPISecret))
	}

	enricher := reader.NewEnricher(nil)

	if strings.TrimSpace(cfg.RegionalAPIBaseURL) != "" {
		adapters = append(adapters, source.NewRegionalAPIAdapter(cfg.RegionalAPIBaseURL, cfg.RegionalAPIKey, enricher, logger))
	}

	if rss := source.NewRSSAdapter(cfg.RSSFeedMap(), enricher, logger); rss.HasFeeds() {
		adapters = append(adapters, rss)
	}

	return adapters
}

func buildTranslator(cfg *config.Config, logger zerolog.Logger) (*translation.Translator, error) {
	registry := translation.NewRegistry(cfg.TranslationProvider)
	if err := registry.Register(translation.NewLocalProvider(cfg.TranslationEndpoint, cfg.TranslationModel)); err != nil {
		return nil, fmt.Errorf("register translation provider: %w", err)
	}

	return translation.NewTranslator(registry, logger, translation.Options{
		Provider:   cfg.TranslationProvider,
		MaxRetries: cfg.TranslateRetries,
		BaseDelay:  cfg.TranslateBaseDelay,
	}), nil
}

// buildBalancer wires the full collection pipeline on top of an open pool.
func buildBalancer(cfg *config.Config, pool *db.Pool, logger zerolog.Logger) (*collector.Balancer, error) {
	translator, err := buildTranslator(cfg, logger)
	if err != nil {
		return nil, err
	}

	articles := db.NewArticles(pool)
	engine := dedup.NewEngine(articles, logger, cfg.DedupWindowDays, cfg.DedupThreshold)
	gateway := store.NewGateway(articles, engine, logger, cfg.PersistChunkSize, cfg.PersistConcurrency)

	return collector.NewBalancer(
		buildAdapters(cfg, logger),
		validate.NewNormalizer(logger),
		translator,
		gateway,
		logger,
		collector.Options{
			CategoryTarget:       cfg.CategoryTarget,
			InitialBatch:         cfg.InitialBatchSize,
			BackfillRounds:       cfg.BackfillRounds,
			TranslateConcurrency: cfg.TranslateConcurrency,
			RunDeadline:          cfg.RunDeadline,
		},
	), nil
}
