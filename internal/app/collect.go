package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"horse.fit/harvest/internal/cli"
	"horse.fit/harvest/internal/collector"
	"horse.fit/harvest/internal/config"
	"horse.fit/harvest/internal/db"
	"horse.fit/harvest/internal/globaltime"
	"horse.fit/harvest/internal/logging"
	"horse.fit/harvest/internal/news"
)

const (
	outputFormatTable = "table"
	outputFormatJSON  = "json"
)

func runCollect(args []string) int {
	fs := flag.NewFlagSet("collect", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	dateArg := fs.String("date", "", "Reference date (YYYY-MM-DD, defaults to today in Seoul)")
	timeout := fs.Duration("timeout", 30*time.Minute, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "collect does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	refDate, err := parseReferenceDate(*dateArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid date: %v\n", err)
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("collect failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	runLogger := logging.ForRun(logger, refDate)
	balancer, err := buildBalancer(cfg, pool, runLogger)
	if err != nil {
		logger.Error().Err(err).Msg("collect wiring failed")
		fmt.Fprintf(os.Stderr, "Failed to build pipeline: %v\n", err)
		return 1
	}

	result, err := balancer.CollectAndPersist(ctx, refDate)
	if err != nil {
		logger.Error().Err(err).Msg("collection run failed")
		fmt.Fprintf(os.Stderr, "Collection run failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printRunJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	printRunTable(result)
	return 0
}

func parseReferenceDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return globaltime.Today(), nil
	}
	day, err := time.ParseInLocation("2006-01-02", trimmed, globaltime.Seoul())
	if err != nil {
		return time.Time{}, fmt.Errorf("must be YYYY-MM-DD")
	}
	return day, nil
}

func parseOutputFormat(raw, defaultFormat string) (string, error) {
	format := strings.TrimSpace(strings.ToLower(raw))
	if format == "" {
		format = strings.TrimSpace(strings.ToLower(defaultFormat))
	}
	switch format {
	case outputFormatTable, outputFormatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("--format must be table or json")
	}
}

func printRunJSON(result collector.RunResult) error {
	type categoryJSON struct {
		Collected int `json:"collected"`
		Target    int `json:"target"`
	}
	payload := struct {
		ReferenceDate       string                  `json:"reference_date"`
		Persisted           int                     `json:"persisted"`
		Failed              int                     `json:"failed"`
		DuplicatesSkipped   int                     `json:"duplicates_skipped"`
		Rejected            int                     `json:"rejected"`
		Suspicious          int                     `json:"suspicious"`
		TranslationFailures int                     `json:"translation_failures"`
		Rounds              int                     `json:"rounds"`
		Complete            bool                    `json:"complete"`
		Categories          map[string]categoryJSON `json:"categories"`
	}{
		ReferenceDate:       result.ReferenceDate.Format("2006-01-02"),
		Persisted:           result.Persisted,
		Failed:              result.Failed,
		DuplicatesSkipped:   result.DuplicatesSkipped,
		Rejected:            result.Rejected,
		Suspicious:          result.Suspicious,
		TranslationFailures: result.TranslationFailures,
		Rounds:              result.Rounds,
		Complete:            result.Complete(),
		Categories:          make(map[string]categoryJSON, len(result.Categories)),
	}
	for category, outcome := range result.Categories {
		payload.Categories[category.String()] = categoryJSON{
			Collected: outcome.Collected,
			Target:    outcome.Target,
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

func printRunTable(result collector.RunResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "reference date\t%s\n", result.ReferenceDate.Format("2006-01-02"))
	fmt.Fprintf(w, "persisted\t%d\n", result.Persisted)
	fmt.Fprintf(w, "failed\t%d\n", result.Failed)
	fmt.Fprintf(w, "duplicates skipped\t%d\n", result.DuplicatesSkipped)
	fmt.Fprintf(w, "rejected\t%d\n", result.Rejected)
	fmt.Fprintf(w, "suspicious\t%d\n", result.Suspicious)
	fmt.Fprintf(w, "translation failures\t%d\n", result.TranslationFailures)
	fmt.Fprintf(w, "rounds\t%d\n", result.Rounds)
	fmt.Fprintf(w, "complete\t%t\n", result.Complete())
	for _, category := range news.Categories() {
		outcome := result.Categories[category]
		fmt.Fprintf(w, "category %s\t%d/%d\n", category, outcome.Collected, outcome.Target)
	}
	_ = w.Flush()
}
