package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/harvest/internal/collector"
	"horse.fit/harvest/internal/db"
	"horse.fit/harvest/internal/globaltime"
	"horse.fit/harvest/internal/news"
)

// Runner triggers one collection run. collector.Balancer satisfies it.
type Runner interface {
	CollectAndPersist(ctx context.Context, refDate time.Time) (collector.RunResult, error)
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server exposes run triggering and collection stats over HTTP.
type Server struct {
	pool     *db.Pool
	articles *db.Articles
	runner   Runner
	logger   zerolog.Logger
	opts     Options

	// One run at a time; a trigger while a run is active gets a 409.
	runMu sync.Mutex
}

func NewServer(pool *db.Pool, articles *db.Articles, runner Runner, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		// Synchronous run triggers can take a while.
		writeTimeout = 10 * time.Minute
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		pool:     pool,
		articles: articles,
		runner:   runner,
		logger:   logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.POST("/runs", s.handleTriggerRun)

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("harvest api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("harvest api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	dbStatus := "ok"
	if err := s.pool.Ping(c.Request().Context()); err != nil {
		s.logger.Warn().Err(err).Msg("health check database ping failed")
		dbStatus = "unreachable"
	}
	return success(c, map[string]any{
		"service":  "harvest",
		"time":     globaltime.UTC(),
		"database": dbStatus,
	})
}

func (s *Server) handleStats(c echo.Context) error {
	days := 7
	if raw := strings.TrimSpace(c.QueryParam("days")); raw != "" {
		parsed, err := parseDays(raw)
		if err != nil {
			return failValidation(c, map[string]string{"days": err.Error()})
		}
		days = parsed
	}

	since := globaltime.DayOf(globaltime.Today().AddDate(0, 0, -(days - 1)))
	counts, err := s.articles.CountByCategorySince(c.Request().Context(), since)
	if err != nil {
		s.logger.Error().Err(err).Msg("query category counts failed")
		return internalError(c, "Failed to load stats")
	}

	// Every category appears even when it has no rows yet.
	for _, category := range news.Categories() {
		if _, ok := counts[category.String()]; !ok {
			counts[category.String()] = 0
		}
	}

	return success(c, map[string]any{
		"since":      since.Format("2006-01-02"),
		"days":       days,
		"categories": counts,
	})
}

func (s *Server) handleTriggerRun(c echo.Context) error {
	if s.runner == nil {
		return internalError(c, "Run trigger is not configured")
	}

	refDate := globaltime.Today()
	if raw := strings.TrimSpace(c.QueryParam("date")); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, globaltime.Seoul())
		if err != nil {
			return failValidation(c, map[string]string{"date": "must be YYYY-MM-DD"})
		}
		refDate = parsed
	}

	if !s.runMu.TryLock() {
		return fail(c, http.StatusConflict, "A collection run is already in progress", nil)
	}
	defer s.runMu.Unlock()

	result, err := s.runner.CollectAndPersist(c.Request().Context(), refDate)
	if err != nil {
		if errors.Is(err, collector.ErrNoSources) {
			return fail(c, http.StatusUnprocessableEntity, err.Error(), nil)
		}
		s.logger.Error().Err(err).Msg("triggered run failed")
		return internalError(c, "Collection run failed")
	}

	return success(c, runResponse(result))
}

func runResponse(result collector.RunResult) map[string]any {
	categories := make(map[string]map[string]int, len(result.Categories))
	for category, outcome := range result.Categories {
		categories[category.String()] = map[string]int{
			"collected": outcome.Collected,
			"target":    outcome.Target,
		}
	}
	return map[string]any{
		"reference_date":       result.ReferenceDate.Format("2006-01-02"),
		"persisted":            result.Persisted,
		"failed":               result.Failed,
		"duplicates_skipped":   result.DuplicatesSkipped,
		"rejected":             result.Rejected,
		"suspicious":           result.Suspicious,
		"translation_failures": result.TranslationFailures,
		"rounds":               result.Rounds,
		"complete":             result.Complete(),
		"categories":           categories,
	}
}

func parseDays(raw string) (int, error) {
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < 1 || value > 365 {
		return 0, fmt.Errorf("must be between 1 and 365")
	}
	return value, nil
}
