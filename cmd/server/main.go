// Package main is the entrypoint for the trialscope API gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/trialscope/internal/api"
	"github.com/kiranshivaraju/trialscope/internal/api/handler"
	mw "github.com/kiranshivaraju/trialscope/internal/api/middleware"
	"github.com/kiranshivaraju/trialscope/internal/api/response"
	"github.com/kiranshivaraju/trialscope/internal/cache"
	"github.com/kiranshivaraju/trialscope/internal/config"
	"github.com/kiranshivaraju/trialscope/internal/history"
	"github.com/kiranshivaraju/trialscope/internal/lifecycle"
	"github.com/kiranshivaraju/trialscope/internal/observability"
	"github.com/kiranshivaraju/trialscope/internal/poller"
	"github.com/kiranshivaraju/trialscope/internal/research"
)

const (
	shutdownTimeout    = 30 * time.Second
	healthCheckTimeout = 3 * time.Second
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"research_base_url", cfg.Research.BaseURL,
		"poll_interval", cfg.Poll.Interval.String(),
		"cache_enabled", cfg.CacheEnabled(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Tracing
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Telemetry, cfg.Server.Env, slog.Default())
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	// 3. Optional Redis cache. An unreachable Redis degrades to no cache
	// rather than refusing to start.
	var snapshots cache.Cache
	if cfg.CacheEnabled() {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()

		pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err = redisCache.Ping(pingCtx)
		cancel()
		if err != nil {
			slog.Warn("redis unreachable, running without cache", "error", err)
		} else {
			snapshots = redisCache
			slog.Info("redis connected")
		}
	}

	// 4. Research backend client and lifecycle controller
	client := research.NewHTTPClient(
		cfg.Research.BaseURL,
		cfg.Research.APIKeyHeader,
		cfg.Research.APIKey,
		cfg.Research.Timeout,
	).WithLogger(slog.Default())

	p := poller.New(client,
		poller.WithInterval(cfg.Poll.Interval),
		poller.WithDegradedAfter(cfg.Poll.DegradedAfter),
		poller.WithMaxConsecutiveFailures(cfg.Poll.MaxConsecutiveFailures),
		poller.WithLogger(slog.Default()),
	)

	opts := []lifecycle.Option{lifecycle.WithPoller(p), lifecycle.WithLogger(slog.Default())}
	if snapshots != nil {
		opts = append(opts, lifecycle.WithCache(snapshots, cfg.Redis.SnapshotTTL))
	}
	controller := lifecycle.New(client, opts...)

	// 5. Build router with dependencies
	researchHandler := handler.NewResearch(controller, slog.Default())

	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(snapshots, cfg.RateLimit.RequestsPerMinute),

		HealthHandler:     healthHandler(client, snapshots),
		SubmitHandler:     researchHandler.Submit,
		StatusHandler:     researchHandler.Status,
		ReportHandler:     researchHandler.Report,
		TrialsXLSXHandler: researchHandler.TrialsXLSX,
		DownloadHandler:   researchHandler.Download,
		HistoryHandler:    researchHandler.History,
	}

	router := api.NewRouter(deps)

	// 6. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Research.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks research backend reachability and, when configured,
// the cache. A nil cache reports "disabled" and never degrades health.
func healthHandler(backend history.Lister, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		checks := map[string]string{
			"research_backend": "ok",
			"cache":            "disabled",
		}

		if _, err := backend.ListJobs(ctx); err != nil {
			checks["research_backend"] = "degraded"
		}
		if c != nil {
			checks["cache"] = "ok"
			if err := c.Ping(ctx); err != nil {
				checks["cache"] = "degraded"
			}
		}

		degraded := checks["research_backend"] == "degraded" || checks["cache"] == "degraded"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
