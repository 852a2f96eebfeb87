package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"hls-live/internal/ads"
	"hls-live/internal/live"
	"hls-live/internal/orchestrator"
	"hls-live/internal/platform/config"
	"hls-live/internal/platform/logger"
	"hls-live/internal/platform/metrics"
	"hls-live/internal/segmenter"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = config.Load()

	cfg, err := config.FromFile(config.GetEnv("HLS_CONFIG_FILE", ""))
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	log, logCloser, err := logger.New(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	})
	if err != nil {
		slog.Error("logger error", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adStore, closeAds := newAdStore(ctx, cfg, log)
	defer closeAds()

	met := metrics.New()
	repo := orchestrator.NewInMemoryRepository()
	svc := orchestrator.NewService(repo, orchestrator.Options{
		SessionTimeout: cfg.Live.SessionTimeout,
		StreamTimeout:  cfg.Live.StreamTimeout,
		AdsEnabled:     cfg.Ads.Enabled,
		Ads:            adStore,
		NewSegmenter:   segmenter.Func(segmenter.Options{TargetDuration: cfg.Live.TargetDuration}),
		Logger:         log,
		Metrics:        met,
	})
	h := orchestrator.NewHandler(svc, log)

	go svc.Run(ctx, cfg.Live.ReapInterval)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Method(http.MethodGet, "/metrics", met.Handler(func() {
		met.SetActiveStreams(repo.ActiveStreamCount())
		met.SetActiveSessions(svc.ActiveSessionCount())
	}))
	h.Routes(r)

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Server.Port,
		"session_timeout", cfg.Live.SessionTimeout,
		"stream_timeout", cfg.Live.StreamTimeout,
		"ads_enabled", cfg.Ads.Enabled,
		"log_level", cfg.Logging.Level,
	)

	<-ctx.Done()
	log.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}

	for _, w := range repo.List() {
		if err := svc.EndStream(w.ID()); err != nil {
			log.Error("end stream on shutdown failed", "stream_id", w.ID(), "error", err)
		}
	}
	log.Info("server stopped")
}

// newAdStore returns the Redis-backed ad store, or nil when ads are
// disabled. Validate guarantees an address when ads are enabled. The Redis
// snapshot is refreshed in the background until ctx is done.
func newAdStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (live.AdStore, func()) {
	if !cfg.Ads.Enabled {
		log.Info("ads disabled")
		return nil, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := ads.NewRedisStore(client, cfg.Redis.Prefix, log)
	if err := store.Refresh(ctx); err != nil {
		log.Warn("initial ad refresh failed", "addr", cfg.Redis.Addr, "error", err)
	}
	go store.Run(ctx, cfg.Ads.RefreshInterval)

	log.Info("ad store: redis", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
	return store, func() { _ = client.Close() }
}
