// Package main запускает HTTP-сервер складского сервиса.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/maxxi02/thesis-project01-sub001/internal/cache"
	"github.com/maxxi02/thesis-project01-sub001/internal/config"
	"github.com/maxxi02/thesis-project01-sub001/internal/handler"
	"github.com/maxxi02/thesis-project01-sub001/internal/location"
	"github.com/maxxi02/thesis-project01-sub001/internal/metrics"
	"github.com/maxxi02/thesis-project01-sub001/internal/middleware"
	"github.com/maxxi02/thesis-project01-sub001/internal/notify"
	"github.com/maxxi02/thesis-project01-sub001/internal/push"
	"github.com/maxxi02/thesis-project01-sub001/internal/repository"
	"github.com/maxxi02/thesis-project01-sub001/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	m := metrics.New()
	manager := notify.NewManager(logger,
		notify.WithHeartbeat(cfg.HeartbeatInterval),
		notify.WithMetrics(m.ActiveStreams, m.EventsPublished),
	)

	var pusher service.Pusher
	if cfg.FCMServerKey != "" {
		pusher = push.NewClient(cfg.FCMEndpoint, cfg.FCMServerKey, logger)
	} else {
		sugar.Warn("FCM_SERVER_KEY is not set, mobile push is disabled")
	}

	svc := service.NewService(repo, manager, pusher, logger, service.WithPushResult(func(ok bool) {
		result := "ok"
		if !ok {
			result = "error"
		}
		m.PushSent.WithLabelValues(result).Inc()
	}))
	defer svc.Close()

	if cfg.AdminEmail != "" {
		ensureCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := svc.EnsureAdmin(ensureCtx, cfg.AdminEmail, cfg.AdminPassword)
		cancel()
		if err != nil {
			sugar.Fatalw("admin bootstrap error", "error", err.Error())
		}
	}

	var locationCache location.Cache
	if cfg.RedisAddr != "" {
		rc, err := cache.New(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			sugar.Warnw("redis unavailable, location cache disabled", "error", err.Error())
		} else {
			defer rc.Close()
			locationCache = rc
		}
	}

	barangays, err := location.LoadEmbedded()
	if err != nil {
		sugar.Fatalw("location data error", "error", err.Error())
	}
	locator := location.NewService(location.NewMatcher(barangays), locationCache, logger)

	allowedOrigins := slices.Clone(cfg.CORSAllowedOrigins)
	if cfg.PublicBaseURL != "" {
		allowedOrigins = append(allowedOrigins, strings.TrimRight(cfg.PublicBaseURL, "/"))
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.SessionSecret, svc, logger)
	opts := []handler.Option{
		handler.WithStreams(http.HandlerFunc(manager.ServeSSE), notify.NewWSHandler(manager, originChecker(allowedOrigins))),
		handler.WithMetrics(m),
		handler.WithCORS(cfg.CORSAllowedOrigins),
	}
	if cfg.TrustProxy {
		opts = append(opts, handler.WithTrustedProxy())
	}
	h := handler.NewHandler(svc, locator, logger, authMiddleware, opts...)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return manager.Start(ctx)
	})

	g.Go(func() error {
		return svc.StartCleanup(ctx, cfg.CleanupInterval)
	})

	g.Go(func() error {
		sugar.Infow("starting warehouse server", "addr", cfg.RunAddress, "barangays", len(barangays))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Потоки уведомлений закрываются до Shutdown, иначе он ждёт их до таймаута.
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")
		manager.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

// originChecker разрешает WebSocket с перечисленных источников. Без списка действует проверка same-origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
