package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/muhith-dev/tiktok-live-auction/internal/adapter/httpserver"
	"github.com/muhith-dev/tiktok-live-auction/internal/adapter/metrics"
	"github.com/muhith-dev/tiktok-live-auction/internal/adapter/redis"
	"github.com/muhith-dev/tiktok-live-auction/internal/adapter/upstream"
	"github.com/muhith-dev/tiktok-live-auction/internal/app"
	"github.com/muhith-dev/tiktok-live-auction/internal/broadcast"
	"github.com/muhith-dev/tiktok-live-auction/internal/gift"
	"github.com/muhith-dev/tiktok-live-auction/internal/platform/config"
	"github.com/muhith-dev/tiktok-live-auction/internal/platform/logging"
	"github.com/muhith-dev/tiktok-live-auction/internal/platform/version"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

func runGracefulShutdown(srv *httpserver.Server, relay *app.Relay, broadcaster *broadcast.Broadcaster) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		relay.Stop()
		broadcaster.Stop()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config, m *metrics.RedisMetrics) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL, m)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	slog.Info("Application starting", "service", info.Service, "version", info.Version, "env", cfg.AppEnv, "port", cfg.Port)

	reg := metrics.NewRegistry()

	newDeduper := app.MemoryDeduperFactory(cfg.MessageDedupTTL)
	var healthChecks []httpserver.HealthCheck

	if cfg.RedisURL != "" {
		redisMetrics := metrics.NewRedisMetrics(reg)
		redisClient := setupRedis(context.Background(), cfg, redisMetrics)
		defer func() { _ = redisClient.Close() }()

		newDeduper = func(_ uuid.UUID, username string) gift.MessageDeduper {
			return redis.NewMessageDeduper(redisClient, username, cfg.MessageDedupTTL, redisMetrics)
		}
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	wsMetrics := metrics.NewWebSocketMetrics(reg)
	broadcaster := broadcast.NewBroadcaster(clock, cfg.MaxWebSocketConnections, wsMetrics)

	relay := app.NewRelay(clock, upstream.NewDialer(cfg.UpstreamURL, clock), broadcaster, app.Options{
		ConnectTimeout:  cfg.UpstreamConnectTimeout,
		StreakTTL:       cfg.StreakTTL,
		MessageDedupTTL: cfg.MessageDedupTTL,
		SweepInterval:   cfg.SweepInterval,
		CommandRate:     rate.Limit(cfg.CommandRateLimit),
		CommandBurst:    cfg.CommandBurst,
		NewDeduper:      newDeduper,
	}, app.Metrics{
		Gift:     metrics.NewGiftMetrics(reg),
		Auction:  metrics.NewAuctionMetrics(reg),
		Upstream: metrics.NewUpstreamMetrics(reg),
		Commands: wsMetrics,
	})

	srv := httpserver.NewServer(cfg, clock, relay, broadcaster, reg, wsMetrics, healthChecks)

	done := runGracefulShutdown(srv, relay, broadcaster)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
