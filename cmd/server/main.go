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

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	bountyhandler "geosats/internal/bounty/handler"
	bountymetrics "geosats/internal/bounty/metrics"
	"geosats/internal/bounty/registry"
	"geosats/internal/bounty/service"
	"geosats/internal/bounty/store"
	"geosats/internal/bounty/sweeper"
	"geosats/internal/claim"
	"geosats/internal/escrow"
	"geosats/internal/escrow/lightning"
	escrowmetrics "geosats/internal/escrow/metrics"
	"geosats/internal/events"
	eventskafka "geosats/internal/events/kafka"
	eventsredis "geosats/internal/events/redis"
	"geosats/internal/platform/config"
	"geosats/internal/platform/httpserver"
	"geosats/internal/platform/kafka"
	"geosats/internal/platform/logger"
	"geosats/internal/platform/metrics"
	"geosats/internal/platform/redis"
	"geosats/internal/positioning"
	"geosats/internal/puzzle"
	"geosats/internal/ratelimit"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wallet := lightning.NewSimulated(
		lightning.WithStartingBalance(cfg.Escrow.StartingBalance),
		lightning.WithFee(cfg.Escrow.PaymentFee),
		lightning.WithLatency(cfg.Escrow.Latency),
	)
	escrowAdapter, err := escrow.New(wallet,
		escrow.WithProviderTimeout(cfg.Escrow.ProviderTimeout),
		escrow.WithMaxRetries(cfg.Escrow.MaxRetries),
		escrow.WithMetrics(escrowmetrics.New()),
		escrow.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("init escrow: %w", err)
	}

	bountyRegistry, err := registry.New(store.New(), escrowAdapter, registry.WithLogger(log))
	if err != nil {
		return fmt.Errorf("init registry: %w", err)
	}
	verifier, err := claim.New(bountyRegistry, claim.WithRadiusKm(cfg.Claim.RadiusKm))
	if err != nil {
		return fmt.Errorf("init claim verifier: %w", err)
	}

	source := positioning.NewManualSource(time.Now)
	position := positioning.NewAdapter(source,
		positioning.WithTimeout(cfg.Positioning.Timeout),
		positioning.WithMaxAge(cfg.Positioning.MaxAge),
		positioning.WithWatchMaxAge(cfg.Positioning.WatchMaxAge),
		positioning.WithLogger(log),
	)

	checks := map[string]func(context.Context) error{}
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	if redisClient != nil {
		checks["redis"] = redisClient.Health
		defer redisClient.Close()
	}

	feed := events.NewFeed(events.DefaultFeedCapacity)
	sink, closeSink, err := eventSink(ctx, cfg, log, redisClient, checks)
	if err != nil {
		return err
	}
	async := events.NewAsync(sink, cfg.Events.BufferSize, events.WithAsyncLogger(log))
	defer func() {
		async.Close()
		closeSink()
	}()

	bountyMetrics := bountymetrics.New()
	svc, err := service.New(bountyRegistry, verifier, escrowAdapter,
		service.WithPublisher(events.Multi{feed, async}),
		service.WithLocator(position),
		service.WithNearbyRadiusKm(cfg.Claim.NearbyRadiusKm),
		service.WithDefaultTTL(cfg.Bounty.TTL),
		service.WithLogger(log),
		service.WithMetrics(bountyMetrics),
	)
	if err != nil {
		return fmt.Errorf("init bounty service: %w", err)
	}

	if cfg.Server.SeedDemo {
		if err := seedDemo(ctx, svc, time.Now()); err != nil {
			return fmt.Errorf("seed demo bounties: %w", err)
		}
		log.Info("demo bounties seeded", "count", len(demoBounties))
	}

	sweep, err := sweeper.New(svc, cfg.Bounty.ExpirySweepInterval, sweeper.WithLogger(log), sweeper.WithReconciler(escrowAdapter))
	if err != nil {
		return fmt.Errorf("init expiry sweeper: %w", err)
	}
	sweep.Start()
	defer func() {
		if err := sweep.Shutdown(); err != nil {
			log.Warn("expiry sweeper shutdown", "error", err)
		}
	}()

	puzzles := puzzle.New(
		puzzle.WithDelay(cfg.Puzzle.GenerationDelay),
		puzzle.WithTimeout(cfg.Puzzle.GenerationTimeout),
		puzzle.WithLogger(log),
	)

	var limitStore ratelimit.Store = ratelimit.NewInMemory(time.Now)
	if redisClient != nil {
		limitStore = ratelimit.NewRedis(redisClient, "geosats:ratelimit:", time.Now)
	}
	claimLimiter := ratelimit.New(limitStore, "claims", cfg.RateLimit.ClaimLimit, cfg.RateLimit.ClaimWindow,
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(ratelimit.NewMetrics()),
	)

	h := bountyhandler.New(svc, log, metrics.New(),
		bountyhandler.WithEventFeed(feed),
		bountyhandler.WithPuzzles(puzzles),
		bountyhandler.WithWallet(escrowAdapter),
		bountyhandler.WithPositioning(position, source),
		bountyhandler.WithClaimGate(claimLimiter.Middleware),
	)

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", healthHandler(checks))
	h.Register(r)

	srv := httpserver.New(cfg.Server.Addr, r, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting geosats", "addr", cfg.Server.Addr, "events_backend", cfg.Events.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// eventSink builds the configured external publisher. The returned close func
// releases any client it opened.
func eventSink(ctx context.Context, cfg config.Config, log *slog.Logger, redisClient *redis.Client, checks map[string]func(context.Context) error) (events.Publisher, func(), error) {
	switch cfg.Events.Backend {
	case config.EventsBackendKafka:
		client, err := kafka.New(ctx, cfg.Kafka)
		if err != nil {
			return nil, nil, fmt.Errorf("init kafka: %w", err)
		}
		checks["kafka"] = client.Health
		return eventskafka.NewPublisher(client, cfg.Kafka.Topic), client.Close, nil
	case config.EventsBackendRedis:
		return eventsredis.NewPublisher(redisClient, cfg.Redis.Channel), func() {}, nil
	default:
		return events.NewLogPublisher(log), func() {}, nil
	}
}
