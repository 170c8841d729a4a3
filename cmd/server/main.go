package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"nestfeed/internal/audit"
	"nestfeed/internal/cache"
	"nestfeed/internal/listing"
	"nestfeed/internal/navigation"
	"nestfeed/internal/platform/config"
	"nestfeed/internal/platform/httpserver"
	"nestfeed/internal/platform/logger"
	"nestfeed/internal/platform/metrics"
	"nestfeed/internal/platform/postgres"
	"nestfeed/internal/platform/redis"
	"nestfeed/internal/remote"
	fsremote "nestfeed/internal/remote/firestore"
	"nestfeed/internal/remote/memory"
	"nestfeed/internal/session"
	httptransport "nestfeed/internal/transport/http"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal services packages.
func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log)
	stats := metrics.New()

	store := memory.NewStore()
	creds := memory.NewCredentials(cfg.Auth.SigningKey)

	var docs remote.DocumentStore = store
	var blobs remote.BlobStore = store
	if cfg.Firestore.ProjectID != "" {
		fs, err := fsremote.New(ctx, cfg.Firestore.ProjectID, cfg.Firestore.BlobBaseURL)
		if err != nil {
			log.Error("firestore init failed", "error", err)
			return err
		}
		defer fs.Close()
		docs = fs
		log.Info("using firestore document store", "project", cfg.Firestore.ProjectID)
	}

	localCache, cleanup, err := buildCache(ctx, cfg, log)
	if err != nil {
		log.Error("cache init failed", "backend", cfg.Cache.Backend, "error", err)
		return err
	}
	defer cleanup()

	sink, sinkCleanup, err := buildAuditSink(ctx, cfg, log)
	if err != nil {
		log.Error("audit sink init failed", "error", err)
		return err
	}
	defer sinkCleanup()
	publisher := audit.NewPublisher(sink, audit.WithAsyncBuffer(256), audit.WithLogger(log))
	defer publisher.Close()

	navRecorder := navigation.NewRecorder()
	nav := navigation.Multi{navRecorder, navigation.Logging{Logger: log}}

	controller := session.New(creds, docs, nav,
		session.WithLogger(log),
		session.WithAuditPublisher(publisher),
		session.WithMetrics(stats),
	)

	sync := listing.NewSync(docs, localCache,
		listing.WithSyncLogger(log),
		listing.WithSyncMetrics(stats),
	)
	service := listing.NewService(docs, blobs, localCache,
		listing.WithServiceLogger(log),
		listing.WithServiceAuditPublisher(publisher),
		listing.WithServiceMetrics(stats),
	)

	handler := httptransport.NewHandler(controller, sync, service, navRecorder, log)
	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(handler))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return controller.Run(gctx)
	})
	g.Go(func() error {
		log.Info("starting nestfeed", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		return err
	}
	return nil
}

// buildCache selects the local cache backend from config.
func buildCache(ctx context.Context, cfg config.Config, log *slog.Logger) (cache.Cache, func(), error) {
	noop := func() {}
	switch cfg.Cache.Backend {
	case "", "memory":
		return cache.NewMemory(), noop, nil
	case "sqlite":
		c, err := cache.NewSQLite(cfg.Cache.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		log.Info("using sqlite cache", "path", cfg.Cache.SQLitePath)
		return c, func() { _ = c.Close() }, nil
	case "redis":
		client, err := redis.New(cfg.Redis)
		if err != nil {
			return nil, noop, err
		}
		if client == nil {
			return nil, noop, errors.New("redis cache backend selected but NESTFEED_REDIS_URL is empty")
		}
		log.Info("using redis cache")
		return cache.NewRedis(client.Client), func() { _ = client.Close() }, nil
	case "postgres":
		pool, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, noop, err
		}
		if pool == nil {
			return nil, noop, errors.New("postgres cache backend selected but NESTFEED_POSTGRES_URL is empty")
		}
		pg := cache.NewPostgres(pool.Pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, noop, err
		}
		log.Info("using postgres cache")
		return pg, func() { pool.Close() }, nil
	}
	return nil, noop, errors.New("unknown cache backend " + cfg.Cache.Backend)
}

// buildAuditSink prefers Kafka when brokers are configured, memory otherwise.
func buildAuditSink(ctx context.Context, cfg config.Config, log *slog.Logger) (audit.Sink, func(), error) {
	noop := func() {}
	if len(cfg.Kafka.Brokers) == 0 {
		return audit.NewMemorySink(), noop, nil
	}
	sink, err := audit.NewKafkaSink(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return nil, noop, err
	}
	log.Info("audit events flowing to kafka", "topic", cfg.Kafka.Topic)
	return sink, func() { sink.Close() }, nil
}
