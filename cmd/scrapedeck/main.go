// Package main wires together the scrapedeck service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcsclient "cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	collyadapter "github.com/scrapedeck/scrapedeck/internal/adapter/colly"
	"github.com/scrapedeck/scrapedeck/internal/adapter/simulated"
	"github.com/scrapedeck/scrapedeck/internal/clock/system"
	"github.com/scrapedeck/scrapedeck/internal/config"
	"github.com/scrapedeck/scrapedeck/internal/dispatcher"
	"github.com/scrapedeck/scrapedeck/internal/hash/sha256"
	"github.com/scrapedeck/scrapedeck/internal/id/uuid"
	"github.com/scrapedeck/scrapedeck/internal/logging"
	"github.com/scrapedeck/scrapedeck/internal/metrics"
	"github.com/scrapedeck/scrapedeck/internal/notify"
	queuememory "github.com/scrapedeck/scrapedeck/internal/queue/memory"
	queuepubsub "github.com/scrapedeck/scrapedeck/internal/queue/pubsub"
	"github.com/scrapedeck/scrapedeck/internal/scrape"
	"github.com/scrapedeck/scrapedeck/internal/storage/gcs"
	"github.com/scrapedeck/scrapedeck/internal/storage/local"
	memorystorage "github.com/scrapedeck/scrapedeck/internal/storage/memory"
	"github.com/scrapedeck/scrapedeck/internal/storage/postgres"
	"github.com/scrapedeck/scrapedeck/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	submit := flag.String("submit", "", "Submit one task for the given source at startup (development)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	clock := system.New()
	idGen := uuid.New()
	hasher := sha256.New()

	tasks, results, closeStores, err := buildStores(ctx, cfg)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer closeStores()

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal("blob store init failed", zap.Error(err))
	}

	adapter, err := buildAdapter(cfg, clock)
	if err != nil {
		logger.Fatal("adapter init failed", zap.Error(err))
	}

	channel := notify.NewChannel(notify.NewWebSocketTransport(), notify.Config{
		URL:         cfg.Notify.URL,
		BaseDelay:   cfg.NotifyBaseDelay(),
		MaxAttempts: cfg.Notify.MaxAttempts,
		Logger:      logger.Named("notify"),
	})
	if err := channel.Connect(ctx); err != nil {
		// The channel is a live-status side path; a dead endpoint must not
		// keep the pipeline from starting.
		logger.Warn("notification channel connect failed", zap.Error(err))
	}
	registry := notify.NewRegistry(channel, logger.Named("notify"))
	registry.OnNotification(func(p notify.NotificationPayload) {
		logger.Info("server notice", zap.String("level", p.Level), zap.String("text", p.Text))
	})
	registry.OnError(func(p notify.ErrorPayload) {
		logger.Warn("server error notice", zap.String("code", p.Code), zap.String("text", p.Text))
	})
	publisher := notify.NewSender(channel, clock)

	queue := queuememory.NewQueue(cfg.Worker.QueueDepth)

	workerCfg := worker.Config{
		ExportPrefix:    cfg.Storage.Prefix,
		ContentType:     cfg.Storage.ContentType,
		MaxRedeliveries: cfg.Worker.MaxRedeliveries,
	}
	var workers []*worker.Worker
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			tasks,
			results,
			blobs,
			publisher,
			adapter,
			hasher,
			clock,
			idGen,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, tasks, clock, idGen, workers, logger.Named("dispatcher"))

	if cfg.PubSub.Enabled {
		events, err := queuepubsub.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			logger.Fatal("pubsub init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := events.Close(); closeErr != nil {
				logger.Warn("pubsub close failed", zap.Error(closeErr))
			}
		}()
		dispatch.WithQueueEvents(events, cfg.PubSub.TopicName)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Handle("/metrics", metrics.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Worker.Concurrency))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("ops server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server error", zap.Error(err))
			stop()
		}
	}()

	if *submit != "" {
		task, err := dispatch.Submit(ctx, *submit, scrape.TaskParameters{MaxPosts: cfg.Adapter.MaxPosts})
		if err != nil {
			logger.Error("startup submit failed", zap.String("source", *submit), zap.Error(err))
		} else {
			logger.Info("startup task submitted", zap.String("task_id", task.ID))
		}
	}

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	channel.Disconnect()
	logger.Info("shutdown complete")
}

// buildStores selects the task/result persistence backend. A configured DSN
// means Postgres; otherwise the in-memory stores serve development runs.
func buildStores(ctx context.Context, cfg config.Config) (scrape.TaskStore, scrape.ResultStore, func(), error) {
	if cfg.DB.DSN == "" {
		return memorystorage.NewTaskStore(), memorystorage.NewResultStore(), func() {}, nil
	}
	pool, err := postgres.NewPool(ctx, postgres.TaskStoreConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxOpenConns),
	})
	if err != nil {
		return nil, nil, nil, err
	}
	tasks, err := postgres.NewTaskStoreWithPool(pool)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	results, err := postgres.NewResultStoreWithPool(pool)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	return tasks, results, pool.Close, nil
}

func buildBlobStore(ctx context.Context, cfg config.Config) (scrape.BlobStore, error) {
	switch cfg.Storage.Provider {
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		return gcs.New(ctx, client, gcs.Config{
			Bucket:        cfg.Storage.GCSBucket,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
		})
	case "local":
		return local.New(local.Config{BaseDir: cfg.Storage.LocalBaseDir})
	case "memory":
		return memorystorage.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Storage.Provider)
	}
}

func buildAdapter(cfg config.Config, clock scrape.Clock) (scrape.Adapter, error) {
	switch cfg.Adapter.Mode {
	case "simulated":
		return simulated.New(simulated.Config{}, clock), nil
	case "live":
		return collyadapter.New(collyadapter.Config{
			BaseURL:   cfg.Adapter.BaseURL,
			UserAgent: cfg.Adapter.UserAgent,
			Timeout:   cfg.AdapterTimeout(),
			MaxPosts:  cfg.Adapter.MaxPosts,
		}, clock), nil
	default:
		return nil, fmt.Errorf("unknown adapter mode: %s", cfg.Adapter.Mode)
	}
}
