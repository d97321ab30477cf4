// Package main wires together the bundler service binary.
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

	"go.uber.org/zap"

	"github.com/landingzip/bundler/internal/api"
	"github.com/landingzip/bundler/internal/bundle"
	"github.com/landingzip/bundler/internal/clock/system"
	"github.com/landingzip/bundler/internal/config"
	"github.com/landingzip/bundler/internal/dispatcher"
	collyfetcher "github.com/landingzip/bundler/internal/fetcher/colly"
	"github.com/landingzip/bundler/internal/hash/sha256"
	"github.com/landingzip/bundler/internal/id/uuid"
	"github.com/landingzip/bundler/internal/logging"
	memorypublisher "github.com/landingzip/bundler/internal/publisher/memory"
	pubsubpublisher "github.com/landingzip/bundler/internal/publisher/pubsub"
	"github.com/landingzip/bundler/internal/queue"
	"github.com/landingzip/bundler/internal/renderer"
	"github.com/landingzip/bundler/internal/staging"
	"github.com/landingzip/bundler/internal/storage"
	gcsstorage "github.com/landingzip/bundler/internal/storage/gcs"
	localstorage "github.com/landingzip/bundler/internal/storage/local"
	memorystorage "github.com/landingzip/bundler/internal/storage/memory"
	"github.com/landingzip/bundler/internal/taskstore"
	"github.com/landingzip/bundler/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
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
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tasks, err := buildTaskStore(ctx, cfg)
	if err != nil {
		logger.Fatal("task store init failed", zap.Error(err))
	}

	archives, err := buildArchiveStore(ctx, cfg)
	if err != nil {
		logger.Fatal("archive store init failed", zap.Error(err))
	}

	publisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Bundle.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})

	var pageRenderer bundle.Renderer
	if cfg.Headless.Enabled {
		headless, err := renderer.NewChromedp(renderer.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Bundle.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
			QPS:               cfg.Headless.DomainQPS,
		})
		if err != nil {
			logger.Fatal("headless renderer init failed", zap.Error(err))
		}
		defer headless.Close()
		pageRenderer = headless
	} else {
		pageRenderer = renderer.NewStatic(fetcher)
	}

	var stagingFactory bundle.StagingFactory
	if cfg.Bundle.StagingDir != "" {
		stagingFactory = func() (bundle.StagingArea, error) {
			return staging.NewArea(cfg.Bundle.StagingDir)
		}
	}

	pipeline := bundle.NewPipeline(
		pageRenderer,
		fetcher,
		tasks,
		archives,
		publisher,
		sha256.New(),
		system.New(),
		stagingFactory,
		bundle.PipelineConfig{
			MaxParallel:   cfg.Bundle.MaxParallel,
			ArchiveName:   cfg.Bundle.ArchiveName,
			StoragePrefix: cfg.Storage.Prefix,
			RetainStaging: cfg.Bundle.RetainStaging,
		},
		logger.Named("pipeline"),
	)

	taskQueue := queue.NewMemory(cfg.Bundle.QueueDepth)
	var workers []*worker.Worker
	for i := 0; i < cfg.Bundle.Workers; i++ {
		workers = append(workers, worker.New(
			taskQueue,
			pipeline,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(taskQueue, workers)

	apiServer := api.NewServer(tasks, pipeline, dispatch, uuid.NewGenerator(), system.New(), cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Bundle.Workers))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Drain the server before closing the queue so late async requests
	// get a clean rejection instead of racing the close.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
	taskQueue.Close()
	logger.Info("shutdown complete")
}

func buildTaskStore(ctx context.Context, cfg config.Config) (taskstore.Store, error) {
	if !cfg.DB.Enabled {
		return taskstore.NewMemoryStore(), nil
	}
	store, err := taskstore.NewPostgresStore(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return store, nil
}

func buildArchiveStore(ctx context.Context, cfg config.Config) (bundle.ArchiveStore, error) {
	switch cfg.Storage.Provider {
	case "gcs":
		store, err := gcsstorage.Connect(ctx, gcsstorage.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Storage.BaseDir})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory":
		return memorystorage.New(), nil
	default:
		return storage.NoOpProvider{}, nil
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (bundle.EventPublisher, error) {
	if !cfg.PubSub.Enabled {
		return memorypublisher.New(), nil
	}
	pub, err := pubsubpublisher.Connect(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("connect pubsub: %w", err)
	}
	return pub, nil
}
