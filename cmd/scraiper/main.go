// Package main wires together the toll service binary.
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

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tollwatch/scraiper/internal/api"
	"github.com/tollwatch/scraiper/internal/clock/system"
	"github.com/tollwatch/scraiper/internal/config"
	"github.com/tollwatch/scraiper/internal/convert"
	"github.com/tollwatch/scraiper/internal/extract"
	"github.com/tollwatch/scraiper/internal/fetcher"
	md5namer "github.com/tollwatch/scraiper/internal/hash/md5"
	"github.com/tollwatch/scraiper/internal/hash/sha256"
	"github.com/tollwatch/scraiper/internal/id/uuid"
	"github.com/tollwatch/scraiper/internal/ingest"
	"github.com/tollwatch/scraiper/internal/logging"
	memorypublisher "github.com/tollwatch/scraiper/internal/publisher/memory"
	pubsubpublisher "github.com/tollwatch/scraiper/internal/publisher/pubsub"
	gcsstorage "github.com/tollwatch/scraiper/internal/storage/gcs"
	localstorage "github.com/tollwatch/scraiper/internal/storage/local"
	"github.com/tollwatch/scraiper/internal/storage/postgres"
	"github.com/tollwatch/scraiper/internal/sweep"
	"github.com/tollwatch/scraiper/internal/toll"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	csvPath := flag.String("csv", "", "Path to a delimited feed to ingest (overrides config)")
	sweepFlag := flag.Bool("sweep", false, "Run a fetch sweep over the stored references")
	serveFlag := flag.Bool("serve", false, "Start the HTTP API server")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *csvPath != "" {
		cfg.Ingest.CSVPath = *csvPath
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

	if err := run(ctx, cfg, *sweepFlag, *serveFlag, logger); err != nil {
		logger.Error("run failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, doSweep, doServe bool, logger *zap.Logger) error {
	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		FacilitiesTable: cfg.DB.FacilitiesTable,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	clock := system.New()
	snapshots, err := postgres.NewSnapshotStore(pool, clock, logger.Named("snapshots"))
	if err != nil {
		return err
	}

	blobStore, err := buildBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	pages := extract.NewCollyPageFetcher(cfg.Fetch.UserAgent, cfg.FetchTimeout())

	var extractor extract.Extractor
	if cfg.Extract.Enabled {
		token := os.Getenv("OPENAI_API_KEY")
		if token == "" {
			return fmt.Errorf("extraction enabled but OPENAI_API_KEY is not set")
		}
		extractor, err = extract.NewLLMExtractor(extract.Config{
			BaseURL: cfg.Extract.BaseURL,
			Token:   token,
			Model:   cfg.Extract.Model,
		}, pages, logger.Named("extract"))
		if err != nil {
			return fmt.Errorf("build extractor: %w", err)
		}
	}

	converter, err := convert.New(pages, blobStore, sha256.New(), convert.NewPDFParser(), logger.Named("convert"))
	if err != nil {
		return fmt.Errorf("build converter: %w", err)
	}

	if cfg.Ingest.CSVPath != "" {
		if err := runIngest(ctx, cfg, snapshots, logger); err != nil {
			return err
		}
	}

	if doSweep {
		if err := runSweep(ctx, cfg, pool, blobStore, clock, logger); err != nil {
			return err
		}
	}

	if doServe {
		return serve(ctx, cfg, snapshots, extractor, converter, logger)
	}
	return nil
}

func runIngest(ctx context.Context, cfg config.Config, snapshots toll.SnapshotStore, logger *zap.Logger) error {
	parser := ingest.NewParser(rune(cfg.Ingest.Delimiter[0]), cfg.Ingest.SkipRows, logger.Named("ingest"))
	records, err := parser.ParseFile(cfg.Ingest.CSVPath)
	if err != nil {
		return fmt.Errorf("parse feed: %w", err)
	}
	snapshotID, err := snapshots.Commit(ctx, records)
	if err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	logger.Info("snapshot committed",
		zap.Int64("snapshot_id", snapshotID),
		zap.Int("records", len(records)),
	)
	return nil
}

func runSweep(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, blobStore toll.BlobStore, clock toll.Clock, logger *zap.Logger) error {
	refs, err := postgres.NewReferenceSource(pool, cfg.DB.FacilitiesTable, logger.Named("references"))
	if err != nil {
		return err
	}

	headers, err := fetcher.LoadHeaders(cfg.Fetch.HeadersFile, cfg.Fetch.UserAgent)
	if err != nil {
		return fmt.Errorf("load request headers: %w", err)
	}

	fetch, err := fetcher.New(fetcher.Config{
		Timeout: cfg.FetchTimeout(),
		Proxy: fetcher.ProxyConfig{
			HTTP:    cfg.Fetch.ProxyHTTP,
			HTTPS:   cfg.Fetch.ProxyHTTPS,
			NoProxy: cfg.Fetch.ProxyNone,
		},
		Headers:           headers,
		ContentType:       cfg.Storage.ContentType,
		BackoffInitial:    cfg.BackoffInitial(),
		BackoffMultiplier: cfg.Fetch.BackoffMultiplier,
		MaxAttempts:       cfg.Fetch.MaxAttempts,
	}, blobStore, md5namer.New(), clock, logger.Named("fetcher"))
	if err != nil {
		return err
	}

	fetchPool, err := fetcher.NewPool(fetch, cfg.Fetch.MaxWorkers, logger.Named("pool"))
	if err != nil {
		return err
	}

	publisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}

	sweeper, err := sweep.New(refs, fetchPool, publisher, uuid.NewGenerator(), sweep.Config{
		Topic: cfg.PubSub.TopicName,
	}, logger.Named("sweep"))
	if err != nil {
		return err
	}

	report, err := sweeper.Run(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	logger.Info("sweep report",
		zap.String("sweep_id", report.SweepID),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
	)
	return nil
}

func buildBlobStore(ctx context.Context, cfg config.Config) (toll.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("build gcs client: %w", err)
		}
		return gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Storage.GCSBucket})
	default:
		return localstorage.New(localstorage.Config{BaseDir: cfg.Storage.BaseDir})
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (toll.Publisher, error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("build pubsub client: %w", err)
	}
	return pubsubpublisher.New(client), nil
}

func serve(ctx context.Context, cfg config.Config, snapshots api.SnapshotReader, extractor extract.Extractor, converter api.Converter, logger *zap.Logger) error {
	apiServer := api.NewServer(snapshots, extractor, converter, api.Config{APIKey: cfg.Server.APIKey}, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
