// main package for the dataset-inspect tool: it builds the full dataset
// pipeline from configuration, drives one epoch of batches and reports
// padding statistics.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-dataset/internal/config"
	"github.com/book-expert/tts-dataset/internal/core"
	"github.com/book-expert/tts-dataset/internal/corpus"
	"github.com/book-expert/tts-dataset/internal/dataset"
	"github.com/book-expert/tts-dataset/internal/featstore"
	"github.com/book-expert/tts-dataset/internal/features"
	"github.com/book-expert/tts-dataset/internal/loader"
	"github.com/book-expert/tts-dataset/internal/text"
	"github.com/book-expert/tts-dataset/internal/transform"
	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
)

// Supported corpus formats and cache backends.
const (
	formatLJSpeech  = "ljspeech"
	formatCacheMeta = "cache"
	formatMySQL     = "mysql"

	backendFS   = "fs"
	backendNATS = "nats"
)

var (
	errUnknownCorpusFormat = errors.New("unknown corpus format")
	errUnknownCacheBackend = errors.New("unknown cache backend")
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "dataset-inspect.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func datasetConfig(cfg *config.Config) core.DatasetConfig {
	return core.DatasetConfig{
		BatchSize:       cfg.Dataset.BatchSize,
		BatchGroupSize:  cfg.Dataset.BatchGroupSize,
		MinSeqLen:       cfg.Dataset.MinSeqLen,
		ReductionFactor: cfg.Dataset.ReductionFactor,
		NumMels:         cfg.Audio.NumMels,
		CachePolicy:     core.CachePolicy(cfg.Dataset.CachePolicy),
		Seed:            cfg.Dataset.Seed,
	}
}

func audioParams(cfg *config.Config) features.AudioParams {
	return features.AudioParams{
		SampleRate: cfg.Audio.SampleRate,
		NumMels:    cfg.Audio.NumMels,
		FFTSize:    cfg.Audio.FFTSize,
		HopLength:  cfg.Audio.HopLength,
		WinLength:  cfg.Audio.WinLength,
		MelFmin:    cfg.Audio.MelFmin,
		MelFmax:    cfg.Audio.MelFmax,
	}
}

// buildProvider picks the corpus metadata source by format name.
func buildProvider(cfg *config.Config, log *logger.Logger) (corpus.Provider, func(), error) {
	noop := func() {}

	switch cfg.Corpus.Format {
	case formatLJSpeech:
		return corpus.NewLJSpeech(cfg.Corpus.Root, cfg.Corpus.MetadataFile, log), noop, nil
	case formatCacheMeta:
		return corpus.NewCacheMeta(cfg.Cache.Dir, cfg.Corpus.MetadataFile, log), noop, nil
	case formatMySQL:
		db, err := sql.Open("mysql", cfg.Database.DSN)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open corpus database: %w", err)
		}

		cleanup := func() {
			closeErr := db.Close()
			if closeErr != nil {
				log.Warn("Failed to close corpus database: %v", closeErr)
			}
		}

		provider, err := corpus.NewMySQL(db, cfg.Database.Table, log)
		if err != nil {
			cleanup()

			return nil, noop, fmt.Errorf("failed to create mysql provider: %w", err)
		}

		return provider, cleanup, nil
	default:
		return nil, noop, fmt.Errorf("%w: %q", errUnknownCorpusFormat, cfg.Corpus.Format)
	}
}

// buildStore connects the feature artifact store for the disk cache policy.
func buildStore(cfg *config.Config, log *logger.Logger) (core.ObjectStore, func(), error) {
	noop := func() {}

	if core.CachePolicy(cfg.Dataset.CachePolicy) != core.CacheDisk {
		return nil, noop, nil
	}

	switch cfg.Cache.Backend {
	case backendFS:
		store, err := featstore.NewFS(cfg.Cache.Dir)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create fs feature store: %w", err)
		}

		return store, noop, nil
	case backendNATS:
		natsConnection, err := nats.Connect(cfg.NATS.URL)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to connect to NATS at '%s': %w", cfg.NATS.URL, err)
		}

		cleanup := func() {
			natsConnection.Close()
		}

		jetstreamContext, err := natsConnection.JetStream()
		if err != nil {
			cleanup()

			return nil, noop, fmt.Errorf("failed to create JetStream context: %w", err)
		}

		store, err := featstore.NewNATS(jetstreamContext, cfg.NATS.FeatureObjectStoreBucket)
		if err != nil {
			cleanup()

			return nil, noop, err
		}

		return store, cleanup, nil
	default:
		return nil, noop, fmt.Errorf("%w: %q", errUnknownCacheBackend, cfg.Cache.Backend)
	}
}

// inspectEpoch drains one epoch and logs aggregate padding overhead.
func inspectEpoch(ctx context.Context, batchLoader *loader.Loader, log *logger.Logger) error {
	batches, errs := batchLoader.Epoch(ctx)

	numBatches := 0
	paddedFrames := 0
	realFrames := 0

	for batch := range batches {
		numBatches++

		for row := range batch.Frames {
			paddedFrames += len(batch.Frames[row])
			realFrames += batch.FrameLengths[row]
		}
	}

	err := <-errs
	if err != nil {
		return fmt.Errorf("epoch failed: %w", err)
	}

	overhead := 0.0
	if realFrames > 0 {
		overhead = 100 * float64(paddedFrames-realFrames) / float64(realFrames)
	}

	log.Info("Epoch complete: %d batches, %d real frames, %.2f%% padding overhead",
		numBatches, realFrames, overhead)

	return nil
}

func run() error {
	// A missing .env file is fine; explicit environment wins either way.
	_ = godotenv.Load()

	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	return inspect(cfg, finalLog)
}

func inspect(cfg *config.Config, log *logger.Logger) error {
	ctx := context.Background()

	provider, providerCleanup, err := buildProvider(cfg, log)
	if err != nil {
		return err
	}
	defer providerCleanup()

	store, storeCleanup, err := buildStore(cfg, log)
	if err != nil {
		return err
	}
	defer storeCleanup()

	extractor, err := features.NewMelExtractor(audioParams(cfg), log)
	if err != nil {
		return err
	}

	datasetCfg := datasetConfig(cfg)

	transformer, err := transform.New(datasetCfg, text.NewCleaner(), extractor, store, log)
	if err != nil {
		return err
	}

	builtDataset, err := dataset.New(ctx, datasetCfg, provider, transformer, log)
	if err != nil {
		return err
	}

	loaderCfg := loader.Config{
		NumWorkers: cfg.Loader.NumWorkers,
		QueueDepth: cfg.Loader.QueueDepth,
		DropLast:   cfg.Loader.DropLast,
	}

	batchLoader, err := loader.New(builtDataset, datasetCfg, loaderCfg, log)
	if err != nil {
		return err
	}

	log.System("Inspecting %d items in %d batches", builtDataset.Len(), batchLoader.NumBatches())

	err = inspectEpoch(ctx, batchLoader, log)
	if err != nil {
		return err
	}

	// Show that re-bucketing holds up for a second epoch as well.
	builtDataset.SortItems()

	return inspectEpoch(ctx, batchLoader, log)
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "dataset-inspect exited with error: %v\n", err)
		os.Exit(1)
	}
}
