// main package for the mel-cache tool: it precomputes the feature artifact
// cache for a corpus and writes the cache metadata file that the "cache"
// corpus format reads back.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-dataset/internal/config"
	"github.com/book-expert/tts-dataset/internal/core"
	"github.com/book-expert/tts-dataset/internal/corpus"
	"github.com/book-expert/tts-dataset/internal/featstore"
	"github.com/book-expert/tts-dataset/internal/features"
	"github.com/book-expert/tts-dataset/internal/text"
	"github.com/book-expert/tts-dataset/internal/transform"
	"github.com/joho/godotenv"
)

const (
	cacheMetadataFile   = "cache_meta.csv"
	metadataPermissions = 0o600
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "mel-cache.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
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

	return precompute(cfg, finalLog)
}

// precompute walks the corpus once with the disk policy so every artifact
// lands in the store, then records the cache metadata file.
func precompute(cfg *config.Config, log *logger.Logger) error {
	ctx := context.Background()

	provider := corpus.NewLJSpeech(cfg.Corpus.Root, cfg.Corpus.MetadataFile, log)

	store, err := featstore.NewFS(cfg.Cache.Dir)
	if err != nil {
		return err
	}

	extractor, err := features.NewMelExtractor(features.AudioParams{
		SampleRate: cfg.Audio.SampleRate,
		NumMels:    cfg.Audio.NumMels,
		FFTSize:    cfg.Audio.FFTSize,
		HopLength:  cfg.Audio.HopLength,
		WinLength:  cfg.Audio.WinLength,
		MelFmin:    cfg.Audio.MelFmin,
		MelFmax:    cfg.Audio.MelFmax,
	}, log)
	if err != nil {
		return err
	}

	datasetCfg := core.DatasetConfig{
		BatchSize:       1,
		BatchGroupSize:  0,
		MinSeqLen:       cfg.Dataset.MinSeqLen,
		ReductionFactor: cfg.Dataset.ReductionFactor,
		NumMels:         cfg.Audio.NumMels,
		CachePolicy:     core.CacheDisk,
		Seed:            cfg.Dataset.Seed,
	}

	transformer, err := transform.New(datasetCfg, text.NewCleaner(), extractor, store, log)
	if err != nil {
		return err
	}

	candidates, err := provider.Load(ctx)
	if err != nil {
		return err
	}

	items, err := transformer.TransformAll(ctx, candidates)
	if err != nil {
		return err
	}

	err = writeCacheMetadata(cfg.Cache.Dir, items)
	if err != nil {
		return err
	}

	log.System("Cached %d of %d items into %s", len(items), len(candidates), cfg.Cache.Dir)

	return nil
}

// writeCacheMetadata records each artifact key with its transcript and
// token sequence, in corpus order.
func writeCacheMetadata(cacheDir string, items []core.Item) error {
	var builder strings.Builder

	for _, item := range items {
		tokens := make([]string, len(item.TokenIDs))
		for i, id := range item.TokenIDs {
			tokens[i] = strconv.Itoa(id)
		}

		builder.WriteString(featstore.Key(item.AudioRef))
		builder.WriteString("|")
		builder.WriteString(strings.ReplaceAll(item.RawText, "|", " "))
		builder.WriteString("|")
		builder.WriteString(strings.Join(tokens, " "))
		builder.WriteString("\n")
	}

	path := filepath.Join(cacheDir, cacheMetadataFile)

	err := os.WriteFile(path, []byte(builder.String()), metadataPermissions)
	if err != nil {
		return fmt.Errorf("failed to write cache metadata file '%s': %w", path, err)
	}

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mel-cache exited with error: %v\n", err)
		os.Exit(1)
	}
}
