// Package loader_test tests the parallel batch loader.
package loader_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-dataset/internal/collate"
	"github.com/book-expert/tts-dataset/internal/core"
	"github.com/book-expert/tts-dataset/internal/dataset"
	"github.com/book-expert/tts-dataset/internal/loader"
	"github.com/book-expert/tts-dataset/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider serves a fixed candidate list.
type fakeProvider struct {
	candidates []core.Candidate
}

func (f *fakeProvider) Load(_ context.Context) ([]core.Candidate, error) {
	return f.candidates, nil
}

type runeCleaner struct{}

func (runeCleaner) Clean(rawText string) ([]int, error) {
	tokenIDs := make([]int, 0, len(rawText))
	for range rawText {
		tokenIDs = append(tokenIDs, 2)
	}

	return tokenIDs, nil
}

type fixedExtractor struct{}

func (fixedExtractor) Extract(_ context.Context, audioRef string) ([][]float32, error) {
	frames := make([][]float32, len(audioRef)+1)
	for i := range frames {
		frames[i] = []float32{1, 2, 3}
	}

	return frames, nil
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "loader-test.log")
	require.NoError(t, err)

	return log
}

func buildLoader(t *testing.T, numItems int, dropLast bool) (*loader.Loader, *dataset.Dataset) {
	t.Helper()

	log := newTestLogger(t)

	cfg := core.DatasetConfig{
		BatchSize:       4,
		BatchGroupSize:  8,
		MinSeqLen:       0,
		ReductionFactor: 2,
		NumMels:         3,
		CachePolicy:     core.CacheMemory,
		Seed:            1,
	}

	candidates := make([]core.Candidate, numItems)
	for i := range candidates {
		candidates[i] = core.Candidate{
			AudioRef: fmt.Sprintf("item-%03d.wav", i),
			RawText:  fmt.Sprintf("utterance number %d", i),
			TokenIDs: nil,
		}
	}

	transformer, err := transform.New(cfg, runeCleaner{}, fixedExtractor{}, nil, log)
	require.NoError(t, err)

	built, err := dataset.New(context.Background(), cfg, &fakeProvider{candidates: candidates}, transformer, log)
	require.NoError(t, err)

	loaderCfg := loader.Config{NumWorkers: 3, QueueDepth: 2, DropLast: dropLast}

	batchLoader, err := loader.New(built, cfg, loaderCfg, log)
	require.NoError(t, err)

	return batchLoader, built
}

func drain(t *testing.T, batches <-chan *collate.Batch, errs <-chan error) []*collate.Batch {
	t.Helper()

	var collected []*collate.Batch

	for batch := range batches {
		collected = append(collected, batch)
	}

	require.NoError(t, <-errs)

	return collected
}

func TestEpochCoversEveryItemOnce(t *testing.T) {
	t.Parallel()

	batchLoader, built := buildLoader(t, 19, false)
	require.Equal(t, 5, batchLoader.NumBatches())

	batches, errs := batchLoader.Epoch(context.Background())

	collected := drain(t, batches, errs)
	require.Len(t, collected, 5)

	totalRows := 0
	for _, batch := range collected {
		totalRows += len(batch.Frames)
	}

	assert.Equal(t, built.Len(), totalRows)
}

func TestEpochDropLast(t *testing.T) {
	t.Parallel()

	batchLoader, _ := buildLoader(t, 19, true)
	require.Equal(t, 4, batchLoader.NumBatches())

	batches, errs := batchLoader.Epoch(context.Background())

	collected := drain(t, batches, errs)
	require.Len(t, collected, 4)

	for _, batch := range collected {
		assert.Len(t, batch.Frames, 4)
	}
}

func TestEpochBatchInvariants(t *testing.T) {
	t.Parallel()

	batchLoader, _ := buildLoader(t, 16, false)

	batches, errs := batchLoader.Epoch(context.Background())

	for batch := range batches {
		// Time axis aligned to the reduction factor.
		assert.Zero(t, len(batch.Frames[0])%2)

		for row := range batch.StopTargets {
			var sum float32
			for _, step := range batch.StopTargets[row] {
				sum += step[0]
			}

			assert.InDelta(t, 1.0, sum, 1e-6)
		}
	}

	require.NoError(t, <-errs)
}

func TestEpochCanceled(t *testing.T) {
	t.Parallel()

	batchLoader, _ := buildLoader(t, 16, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batches, errs := batchLoader.Epoch(ctx)

	for batch := range batches {
		_ = batch
	}

	require.Error(t, <-errs)
}

func TestLoaderConfigValidate(t *testing.T) {
	t.Parallel()

	err := loader.Config{NumWorkers: 0, QueueDepth: 1, DropLast: false}.Validate()
	require.ErrorIs(t, err, loader.ErrNumWorkersInvalid)

	err = loader.Config{NumWorkers: 2, QueueDepth: -1, DropLast: false}.Validate()
	require.ErrorIs(t, err, loader.ErrQueueDepthNegative)
}
