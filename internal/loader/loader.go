// Package loader drives a dataset through one epoch of batch production.
//
// The loader walks the dataset's current visitation order in fixed-size
// chunks, fetches each chunk's items with a bounded worker pool and emits
// collated batches over a bounded channel. Batches come out in visitation
// order; only the item fetches within one batch run concurrently, which is
// what keeps the bucketing sampler's length locality intact.
package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-dataset/internal/collate"
	"github.com/book-expert/tts-dataset/internal/core"
	"github.com/book-expert/tts-dataset/internal/dataset"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNumWorkersInvalid indicates a non-positive worker count.
	ErrNumWorkersInvalid = errors.New("number of workers must be positive")
	// ErrQueueDepthNegative indicates a negative queue depth.
	ErrQueueDepthNegative = errors.New("queue depth must be non-negative")
)

// Config holds the loader's parallelism settings.
type Config struct {
	NumWorkers int
	QueueDepth int
	DropLast   bool
}

// Validate ensures the loader settings are usable.
func (c Config) Validate() error {
	if c.NumWorkers <= 0 {
		return fmt.Errorf("%w: got %d", ErrNumWorkersInvalid, c.NumWorkers)
	}

	if c.QueueDepth < 0 {
		return fmt.Errorf("%w: got %d", ErrQueueDepthNegative, c.QueueDepth)
	}

	return nil
}

// Loader produces one epoch of batches at a time from a dataset.
type Loader struct {
	dataset   *dataset.Dataset
	batchSize int
	cfg       Config
	log       *logger.Logger
}

// New creates a loader over the dataset.
func New(
	ds *dataset.Dataset,
	datasetCfg core.DatasetConfig,
	cfg Config,
	log *logger.Logger,
) (*Loader, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	err = datasetCfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid dataset configuration: %w", err)
	}

	return &Loader{
		dataset:   ds,
		batchSize: datasetCfg.BatchSize,
		cfg:       cfg,
		log:       log,
	}, nil
}

// NumBatches returns how many batches one epoch yields.
func (l *Loader) NumBatches() int {
	full := l.dataset.Len() / l.batchSize
	if !l.cfg.DropLast && l.dataset.Len()%l.batchSize != 0 {
		return full + 1
	}

	return full
}

// Epoch streams the current visitation order as collated batches. The
// returned channels close when the epoch completes; at most one error is
// sent. Consumers must drain the batch channel before calling the dataset's
// SortItems.
func (l *Loader) Epoch(ctx context.Context) (<-chan *collate.Batch, <-chan error) {
	batches := make(chan *collate.Batch, l.cfg.QueueDepth)
	errs := make(chan error, 1)

	go func() {
		defer close(batches)
		defer close(errs)

		err := l.run(ctx, batches)
		if err != nil {
			errs <- err
		}
	}()

	return batches, errs
}

func (l *Loader) run(ctx context.Context, batches chan<- *collate.Batch) error {
	total := l.dataset.Len()

	l.log.Info("Starting epoch: %d items in %d batches", total, l.NumBatches())

	for start := 0; start < total; start += l.batchSize {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("epoch canceled: %w", ctxErr)
		}

		end := start + l.batchSize
		if end > total {
			if l.cfg.DropLast {
				return nil
			}

			end = total
		}

		items, err := l.fetch(ctx, start, end)
		if err != nil {
			return err
		}

		batch, err := l.dataset.Collate(items)
		if err != nil {
			return fmt.Errorf("failed to collate positions [%d, %d): %w", start, end, err)
		}

		select {
		case batches <- batch:
		case <-ctx.Done():
			return fmt.Errorf("epoch canceled: %w", ctx.Err())
		}
	}

	return nil
}

// fetch retrieves one batch worth of items with the worker pool.
func (l *Loader) fetch(ctx context.Context, start, end int) ([]core.Item, error) {
	items := make([]core.Item, end-start)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(l.cfg.NumWorkers)

	for position := start; position < end; position++ {
		group.Go(func() error {
			item, err := l.dataset.Get(groupCtx, position)
			if err != nil {
				return fmt.Errorf("failed to fetch position %d: %w", position, err)
			}

			items[position-start] = item

			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return nil, err
	}

	return items, nil
}
