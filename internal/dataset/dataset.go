// Package dataset composes the corpus index, item transformer, bucketing
// sampler and batch collator behind one random-access collection.
//
// The facade is built to be driven by an external parallel loader: Get only
// reads from state frozen at construction or at the last SortItems call, so
// any number of workers may call it concurrently. SortItems re-materializes
// the visitation order between epochs and must never run while Get calls
// from the previous epoch are still in flight; draining the loader first is
// the orchestrator's responsibility.
package dataset

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-dataset/internal/collate"
	"github.com/book-expert/tts-dataset/internal/core"
	"github.com/book-expert/tts-dataset/internal/corpus"
	"github.com/book-expert/tts-dataset/internal/sampler"
	"github.com/book-expert/tts-dataset/internal/transform"
)

var (
	// ErrNoUsableItems indicates a corpus with nothing left after
	// filtering and transform failures.
	ErrNoUsableItems = errors.New("no usable items in corpus")
	// ErrIndexOutOfRange indicates a Get position outside the collection.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Dataset is the re-sortable item collection consumed by the loader.
type Dataset struct {
	cfg         core.DatasetConfig
	transformer *transform.Transformer
	bucketing   *sampler.Bucketing
	collator    *collate.Collator
	log         *logger.Logger

	// candidates and lengths are frozen at construction. Under the memory
	// policy, items holds the eager transforms aligned with candidates.
	candidates []core.Candidate
	items      []core.Item
	lengths    []int

	// order is the current epoch's visitation permutation. Only SortItems
	// replaces it.
	order []int
	epoch int64
}

// New loads the corpus, filters short items, applies the cache policy and
// materializes the first epoch's visitation order.
func New(
	ctx context.Context,
	cfg core.DatasetConfig,
	provider corpus.Provider,
	transformer *transform.Transformer,
	log *logger.Logger,
) (*Dataset, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid dataset configuration: %w", err)
	}

	loaded, err := provider.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}

	candidates := cleanAndFilter(cfg, transformer, loaded, log)

	dataset := &Dataset{
		cfg:         cfg,
		transformer: transformer,
		bucketing:   sampler.New(cfg, log),
		collator:    collate.New(cfg),
		log:         log,
		candidates:  candidates,
		items:       nil,
		lengths:     nil,
		order:       nil,
		epoch:       0,
	}

	if cfg.CachePolicy == core.CacheMemory {
		items, transformErr := transformer.TransformAll(ctx, candidates)
		if transformErr != nil {
			return nil, fmt.Errorf("eager transform failed: %w", transformErr)
		}

		// Transform failures shrink the collection; realign candidates
		// with the survivors.
		dataset.items = items

		dataset.candidates = make([]core.Candidate, len(items))
		for i, item := range items {
			dataset.candidates[i] = core.Candidate{
				AudioRef: item.AudioRef,
				RawText:  item.RawText,
				TokenIDs: item.TokenIDs,
			}
		}
	}

	if len(dataset.candidates) == 0 {
		return nil, ErrNoUsableItems
	}

	dataset.lengths = make([]int, len(dataset.candidates))
	for i, candidate := range dataset.candidates {
		dataset.lengths[i] = len(candidate.TokenIDs)
	}

	dataset.order = dataset.bucketing.Order(dataset.lengths, cfg.Seed)

	log.Info("Dataset ready: %d items, policy %s", len(dataset.candidates), cfg.CachePolicy)

	return dataset, nil
}

// cleanAndFilter tokenizes candidates and drops the ones below MinSeqLen.
// Cleaner failures follow the skip-and-log policy; the relative order of
// survivors is preserved.
func cleanAndFilter(
	cfg core.DatasetConfig,
	transformer *transform.Transformer,
	loaded []core.Candidate,
	log *logger.Logger,
) []core.Candidate {
	kept := make([]core.Candidate, 0, len(loaded))

	for _, candidate := range loaded {
		cleaned, err := transformer.CleanCandidate(candidate)
		if err != nil {
			log.Warn("Skipping item '%s': %v", candidate.AudioRef, err)

			continue
		}

		if len(cleaned.TokenIDs) < cfg.MinSeqLen {
			continue
		}

		kept = append(kept, cleaned)
	}

	return kept
}

// Len returns the number of usable items.
func (d *Dataset) Len() int {
	return len(d.candidates)
}

// Get returns the transformed item at the given position of the current
// visitation order. It is safe for concurrent use; it never mutates the
// collection or the ordering index.
func (d *Dataset) Get(ctx context.Context, position int) (core.Item, error) {
	if position < 0 || position >= len(d.order) {
		return core.Item{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, position, len(d.order))
	}

	index := d.order[position]

	if d.items != nil {
		return d.items[index], nil
	}

	item, err := d.transformer.Transform(ctx, d.candidates[index])
	if err != nil {
		return core.Item{}, fmt.Errorf("failed to transform item %d: %w", index, err)
	}

	return item, nil
}

// Collate pads a group of items into one batch.
func (d *Dataset) Collate(items []core.Item) (*collate.Batch, error) {
	batch, err := d.collator.Collate(items)
	if err != nil {
		return nil, fmt.Errorf("failed to collate batch: %w", err)
	}

	return batch, nil
}

// SortItems re-buckets the collection for the next epoch, rotating which
// items share a shuffle group while keeping the length-locality property.
// Precondition: no Get call may be in flight; the caller drains the epoch's
// loader before invoking it.
func (d *Dataset) SortItems() {
	d.epoch++
	d.order = d.bucketing.Order(d.lengths, d.cfg.Seed+d.epoch)

	d.log.Info("Re-bucketed item order for epoch %d", d.epoch)
}
