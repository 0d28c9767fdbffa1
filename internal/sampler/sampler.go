// Package sampler produces length-bucketed epoch visitation orders.
//
// Items are sorted by token length, partitioned into contiguous groups and
// shuffled only within each group. Downstream batching in visitation order
// then packs items of similar length together, which keeps padding waste
// low while still rotating batch composition across epochs.
package sampler

import (
	"math/rand"
	"sort"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-dataset/internal/core"
)

// Bucketing computes shuffled, length-local permutations over item indices.
type Bucketing struct {
	groupSize int
	log       *logger.Logger
}

// New creates a sampler. A zero BatchGroupSize disables bucketing and
// degenerates Order into a flat shuffle.
func New(cfg core.DatasetConfig, log *logger.Logger) *Bucketing {
	return &Bucketing{
		groupSize: cfg.BatchGroupSize,
		log:       log,
	}
}

// Order returns a fresh permutation of [0, len(lengths)) for one epoch.
// The permutation is deterministic in (lengths, seed); ties in length keep
// their original relative order before shuffling so reloading the same
// corpus reproduces the same epochs.
func (s *Bucketing) Order(lengths []int, seed int64) []int {
	indices := make([]int, len(lengths))
	for i := range indices {
		indices[i] = i
	}

	rng := rand.New(rand.NewSource(seed)) // #nosec G404 -- shuffle order is not security sensitive

	if s.groupSize <= 0 {
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		return indices
	}

	sort.SliceStable(indices, func(i, j int) bool {
		return lengths[indices[i]] < lengths[indices[j]]
	})

	for start := 0; start < len(indices); start += s.groupSize {
		end := start + s.groupSize
		if end > len(indices) {
			end = len(indices)
		}

		group := indices[start:end]
		rng.Shuffle(len(group), func(i, j int) {
			group[i], group[j] = group[j], group[i]
		})
	}

	return indices
}
