// Package collate assembles padded training batches from transformed items.
package collate

import (
	"errors"
	"fmt"
	"sort"

	"github.com/book-expert/tts-dataset/internal/core"
)

var (
	// ErrEmptyBatch indicates a collation request with no items.
	ErrEmptyBatch = errors.New("cannot collate an empty batch")
	// ErrInconsistentMels indicates items whose frame rows differ in width.
	ErrInconsistentMels = errors.New("items disagree on mel bin count")
	// ErrNegativeTokenID indicates an item violating the non-negative
	// token invariant.
	ErrNegativeTokenID = errors.New("item contains a negative token id")
	// ErrNoFrames indicates an item with an empty frame matrix.
	ErrNoFrames = errors.New("item has no frames")
)

// Batch is one padded mini-batch. It is created fresh per collation call and
// owned entirely by the consumer afterwards.
type Batch struct {
	// TokenIDs is [batch][maxTokens], right-padded with the pad sentinel.
	TokenIDs [][]int
	// TokenLengths holds the unpadded token count per row.
	TokenLengths []int
	// Frames is [batch][maxFrames][numMels], zero-padded along time. The
	// time axis is rounded up to a multiple of the reduction factor.
	Frames [][][]float32
	// FrameLengths holds the unpadded frame count per row.
	FrameLengths []int
	// StopTargets is [batch][maxFrames/r][1]: exactly one 1 per row, at the
	// decoder step covering the final true frame.
	StopTargets [][][]float32
	// ItemIndices maps each batch row back to its position in the caller's
	// input list.
	ItemIndices []int
}

// Collator pads item groups into aligned batches.
type Collator struct {
	reduction int
}

// New creates a collator for the configured reduction factor.
func New(cfg core.DatasetConfig) *Collator {
	return &Collator{reduction: cfg.ReductionFactor}
}

// Collate sorts items by descending frame length, pads them to common
// shapes and builds the stop-target plane.
func (c *Collator) Collate(items []core.Item) (*Batch, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}

	numMels, err := validate(items)
	if err != nil {
		return nil, err
	}

	// Longest item first; ties keep caller order.
	perm := make([]int, len(items))
	for i := range perm {
		perm[i] = i
	}

	sort.SliceStable(perm, func(i, j int) bool {
		return items[perm[i]].FrameLen() > items[perm[j]].FrameLen()
	})

	maxTokens := 0
	maxFrames := 0

	for _, item := range items {
		if len(item.TokenIDs) > maxTokens {
			maxTokens = len(item.TokenIDs)
		}

		if item.FrameLen() > maxFrames {
			maxFrames = item.FrameLen()
		}
	}

	// Pad the time axis up to a step boundary: the decoder emits
	// `reduction` frames per step.
	maxFrames = roundUp(maxFrames, c.reduction)
	numSteps := maxFrames / c.reduction

	batch := &Batch{
		TokenIDs:     make([][]int, len(items)),
		TokenLengths: make([]int, len(items)),
		Frames:       make([][][]float32, len(items)),
		FrameLengths: make([]int, len(items)),
		StopTargets:  make([][][]float32, len(items)),
		ItemIndices:  perm,
	}

	for row, src := range perm {
		item := items[src]

		batch.TokenIDs[row] = padTokens(item.TokenIDs, maxTokens)
		batch.TokenLengths[row] = len(item.TokenIDs)
		batch.Frames[row] = padFrames(item.Frames, maxFrames, numMels)
		batch.FrameLengths[row] = item.FrameLen()
		batch.StopTargets[row] = stopTargets(item.FrameLen(), numSteps, c.reduction)
	}

	return batch, nil
}

func validate(items []core.Item) (int, error) {
	for _, item := range items {
		if item.FrameLen() == 0 {
			return 0, fmt.Errorf("%w: '%s'", ErrNoFrames, item.AudioRef)
		}
	}

	numMels := len(items[0].Frames[0])

	for _, item := range items {
		for _, row := range item.Frames {
			if len(row) != numMels {
				return 0, fmt.Errorf("%w: expected %d, got %d for '%s'",
					ErrInconsistentMels, numMels, len(row), item.AudioRef)
			}
		}

		for _, id := range item.TokenIDs {
			if id < 0 {
				return 0, fmt.Errorf("%w: %d in '%s'",
					ErrNegativeTokenID, id, item.AudioRef)
			}
		}
	}

	return numMels, nil
}

func padTokens(tokenIDs []int, maxTokens int) []int {
	padded := make([]int, maxTokens)
	copy(padded, tokenIDs)

	for i := len(tokenIDs); i < maxTokens; i++ {
		padded[i] = core.PadToken
	}

	return padded
}

func padFrames(frames [][]float32, maxFrames, numMels int) [][]float32 {
	padded := make([][]float32, maxFrames)

	for i := range padded {
		if i < len(frames) {
			padded[i] = frames[i]

			continue
		}

		padded[i] = make([]float32, numMels)
	}

	return padded
}

// stopTargets marks the single decoder step covering the final true frame.
func stopTargets(frameLen, numSteps, reduction int) [][]float32 {
	targets := make([][]float32, numSteps)
	for i := range targets {
		targets[i] = []float32{0}
	}

	stopStep := (frameLen + reduction - 1) / reduction
	targets[stopStep-1][0] = 1

	return targets
}

func roundUp(value, multiple int) int {
	remainder := value % multiple
	if remainder == 0 {
		return value
	}

	return value + multiple - remainder
}
