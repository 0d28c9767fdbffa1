// Package core defines the shared types and interfaces for the dataset pipeline.
package core

import (
	"context"
	"errors"
	"fmt"
)

// PadToken is the token id reserved for text padding. Cleaners must never
// emit it for real symbols.
const PadToken = 0

// TextCleaner normalizes raw transcript text into a token-id sequence.
// Implementations must never return negative ids.
type TextCleaner interface {
	Clean(rawText string) ([]int, error)
}

// FeatureExtractor converts an audio reference into a frame matrix of
// acoustic features, one row per time step.
type FeatureExtractor interface {
	Extract(ctx context.Context, audioRef string) ([][]float32, error)
}

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// Candidate is one untransformed corpus record: the metadata row plus the
// cleaned token sequence, before any acoustic features are attached.
type Candidate struct {
	AudioRef string
	RawText  string
	TokenIDs []int
}

// Item is one fully transformed corpus entry.
type Item struct {
	AudioRef string
	RawText  string
	TokenIDs []int
	Frames   [][]float32
}

// FrameLen returns the number of acoustic frames in the item.
func (it Item) FrameLen() int {
	return len(it.Frames)
}

// CachePolicy selects how the transformer obtains frame matrices.
type CachePolicy string

const (
	// CacheRecompute extracts features on every access.
	CacheRecompute CachePolicy = "recompute"
	// CacheDisk extracts once and persists artifacts in an object store.
	CacheDisk CachePolicy = "disk"
	// CacheMemory transforms all items eagerly and holds them in memory.
	CacheMemory CachePolicy = "memory"
)

var (
	// ErrBatchSizeInvalid indicates a non-positive batch size.
	ErrBatchSizeInvalid = errors.New("batch size must be positive")
	// ErrBatchGroupSizeNegative indicates a negative batch group size.
	ErrBatchGroupSizeNegative = errors.New("batch group size must be non-negative")
	// ErrMinSeqLenNegative indicates a negative minimum sequence length.
	ErrMinSeqLenNegative = errors.New("min sequence length must be non-negative")
	// ErrReductionFactorInvalid indicates a non-positive reduction factor.
	ErrReductionFactorInvalid = errors.New("reduction factor must be positive")
	// ErrNumMelsInvalid indicates a non-positive mel bin count.
	ErrNumMelsInvalid = errors.New("number of mel bins must be positive")
	// ErrUnknownCachePolicy indicates an unrecognized cache policy name.
	ErrUnknownCachePolicy = errors.New("unknown cache policy")
)

// DatasetConfig carries the knobs shared across the pipeline components.
// It is passed by value into each constructor; there is no process-wide
// mutable configuration state.
type DatasetConfig struct {
	BatchSize       int
	BatchGroupSize  int
	MinSeqLen       int
	ReductionFactor int
	NumMels         int
	CachePolicy     CachePolicy
	Seed            int64
}

// Validate ensures the configuration contains usable values.
func (c DatasetConfig) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrBatchSizeInvalid, c.BatchSize)
	}

	if c.BatchGroupSize < 0 {
		return fmt.Errorf("%w: got %d", ErrBatchGroupSizeNegative, c.BatchGroupSize)
	}

	if c.MinSeqLen < 0 {
		return fmt.Errorf("%w: got %d", ErrMinSeqLenNegative, c.MinSeqLen)
	}

	if c.ReductionFactor <= 0 {
		return fmt.Errorf("%w: got %d", ErrReductionFactorInvalid, c.ReductionFactor)
	}

	if c.NumMels <= 0 {
		return fmt.Errorf("%w: got %d", ErrNumMelsInvalid, c.NumMels)
	}

	switch c.CachePolicy {
	case CacheRecompute, CacheDisk, CacheMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCachePolicy, c.CachePolicy)
	}

	return nil
}
