// Package transform converts corpus candidates into fully featured items.
//
// A Transformer owns the caching policy: recompute features on every access,
// serve them from a write-through artifact store, or rely on the dataset
// holding eagerly transformed items in memory. The transform itself is
// read-only over shared state and safe for concurrent calls.
package transform

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-dataset/internal/core"
	"github.com/book-expert/tts-dataset/internal/featstore"
	"golang.org/x/sync/errgroup"
)

const artifactExt = ".mel"

var (
	// ErrTransform indicates a candidate that could not be transformed.
	ErrTransform = errors.New("item transform failed")
	// ErrStoreRequired indicates the disk cache policy without a store.
	ErrStoreRequired = errors.New("disk cache policy requires an object store")
	// ErrCleanerRequired indicates a nil text cleaner.
	ErrCleanerRequired = errors.New("text cleaner is required")
	// ErrExtractorRequired indicates a nil feature extractor.
	ErrExtractorRequired = errors.New("feature extractor is required")
)

// Transformer applies the text cleaner and feature extractor to candidates
// under a fixed cache policy.
type Transformer struct {
	policy    core.CachePolicy
	cleaner   core.TextCleaner
	extractor core.FeatureExtractor
	store     core.ObjectStore
	log       *logger.Logger
}

// New creates a transformer. The store is consulted only under the disk
// policy and may be nil otherwise.
func New(
	cfg core.DatasetConfig,
	cleaner core.TextCleaner,
	extractor core.FeatureExtractor,
	store core.ObjectStore,
	log *logger.Logger,
) (*Transformer, error) {
	if cleaner == nil {
		return nil, ErrCleanerRequired
	}

	if extractor == nil {
		return nil, ErrExtractorRequired
	}

	if cfg.CachePolicy == core.CacheDisk && store == nil {
		return nil, ErrStoreRequired
	}

	return &Transformer{
		policy:    cfg.CachePolicy,
		cleaner:   cleaner,
		extractor: extractor,
		store:     store,
		log:       log,
	}, nil
}

// CleanCandidate fills in the candidate's token sequence without touching
// audio. Candidates that already carry tokens pass through unchanged.
func (t *Transformer) CleanCandidate(candidate core.Candidate) (core.Candidate, error) {
	if candidate.TokenIDs != nil {
		return candidate, nil
	}

	tokenIDs, err := t.cleaner.Clean(candidate.RawText)
	if err != nil {
		return core.Candidate{}, fmt.Errorf(
			"%w: cleaning %q: %w", ErrTransform, candidate.AudioRef, err)
	}

	candidate.TokenIDs = tokenIDs

	return candidate, nil
}

// Transform produces a fully featured item for one candidate.
func (t *Transformer) Transform(ctx context.Context, candidate core.Candidate) (core.Item, error) {
	tokenIDs := candidate.TokenIDs

	if tokenIDs == nil {
		cleaned, err := t.cleaner.Clean(candidate.RawText)
		if err != nil {
			return core.Item{}, fmt.Errorf(
				"%w: cleaning %q: %w", ErrTransform, candidate.AudioRef, err)
		}

		tokenIDs = cleaned
	}

	frames, err := t.frames(ctx, candidate.AudioRef)
	if err != nil {
		return core.Item{}, err
	}

	return core.Item{
		AudioRef: candidate.AudioRef,
		RawText:  candidate.RawText,
		TokenIDs: tokenIDs,
		Frames:   frames,
	}, nil
}

// TransformAll transforms candidates in parallel, preserving input order
// among the survivors. Failed candidates are skipped and logged, never
// aborting the whole load.
func (t *Transformer) TransformAll(ctx context.Context, candidates []core.Candidate) ([]core.Item, error) {
	results := make([]*core.Item, len(candidates))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.NumCPU())

	for i, candidate := range candidates {
		group.Go(func() error {
			if ctxErr := groupCtx.Err(); ctxErr != nil {
				return fmt.Errorf("transform canceled: %w", ctxErr)
			}

			item, err := t.Transform(groupCtx, candidate)
			if err != nil {
				if ctxErr := groupCtx.Err(); ctxErr != nil {
					return fmt.Errorf("transform canceled: %w", ctxErr)
				}

				t.log.Warn("Skipping item '%s': %v", candidate.AudioRef, err)

				return nil
			}

			results[i] = &item

			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return nil, err
	}

	items := make([]core.Item, 0, len(candidates))

	for _, item := range results {
		if item != nil {
			items = append(items, *item)
		}
	}

	return items, nil
}

// frames obtains the frame matrix for one audio reference per the policy.
func (t *Transformer) frames(ctx context.Context, audioRef string) ([][]float32, error) {
	if t.policy != core.CacheDisk {
		return t.extract(ctx, audioRef)
	}

	key := artifactKey(audioRef)

	data, err := t.store.Download(ctx, key)
	if err == nil {
		frames, decodeErr := featstore.DecodeFrames(data)
		if decodeErr != nil {
			return nil, fmt.Errorf("%w: artifact '%s': %w", ErrTransform, key, decodeErr)
		}

		return frames, nil
	}

	frames, err := t.extract(ctx, audioRef)
	if err != nil {
		return nil, err
	}

	encoded, err := featstore.EncodeFrames(frames)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding '%s': %w", ErrTransform, audioRef, err)
	}

	uploadErr := t.store.Upload(ctx, key, encoded)
	if uploadErr != nil {
		// A failed write-through degrades to recompute on the next epoch.
		t.log.Warn("Failed to cache artifact '%s': %v", key, uploadErr)
	}

	return frames, nil
}

func (t *Transformer) extract(ctx context.Context, audioRef string) ([][]float32, error) {
	frames, err := t.extractor.Extract(ctx, audioRef)
	if err != nil {
		return nil, fmt.Errorf("%w: extracting '%s': %w", ErrTransform, audioRef, err)
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: extractor returned no frames for '%s'",
			ErrTransform, audioRef)
	}

	return frames, nil
}

// artifactKey maps an audio reference to its cache key. References that
// already name an artifact (cache-metadata corpora) pass through unchanged.
func artifactKey(audioRef string) string {
	if strings.HasSuffix(audioRef, artifactExt) && !strings.ContainsAny(audioRef, "/\\") {
		return audioRef
	}

	return featstore.Key(audioRef)
}
