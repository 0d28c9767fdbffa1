// Package corpus parses corpus metadata into ordered candidate records.
//
// Each provider reads one metadata layout and yields records in a
// deterministic order: identical file or table contents always produce the
// identical sequence, which the bucketing sampler depends on for
// reproducible epochs.
package corpus

import (
	"context"
	"errors"

	"github.com/book-expert/tts-dataset/internal/core"
)

var (
	// ErrMalformedRow indicates a metadata row with the wrong column count
	// or an unparsable field. Structural, aborts the whole load.
	ErrMalformedRow = errors.New("malformed metadata row")
	// ErrMissingAudio indicates a metadata row referencing an audio file
	// that does not exist on disk.
	ErrMissingAudio = errors.New("referenced audio file missing")
	// ErrEmptyCorpus indicates a metadata source with no usable records.
	ErrEmptyCorpus = errors.New("corpus metadata contains no records")
	// ErrUnknownFormat indicates an unrecognized corpus format name.
	ErrUnknownFormat = errors.New("unknown corpus format")
)

// Provider loads corpus metadata into candidate records. Candidates from
// providers that do not carry precomputed token sequences have a nil
// TokenIDs field; the dataset runs the text cleaner over them at build time.
type Provider interface {
	Load(ctx context.Context) ([]core.Candidate, error)
}
