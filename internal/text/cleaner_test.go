// Package text_test tests the token-id text cleaner.
package text_test

import (
	"testing"

	"github.com/book-expert/tts-dataset/internal/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanProducesNonNegativeIDs(t *testing.T) {
	t.Parallel()

	cleaner := text.NewCleaner()

	tokenIDs, err := cleaner.Clean("Printing, in the only sense!")
	require.NoError(t, err)
	require.NotEmpty(t, tokenIDs)

	for _, id := range tokenIDs {
		assert.GreaterOrEqual(t, id, 0)
		assert.NotZero(t, id, "pad sentinel must never appear in cleaned text")
	}
}

func TestCleanIsDeterministic(t *testing.T) {
	t.Parallel()

	cleaner := text.NewCleaner()

	first, err := cleaner.Clean("The quick brown fox.")
	require.NoError(t, err)

	second, err := cleaner.Clean("The quick brown fox.")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCleanNormalizesNumbersAndAbbreviations(t *testing.T) {
	t.Parallel()

	cleaner := text.NewCleaner()

	spelled, err := cleaner.Clean("Dr. Smith bought twenty one apples")
	require.NoError(t, err)

	numeric, err := cleaner.Clean("Doctor Smith bought 21 apples")
	require.NoError(t, err)

	assert.Equal(t, spelled, numeric)
}

func TestCleanDropsUnknownRunes(t *testing.T) {
	t.Parallel()

	cleaner := text.NewCleaner()

	withNoise, err := cleaner.Clean("hello wörld©")
	require.NoError(t, err)

	clean, err := cleaner.Clean("hello wrld")
	require.NoError(t, err)

	assert.Equal(t, clean, withNoise)
}

func TestCleanEmptyInput(t *testing.T) {
	t.Parallel()

	cleaner := text.NewCleaner()

	_, err := cleaner.Clean("   ")
	require.ErrorIs(t, err, text.ErrEmptyText)
}

func TestCleanNoUsableSymbols(t *testing.T) {
	t.Parallel()

	cleaner := text.NewCleaner()

	_, err := cleaner.Clean("漢字")
	require.ErrorIs(t, err, text.ErrNoUsableSymbols)
}
