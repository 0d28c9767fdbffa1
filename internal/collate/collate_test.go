// Package collate_test tests the batch collator padding contract.
package collate_test

import (
	"testing"

	"github.com/book-expert/tts-dataset/internal/collate"
	"github.com/book-expert/tts-dataset/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const numMels = 4

func newCollator(reduction int) *collate.Collator {
	return collate.New(core.DatasetConfig{
		BatchSize:       2,
		BatchGroupSize:  0,
		MinSeqLen:       0,
		ReductionFactor: reduction,
		NumMels:         numMels,
		CachePolicy:     core.CacheRecompute,
		Seed:            0,
	})
}

// makeItem builds an item whose frames are all non-zero so padding is
// distinguishable from real data.
func makeItem(audioRef string, numTokens, numFrames int) core.Item {
	tokenIDs := make([]int, numTokens)
	for i := range tokenIDs {
		tokenIDs[i] = i + 1
	}

	frames := make([][]float32, numFrames)
	for i := range frames {
		row := make([]float32, numMels)
		for j := range row {
			row[j] = float32(i + j + 1)
		}

		frames[i] = row
	}

	return core.Item{
		AudioRef: audioRef,
		RawText:  audioRef,
		TokenIDs: tokenIDs,
		Frames:   frames,
	}
}

func rowSum(row []float32) float32 {
	var sum float32
	for _, v := range row {
		sum += v
	}

	return sum
}

func stopSum(targets [][]float32) float32 {
	var sum float32
	for _, step := range targets {
		sum += step[0]
	}

	return sum
}

func TestCollateSingleItemStopTarget(t *testing.T) {
	t.Parallel()

	// frame_length=37, r=5: time axis rounds to 40, 8 decoder steps, stop
	// flag on step index 7.
	batch, err := newCollator(5).Collate([]core.Item{makeItem("a.wav", 11, 37)})
	require.NoError(t, err)

	require.Len(t, batch.Frames, 1)
	assert.Len(t, batch.Frames[0], 40)
	assert.Equal(t, 37, batch.FrameLengths[0])

	require.Len(t, batch.StopTargets, 1)
	require.Len(t, batch.StopTargets[0], 8)
	require.Len(t, batch.StopTargets[0][0], 1)

	assert.InDelta(t, 1.0, stopSum(batch.StopTargets[0]), 1e-6)
	assert.InDelta(t, 1.0, batch.StopTargets[0][7][0], 1e-6)
}

func TestCollateSortsByDescendingFrameLength(t *testing.T) {
	t.Parallel()

	items := []core.Item{
		makeItem("short.wav", 5, 37),
		makeItem("long.wav", 9, 50),
	}

	batch, err := newCollator(5).Collate(items)
	require.NoError(t, err)

	// The 50-frame item moves to row 0; ItemIndices records where each row
	// came from in the caller's list.
	assert.Equal(t, []int{1, 0}, batch.ItemIndices)
	assert.Equal(t, []int{50, 37}, batch.FrameLengths)
	assert.Len(t, batch.Frames[0], 50)
	assert.Len(t, batch.Frames[1], 50)

	for row := range batch.StopTargets {
		assert.InDelta(t, 1.0, stopSum(batch.StopTargets[row]), 1e-6)
	}

	assert.InDelta(t, 1.0, batch.StopTargets[0][9][0], 1e-6)
	assert.InDelta(t, 1.0, batch.StopTargets[1][7][0], 1e-6)
}

func TestCollateFramePadding(t *testing.T) {
	t.Parallel()

	items := []core.Item{
		makeItem("a.wav", 4, 10),
		makeItem("b.wav", 6, 7),
	}

	batch, err := newCollator(2).Collate(items)
	require.NoError(t, err)

	for row := range batch.Frames {
		frameLen := batch.FrameLengths[row]

		// Everything past the true length is zero, the last real frame
		// is not.
		for i := frameLen; i < len(batch.Frames[row]); i++ {
			assert.InDelta(t, 0.0, rowSum(batch.Frames[row][i]), 1e-6)
		}

		assert.NotZero(t, rowSum(batch.Frames[row][frameLen-1]))
	}

	// r=2, max 10 frames: already aligned.
	assert.Len(t, batch.Frames[0], 10)
	assert.Zero(t, len(batch.Frames[0])%2)
}

func TestCollateTokenPadding(t *testing.T) {
	t.Parallel()

	items := []core.Item{
		makeItem("a.wav", 3, 8),
		makeItem("b.wav", 7, 6),
	}

	batch, err := newCollator(1).Collate(items)
	require.NoError(t, err)

	for row := range batch.TokenIDs {
		require.Len(t, batch.TokenIDs[row], 7)

		tokenLen := batch.TokenLengths[row]
		for i, id := range batch.TokenIDs[row] {
			assert.GreaterOrEqual(t, id, 0)

			if i >= tokenLen {
				assert.Equal(t, core.PadToken, id)
			}
		}
	}
}

func TestCollateStopTargetsExactlyOnePerRow(t *testing.T) {
	t.Parallel()

	items := []core.Item{
		makeItem("a.wav", 4, 13),
		makeItem("b.wav", 5, 20),
		makeItem("c.wav", 6, 1),
	}

	reduction := 3

	batch, err := newCollator(reduction).Collate(items)
	require.NoError(t, err)

	for row := range batch.StopTargets {
		frameLen := batch.FrameLengths[row]
		stopStep := (frameLen+reduction-1)/reduction - 1

		assert.InDelta(t, 1.0, stopSum(batch.StopTargets[row]), 1e-6)
		assert.InDelta(t, 1.0, batch.StopTargets[row][stopStep][0], 1e-6)

		for step := range batch.StopTargets[row] {
			if step != stopStep {
				assert.InDelta(t, 0.0, batch.StopTargets[row][step][0], 1e-6)
			}
		}
	}
}

func TestCollateEmptyBatch(t *testing.T) {
	t.Parallel()

	_, err := newCollator(2).Collate(nil)
	require.ErrorIs(t, err, collate.ErrEmptyBatch)
}

func TestCollateRejectsNegativeTokens(t *testing.T) {
	t.Parallel()

	item := makeItem("a.wav", 3, 5)
	item.TokenIDs[1] = -4

	_, err := newCollator(2).Collate([]core.Item{item})
	require.ErrorIs(t, err, collate.ErrNegativeTokenID)
}

func TestCollateRejectsInconsistentMels(t *testing.T) {
	t.Parallel()

	good := makeItem("a.wav", 3, 5)
	bad := makeItem("b.wav", 3, 5)
	bad.Frames[2] = []float32{1, 2}

	_, err := newCollator(2).Collate([]core.Item{good, bad})
	require.ErrorIs(t, err, collate.ErrInconsistentMels)
}

func TestCollateRejectsEmptyFrames(t *testing.T) {
	t.Parallel()

	item := makeItem("a.wav", 3, 5)
	item.Frames = nil

	_, err := newCollator(2).Collate([]core.Item{item})
	require.ErrorIs(t, err, collate.ErrNoFrames)
}
