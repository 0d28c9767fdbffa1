// Package features_test tests the mel-spectrogram extractor.
package features_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-dataset/internal/features"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "features-test.log")
	require.NoError(t, err)

	return log
}

func testParams() features.AudioParams {
	return features.AudioParams{
		SampleRate: 22050,
		NumMels:    20,
		FFTSize:    512,
		HopLength:  128,
		WinLength:  512,
		MelFmin:    0.0,
		MelFmax:    8000.0,
	}
}

// writeSineWav writes a mono 16-bit sine tone and returns its path.
func writeSineWav(t *testing.T, numSamples int) string {
	t.Helper()

	params := testParams()
	path := filepath.Join(t.TempDir(), "tone.wav")

	out, err := os.Create(path)
	require.NoError(t, err)

	encoder := wav.NewEncoder(out, params.SampleRate, 16, 1, 1)

	data := make([]int, numSamples)
	for i := range data {
		phase := 2 * math.Pi * 440.0 * float64(i) / float64(params.SampleRate)
		data[i] = int(20000 * math.Sin(phase))
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: params.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	require.NoError(t, encoder.Write(buf))
	require.NoError(t, encoder.Close())
	require.NoError(t, out.Close())

	return path
}

func TestMelExtractorShape(t *testing.T) {
	t.Parallel()

	params := testParams()

	extractor, err := features.NewMelExtractor(params, newTestLogger(t))
	require.NoError(t, err)

	numSamples := 4096
	path := writeSineWav(t, numSamples)

	frames, err := extractor.Extract(context.Background(), path)
	require.NoError(t, err)

	wantFrames := 1 + (numSamples-params.WinLength+params.HopLength-1)/params.HopLength
	require.Len(t, frames, wantFrames)

	for _, row := range frames {
		assert.Len(t, row, params.NumMels)
	}
}

func TestMelExtractorDeterministic(t *testing.T) {
	t.Parallel()

	extractor, err := features.NewMelExtractor(testParams(), newTestLogger(t))
	require.NoError(t, err)

	path := writeSineWav(t, 2048)

	first, err := extractor.Extract(context.Background(), path)
	require.NoError(t, err)

	second, err := extractor.Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestMelExtractorShortAudioPadded(t *testing.T) {
	t.Parallel()

	extractor, err := features.NewMelExtractor(testParams(), newTestLogger(t))
	require.NoError(t, err)

	// Shorter than one analysis window still yields one frame.
	path := writeSineWav(t, 100)

	frames, err := extractor.Extract(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, frames, 1)
}

func TestMelExtractorMissingFile(t *testing.T) {
	t.Parallel()

	extractor, err := features.NewMelExtractor(testParams(), newTestLogger(t))
	require.NoError(t, err)

	_, err = extractor.Extract(context.Background(), "/does/not/exist.wav")
	require.Error(t, err)
}

func TestMelExtractorNotWav(t *testing.T) {
	t.Parallel()

	extractor, err := features.NewMelExtractor(testParams(), newTestLogger(t))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "noise.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not riff data"), 0o600))

	_, err = extractor.Extract(context.Background(), path)
	require.Error(t, err)
}

func TestAudioParamsValidate(t *testing.T) {
	t.Parallel()

	bad := testParams()
	bad.MelFmax = 20000 // above Nyquist for 22050 Hz

	_, err := features.NewMelExtractor(bad, newTestLogger(t))
	require.ErrorIs(t, err, features.ErrInvalidAudioParams)

	bad = testParams()
	bad.WinLength = bad.FFTSize * 2

	_, err = features.NewMelExtractor(bad, newTestLogger(t))
	require.ErrorIs(t, err, features.ErrInvalidAudioParams)
}
