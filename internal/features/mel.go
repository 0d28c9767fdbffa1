// Package features extracts mel-spectrogram frame matrices from raw audio.
//
// The extractor decodes a WAV file, runs a short-time Fourier transform over
// Hann-windowed frames and projects each power spectrum through a triangular
// mel filterbank. One output row per frame, one column per mel bin.
package features

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/book-expert/logger"
	"github.com/go-audio/wav"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	melScaleFactor = 1127.0
	melBreakHz     = 700.0
	logFloor       = 1e-10
)

var (
	// ErrInvalidAudioParams indicates unusable extraction parameters.
	ErrInvalidAudioParams = errors.New("invalid audio parameters")
	// ErrEmptyAudio indicates an audio file with no samples.
	ErrEmptyAudio = errors.New("audio file contains no samples")
	// ErrNotWav indicates a file the WAV decoder cannot parse.
	ErrNotWav = errors.New("not a valid wav file")
)

// AudioParams holds the feature extraction settings.
type AudioParams struct {
	SampleRate int
	NumMels    int
	FFTSize    int
	HopLength  int
	WinLength  int
	MelFmin    float64
	MelFmax    float64
}

// Validate ensures the parameters describe a computable spectrogram.
func (p AudioParams) Validate() error {
	if p.SampleRate <= 0 || p.NumMels <= 0 || p.FFTSize <= 0 {
		return fmt.Errorf("%w: sample rate, mel count and fft size must be positive",
			ErrInvalidAudioParams)
	}

	if p.HopLength <= 0 || p.WinLength <= 0 || p.WinLength > p.FFTSize {
		return fmt.Errorf("%w: window must be positive and fit the fft size",
			ErrInvalidAudioParams)
	}

	if p.MelFmin < 0 || p.MelFmax <= p.MelFmin {
		return fmt.Errorf("%w: mel frequency range [%f, %f] is empty",
			ErrInvalidAudioParams, p.MelFmin, p.MelFmax)
	}

	if p.MelFmax > float64(p.SampleRate)/2 {
		return fmt.Errorf("%w: mel_fmax %f exceeds the Nyquist frequency",
			ErrInvalidAudioParams, p.MelFmax)
	}

	return nil
}

// MelExtractor implements core.FeatureExtractor over on-disk WAV files.
type MelExtractor struct {
	params  AudioParams
	filters [][]float64
	window  []float64
	log     *logger.Logger
}

// NewMelExtractor creates an extractor with a precomputed window and
// filterbank.
func NewMelExtractor(params AudioParams, log *logger.Logger) (*MelExtractor, error) {
	err := params.Validate()
	if err != nil {
		return nil, err
	}

	win := make([]float64, params.WinLength)
	for i := range win {
		win[i] = 1
	}

	window.Hann(win)

	return &MelExtractor{
		params:  params,
		filters: melFilterbank(params),
		window:  win,
		log:     log,
	}, nil
}

// Extract decodes audioRef and returns its mel frame matrix.
func (e *MelExtractor) Extract(ctx context.Context, audioRef string) ([][]float32, error) {
	samples, err := e.decode(audioRef)
	if err != nil {
		return nil, err
	}

	return e.spectrogram(ctx, samples)
}

func (e *MelExtractor) decode(audioRef string) ([]float64, error) {
	file, err := os.Open(audioRef)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file '%s': %w", audioRef, err)
	}

	defer func() {
		closeErr := file.Close()
		if closeErr != nil {
			e.log.Warn("Failed to close audio file '%s': %v", audioRef, closeErr)
		}
	}()

	decoder := wav.NewDecoder(file)

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: '%s': %v", ErrNotWav, audioRef, err)
	}

	if buf == nil || len(buf.Data) == 0 {
		return nil, fmt.Errorf("%w: '%s'", ErrEmptyAudio, audioRef)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}

	scale := float64(int64(1) << (bitDepth - 1))

	samples := make([]float64, len(buf.Data))
	for i, sample := range buf.Data {
		samples[i] = float64(sample) / scale
	}

	return samples, nil
}

// spectrogram frames the signal and applies the windowed FFT plus mel
// projection. The signal is zero-padded at the tail so the final partial
// frame is kept.
func (e *MelExtractor) spectrogram(ctx context.Context, samples []float64) ([][]float32, error) {
	winLen := e.params.WinLength
	hop := e.params.HopLength

	if len(samples) < winLen {
		padded := make([]float64, winLen)
		copy(padded, samples)
		samples = padded
	}

	numFrames := 1 + (len(samples)-winLen+hop-1)/hop

	fft := fourier.NewFFT(e.params.FFTSize)
	frame := make([]float64, e.params.FFTSize)
	power := make([]float64, e.params.FFTSize/2+1)

	frames := make([][]float32, 0, numFrames)

	for step := 0; step < numFrames; step++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("feature extraction canceled: %w", ctxErr)
		}

		start := step * hop

		for i := range frame {
			frame[i] = 0
		}

		for i := 0; i < winLen; i++ {
			if start+i < len(samples) {
				frame[i] = samples[start+i] * e.window[i]
			}
		}

		coefficients := fft.Coefficients(nil, frame)
		for i, coefficient := range coefficients {
			re := real(coefficient)
			im := imag(coefficient)
			power[i] = re*re + im*im
		}

		frames = append(frames, e.applyFilterbank(power))
	}

	return frames, nil
}

func (e *MelExtractor) applyFilterbank(power []float64) []float32 {
	row := make([]float32, e.params.NumMels)

	for m, filter := range e.filters {
		sum := 0.0
		for bin, weight := range filter {
			sum += weight * power[bin]
		}

		if sum < logFloor {
			sum = logFloor
		}

		row[m] = float32(math.Log(sum))
	}

	return row
}

// melFilterbank builds triangular filters with band edges evenly spaced on
// the mel scale between MelFmin and MelFmax.
func melFilterbank(params AudioParams) [][]float64 {
	numBins := params.FFTSize/2 + 1

	loMel := freqToMel(params.MelFmin)
	hiMel := freqToMel(params.MelFmax)
	increment := (hiMel - loMel) / float64(params.NumMels+1)

	binPoints := make([]int, params.NumMels+2)
	for i := range binPoints {
		hz := melToFreq(loMel + float64(i)*increment)
		binPoints[i] = int(hz * float64(params.FFTSize) / float64(params.SampleRate))

		if binPoints[i] > numBins-1 {
			binPoints[i] = numBins - 1
		}
	}

	filters := make([][]float64, params.NumMels)

	for m := range filters {
		filter := make([]float64, numBins)

		binMin := binPoints[m]
		binCtr := binPoints[m+1]
		binMax := binPoints[m+2]

		for bin := binMin; bin <= binCtr; bin++ {
			if binCtr > binMin {
				filter[bin] = float64(bin-binMin) / float64(binCtr-binMin)
			}
		}

		for bin := binCtr + 1; bin <= binMax; bin++ {
			if binMax > binCtr {
				filter[bin] = float64(binMax-bin) / float64(binMax-binCtr)
			}
		}

		filters[m] = filter
	}

	return filters
}

func freqToMel(hz float64) float64 {
	return melScaleFactor * math.Log(1.0+hz/melBreakHz)
}

func melToFreq(mel float64) float64 {
	return melBreakHz * (math.Exp(mel/melScaleFactor) - 1.0)
}
