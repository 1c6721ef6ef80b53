package analyzers

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/RyanBlaney/song-popularity/pkg/common"
	"github.com/RyanBlaney/song-popularity/pkg/logging"
)

// SpectralAnalyzer provides the centred short-time Fourier transform and its inverse
type SpectralAnalyzer struct {
	sampleRate int
	windowSize int
	hopSize    int
	window     []float64
	logger     logging.Logger
}

// SpectrogramResult holds the result of STFT analysis
type SpectrogramResult struct {
	Magnitude      [][]float64    `json:"magnitude"`       // Time x Frequency magnitude matrix
	Complex        [][]complex128 `json:"-"`               // Raw complex spectrogram (not serialized)
	TimeFrames     int            `json:"time_frames"`     // Number of time frames
	FreqBins       int            `json:"freq_bins"`       // Number of frequency bins
	SampleRate     int            `json:"sample_rate"`     // Sample rate
	WindowSize     int            `json:"window_size"`     // FFT window size
	HopSize        int            `json:"hop_size"`        // Hop size between frames
	FreqResolution float64        `json:"freq_resolution"` // Frequency resolution (Hz/bin)
}

// NewSpectralAnalyzer creates a new spectral analyzer
func NewSpectralAnalyzer(sampleRate, windowSize, hopSize int) *SpectralAnalyzer {
	return &SpectralAnalyzer{
		sampleRate: sampleRate,
		windowSize: windowSize,
		hopSize:    hopSize,
		window:     periodicHann(windowSize),
		logger: logging.WithFields(logging.Fields{
			"component":   "spectral_analyzer",
			"sample_rate": sampleRate,
		}),
	}
}

// periodicHann returns the DFT-even Hann window used for overlap-add analysis
func periodicHann(n int) []float64 {
	if n <= 1 {
		return []float64{1}
	}
	return window.Hann(n + 1)[:n]
}

// frameCount is the number of centred frames for a signal of length n
func frameCount(n, hop int) int {
	return 1 + n/hop
}

// STFT computes a centred, zero-padded STFT with a periodic Hann window
func (sa *SpectralAnalyzer) STFT(ctx context.Context, signal []float64) (*SpectrogramResult, error) {
	if len(signal) == 0 {
		return nil, common.NewAnalysisError("empty signal", nil)
	}

	logger := sa.logger.WithFields(logging.Fields{
		"function":      "STFT",
		"signal_length": len(signal),
	})

	pad := sa.windowSize / 2
	frames := frameCount(len(signal), sa.hopSize)
	freqBins := sa.windowSize/2 + 1

	result := &SpectrogramResult{
		Magnitude:      make([][]float64, frames),
		Complex:        make([][]complex128, frames),
		TimeFrames:     frames,
		FreqBins:       freqBins,
		SampleRate:     sa.sampleRate,
		WindowSize:     sa.windowSize,
		HopSize:        sa.hopSize,
		FreqResolution: float64(sa.sampleRate) / float64(sa.windowSize),
	}

	frame := make([]float64, sa.windowSize)
	for t := range frames {
		if t%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, common.FromContext(err, "stft")
			}
		}

		start := t*sa.hopSize - pad
		for i := range frame {
			j := start + i
			if j < 0 || j >= len(signal) {
				frame[i] = 0
				continue
			}
			frame[i] = signal[j] * sa.window[i]
		}

		spectrum := fft.FFTReal(frame)
		result.Complex[t] = make([]complex128, freqBins)
		result.Magnitude[t] = make([]float64, freqBins)
		for k := range freqBins {
			result.Complex[t][k] = spectrum[k]
			result.Magnitude[t][k] = cmplx.Abs(spectrum[k])
		}
	}

	logger.Debug("STFT computation completed", logging.Fields{
		"time_frames": frames,
		"freq_bins":   freqBins,
	})

	return result, nil
}

// ISTFT inverts a centred STFT by weighted overlap-add, trimmed or zero padded
// to length samples
func (sa *SpectralAnalyzer) ISTFT(ctx context.Context, spectrum [][]complex128, length int) ([]float64, error) {
	n := sa.windowSize
	if len(spectrum) == 0 {
		return make([]float64, length), nil
	}
	if len(spectrum[0]) != n/2+1 {
		return nil, common.NewAnalysisError(
			fmt.Sprintf("spectrum has %d bins, expected %d", len(spectrum[0]), n/2+1), nil)
	}

	total := n + sa.hopSize*(len(spectrum)-1)
	out := make([]float64, total)
	norm := make([]float64, total)
	full := make([]complex128, n)

	for t, frame := range spectrum {
		if t%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, common.FromContext(err, "istft")
			}
		}

		// rebuild the conjugate-symmetric spectrum
		for k := range n/2 + 1 {
			full[k] = frame[k]
		}
		for k := 1; k < (n+1)/2; k++ {
			full[n-k] = cmplx.Conj(frame[k])
		}

		ytmp := fft.IFFT(full)
		offset := t * sa.hopSize
		for i := range n {
			out[offset+i] += real(ytmp[i]) * sa.window[i]
			norm[offset+i] += sa.window[i] * sa.window[i]
		}
	}

	const tiny = 1.1754943508222875e-38
	for i := range out {
		if norm[i] > tiny {
			out[i] /= norm[i]
		}
	}

	y := make([]float64, length)
	start := n / 2
	if start < len(out) {
		copy(y, out[start:])
	}
	return y, nil
}

// FrequencyBins returns the centre frequency of each STFT bin
func (sa *SpectralAnalyzer) FrequencyBins() []float64 {
	bins := sa.windowSize/2 + 1
	freqs := make([]float64, bins)
	for i := range bins {
		freqs[i] = float64(i) * float64(sa.sampleRate) / float64(sa.windowSize)
	}
	return freqs
}

// powerSpectrum squares a magnitude frame into dst
func powerSpectrum(dst, magnitude []float64) []float64 {
	if cap(dst) < len(magnitude) {
		dst = make([]float64, len(magnitude))
	}
	dst = dst[:len(magnitude)]
	for i, m := range magnitude {
		dst[i] = m * m
	}
	return dst
}

// nyquist returns half the sample rate
func nyquist(sampleRate int) float64 {
	return float64(sampleRate) / 2
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
