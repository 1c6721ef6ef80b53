package analyzers

import (
	"context"
	"math"

	"github.com/RyanBlaney/sonido-sonar/algorithms/spectral"
	"gonum.org/v1/gonum/stat"

	"github.com/RyanBlaney/song-popularity/pkg/audio/config"
	"github.com/RyanBlaney/song-popularity/pkg/common"
	"github.com/RyanBlaney/song-popularity/pkg/logging"
)

const zeroCrossingThreshold = 1e-10

// SpectralShapeResult holds spectral shape and timbre statistics
type SpectralShapeResult struct {
	Centroid         float64 `json:"centroid"` // Hz
	Rolloff          float64 `json:"rolloff"`  // Hz
	Flatness         float64 `json:"flatness"`
	Brightness       float64 `json:"brightness"` // centroid / Nyquist
	Openness         float64 `json:"openness"`   // rolloff / Nyquist
	ZeroCrossingRate float64 `json:"zero_crossing_rate"`
	MFCCVariance     float64 `json:"mfcc_variance"`
}

// SpectralShapeAnalyzer summarises the spectral envelope of a track
type SpectralShapeAnalyzer struct {
	config *config.FeatureConfig
	logger logging.Logger
}

// NewSpectralShapeAnalyzer creates a spectral-shape analyzer
func NewSpectralShapeAnalyzer(cfg *config.FeatureConfig) *SpectralShapeAnalyzer {
	return &SpectralShapeAnalyzer{
		config: cfg.WithDefaults(),
		logger: logging.WithFields(logging.Fields{
			"component": "spectral_shape_analyzer",
		}),
	}
}

// Analyze computes mean centroid, roll-off, flatness, zero-crossing rate and
// MFCC variance
func (ssa *SpectralShapeAnalyzer) Analyze(ctx context.Context, fe *FrontEnd) (*SpectralShapeResult, error) {
	magnitude := fe.Spectrogram.Magnitude

	// the calculators cache frequency bins, so each call gets its own
	centroids := spectral.NewSpectralCentroid(fe.SampleRate).ComputeFrames(magnitude)
	rolloffs := spectral.NewSpectralRolloff(fe.SampleRate).ComputeFrames(sqrtFrames(magnitude), ssa.config.RolloffPercent)

	if err := ctx.Err(); err != nil {
		return nil, common.FromContext(err, "spectral shape")
	}

	flatness := make([]float64, len(magnitude))
	var power []float64
	for t, frame := range magnitude {
		power = powerSpectrum(power, frame)
		flatness[t] = SpectralFlatness(power, dbAmin)
	}

	zcr, err := ZeroCrossingRate(ctx, fe.Signal, ssa.config.WindowSize, ssa.config.HopSize)
	if err != nil {
		return nil, err
	}

	mfcc := MFCC(fe.MelDB, ssa.config.MFCCCoefficients)
	flat := make([]float64, 0, len(mfcc)*ssa.config.MFCCCoefficients)
	for _, row := range mfcc {
		flat = append(flat, row...)
	}

	nyq := nyquist(fe.SampleRate)
	result := &SpectralShapeResult{
		Centroid:         finite(stat.Mean(centroids, nil)),
		Rolloff:          finite(stat.Mean(rolloffs, nil)),
		Flatness:         finite(stat.Mean(flatness, nil)),
		ZeroCrossingRate: finite(stat.Mean(zcr, nil)),
		MFCCVariance:     finite(stat.PopVariance(flat, nil)),
	}
	result.Brightness = clamp01(result.Centroid / (nyq + 1e-9))
	result.Openness = clamp01(result.Rolloff / (nyq + 1e-9))

	ssa.logger.Debug("Spectral shape analysis completed", logging.Fields{
		"function":   "Analyze",
		"centroid":   result.Centroid,
		"rolloff":    result.Rolloff,
		"flatness":   result.Flatness,
		"zcr":        result.ZeroCrossingRate,
		"mfcc_var":   result.MFCCVariance,
		"brightness": result.Brightness,
	})

	return result, nil
}

// SpectralFlatness is the geometric over arithmetic mean of a power spectrum,
// with every bin floored at amin. A silent frame is perfectly flat.
func SpectralFlatness(power []float64, amin float64) float64 {
	if len(power) == 0 {
		return 0
	}
	logSum := 0.0
	sum := 0.0
	for _, p := range power {
		p = math.Max(amin, p)
		logSum += math.Log(p)
		sum += p
	}
	n := float64(len(power))
	return math.Exp(logSum/n) / (sum / n)
}

// ZeroCrossingRate returns the per-frame fraction of sign changes over
// centred frames with edge padding. Values within the threshold of zero count
// as positive.
func ZeroCrossingRate(ctx context.Context, signal []float64, frameSize, hopSize int) ([]float64, error) {
	if len(signal) == 0 {
		return []float64{}, nil
	}

	frames := frameCount(len(signal), hopSize)
	pad := frameSize / 2
	last := len(signal) - 1

	negative := func(p int) bool {
		idx := min(max(p-pad, 0), last)
		return signal[idx] < -zeroCrossingThreshold
	}

	rates := make([]float64, frames)
	for t := range frames {
		if t%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, common.FromContext(err, "zero crossing rate")
			}
		}
		start := t * hopSize
		crossings := 0
		prev := negative(start)
		for p := start + 1; p < start+frameSize; p++ {
			cur := negative(p)
			if cur != prev {
				crossings++
			}
			prev = cur
		}
		rates[t] = float64(crossings) / float64(frameSize)
	}
	return rates, nil
}

// sqrtFrames takes the element-wise square root of a spectrogram. The roll-off
// calculator accumulates squared bins, so feeding it roots makes the threshold
// apply to cumulative magnitude.
func sqrtFrames(frames [][]float64) [][]float64 {
	out := make([][]float64, len(frames))
	for t, frame := range frames {
		row := make([]float64, len(frame))
		for k, v := range frame {
			row[k] = math.Sqrt(v)
		}
		out[t] = row
	}
	return out
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Min(1, math.Max(0, x))
}
