package analyzers

import (
	"context"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/RyanBlaney/song-popularity/pkg/audio/config"
	"github.com/RyanBlaney/song-popularity/pkg/common"
	"github.com/RyanBlaney/song-popularity/pkg/logging"
)

// LoudnessResult holds frame energy statistics
type LoudnessResult struct {
	RMSMean   float64 `json:"rms_mean"`
	RMSVar    float64 `json:"rms_var"`
	Loudness  float64 `json:"loudness"` // dBFS
	OnsetMean float64 `json:"onset_mean"`
}

// LoudnessAnalyzer computes frame RMS energy and mean onset strength
type LoudnessAnalyzer struct {
	config *config.FeatureConfig
	logger logging.Logger
}

// NewLoudnessAnalyzer creates a loudness/energy analyzer
func NewLoudnessAnalyzer(cfg *config.FeatureConfig) *LoudnessAnalyzer {
	return &LoudnessAnalyzer{
		config: cfg.WithDefaults(),
		logger: logging.WithFields(logging.Fields{
			"component": "loudness_analyzer",
		}),
	}
}

// Analyze computes RMS statistics over centred, zero-padded frames
func (la *LoudnessAnalyzer) Analyze(ctx context.Context, fe *FrontEnd) (*LoudnessResult, error) {
	rms, err := FrameRMS(ctx, fe.Signal, la.config.WindowSize, la.config.HopSize)
	if err != nil {
		return nil, err
	}

	mean, variance := stat.PopMeanVariance(rms, nil)
	result := &LoudnessResult{
		RMSMean:   finite(mean),
		RMSVar:    finite(variance),
		Loudness:  20 * math.Log10(finite(mean)+1e-9),
		OnsetMean: finite(stat.Mean(fe.Onset, nil)),
	}

	la.logger.Debug("Loudness analysis completed", logging.Fields{
		"function":   "Analyze",
		"loudness":   result.Loudness,
		"rms_var":    result.RMSVar,
		"onset_mean": result.OnsetMean,
	})

	return result, nil
}

// FrameRMS returns the root-mean-square of each centred frame
func FrameRMS(ctx context.Context, signal []float64, frameSize, hopSize int) ([]float64, error) {
	frames := frameCount(len(signal), hopSize)
	pad := frameSize / 2
	rms := make([]float64, frames)

	for t := range frames {
		if t%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, common.FromContext(err, "rms")
			}
		}
		start := t*hopSize - pad
		sum := 0.0
		for i := max(start, 0); i < min(start+frameSize, len(signal)); i++ {
			sum += signal[i] * signal[i]
		}
		rms[t] = math.Sqrt(sum / float64(frameSize))
	}
	return rms, nil
}
