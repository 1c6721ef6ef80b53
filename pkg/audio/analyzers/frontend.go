package analyzers

import (
	"context"

	"github.com/RyanBlaney/song-popularity/pkg/audio/config"
	"github.com/RyanBlaney/song-popularity/pkg/common"
	"github.com/RyanBlaney/song-popularity/pkg/logging"
)

const (
	dbAmin = 1e-10
	dbRef  = 1.0
)

// FrontEnd is the spectral analysis shared by every analyzer of one request.
// It is built once and only read afterwards, so analyzers may use it
// concurrently.
type FrontEnd struct {
	Signal      []float64
	SampleRate  int
	Config      *config.FeatureConfig
	Spectrogram *SpectrogramResult
	MelDB       [][]float64 // frames x mel bands
	Onset       []float64   // onset strength per frame
	Spectral    *SpectralAnalyzer
}

// NewFrontEnd computes the STFT, the dB mel spectrogram and the onset envelope
func NewFrontEnd(ctx context.Context, buf *common.SampleBuffer, cfg *config.FeatureConfig) (*FrontEnd, error) {
	if buf == nil || buf.Len() == 0 {
		return nil, common.NewAnalysisError("empty sample buffer", nil)
	}
	cfg = cfg.WithDefaults()

	logger := logging.WithFields(logging.Fields{
		"component":   "analysis_frontend",
		"function":    "NewFrontEnd",
		"sample_rate": buf.SampleRate,
		"samples":     buf.Len(),
	})

	sa := NewSpectralAnalyzer(buf.SampleRate, cfg.WindowSize, cfg.HopSize)
	spec, err := sa.STFT(ctx, buf.Samples)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, common.FromContext(err, "mel spectrogram")
	}

	filters := MelFilterBank(buf.SampleRate, cfg.WindowSize, cfg.MelBands)
	melDB := PowerToDB(MelPower(spec.Magnitude, filters), dbRef, dbAmin, cfg.TopDB)
	onset := OnsetStrength(melDB, 1, cfg.WindowSize, cfg.HopSize)

	logger.Debug("Front end ready", logging.Fields{
		"time_frames": spec.TimeFrames,
		"mel_bands":   cfg.MelBands,
	})

	return &FrontEnd{
		Signal:      buf.Samples,
		SampleRate:  buf.SampleRate,
		Config:      cfg,
		Spectrogram: spec,
		MelDB:       melDB,
		Onset:       onset,
		Spectral:    sa,
	}, nil
}

// OnsetStrength is the mean over mel bands of the positive dB difference at
// the given lag. The envelope is shifted right by lag plus half a window so
// each value lines up with its frame centre, and trimmed to the frame count.
func OnsetStrength(melDB [][]float64, lag, windowSize, hopSize int) []float64 {
	frames := len(melDB)
	env := make([]float64, frames)
	if frames <= lag {
		return env
	}

	shift := lag + windowSize/(2*hopSize)
	bands := float64(len(melDB[0]))
	for t := 0; t+lag < frames; t++ {
		idx := t + shift
		if idx >= frames {
			break
		}
		sum := 0.0
		for b, v := range melDB[t+lag] {
			if d := v - melDB[t][b]; d > 0 {
				sum += d
			}
		}
		env[idx] = sum / bands
	}
	return env
}

// steadyOnsetStart is the first envelope index whose difference only involves
// frames with analysis windows fully inside the signal
func steadyOnsetStart(lag, windowSize, hopSize int) int {
	return lag + 2*(windowSize/(2*hopSize))
}
