package extractors

import (
	"math"

	"github.com/RyanBlaney/song-popularity/pkg/audio/analyzers"
)

// Calibration constants. They are tunable, but the reference model was
// trained on features produced with exactly these values.
const (
	TempoCentreBPM = 120.0
	TempoWidthBPM  = 20.0

	LoudnessLowDB  = -40.0
	LoudnessHighDB = -5.0

	FlatnessLow  = 0.02
	FlatnessHigh = 0.6

	ZCRLow  = 0.02
	ZCRHigh = 0.20

	MFCCVarianceLow  = 50.0
	MFCCVarianceHigh = 2000.0

	OnsetMeanHigh   = 5.0
	RMSVarianceHigh = 0.01

	DefaultTimeSignature = 4
)

const epsilon = 1e-9

// MinMax maps x from [lo, hi] onto [0, 1], clamping outside the range
func MinMax(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	x = math.Min(hi, math.Max(lo, x))
	return Clamp01((x - lo) / (hi - lo + epsilon))
}

// Clamp01 limits x to [0, 1]; NaN maps to 0
func Clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Min(1, math.Max(0, x))
}

// TempoPreference is a Gaussian preference for tempos near 120 BPM
func TempoPreference(tempo float64) float64 {
	d := tempo - TempoCentreBPM
	return math.Exp(-(d * d) / (2 * TempoWidthBPM * TempoWidthBPM))
}

// Synthesize combines analyzer outputs into the bounded feature record
func Synthesize(s *SignalSummary, explicit int, trackGenre string) *RawFeatures {
	tempo := s.Tempo.Tempo
	loudness := s.Loudness.Loudness

	lp := MinMax(loudness, LoudnessLowDB, LoudnessHighDB)
	danceability := Clamp01(0.5*TempoPreference(tempo) + 0.4*s.Tempo.Regularity + 0.1*lp)

	major := 0.0
	if s.Chroma.Mode == analyzers.ModeMajor {
		major = 1
	}
	valence := Clamp01(0.4*s.Spectral.Brightness + 0.3*s.Spectral.Openness + 0.3*major)

	acousticness := Clamp01(0.6*s.Harmonic.HarmonicRatio +
		0.4*(1-MinMax(s.Spectral.Flatness, FlatnessLow, FlatnessHigh)))

	speechiness := Clamp01(0.6*MinMax(s.Spectral.ZeroCrossingRate, ZCRLow, ZCRHigh) +
		0.4*(1-MinMax(s.Spectral.MFCCVariance, MFCCVarianceLow, MFCCVarianceHigh)))

	liveness := Clamp01(0.5*MinMax(s.Loudness.OnsetMean, 0, OnsetMeanHigh) +
		0.5*MinMax(s.Loudness.RMSVar, 0, RMSVarianceHigh))

	return &RawFeatures{
		DurationMs:       s.DurationMs,
		Explicit:         explicit,
		Danceability:     danceability,
		Key:              s.Chroma.Key,
		Loudness:         loudness,
		Mode:             s.Chroma.Mode,
		Speechiness:      speechiness,
		Acousticness:     acousticness,
		Instrumentalness: 1 - speechiness,
		Liveness:         liveness,
		Valence:          valence,
		Tempo:            tempo,
		TimeSignature:    DefaultTimeSignature,
		TrackGenre:       trackGenre,
	}
}
