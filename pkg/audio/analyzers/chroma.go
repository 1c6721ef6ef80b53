package analyzers

import (
	"context"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/RyanBlaney/song-popularity/pkg/audio/config"
	"github.com/RyanBlaney/song-popularity/pkg/common"
	"github.com/RyanBlaney/song-popularity/pkg/logging"
)

const (
	ModeMinor = 0
	ModeMajor = 1
)

var (
	majorTriad = []float64{1, 0, 0, 0, 1, 0, 0, 1, 0, 0, 0, 0}
	minorTriad = []float64{1, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 0}
)

// ChromaResult holds the pitch class profile and the key/mode estimate
type ChromaResult struct {
	Profile          [12]float64 `json:"profile"`
	Key              int         `json:"key"`
	Mode             int         `json:"mode"`
	MajorCorrelation float64     `json:"major_correlation"`
	MinorCorrelation float64     `json:"minor_correlation"`
}

// ChromaAnalyzer folds long-window spectra onto the 12 pitch classes
type ChromaAnalyzer struct {
	config *config.FeatureConfig
	logger logging.Logger
}

// NewChromaAnalyzer creates a chroma/key-mode analyzer
func NewChromaAnalyzer(cfg *config.FeatureConfig) *ChromaAnalyzer {
	return &ChromaAnalyzer{
		config: cfg.WithDefaults(),
		logger: logging.WithFields(logging.Fields{
			"component": "chroma_analyzer",
		}),
	}
}

// Analyze computes the mean chroma profile, the key and the mode
func (ca *ChromaAnalyzer) Analyze(ctx context.Context, fe *FrontEnd) (*ChromaResult, error) {
	profile, err := ca.Profile(ctx, fe.Signal, fe.SampleRate)
	if err != nil {
		return nil, err
	}

	mode, major, minor := EstimateMode(profile[:])
	result := &ChromaResult{
		Profile:          profile,
		Key:              EstimateKey(profile[:]),
		Mode:             mode,
		MajorCorrelation: finite(major),
		MinorCorrelation: finite(minor),
	}

	ca.logger.Debug("Chroma analysis completed", logging.Fields{
		"function": "Analyze",
		"key":      result.Key,
		"mode":     result.Mode,
	})

	return result, nil
}

// Profile returns the time-averaged, L1-normalised chroma vector
func (ca *ChromaAnalyzer) Profile(ctx context.Context, signal []float64, sampleRate int) ([12]float64, error) {
	var profile [12]float64
	if len(signal) == 0 {
		return profile, nil
	}

	n := ca.config.ChromaWindowSize
	hop := ca.config.HopSize
	semitoneBins, firstMidi := ca.semitoneBins(sampleRate)

	transform := fourier.NewFFT(n)
	win := periodicHann(n)
	frame := make([]float64, n)
	coeffs := make([]complex128, n/2+1)
	magnitude := make([]float64, n/2+1)

	pad := n / 2
	frames := frameCount(len(signal), hop)
	var sum [12]float64

	for t := range frames {
		if t%64 == 0 {
			if err := ctx.Err(); err != nil {
				return profile, common.FromContext(err, "chroma")
			}
		}

		start := t*hop - pad
		for i := range frame {
			j := start + i
			if j < 0 || j >= len(signal) {
				frame[i] = 0
				continue
			}
			frame[i] = signal[j] * win[i]
		}

		coeffs = transform.Coefficients(coeffs, frame)
		for k, c := range coeffs {
			magnitude[k] = cmplx.Abs(c)
		}

		var chroma [12]float64
		for s, bins := range semitoneBins {
			if len(bins) == 0 {
				continue
			}
			acc := 0.0
			for _, k := range bins {
				acc += magnitude[k]
			}
			chroma[(firstMidi+s)%12] += acc / float64(len(bins))
		}

		if peak := floats.Max(chroma[:]); peak > 0 {
			for c := range chroma {
				sum[c] += chroma[c] / peak
			}
		}
	}

	total := 0.0
	for c := range sum {
		profile[c] = sum[c] / float64(frames)
		total += profile[c]
	}
	for c := range profile {
		profile[c] /= total + 1e-9
	}

	return profile, nil
}

// semitoneBins assigns FFT bins to the semitones from the minimum frequency
// upwards. A semitone narrower than one bin takes its nearest bin.
func (ca *ChromaAnalyzer) semitoneBins(sampleRate int) ([][]int, int) {
	n := ca.config.ChromaWindowSize
	maxBin := n / 2
	binHz := float64(sampleRate) / float64(n)
	firstMidi := int(math.Round(69 + 12*math.Log2(ca.config.ChromaMinFreq/440)))

	count := 12 * ca.config.ChromaOctaves
	bins := make([][]int, count)
	for s := range count {
		midi := float64(firstMidi + s)
		centre := 440 * math.Pow(2, (midi-69)/12)
		if centre >= nyquist(sampleRate) {
			continue
		}
		lo := 440 * math.Pow(2, (midi-0.5-69)/12)
		hi := 440 * math.Pow(2, (midi+0.5-69)/12)

		for k := int(math.Ceil(lo / binHz)); k <= maxBin && float64(k)*binHz < hi; k++ {
			if float64(k)*binHz >= lo {
				bins[s] = append(bins[s], k)
			}
		}
		if len(bins[s]) == 0 {
			if k := int(math.Round(centre / binHz)); k <= maxBin {
				bins[s] = []int{k}
			}
		}
	}
	return bins, firstMidi
}

// EstimateKey returns the strongest pitch class, preferring the lowest on ties
func EstimateKey(profile []float64) int {
	if len(profile) == 0 {
		return 0
	}
	return floats.MaxIdx(profile)
}

// EstimateMode correlates the profile with every rotation of the major and
// minor triads. It returns major when the best major correlation is at least
// the best minor one, and major when neither is defined.
func EstimateMode(profile []float64) (mode int, major, minor float64) {
	if len(profile) != len(majorTriad) {
		return ModeMajor, math.NaN(), math.NaN()
	}
	major = bestRotationCorrelation(profile, majorTriad)
	minor = bestRotationCorrelation(profile, minorTriad)

	switch {
	case math.IsNaN(major) && math.IsNaN(minor):
		return ModeMajor, major, minor
	case math.IsNaN(major):
		return ModeMinor, major, minor
	case math.IsNaN(minor):
		return ModeMajor, major, minor
	case major >= minor:
		return ModeMajor, major, minor
	default:
		return ModeMinor, major, minor
	}
}

func bestRotationCorrelation(profile, template []float64) float64 {
	best := math.NaN()
	rotated := make([]float64, len(template))
	for r := range template {
		for i, v := range template {
			rotated[(i+r)%len(template)] = v
		}
		c := stat.Correlation(profile, rotated, nil)
		if math.IsNaN(c) {
			continue
		}
		if math.IsNaN(best) || c > best {
			best = c
		}
	}
	return best
}
