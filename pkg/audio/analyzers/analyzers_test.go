package analyzers

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/RyanBlaney/song-popularity/pkg/audio/config"
	"github.com/RyanBlaney/song-popularity/pkg/common"
)

const testSampleRate = common.DefaultSampleRate

// AnalyzerTestSuite runs every analyzer over a few synthetic signals
type AnalyzerTestSuite struct {
	suite.Suite
	cfg     *config.FeatureConfig
	sine    *FrontEnd
	silence *FrontEnd
	clicks  *FrontEnd
}

// clickPeriodFrames spaces clicks by whole hops so every beat looks the same
const clickPeriodFrames = 22

func sineSignal(freq, seconds, amp float64) []float64 {
	n := int(seconds * testSampleRate)
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/testSampleRate)
	}
	return out
}

func clickTrack(seconds float64, hop int) []float64 {
	n := int(seconds * testSampleRate)
	out := make([]float64, n)
	spacing := clickPeriodFrames * hop
	for start := 8 * hop; start < n; start += spacing {
		for i := range 32 {
			if start+i < n {
				out[start+i] = 0.9 * math.Exp(-float64(i)/6)
			}
		}
	}
	return out
}

func (s *AnalyzerTestSuite) SetupSuite() {
	s.cfg = config.DefaultFeatureConfig()
	ctx := context.Background()

	var err error
	s.sine, err = NewFrontEnd(ctx, common.NewSampleBuffer(sineSignal(440, 3, 0.5), testSampleRate), s.cfg)
	s.Require().NoError(err)

	s.silence, err = NewFrontEnd(ctx, common.NewSampleBuffer(make([]float64, 2*testSampleRate), testSampleRate), s.cfg)
	s.Require().NoError(err)

	s.clicks, err = NewFrontEnd(ctx, common.NewSampleBuffer(clickTrack(8, s.cfg.HopSize), testSampleRate), s.cfg)
	s.Require().NoError(err)
}

func (s *AnalyzerTestSuite) TestFrontEndGeometry() {
	spec := s.sine.Spectrogram
	s.Equal(1+len(s.sine.Signal)/s.cfg.HopSize, spec.TimeFrames)
	s.Equal(s.cfg.WindowSize/2+1, spec.FreqBins)
	s.Len(s.sine.MelDB, spec.TimeFrames)
	s.Len(s.sine.MelDB[0], s.cfg.MelBands)
	s.Len(s.sine.Onset, spec.TimeFrames)
}

func (s *AnalyzerTestSuite) TestSineHasNoPulse() {
	result, err := NewTempoAnalyzer(s.cfg).Analyze(context.Background(), s.sine)
	s.Require().NoError(err)

	s.False(result.HasPulse)
	s.Empty(result.Beats)
	s.Equal(0.0, result.Regularity)
	s.Equal(s.cfg.StartBPM, result.Tempo)
}

func (s *AnalyzerTestSuite) TestClickTrackTempoAndBeats() {
	result, err := NewTempoAnalyzer(s.cfg).Analyze(context.Background(), s.clicks)
	s.Require().NoError(err)

	s.True(result.HasPulse)
	s.InDelta(117.45, result.Tempo, 7.5)
	s.Require().GreaterOrEqual(len(result.Beats), 5)
	for i := 1; i < len(result.Beats); i++ {
		s.Equal(clickPeriodFrames, result.Beats[i]-result.Beats[i-1])
	}
	s.Greater(result.Regularity, 0.8)
}

func (s *AnalyzerTestSuite) TestSineLoudness() {
	result, err := NewLoudnessAnalyzer(s.cfg).Analyze(context.Background(), s.sine)
	s.Require().NoError(err)

	// a 0.5 amplitude sine has RMS 0.5/sqrt(2) away from the edges
	s.InDelta(0.5/math.Sqrt2, result.RMSMean, 0.03)
	s.InDelta(20*math.Log10(result.RMSMean+1e-9), result.Loudness, 1e-9)
	s.Less(result.Loudness, 0.0)
}

func (s *AnalyzerTestSuite) TestSineSpectralShape() {
	result, err := NewSpectralShapeAnalyzer(s.cfg).Analyze(context.Background(), s.sine)
	s.Require().NoError(err)

	s.InDelta(880.0/testSampleRate, result.ZeroCrossingRate, 0.005)
	s.Greater(result.MFCCVariance, 2000.0)
	s.Less(result.Flatness, 0.02)
	s.InDelta(440, result.Rolloff, 200)
	s.GreaterOrEqual(result.Brightness, 0.0)
	s.LessOrEqual(result.Brightness, 1.0)
	s.GreaterOrEqual(result.Openness, 0.0)
	s.LessOrEqual(result.Openness, 1.0)
}

func (s *AnalyzerTestSuite) TestSineIsHarmonic() {
	result, err := NewHarmonicAnalyzer(s.cfg).Analyze(context.Background(), s.sine)
	s.Require().NoError(err)

	s.Greater(result.HarmonicRatio, 0.85)
	s.Less(result.HarmonicRatio, 1.1)
}

func (s *AnalyzerTestSuite) TestSineChromaIsA() {
	result, err := NewChromaAnalyzer(s.cfg).Analyze(context.Background(), s.sine)
	s.Require().NoError(err)

	s.Equal(9, result.Key)
	sum := 0.0
	for _, v := range result.Profile {
		s.GreaterOrEqual(v, 0.0)
		sum += v
	}
	s.InDelta(1.0, sum, 1e-6)
}

func (s *AnalyzerTestSuite) TestSilenceIsFinite() {
	ctx := context.Background()

	tempo, err := NewTempoAnalyzer(s.cfg).Analyze(ctx, s.silence)
	s.Require().NoError(err)
	s.Equal(0.0, tempo.Regularity)
	s.Equal(s.cfg.StartBPM, tempo.Tempo)

	loud, err := NewLoudnessAnalyzer(s.cfg).Analyze(ctx, s.silence)
	s.Require().NoError(err)
	s.Equal(0.0, loud.RMSMean)
	s.Equal(0.0, loud.OnsetMean)
	s.False(math.IsInf(loud.Loudness, 0))

	shape, err := NewSpectralShapeAnalyzer(s.cfg).Analyze(ctx, s.silence)
	s.Require().NoError(err)
	s.Equal(0.0, shape.Centroid)
	s.Equal(0.0, shape.ZeroCrossingRate)
	s.InDelta(1.0, shape.Flatness, 1e-9)

	harm, err := NewHarmonicAnalyzer(s.cfg).Analyze(ctx, s.silence)
	s.Require().NoError(err)
	s.Equal(0.0, harm.HarmonicRatio)

	chroma, err := NewChromaAnalyzer(s.cfg).Analyze(ctx, s.silence)
	s.Require().NoError(err)
	s.Equal(0, chroma.Key)
	s.Equal(ModeMajor, chroma.Mode)
}

func (s *AnalyzerTestSuite) TestCancelledContext() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := NewHarmonicAnalyzer(s.cfg).Analyze(ctx, s.sine)
	s.ErrorIs(err, common.ErrTimeout)

	_, err = NewFrontEnd(ctx, common.NewSampleBuffer(sineSignal(440, 1, 0.5), testSampleRate), s.cfg)
	s.ErrorIs(err, common.ErrTimeout)
}

func TestAnalyzerTestSuite(t *testing.T) {
	suite.Run(t, new(AnalyzerTestSuite))
}

func TestSpectralRolloffAccumulatesMagnitude(t *testing.T) {
	cfg := config.DefaultFeatureConfig()
	low := sineSignal(1000, 3, 0.5)
	high := sineSignal(5000, 3, 0.15)
	mix := make([]float64, len(low))
	for i := range mix {
		mix[i] = low[i] + high[i]
	}

	fe, err := NewFrontEnd(context.Background(), common.NewSampleBuffer(mix, testSampleRate), cfg)
	require.NoError(t, err)

	result, err := NewSpectralShapeAnalyzer(cfg).Analyze(context.Background(), fe)
	require.NoError(t, err)

	// 85% of the summed magnitude is only reached inside the 5 kHz lobe;
	// summing power would stop at 1 kHz
	binWidth := float64(testSampleRate) / float64(cfg.WindowSize)
	assert.InDelta(t, 4995.9, result.Rolloff, binWidth)
	assert.InDelta(t, 0.453, result.Openness, 0.002)
}

func TestSTFTRoundTrip(t *testing.T) {
	signal := make([]float64, 5000)
	for i := range signal {
		signal[i] = math.Sin(float64(i)*0.37) + 0.3*math.Cos(float64(i)*1.91)
	}

	sa := NewSpectralAnalyzer(testSampleRate, 2048, 512)
	spec, err := sa.STFT(context.Background(), signal)
	require.NoError(t, err)

	back, err := sa.ISTFT(context.Background(), spec.Complex, len(signal))
	require.NoError(t, err)
	require.Len(t, back, len(signal))
	for i := range signal {
		assert.InDelta(t, signal[i], back[i], 1e-6)
	}
}

func TestSTFTRejectsEmptySignal(t *testing.T) {
	_, err := NewSpectralAnalyzer(testSampleRate, 2048, 512).STFT(context.Background(), nil)
	assert.ErrorIs(t, err, common.ErrAnalysis)
}

func TestMelScaleRoundTrip(t *testing.T) {
	for _, hz := range []float64{0, 200, 999, 1000, 4000, 11025} {
		assert.InDelta(t, hz, melToHz(hzToMel(hz)), 1e-6)
	}
	assert.InDelta(t, 15.0, hzToMel(1000), 1e-9)
}

func TestMelFilterBank(t *testing.T) {
	filters := MelFilterBank(testSampleRate, 2048, 128)
	require.Len(t, filters, 128)
	for _, f := range filters {
		require.Len(t, f, 1025)
		peak := 0.0
		for _, w := range f {
			assert.GreaterOrEqual(t, w, 0.0)
			peak = math.Max(peak, w)
		}
		assert.Greater(t, peak, 0.0)
	}
}

func TestPowerToDB(t *testing.T) {
	db := PowerToDB([][]float64{{1, 100, 0}}, 1, 1e-10, 80)
	assert.InDelta(t, 0.0, db[0][0], 1e-9)
	assert.InDelta(t, 20.0, db[0][1], 1e-9)
	assert.InDelta(t, -60.0, db[0][2], 1e-9) // clipped to peak - top_db
}

func TestMFCCConstantRow(t *testing.T) {
	row := make([]float64, 128)
	for i := range row {
		row[i] = -50
	}
	coeffs := MFCC([][]float64{row}, 13)
	require.Len(t, coeffs[0], 13)
	assert.InDelta(t, -50*math.Sqrt(128), coeffs[0][0], 1e-6)
	for _, c := range coeffs[0][1:] {
		assert.InDelta(t, 0.0, c, 1e-6)
	}
}

func TestOnsetStrengthAlignment(t *testing.T) {
	melDB := make([][]float64, 10)
	for i := range melDB {
		melDB[i] = []float64{0, 0}
	}
	melDB[4] = []float64{10, 20}

	env := OnsetStrength(melDB, 1, 2048, 512)
	require.Len(t, env, 10)
	// the rise between frames 3 and 4 lands three frames later
	assert.InDelta(t, 15.0, env[6], 1e-9)
	for i, v := range env {
		if i != 6 {
			assert.Equal(t, 0.0, v, "frame %d", i)
		}
	}
}

func TestEstimateTempoFromImpulses(t *testing.T) {
	env := make([]float64, 300)
	for i := 5; i < len(env); i += clickPeriodFrames {
		env[i] = 1
	}

	ta := NewTempoAnalyzer(nil)
	assert.InDelta(t, 117.4538, ta.EstimateTempo(env, testSampleRate), 1e-3)

	beats, err := ta.TrackBeats(context.Background(), env, 117.4538, testSampleRate)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(beats), 5)
	for i := 1; i < len(beats); i++ {
		assert.Equal(t, clickPeriodFrames, beats[i]-beats[i-1])
	}
}

func TestTrimBeatsSmoothsWithSymmetricHann(t *testing.T) {
	beats := []int{0, 1, 2, 3, 4, 5, 6, 7}
	local := []float64{0, 0, 0, 1, 0, 0, 0, 0}

	// smoothed [0 0 .5 1 .5 0 0 0] against half its RMS keeps beats 2 and 3
	assert.Equal(t, []int{2, 3}, trimBeats(local, beats))
}

func TestTrimBeatsAllWeak(t *testing.T) {
	assert.Empty(t, trimBeats(make([]float64, 4), []int{0, 1, 2, 3}))
	assert.Empty(t, trimBeats(nil, []int{}))
}

func TestBeatRegularity(t *testing.T) {
	assert.Equal(t, 0.0, BeatRegularity(nil))
	assert.Equal(t, 0.0, BeatRegularity([]float64{1.0}))
	assert.InDelta(t, 1.0, BeatRegularity([]float64{0, 0.5, 1.0, 1.5}), 1e-12)

	// intervals 0.4 and 0.6 deviate by 0.1
	assert.InDelta(t, math.Exp(-0.1/RegularityScale), BeatRegularity([]float64{0, 0.4, 1.0}), 1e-12)
}

func TestEstimateKeyTiesPreferLowest(t *testing.T) {
	profile := make([]float64, 12)
	profile[4] = 0.5
	profile[7] = 0.5
	assert.Equal(t, 4, EstimateKey(profile))
	assert.Equal(t, 0, EstimateKey(make([]float64, 12)))
}

func TestEstimateMode(t *testing.T) {
	cMajor := []float64{1, 0, 0, 0, 1, 0, 0, 1, 0, 0, 0, 0}
	aMinor := []float64{1, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0}

	mode, _, _ := EstimateMode(cMajor)
	assert.Equal(t, ModeMajor, mode)

	mode, _, _ = EstimateMode(aMinor)
	assert.Equal(t, ModeMinor, mode)

	mode, major, minor := EstimateMode(make([]float64, 12))
	assert.Equal(t, ModeMajor, mode)
	assert.True(t, math.IsNaN(major))
	assert.True(t, math.IsNaN(minor))
}

func TestEstimateModeIsRotationInvariant(t *testing.T) {
	profile := []float64{0.2, 0.01, 0.05, 0.15, 0.02, 0.08, 0.01, 0.25, 0.03, 0.1, 0.04, 0.06}
	want, _, _ := EstimateMode(profile)

	for r := 1; r < 12; r++ {
		rotated := make([]float64, 12)
		for i, v := range profile {
			rotated[(i+r)%12] = v
		}
		got, _, _ := EstimateMode(rotated)
		assert.Equal(t, want, got, "rotation %d", r)
	}
}

func TestZeroCrossingRate(t *testing.T) {
	signal := make([]float64, 4096)
	for i := range signal {
		if i%2 == 0 {
			signal[i] = 1
		} else {
			signal[i] = -1
		}
	}
	rates, err := ZeroCrossingRate(context.Background(), signal, 2048, 512)
	require.NoError(t, err)
	// interior frames flip on every step
	assert.InDelta(t, 2047.0/2048.0, rates[4], 1e-12)

	tiny := []float64{1e-12, -1e-12, 1e-12, -1e-12}
	rates, err = ZeroCrossingRate(context.Background(), tiny, 4, 2)
	require.NoError(t, err)
	for _, r := range rates {
		assert.Equal(t, 0.0, r)
	}
}

func TestSpectralFlatness(t *testing.T) {
	assert.InDelta(t, 1.0, SpectralFlatness([]float64{2, 2, 2, 2}, 1e-10), 1e-12)
	assert.InDelta(t, 1.0, SpectralFlatness([]float64{0, 0, 0}, 1e-10), 1e-12)
	assert.Less(t, SpectralFlatness([]float64{1, 1e-8, 1e-8, 1e-8}, 1e-10), 0.01)
}

func TestFrameRMS(t *testing.T) {
	signal := make([]float64, 8192)
	for i := range signal {
		signal[i] = 0.25
	}
	rms, err := FrameRMS(context.Background(), signal, 2048, 512)
	require.NoError(t, err)
	require.Len(t, rms, 17)
	assert.InDelta(t, 0.25/math.Sqrt2, rms[0], 1e-12) // half the first frame is padding
	assert.InDelta(t, 0.25, rms[8], 1e-12)
}

func TestQuickMedian(t *testing.T) {
	assert.Equal(t, 3.0, quickMedian([]float64{5, 1, 3, 2, 4}))
	assert.Equal(t, 2.0, quickMedian([]float64{2, 2, 2}))
	assert.Equal(t, 7.0, quickMedian([]float64{7}))
}

func TestReflectIndex(t *testing.T) {
	n := 4
	want := map[int]int{-3: 2, -2: 1, -1: 0, 0: 0, 3: 3, 4: 3, 5: 2, 7: 0}
	for i, w := range want {
		assert.Equal(t, w, reflectIndex(i, n), "index %d", i)
	}
}

func TestSoftMask(t *testing.T) {
	assert.Equal(t, 0.5, softMask(0, 0, 2))
	assert.InDelta(t, 0.8, softMask(2, 1, 2), 1e-12)
	assert.InDelta(t, 0.2, softMask(1, 2, 2), 1e-12)
}
