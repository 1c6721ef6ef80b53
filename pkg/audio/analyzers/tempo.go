package analyzers

import (
	"context"
	"math"
	"slices"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/RyanBlaney/song-popularity/pkg/audio/config"
	"github.com/RyanBlaney/song-popularity/pkg/common"
	"github.com/RyanBlaney/song-popularity/pkg/logging"
)

// RegularityScale is the inter-beat deviation, in seconds, at which beat
// regularity decays to 1/e. Tunable.
const RegularityScale = 0.20

// TempoResult holds the global tempo and the tracked beats
type TempoResult struct {
	Tempo      float64   `json:"tempo"`
	Beats      []int     `json:"beats"`      // frame indices
	BeatTimes  []float64 `json:"beat_times"` // seconds
	Regularity float64   `json:"regularity"`
	HasPulse   bool      `json:"has_pulse"`
}

// TempoAnalyzer estimates tempo from the onset envelope and tracks beats by
// dynamic programming
type TempoAnalyzer struct {
	config *config.FeatureConfig
	logger logging.Logger
}

// NewTempoAnalyzer creates a tempo/beat analyzer
func NewTempoAnalyzer(cfg *config.FeatureConfig) *TempoAnalyzer {
	return &TempoAnalyzer{
		config: cfg.WithDefaults(),
		logger: logging.WithFields(logging.Fields{
			"component": "tempo_analyzer",
		}),
	}
}

// Analyze runs tempo estimation and beat tracking over the shared front end
func (ta *TempoAnalyzer) Analyze(ctx context.Context, fe *FrontEnd) (*TempoResult, error) {
	env := fe.Onset
	hop := ta.config.HopSize

	logger := ta.logger.WithFields(logging.Fields{
		"function": "Analyze",
		"frames":   len(env),
	})

	start := steadyOnsetStart(1, ta.config.WindowSize, hop)
	if !hasPulse(env, start, ta.config.PulseThreshold) {
		logger.Debug("No pulse in onset envelope, using fallback tempo", logging.Fields{
			"tempo": ta.config.StartBPM,
		})
		return &TempoResult{
			Tempo:     ta.config.StartBPM,
			Beats:     []int{},
			BeatTimes: []float64{},
		}, nil
	}

	bpm := ta.EstimateTempo(env, fe.SampleRate)

	beats, err := ta.TrackBeats(ctx, env, bpm, fe.SampleRate)
	if err != nil {
		return nil, err
	}

	times := make([]float64, len(beats))
	for i, b := range beats {
		times[i] = float64(b*hop) / float64(fe.SampleRate)
	}

	result := &TempoResult{
		Tempo:      bpm,
		Beats:      beats,
		BeatTimes:  times,
		Regularity: BeatRegularity(times),
		HasPulse:   true,
	}

	logger.Debug("Tempo analysis completed", logging.Fields{
		"tempo":      result.Tempo,
		"beats":      len(beats),
		"regularity": result.Regularity,
	})

	return result, nil
}

func hasPulse(env []float64, start int, threshold float64) bool {
	if start >= len(env) {
		return false
	}
	return floats.Max(env[start:]) >= threshold
}

// EstimateTempo picks the autocorrelation lag that maximises
// log1p(1e6*ac) plus a log-normal prior around the start tempo
func (ta *TempoAnalyzer) EstimateTempo(env []float64, sampleRate int) float64 {
	hop := ta.config.HopSize
	maxLag := int(ta.config.TempoACSeconds * float64(sampleRate) / float64(hop))
	maxLag = min(maxLag, len(env))
	if maxLag < 2 {
		return ta.config.StartBPM
	}

	ac := autocorrelate(env, maxLag)
	if ac[0] <= 0 {
		return ta.config.StartBPM
	}

	logStart := math.Log2(ta.config.StartBPM)
	best := math.Inf(-1)
	bestLag := 0
	for lag := 1; lag < maxLag; lag++ {
		bpm := lagToBPM(lag, sampleRate, hop)
		if bpm > ta.config.MaxTempo {
			continue
		}
		z := math.Log2(bpm) - logStart
		score := math.Log1p(1e6*ac[lag]/ac[0]) - 0.5*z*z
		if score > best {
			best = score
			bestLag = lag
		}
	}

	if bestLag == 0 {
		return ta.config.StartBPM
	}
	return lagToBPM(bestLag, sampleRate, hop)
}

func lagToBPM(lag, sampleRate, hop int) float64 {
	return 60 * float64(sampleRate) / (float64(hop) * float64(lag))
}

func autocorrelate(x []float64, maxLag int) []float64 {
	ac := make([]float64, maxLag)
	for lag := range maxLag {
		sum := 0.0
		for t := 0; t+lag < len(x); t++ {
			sum += x[t] * x[t+lag]
		}
		ac[lag] = sum
	}
	return ac
}

// TrackBeats returns beat frame indices for the given tempo
func (ta *TempoAnalyzer) TrackBeats(ctx context.Context, env []float64, bpm float64, sampleRate int) ([]int, error) {
	if len(env) < 2 || bpm <= 0 {
		return []int{}, nil
	}

	frameRate := float64(sampleRate) / float64(ta.config.HopSize)
	period := int(math.Round(60 * frameRate / bpm))
	if period < 1 {
		period = 1
	}

	std := stat.StdDev(env, nil)
	if std == 0 || math.IsNaN(std) {
		return []int{}, nil
	}

	local := beatLocalScore(env, std, period)

	if err := ctx.Err(); err != nil {
		return nil, common.FromContext(err, "beat tracking")
	}

	cumscore, backlink := beatTrackDP(local, period, ta.config.Tightness)

	last, ok := lastBeat(cumscore)
	if !ok {
		return []int{}, nil
	}

	beats := []int{last}
	for backlink[beats[len(beats)-1]] >= 0 {
		beats = append(beats, backlink[beats[len(beats)-1]])
	}
	slices.Reverse(beats)

	return trimBeats(local, beats), nil
}

// beatLocalScore smooths the normalised envelope with a Gaussian whose width
// is a 32nd of the beat period
func beatLocalScore(env []float64, std float64, period int) []float64 {
	kernel := make([]float64, 2*period+1)
	for i := range kernel {
		x := float64(i-period) * 32 / float64(period)
		kernel[i] = math.Exp(-0.5 * x * x)
	}

	out := make([]float64, len(env))
	for i := range env {
		sum := 0.0
		for j, k := range kernel {
			idx := i + j - period
			if idx < 0 || idx >= len(env) {
				continue
			}
			sum += env[idx] / std * k
		}
		out[i] = sum
	}
	return out
}

func beatTrackDP(local []float64, period int, tightness float64) ([]float64, []int) {
	n := len(local)
	cumscore := make([]float64, n)
	backlink := make([]int, n)

	minGap := int(math.RoundToEven(float64(period) / 2))
	maxGap := 2 * period

	// transition cost for a gap of g frames, indexed by g
	txwt := make([]float64, maxGap+1)
	for g := minGap; g <= maxGap; g++ {
		l := math.Log(float64(g) / float64(period))
		txwt[g] = -tightness * l * l
	}

	threshold := 0.01 * floats.Max(local)
	firstBeat := true

	for i, score := range local {
		best := math.Inf(-1)
		bestLoc := -1
		for loc := i - maxGap; loc <= i-minGap; loc++ {
			if loc < 0 {
				continue
			}
			if s := cumscore[loc] + txwt[i-loc]; s > best {
				best = s
				bestLoc = loc
			}
		}

		if bestLoc >= 0 {
			cumscore[i] = score + best
		} else {
			cumscore[i] = score
		}

		if firstBeat && score < threshold {
			backlink[i] = -1
		} else {
			backlink[i] = bestLoc
			firstBeat = false
		}
	}

	return cumscore, backlink
}

// lastBeat is the final local maximum of the cumulative score that reaches
// half the median of all local maxima
func lastBeat(cumscore []float64) (int, bool) {
	n := len(cumscore)
	maxima := make([]bool, n)
	var peaks []float64
	for i := range n {
		prev := cumscore[max(i-1, 0)]
		next := cumscore[min(i+1, n-1)]
		if cumscore[i] > prev && cumscore[i] >= next {
			maxima[i] = true
			peaks = append(peaks, cumscore[i])
		}
	}
	if len(peaks) == 0 {
		return 0, false
	}

	med := median(peaks)
	for i := n - 1; i >= 0; i-- {
		if maxima[i] && cumscore[i]*2 > med {
			return i, true
		}
	}
	return 0, false
}

// trimBeats drops weak leading and trailing beats using the smoothed local
// score against half its RMS
func trimBeats(local []float64, beats []int) []int {
	if len(beats) == 0 {
		return beats
	}

	values := make([]float64, len(beats))
	for i, b := range beats {
		values[i] = local[b]
	}

	// symmetric Hann, [0 .5 1 .5 0]
	w := window.Hann(5)
	half := len(w) / 2
	smooth := make([]float64, len(values))
	for i := range values {
		sum := 0.0
		for j, k := range w {
			idx := i + half - j
			if idx < 0 || idx >= len(values) {
				continue
			}
			sum += values[idx] * k
		}
		smooth[i] = sum
	}

	sq := 0.0
	for _, s := range smooth {
		sq += s * s
	}
	threshold := 0.5 * math.Sqrt(sq/float64(len(smooth)))

	first, last := -1, -1
	for i, s := range smooth {
		if s > threshold {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return []int{}
	}
	return beats[first:last]
}

// BeatRegularity maps the population standard deviation of inter-beat
// intervals onto (0, 1]. Fewer than two beats carry no regularity signal.
func BeatRegularity(beatTimes []float64) float64 {
	if len(beatTimes) < 2 {
		return 0
	}
	intervals := make([]float64, len(beatTimes)-1)
	for i := range intervals {
		intervals[i] = beatTimes[i+1] - beatTimes[i]
	}
	sigma := stat.PopStdDev(intervals, nil)
	return math.Exp(-sigma / RegularityScale)
}

func median(x []float64) float64 {
	sorted := slices.Clone(x)
	slices.Sort(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
