package extractors

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/song-popularity/pkg/audio/analyzers"
	"github.com/RyanBlaney/song-popularity/pkg/audio/config"
	"github.com/RyanBlaney/song-popularity/pkg/audio/decoder"
	"github.com/RyanBlaney/song-popularity/pkg/common"
	"github.com/RyanBlaney/song-popularity/pkg/logging"
)

// DefaultTimeout bounds a single extraction
const DefaultTimeout = 60 * time.Second

// ExtractOptions carries request context that passes through to the record
type ExtractOptions struct {
	Explicit   int
	TrackGenre string
	SampleRate int
}

// Config configures an Extractor
type Config struct {
	Decoder  decoder.Config
	Features *config.FeatureConfig
	Timeout  time.Duration
}

// Extractor turns audio bytes into a RawFeatures record
type Extractor struct {
	decoder  *decoder.Decoder
	features *config.FeatureConfig
	timeout  time.Duration
	logger   logging.Logger
}

// NewExtractor creates an extractor
func NewExtractor(cfg Config) *Extractor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Extractor{
		decoder:  decoder.NewDecoder(cfg.Decoder),
		features: cfg.Features.WithDefaults(),
		timeout:  timeout,
		logger: logging.WithFields(logging.Fields{
			"component": "feature_extractor",
		}),
	}
}

// Extract decodes audio and derives its feature record within the
// extraction budget. No partial record is returned on failure.
func (e *Extractor) Extract(ctx context.Context, audio []byte, opts ExtractOptions) (*RawFeatures, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	logger := e.logger.WithFields(logging.Fields{
		"function":    "Extract",
		"bytes":       len(audio),
		"track_genre": opts.TrackGenre,
	})

	sampleRate := opts.SampleRate
	if sampleRate <= 0 {
		sampleRate = e.decoder.TargetSampleRate()
	}

	buf, err := e.decoder.DecodeAt(ctx, audio, sampleRate)
	if err != nil {
		return nil, common.FromContext(err, "decoding")
	}

	features, _, err := e.ExtractBuffer(ctx, buf, opts)
	if err != nil {
		logger.Error(err, "Feature extraction failed")
		return nil, err
	}

	logger.Info("Features extracted", logging.Fields{
		"duration_ms": features.DurationMs,
		"tempo":       features.Tempo,
		"key":         features.Key,
		"mode":        features.Mode,
		"elapsed_ms":  time.Since(start).Milliseconds(),
	})

	return features, nil
}

// ExtractBuffer runs the analyzers over an already decoded buffer. The
// analyzers share one read-only front end and run concurrently.
func (e *Extractor) ExtractBuffer(ctx context.Context, buf *common.SampleBuffer, opts ExtractOptions) (*RawFeatures, *SignalSummary, error) {
	fe, err := analyzers.NewFrontEnd(ctx, buf, e.features)
	if err != nil {
		return nil, nil, common.FromContext(err, "analysis")
	}

	summary := &SignalSummary{DurationMs: buf.DurationMs()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := analyzers.NewTempoAnalyzer(e.features).Analyze(gctx, fe)
		summary.Tempo = r
		return err
	})
	g.Go(func() error {
		r, err := analyzers.NewLoudnessAnalyzer(e.features).Analyze(gctx, fe)
		summary.Loudness = r
		return err
	})
	g.Go(func() error {
		r, err := analyzers.NewSpectralShapeAnalyzer(e.features).Analyze(gctx, fe)
		summary.Spectral = r
		return err
	})
	g.Go(func() error {
		r, err := analyzers.NewHarmonicAnalyzer(e.features).Analyze(gctx, fe)
		summary.Harmonic = r
		return err
	})
	g.Go(func() error {
		r, err := analyzers.NewChromaAnalyzer(e.features).Analyze(gctx, fe)
		summary.Chroma = r
		return err
	})

	if err := g.Wait(); err != nil {
		// a cancelled sibling reports the cancellation, the budget reports a timeout
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, common.FromContext(ctxErr, "analysis")
		}
		return nil, nil, common.FromContext(err, "analysis")
	}

	return Synthesize(summary, opts.Explicit, opts.TrackGenre), summary, nil
}
