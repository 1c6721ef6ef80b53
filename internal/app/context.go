package app

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/RyanBlaney/song-popularity/configs"
	"github.com/RyanBlaney/song-popularity/pkg/audio/extractors"
	"github.com/RyanBlaney/song-popularity/pkg/common"
	"github.com/RyanBlaney/song-popularity/pkg/logging"
	"github.com/RyanBlaney/song-popularity/pkg/metrics"
	"github.com/RyanBlaney/song-popularity/pkg/model"
)

// Popularity bounds
const (
	MinPopularity = 0.0
	MaxPopularity = 100.0
)

// Prediction sources, as tagged on metrics
const (
	SourceAudio    = "audio"
	SourceFeatures = "features"
)

// Prediction is the scored result returned to callers
type Prediction struct {
	Popularity        float64 `json:"popularity" yaml:"popularity"`
	PopularityRounded int     `json:"popularity_rounded" yaml:"popularity_rounded"`
}

// NewPrediction clamps a raw model output to the popularity range and
// rounds it half to even
func NewPrediction(raw float64) *Prediction {
	p := math.Max(MinPopularity, math.Min(MaxPopularity, raw))
	return &Prediction{
		Popularity:        p,
		PopularityRounded: int(math.RoundToEven(p)),
	}
}

// Context holds everything loaded once at startup and shared read-only by
// every request
type Context struct {
	Config     *configs.Config
	Artifacts  *model.Artifacts
	Extractor  *extractors.Extractor
	Normalizer *model.Normalizer
	Metrics    metrics.Recorder
	Logger     logging.Logger

	extractions *semaphore.Weighted
}

// NewContext loads the artifacts named by cfg. A missing artifact is fatal.
func NewContext(cfg *configs.Config) (*Context, error) {
	arts, err := model.LoadArtifacts(cfg.Artifacts)
	if err != nil {
		return nil, err
	}

	recorder, err := metrics.New(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	c := NewContextWithArtifacts(cfg, arts)
	c.Metrics = recorder
	return c, nil
}

// NewContextWithArtifacts builds a context around already loaded artifacts.
// Metrics are discarded until a recorder is assigned.
func NewContextWithArtifacts(cfg *configs.Config, arts *model.Artifacts) *Context {
	logger := logging.WithFields(logging.Fields{
		"component": "predictor",
	})

	features := cfg.Features
	ex := extractors.NewExtractor(extractors.Config{
		Decoder:  cfg.Audio,
		Features: &features,
		Timeout:  cfg.Extraction.Timeout,
	})

	maxConcurrent := int64(cfg.Extraction.MaxConcurrent)
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	logger.Debug("Predictor initialized", logging.Fields{
		"max_concurrent": maxConcurrent,
		"timeout":        cfg.Extraction.Timeout.Seconds(),
		"classes":        len(arts.Encoder.Classes()),
	})

	return &Context{
		Config:      cfg,
		Artifacts:   arts,
		Extractor:   ex,
		Normalizer:  model.NewNormalizer(arts.Scaler, arts.Encoder),
		Metrics:     metrics.NewNop(),
		Logger:      logger,
		extractions: semaphore.NewWeighted(maxConcurrent),
	}
}

// ValidateGenre rejects genres outside the published vocabulary
func (c *Context) ValidateGenre(genre string) error {
	if !model.IsKnownGenre(genre) {
		return common.NewUnknownGenreError(genre)
	}
	return nil
}

// Extract derives a feature record from audio bytes. Extractions share a
// bounded number of slots; waiting for a slot counts against the caller's
// context only.
func (c *Context) Extract(ctx context.Context, audio []byte, opts extractors.ExtractOptions) (*extractors.RawFeatures, error) {
	if err := c.ValidateGenre(opts.TrackGenre); err != nil {
		return nil, err
	}
	if opts.Explicit != 0 && opts.Explicit != 1 {
		return nil, common.NewInvalidInputError(fmt.Sprintf("explicit must be 0 or 1, got %d", opts.Explicit), nil)
	}

	if err := c.extractions.Acquire(ctx, 1); err != nil {
		return nil, common.FromContext(err, "waiting for an extraction slot")
	}
	defer c.extractions.Release(1)

	start := time.Now()
	raw, err := c.Extractor.Extract(ctx, audio, opts)
	if err != nil {
		return nil, err
	}
	c.Metrics.ExtractionCompleted(time.Since(start), opts.TrackGenre)
	return raw, nil
}

// PredictAudio extracts features from audio and scores them
func (c *Context) PredictAudio(ctx context.Context, audio []byte, opts extractors.ExtractOptions) (*Prediction, error) {
	start := time.Now()

	prediction, err := c.predictAudio(ctx, audio, opts)
	if err != nil {
		c.Metrics.Failed(common.CodeOf(err), SourceAudio)
		return nil, err
	}
	c.Metrics.PredictionCompleted(prediction.Popularity, SourceAudio, opts.TrackGenre)

	c.Logger.Info("Prediction completed", logging.Fields{
		"track_genre": opts.TrackGenre,
		"popularity":  prediction.Popularity,
		"elapsed_ms":  time.Since(start).Milliseconds(),
	})

	return prediction, nil
}

func (c *Context) predictAudio(ctx context.Context, audio []byte, opts extractors.ExtractOptions) (*Prediction, error) {
	raw, err := c.Extract(ctx, audio, opts)
	if err != nil {
		return nil, err
	}
	return c.score(*raw)
}

// PredictFeatures scores a caller-supplied feature record
func (c *Context) PredictFeatures(ctx context.Context, raw extractors.RawFeatures) (*Prediction, error) {
	prediction, err := c.predictFeatures(ctx, raw)
	if err != nil {
		c.Metrics.Failed(common.CodeOf(err), SourceFeatures)
		return nil, err
	}
	c.Metrics.PredictionCompleted(prediction.Popularity, SourceFeatures, raw.TrackGenre)
	return prediction, nil
}

func (c *Context) predictFeatures(ctx context.Context, raw extractors.RawFeatures) (*Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.FromContext(err, "prediction")
	}
	if err := c.ValidateGenre(raw.TrackGenre); err != nil {
		return nil, err
	}
	if err := raw.Validate(); err != nil {
		return nil, err
	}
	return c.score(raw)
}

func (c *Context) score(raw extractors.RawFeatures) (*Prediction, error) {
	row, err := c.Normalizer.Normalize(raw)
	if err != nil {
		return nil, common.NewAnalysisError("normalization failed", err)
	}

	y, err := c.Artifacts.Scorer.Predict(row)
	if err != nil {
		return nil, common.NewAnalysisError("scoring failed", err)
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return nil, common.NewAnalysisError(fmt.Sprintf("model produced a non-finite score: %v", y), nil)
	}

	c.Logger.Debug("Record scored", logging.Fields{
		"track_genre": raw.TrackGenre,
		"raw_score":   y,
	})

	return NewPrediction(y), nil
}

// Close flushes and releases the metrics client
func (c *Context) Close() error {
	if c.Metrics == nil {
		return nil
	}
	return c.Metrics.Close()
}
