package metrics

import (
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/RyanBlaney/song-popularity/pkg/logging"
)

// Metric names, relative to the configured namespace
const (
	MetricExtractionTime = "extraction.duration"
	MetricPrediction     = "prediction.popularity"
	MetricPredictions    = "prediction.count"
	MetricFailures       = "prediction.failures"
)

// Config controls the DogStatsD client
type Config struct {
	Enabled   bool     `mapstructure:"enabled"`
	Address   string   `mapstructure:"address"`
	Namespace string   `mapstructure:"namespace"`
	Tags      []string `mapstructure:"tags"`
}

// DefaultConfig leaves metrics off and points at a local agent
func DefaultConfig() Config {
	return Config{
		Enabled:   false,
		Address:   "127.0.0.1:8125",
		Namespace: "popularity.",
	}
}

// Recorder receives pipeline measurements
type Recorder interface {
	ExtractionCompleted(elapsed time.Duration, genre string)
	PredictionCompleted(popularity float64, source, genre string)
	Failed(code, source string)
	Close() error
}

// StatsdRecorder sends measurements to a DogStatsD agent. Send errors are
// logged at debug level only; metrics never fail a request.
type StatsdRecorder struct {
	client statsd.ClientInterface
	logger logging.Logger
}

// New creates a recorder; a disabled config yields one that drops everything
func New(cfg Config) (*StatsdRecorder, error) {
	if !cfg.Enabled {
		return NewNop(), nil
	}

	client, err := statsd.New(cfg.Address,
		statsd.WithNamespace(cfg.Namespace),
		statsd.WithTags(cfg.Tags),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create statsd client for %s: %w", cfg.Address, err)
	}
	return NewWithClient(client), nil
}

// NewNop returns a recorder backed by the no-op client
func NewNop() *StatsdRecorder {
	return NewWithClient(&statsd.NoOpClient{})
}

// NewWithClient wraps an existing client
func NewWithClient(client statsd.ClientInterface) *StatsdRecorder {
	return &StatsdRecorder{
		client: client,
		logger: logging.WithFields(logging.Fields{
			"component": "metrics",
		}),
	}
}

func (r *StatsdRecorder) ExtractionCompleted(elapsed time.Duration, genre string) {
	r.check(r.client.Timing(MetricExtractionTime, elapsed, []string{"genre:" + genre}, 1))
}

func (r *StatsdRecorder) PredictionCompleted(popularity float64, source, genre string) {
	tags := []string{"source:" + source, "genre:" + genre}
	r.check(r.client.Histogram(MetricPrediction, popularity, tags, 1))
	r.check(r.client.Incr(MetricPredictions, tags, 1))
}

func (r *StatsdRecorder) Failed(code, source string) {
	if code == "" {
		code = "unknown"
	}
	r.check(r.client.Incr(MetricFailures, []string{"code:" + code, "source:" + source}, 1))
}

func (r *StatsdRecorder) Close() error {
	return r.client.Close()
}

func (r *StatsdRecorder) check(err error) {
	if err != nil {
		r.logger.Debug("Failed to send metric", logging.Fields{"error": err.Error()})
	}
}
