package extractors

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/song-popularity/pkg/audio/analyzers"
	"github.com/RyanBlaney/song-popularity/pkg/common"
)

// RawFeatures is the fixed-schema feature record consumed by the normalizer
type RawFeatures struct {
	DurationMs       int     `json:"duration_ms" yaml:"duration_ms"`
	Explicit         int     `json:"explicit" yaml:"explicit"`
	Danceability     float64 `json:"danceability" yaml:"danceability"`
	Key              int     `json:"key" yaml:"key"`
	Loudness         float64 `json:"loudness" yaml:"loudness"`
	Mode             int     `json:"mode" yaml:"mode"`
	Speechiness      float64 `json:"speechiness" yaml:"speechiness"`
	Acousticness     float64 `json:"acousticness" yaml:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness" yaml:"instrumentalness"`
	Liveness         float64 `json:"liveness" yaml:"liveness"`
	Valence          float64 `json:"valence" yaml:"valence"`
	Tempo            float64 `json:"tempo" yaml:"tempo"`
	TimeSignature    int     `json:"time_signature" yaml:"time_signature"`
	TrackGenre       string  `json:"track_genre" yaml:"track_genre"`
}

// SignalSummary collects the analyzer outputs the synthesizer combines
type SignalSummary struct {
	DurationMs int                            `json:"duration_ms"`
	Tempo      *analyzers.TempoResult         `json:"tempo"`
	Loudness   *analyzers.LoudnessResult      `json:"loudness"`
	Spectral   *analyzers.SpectralShapeResult `json:"spectral"`
	Harmonic   *analyzers.HarmonicResult      `json:"harmonic"`
	Chroma     *analyzers.ChromaResult        `json:"chroma"`
}

// Validate checks the domain of every field of a caller-supplied record.
// Genre membership is checked against the vocabulary elsewhere.
func (f *RawFeatures) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	unit := func(name string, v float64) {
		check(!math.IsNaN(v) && v >= 0 && v <= 1, "%s must be within [0,1], got %v", name, v)
	}

	check(f.DurationMs >= 0, "duration_ms must be non-negative, got %d", f.DurationMs)
	check(f.Explicit == 0 || f.Explicit == 1, "explicit must be 0 or 1, got %d", f.Explicit)
	check(f.Key >= 0 && f.Key <= 11, "key must be within [0,11], got %d", f.Key)
	check(f.Mode == 0 || f.Mode == 1, "mode must be 0 or 1, got %d", f.Mode)
	check(!math.IsNaN(f.Loudness) && !math.IsInf(f.Loudness, 0), "loudness must be finite")
	check(!math.IsNaN(f.Tempo) && !math.IsInf(f.Tempo, 0) && f.Tempo > 0, "tempo must be positive, got %v", f.Tempo)
	check(f.TimeSignature > 0, "time_signature must be positive, got %d", f.TimeSignature)
	check(f.TrackGenre != "", "track_genre is required")

	unit("danceability", f.Danceability)
	unit("speechiness", f.Speechiness)
	unit("acousticness", f.Acousticness)
	unit("instrumentalness", f.Instrumentalness)
	unit("liveness", f.Liveness)
	unit("valence", f.Valence)

	if len(problems) == 0 {
		return nil
	}
	return common.NewPredictionErrorWithFields(common.ErrCodeInvalidInput,
		"invalid feature record: "+problems[0], nil,
		map[string]any{"problems": problems})
}
