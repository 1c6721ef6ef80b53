package model

import (
	"fmt"

	"github.com/RyanBlaney/song-popularity/pkg/audio/extractors"
	"github.com/RyanBlaney/song-popularity/pkg/logging"
)

// NumColumns is the width of a model input row
const NumColumns = 14

// Columns is the column order the model was trained on. It is load-bearing:
// reordering it silently corrupts every prediction.
var Columns = [NumColumns]string{
	"duration_ms", "explicit", "danceability", "key", "loudness", "mode",
	"speechiness", "acousticness", "instrumentalness", "liveness", "valence",
	"tempo", "time_signature", "track_genre",
}

// ModelInput is one normalized row in Columns order
type ModelInput [NumColumns]float64

// Map returns the row keyed by column name
func (m ModelInput) Map() map[string]float64 {
	out := make(map[string]float64, NumColumns)
	for i, c := range Columns {
		out[c] = m[i]
	}
	return out
}

// scaleIndex maps each ScaleColumns entry onto its position in Columns
var scaleIndex = func() []int {
	pos := make(map[string]int, NumColumns)
	for i, c := range Columns {
		pos[c] = i
	}
	idx := make([]int, len(ScaleColumns))
	for i, c := range ScaleColumns {
		idx[i] = pos[c]
	}
	return idx
}()

// Normalizer turns a raw feature record into a model input row
type Normalizer struct {
	scaler  Scaler
	encoder CategoryEncoder
	logger  logging.Logger
}

// NewNormalizer creates a normalizer over loaded artifacts
func NewNormalizer(scaler Scaler, encoder CategoryEncoder) *Normalizer {
	return &Normalizer{
		scaler:  scaler,
		encoder: encoder,
		logger: logging.WithFields(logging.Fields{
			"component": "feature_normalizer",
		}),
	}
}

// Normalize encodes the genre and rescales the scaled columns. An unseen
// genre is remapped by the encoder, never rejected here.
func (n *Normalizer) Normalize(raw extractors.RawFeatures) (ModelInput, error) {
	var row ModelInput
	row[0] = float64(raw.DurationMs)
	row[1] = float64(raw.Explicit)
	row[2] = raw.Danceability
	row[3] = float64(raw.Key)
	row[4] = raw.Loudness
	row[5] = float64(raw.Mode)
	row[6] = raw.Speechiness
	row[7] = raw.Acousticness
	row[8] = raw.Instrumentalness
	row[9] = raw.Liveness
	row[10] = raw.Valence
	row[11] = raw.Tempo
	row[12] = float64(raw.TimeSignature)

	genre := n.encoder.Encode(raw.TrackGenre)
	row[13] = float64(genre)

	values := make([]float64, len(scaleIndex))
	for i, col := range scaleIndex {
		values[i] = row[col]
	}

	scaled, err := n.scaler.Transform(values)
	if err != nil {
		return ModelInput{}, fmt.Errorf("failed to scale features: %w", err)
	}
	for i, col := range scaleIndex {
		row[col] = scaled[i]
	}

	n.logger.Debug("Features normalized", logging.Fields{
		"track_genre": raw.TrackGenre,
		"genre_index": genre,
	})

	return row, nil
}
