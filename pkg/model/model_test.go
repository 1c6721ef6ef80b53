package model

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/RyanBlaney/song-popularity/pkg/audio/extractors"
	"github.com/RyanBlaney/song-popularity/pkg/common"
)

func testdata(name string) string {
	return filepath.Join("testdata", name)
}

func sampleRecord() extractors.RawFeatures {
	return extractors.RawFeatures{
		DurationMs:       210000,
		Explicit:         1,
		Danceability:     0.7,
		Key:              5,
		Loudness:         -6.5,
		Mode:             1,
		Speechiness:      0.05,
		Acousticness:     0.2,
		Instrumentalness: 0.95,
		Liveness:         0.1,
		Valence:          0.6,
		Tempo:            124,
		TimeSignature:    4,
		TrackGenre:       "pop",
	}
}

type NormalizerTestSuite struct {
	suite.Suite
	scaler     *StandardScaler
	normalizer *Normalizer
}

func (s *NormalizerTestSuite) SetupTest() {
	scaler, err := LoadScaler(testdata("scaler.yaml"))
	s.Require().NoError(err)
	s.scaler = scaler.(*StandardScaler)
	s.normalizer = NewNormalizer(scaler, NewDefaultLabelEncoder())
}

func (s *NormalizerTestSuite) TestScalesOnlyScaledColumns() {
	raw := sampleRecord()
	row, err := s.normalizer.Normalize(raw)
	s.Require().NoError(err)

	// pass-through columns
	s.Equal(1.0, row[1])
	s.Equal(5.0, row[3])
	s.Equal(1.0, row[5])
	s.Equal(4.0, row[12])
	s.Equal(80.0, row[13])

	m := row.Map()
	unscaled := map[string]float64{
		"duration_ms":      210000,
		"danceability":     0.7,
		"loudness":         -6.5,
		"speechiness":      0.05,
		"acousticness":     0.2,
		"instrumentalness": 0.95,
		"liveness":         0.1,
		"valence":          0.6,
		"tempo":            124,
	}
	for i, col := range ScaleColumns {
		want := (unscaled[col] - s.scaler.Mean[i]) / s.scaler.Scale[i]
		s.InDelta(want, m[col], 1e-12, col)
	}
}

func (s *NormalizerTestSuite) TestUnknownGenreFallsBack() {
	raw := sampleRecord()
	raw.TrackGenre = "not-a-real-genre"

	row, err := s.normalizer.Normalize(raw)
	s.Require().NoError(err)

	// no "other" class in the vocabulary, so the first sorted class wins
	s.Equal(0.0, row[13])
	label, err := NewDefaultLabelEncoder().Decode(int(row[13]))
	s.Require().NoError(err)
	s.Equal("acoustic", label)
}

func (s *NormalizerTestSuite) TestColumnOrder() {
	s.Equal("duration_ms", Columns[0])
	s.Equal("track_genre", Columns[NumColumns-1])
	s.Equal("tempo", Columns[11])
	s.Equal([]int{0, 2, 4, 6, 7, 8, 9, 10, 11}, scaleIndex)
}

func TestNormalizerSuite(t *testing.T) {
	suite.Run(t, new(NormalizerTestSuite))
}

func TestGenres(t *testing.T) {
	g := Genres()
	assert.Len(t, g, 114)
	assert.Equal(t, "acoustic", g[0])
	assert.Equal(t, "indie-pop", g[56])
	assert.Equal(t, "indie", g[57])

	g[0] = "mutated"
	assert.Equal(t, "acoustic", Genres()[0])

	sorted := SortedGenres()
	assert.Len(t, sorted, 114)
	assert.Equal(t, "indie", sorted[56])
	assert.Equal(t, "indie-pop", sorted[57])
	assert.Equal(t, "world-music", sorted[113])

	assert.True(t, IsKnownGenre("k-pop"))
	assert.False(t, IsKnownGenre("K-Pop"))
	assert.False(t, IsKnownGenre("other"))
}

func TestLabelEncoderRoundTrip(t *testing.T) {
	enc := NewDefaultLabelEncoder()
	for _, g := range Genres() {
		label, err := enc.Decode(enc.Encode(g))
		require.NoError(t, err)
		assert.Equal(t, g, label)
	}

	assert.Equal(t, 80, enc.Encode("pop"))
	assert.Equal(t, 90, enc.Encode("rock"))
	assert.Equal(t, "acoustic", enc.FallbackLabel())

	_, err := enc.Decode(114)
	assert.Error(t, err)
	_, err = enc.Decode(-1)
	assert.Error(t, err)
}

func TestLabelEncoderPrefersOther(t *testing.T) {
	enc, err := LoadEncoder(testdata("encoder.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{"jazz", "other", "pop", "rock"}, enc.Classes())
	assert.Equal(t, 1, enc.Encode("polka"))
	assert.Equal(t, "other", enc.FallbackLabel())
	assert.True(t, enc.Known("rock"))
	assert.False(t, enc.Known("polka"))
}

func TestNewLabelEncoderDeduplicates(t *testing.T) {
	enc, err := NewLabelEncoder([]string{"b", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, enc.Classes())

	_, err = NewLabelEncoder(nil)
	assert.Error(t, err)
}

func TestStandardScalerZeroScale(t *testing.T) {
	mean := make([]float64, len(ScaleColumns))
	scale := make([]float64, len(ScaleColumns))
	mean[0] = 2

	s, err := NewStandardScaler(mean, scale)
	require.NoError(t, err)

	out, err := s.Transform([]float64{5, 1, 1, 1, 1, 1, 1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, 3.0, out[0])
	assert.Equal(t, 1.0, out[8])

	_, err = s.Transform([]float64{1})
	assert.Error(t, err)

	_, err = NewStandardScaler(mean[:3], scale)
	assert.Error(t, err)
}

func TestMinMaxScaler(t *testing.T) {
	scaler, err := LoadScaler(testdata("scaler_minmax.json"))
	require.NoError(t, err)

	out, err := scaler.Transform([]float64{300000, 0.5, -10, 0, 1, 0.25, 0.5, 0.75, 125})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.5, 0.8, 0, 1, 0.25, 0.5, 0.75, 0.5}, out, 1e-12)

	ranged, err := NewMinMaxScaler(make([]float64, 9), []float64{2, 2, 2, 2, 2, 2, 2, 2, 2}, []float64{-1, 1})
	require.NoError(t, err)
	out, err = ranged.Transform([]float64{0, 1, 2, 0, 1, 2, 0, 1, 2})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-1, 0, 1, -1, 0, 1, -1, 0, 1}, out, 1e-12)

	_, err = NewMinMaxScaler(make([]float64, 9), make([]float64, 9), []float64{1, 0})
	assert.Error(t, err)
}

func TestLinearScorer(t *testing.T) {
	scorer, err := LoadScorer(testdata("model_linear.yaml"))
	require.NoError(t, err)

	var x ModelInput
	x[1] = 1
	x[2] = 0.5
	x[4] = -2
	x[13] = 10

	y, err := scorer.Predict(x)
	require.NoError(t, err)
	assert.InDelta(t, 40+5+5-4+1, y, 1e-12)

	_, err = NewLinearScorer(0, []float64{1, 2})
	assert.Error(t, err)
}

func TestForestScorer(t *testing.T) {
	scorer, err := LoadScorer(testdata("model_forest.json"))
	require.NoError(t, err)
	assert.Equal(t, 2, scorer.(*ForestScorer).Trees())

	var x ModelInput
	x[1] = 1
	x[2] = -1
	x[13] = 80
	y, err := scorer.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, (30.0+90.0)/2, y)

	x = ModelInput{}
	x[2] = 1
	y, err = scorer.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, (70.0+20.0)/2, y)
}

func TestForestRejectsMalformedTrees(t *testing.T) {
	tests := []struct {
		name string
		tree Tree
	}{
		{"empty", Tree{}},
		{"ragged", Tree{ChildrenLeft: []int{-1}, ChildrenRight: []int{-1}, Feature: []int{0}}},
		{"cycle", Tree{
			ChildrenLeft: []int{0}, ChildrenRight: []int{0},
			Feature: []int{0}, Threshold: []float64{0}, Value: []float64{0},
		}},
		{"bad feature", Tree{
			ChildrenLeft: []int{1, -1, -1}, ChildrenRight: []int{2, -1, -1},
			Feature: []int{14, -2, -2}, Threshold: []float64{0, 0, 0}, Value: []float64{0, 0, 0},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewForestScorer([]Tree{tt.tree})
			assert.Error(t, err)
		})
	}

	_, err := NewForestScorer(nil)
	assert.Error(t, err)
}

func TestLoadArtifacts(t *testing.T) {
	arts, err := LoadArtifacts(ArtifactPaths{
		Scaler: testdata("scaler.yaml"),
		Model:  testdata("model_forest.json"),
	})
	require.NoError(t, err)
	assert.Len(t, arts.Encoder.Classes(), 114)
	assert.IsType(t, &StandardScaler{}, arts.Scaler)
	assert.IsType(t, &ForestScorer{}, arts.Scorer)
}

func TestLoadArtifactsMissing(t *testing.T) {
	tests := []struct {
		name     string
		paths    ArtifactPaths
		artifact string
	}{
		{"no scaler path", ArtifactPaths{Model: testdata("model_linear.yaml")}, "scaler"},
		{"scaler file absent", ArtifactPaths{Scaler: testdata("nope.yaml"), Model: testdata("model_linear.yaml")}, "scaler"},
		{"scaler columns", ArtifactPaths{Scaler: testdata("scaler_bad_columns.yaml"), Model: testdata("model_linear.yaml")}, "scaler"},
		{"encoder absent", ArtifactPaths{Scaler: testdata("scaler.yaml"), Encoder: testdata("nope.yaml"), Model: testdata("model_linear.yaml")}, "encoder"},
		{"model absent", ArtifactPaths{Scaler: testdata("scaler.yaml")}, "model"},
		{"model kind", ArtifactPaths{Scaler: testdata("scaler.yaml"), Model: testdata("model_unknown.yaml")}, "model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arts, err := LoadArtifacts(tt.paths)
			assert.Nil(t, arts)
			require.ErrorIs(t, err, common.ErrArtifactMissing)

			var pe *common.PredictionError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.artifact, pe.Fields["artifact"])
		})
	}
}

func TestModelInputMap(t *testing.T) {
	var x ModelInput
	for i := range x {
		x[i] = float64(i)
	}
	m := x.Map()
	assert.Len(t, m, NumColumns)
	assert.Equal(t, 13.0, m["track_genre"])
	assert.False(t, math.IsNaN(m["tempo"]))
}
