package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/song-popularity/configs"
	"github.com/RyanBlaney/song-popularity/internal/app"
	"github.com/RyanBlaney/song-popularity/pkg/audio/extractors"
)

func TestDisplayGenre(t *testing.T) {
	assert.Equal(t, "Hip-Hop", displayGenre("hip-hop"))
	assert.Equal(t, "Singer-Songwriter", displayGenre("singer-songwriter"))
	assert.Equal(t, "Pop", displayGenre("pop"))
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "3:25", formatDuration(205000))
	assert.Equal(t, "0:03", formatDuration(3000))
	assert.Equal(t, "A", pitchClass(9))
	assert.Equal(t, "?", pitchClass(12))
	assert.Equal(t, "major", modeName(1))
	assert.Equal(t, "minor", modeName(0))
}

func TestWriteResultsFormats(t *testing.T) {
	results := []fileResult{
		{index: 1, File: "b.wav", Error: "decode failed"},
		{index: 0, File: "a.wav", Prediction: app.NewPrediction(61.7)},
	}
	sortResults(results)
	assert.Equal(t, "a.wav", results[0].File)
	assert.Equal(t, 1, failures(results))

	var buf bytes.Buffer
	require.NoError(t, writeResults(&buf, "table", results))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "POPULARITY")
	assert.Contains(t, lines[1], "61.70")
	assert.Contains(t, lines[1], "62")
	assert.Contains(t, lines[2], "decode failed")

	buf.Reset()
	require.NoError(t, writeResults(&buf, "json", results))
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "a.wav", decoded[0]["file"])
	assert.NotContains(t, decoded[0], "index")

	buf.Reset()
	require.NoError(t, writeResults(&buf, "yaml", results))
	var fromYAML []fileResult
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Equal(t, 61.7, fromYAML[0].Prediction.Popularity)

	buf.Reset()
	require.NoError(t, writeResults(&buf, "csv", results))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"file", "popularity", "popularity_rounded", "error"}, rows[0])
	assert.Equal(t, []string{"a.wav", "61.700", "62", ""}, rows[1])
	assert.Equal(t, []string{"b.wav", "", "", "decode failed"}, rows[2])

	assert.Error(t, writeResults(&buf, "xml", results))
}

func TestWriteFeatureCSV(t *testing.T) {
	results := []fileResult{
		{File: "tone.wav", Features: &extractors.RawFeatures{
			DurationMs: 3000, Tempo: 120, Key: 9, Mode: 1, Danceability: 0.55,
			TimeSignature: 4, TrackGenre: "acoustic",
		}},
		{File: "broken.wav", Error: "decode failed"},
	}

	var buf bytes.Buffer
	require.NoError(t, writeResults(&buf, "csv", results))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	header := rows[0]
	assert.Equal(t, "track_genre", header[len(header)-2])
	assert.Equal(t, "3000", rows[1][1])
	assert.Equal(t, "120.000", rows[1][2])
	assert.Equal(t, "0.550", rows[1][6])
	assert.Equal(t, "acoustic", rows[1][len(header)-2])
	assert.Len(t, rows[2], len(header))
	assert.Equal(t, "decode failed", rows[2][len(header)-1])
}

func TestWriteFeatureTable(t *testing.T) {
	results := []fileResult{{
		File: "tone.wav",
		Features: &extractors.RawFeatures{
			DurationMs: 3000, Tempo: 120, Key: 9, Mode: 1, TrackGenre: "acoustic",
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, writeResults(&buf, "table", results))
	assert.Contains(t, buf.String(), "TEMPO")
	assert.Contains(t, buf.String(), "0:03")
	assert.Contains(t, buf.String(), "acoustic")
}

func TestWriteGenres(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeGenres(&buf, "table", []string{"hip-hop", "r-n-b"}))
	assert.Contains(t, buf.String(), "Hip-Hop")

	buf.Reset()
	require.NoError(t, writeGenres(&buf, "json", []string{"pop"}))
	assert.JSONEq(t, `["pop"]`, buf.String())

	buf.Reset()
	require.NoError(t, writeGenres(&buf, "csv", []string{"hip-hop"}))
	assert.Equal(t, "genre,name\nhip-hop,Hip-Hop\n", buf.String())

	buf.Reset()
	require.NoError(t, writeGenres(&buf, "yaml", []string{"pop", "rock"}))
	var fromYAML []string
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Equal(t, []string{"pop", "rock"}, fromYAML)
}

func TestRunBatch(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.wav")
	bad := filepath.Join(dir, "bad.wav")
	require.NoError(t, os.WriteFile(good, []byte("good"), 0644))
	require.NoError(t, os.WriteFile(bad, []byte("bad"), 0644))

	files := []string{good, filepath.Join(dir, "notes.txt"), bad, filepath.Join(dir, "missing.mp3")}
	results := runBatch(context.Background(), configs.GetDefaultConfig(), files,
		func(ctx context.Context, audio []byte, r *fileResult) error {
			r.Prediction = app.NewPrediction(50)
			if string(audio) == "bad" {
				return errors.New("cannot decode")
			}
			return nil
		}, 2)

	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, files[i], r.File)
	}
	assert.Empty(t, results[0].Error)
	assert.Equal(t, 50.0, results[0].Prediction.Popularity)
	assert.Contains(t, results[1].Error, "unsupported file type")
	assert.Equal(t, "cannot decode", results[2].Error)
	assert.Nil(t, results[2].Prediction)
	assert.NotEmpty(t, results[3].Error)

	assert.EqualError(t, batchError(results), "3 of 4 files failed")
}
