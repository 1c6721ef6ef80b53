package cmd

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"

	"github.com/RyanBlaney/latency-benchmark-common/output"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/RyanBlaney/song-popularity/internal/app"
	"github.com/RyanBlaney/song-popularity/pkg/audio/extractors"
)

// fileResult is the outcome for one input of a batch command
type fileResult struct {
	index int

	File       string                  `json:"file" yaml:"file"`
	Features   *extractors.RawFeatures `json:"features,omitempty" yaml:"features,omitempty"`
	Prediction *app.Prediction         `json:"prediction,omitempty" yaml:"prediction,omitempty"`
	Error      string                  `json:"error,omitempty" yaml:"error,omitempty"`
}

// sortResults restores submission order after a concurrent batch
func sortResults(results []fileResult) {
	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })
}

// failures counts the results that carry an error
func failures(results []fileResult) int {
	n := 0
	for _, r := range results {
		if r.Error != "" {
			n++
		}
	}
	return n
}

// newFormatter picks the renderer for an --output value. Structured formats
// come straight from the common output package; table and csv know the
// shape of this command's results.
func newFormatter(format string) (output.Formatter, error) {
	switch format {
	case "json":
		return &output.JSONFormatter{}, nil
	case "yaml":
		return &output.YAMLFormatter{}, nil
	case "table":
		return &tableFormatter{}, nil
	case "csv":
		return &csvFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// render formats data and writes it to w, newline terminated
func render(w io.Writer, format string, data any) error {
	formatter, err := newFormatter(format)
	if err != nil {
		return err
	}

	out, err := formatter.Format(data, true)
	if err != nil {
		return fmt.Errorf("failed to format output data: %w", err)
	}
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}

	_, err = w.Write(out)
	return err
}

// writeResults renders a batch in the requested format
func writeResults(w io.Writer, format string, results []fileResult) error {
	return render(w, format, results)
}

func writeGenres(w io.Writer, format string, genres []string) error {
	return render(w, format, genres)
}

// featureRows reports whether a batch carries feature records rather than
// predictions
func featureRows(results []fileResult) bool {
	if len(results) == 0 || results[0].Prediction != nil {
		return false
	}
	for _, r := range results {
		if r.Features != nil {
			return true
		}
	}
	return false
}

var (
	predictionHeader = []string{"file", "popularity", "popularity_rounded", "error"}
	featureHeader    = []string{"file", "duration_ms", "tempo", "key", "mode", "loudness",
		"danceability", "valence", "acousticness", "speechiness", "instrumentalness",
		"liveness", "time_signature", "explicit", "track_genre", "error"}
	genreHeader = []string{"genre", "name"}
)

// tableFormatter renders results as aligned columns for a terminal
type tableFormatter struct{}

func (f *tableFormatter) Format(data any, prettyPrint bool) ([]byte, error) {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	switch v := data.(type) {
	case []fileResult:
		if featureRows(v) {
			writeFeatureTable(tw, v)
		} else {
			writePredictionTable(tw, v)
		}
	case []string:
		fmt.Fprintln(tw, "GENRE\tNAME")
		for _, g := range v {
			fmt.Fprintf(tw, "%s\t%s\n", g, displayGenre(g))
		}
	default:
		return nil, fmt.Errorf("table output does not support %T", data)
	}

	if err := tw.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// csvFormatter renders one record per input with machine-readable values
type csvFormatter struct{}

func (f *csvFormatter) Format(data any, prettyPrint bool) ([]byte, error) {
	var records [][]string

	switch v := data.(type) {
	case []fileResult:
		if featureRows(v) {
			records = append(records, featureHeader)
			for _, r := range v {
				records = append(records, featureRecord(r))
			}
		} else {
			records = append(records, predictionHeader)
			for _, r := range v {
				records = append(records, predictionRecord(r))
			}
		}
	case []string:
		records = append(records, genreHeader)
		for _, g := range v {
			records = append(records, []string{g, displayGenre(g)})
		}
	default:
		return nil, fmt.Errorf("csv output does not support %T", data)
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.WriteAll(records); err != nil {
		return nil, fmt.Errorf("failed to write CSV record: %w", err)
	}
	return buf.Bytes(), nil
}

func predictionRecord(r fileResult) []string {
	if r.Prediction == nil {
		return []string{r.File, "", "", r.Error}
	}
	return []string{
		r.File,
		output.ConvertValueToString(r.Prediction.Popularity),
		output.ConvertValueToString(r.Prediction.PopularityRounded),
		"",
	}
}

func featureRecord(r fileResult) []string {
	f := r.Features
	if f == nil {
		record := make([]string, len(featureHeader))
		record[0] = r.File
		record[len(record)-1] = r.Error
		return record
	}

	values := []any{f.DurationMs, f.Tempo, f.Key, f.Mode, f.Loudness,
		f.Danceability, f.Valence, f.Acousticness, f.Speechiness, f.Instrumentalness,
		f.Liveness, f.TimeSignature, f.Explicit, f.TrackGenre}

	record := []string{r.File}
	for _, v := range values {
		record = append(record, output.ConvertValueToString(v))
	}
	return append(record, "")
}

func writePredictionTable(w io.Writer, results []fileResult) {
	fmt.Fprintln(w, "FILE\tPOPULARITY\tROUNDED\tERROR")
	for _, r := range results {
		if r.Prediction == nil {
			fmt.Fprintf(w, "%s\t-\t-\t%s\n", r.File, r.Error)
			continue
		}
		fmt.Fprintf(w, "%s\t%.2f\t%d\t\n", r.File, r.Prediction.Popularity, r.Prediction.PopularityRounded)
	}
}

func writeFeatureTable(w io.Writer, results []fileResult) {
	fmt.Fprintln(w, "FILE\tDURATION\tTEMPO\tKEY\tMODE\tLOUDNESS\tDANCE\tVALENCE\tACOUSTIC\tSPEECH\tINSTR\tLIVE\tGENRE\tERROR")
	for _, r := range results {
		f := r.Features
		if f == nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\t-\t-\t-\t-\t-\t-\t-\t%s\n", r.File, r.Error)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\t%s\t%.2f\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%s\t\n",
			r.File, formatDuration(f.DurationMs), f.Tempo, pitchClass(f.Key), modeName(f.Mode),
			f.Loudness, f.Danceability, f.Valence, f.Acousticness, f.Speechiness,
			f.Instrumentalness, f.Liveness, f.TrackGenre)
	}
}

var pitchClasses = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

func pitchClass(key int) string {
	if key < 0 || key >= len(pitchClasses) {
		return "?"
	}
	return pitchClasses[key]
}

func modeName(mode int) string {
	if mode == 1 {
		return "major"
	}
	return "minor"
}

func formatDuration(ms int) string {
	total := int(math.Round(float64(ms) / 1000))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// displayGenre title-cases a genre slug for humans, e.g. "hip-hop" -> "Hip-Hop"
func displayGenre(genre string) string {
	return cases.Title(language.English).String(genre)
}
