package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/song-popularity/configs"
	"github.com/RyanBlaney/song-popularity/pkg/audio/decoder"
	"github.com/RyanBlaney/song-popularity/pkg/audio/extractors"
	"github.com/RyanBlaney/song-popularity/pkg/common"
	"github.com/RyanBlaney/song-popularity/pkg/logging"
	"github.com/RyanBlaney/song-popularity/pkg/model"
)

var (
	extractGenre    string
	extractExplicit bool
	extractWorkers  int
)

var extractCmd = &cobra.Command{
	Use:   "extract FILE...",
	Short: "Extract the feature record from audio files",
	Long: `Decode each audio file and derive its feature record: duration, tempo,
danceability, valence, acousticness, speechiness, instrumentalness,
liveness, key, mode, loudness and time signature.

Examples:
  # Extract features for one file
  popularity extract --genre pop song.mp3

  # Several files at once, as json
  popularity extract --genre rock -o json a.wav b.flac c.ogg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVarP(&extractGenre, "genre", "g", "",
		"track genre recorded in the output (see `popularity genres`)")
	extractCmd.Flags().BoolVar(&extractExplicit, "explicit", false,
		"mark the tracks as explicit")
	extractCmd.Flags().IntVarP(&extractWorkers, "workers", "w", 0,
		"files processed concurrently (default extraction.batch_workers)")
	extractCmd.MarkFlagRequired("genre")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !model.IsKnownGenre(extractGenre) {
		return common.NewUnknownGenreError(extractGenre)
	}

	features := cfg.Features
	ex := extractors.NewExtractor(extractors.Config{
		Decoder:  cfg.Audio,
		Features: &features,
		Timeout:  cfg.Extraction.Timeout,
	})

	opts := extractors.ExtractOptions{
		Explicit:   boolToInt(extractExplicit),
		TrackGenre: extractGenre,
	}

	results := runBatch(cmd.Context(), cfg, args, func(ctx context.Context, audio []byte, r *fileResult) error {
		f, err := ex.Extract(ctx, audio, opts)
		r.Features = f
		return err
	}, extractWorkers)

	if err := writeResults(os.Stdout, cfg.OutputFormat, results); err != nil {
		return err
	}
	return batchError(results)
}

// runBatch reads each file and applies fn with a bounded number of files
// in flight. Per-file failures are recorded on the result, not returned.
func runBatch(ctx context.Context, cfg *configs.Config, files []string,
	fn func(ctx context.Context, audio []byte, r *fileResult) error, workers int) []fileResult {
	if ctx == nil {
		ctx = context.Background()
	}
	if workers <= 0 {
		workers = cfg.Extraction.BatchWorkers
	}
	if workers <= 0 {
		workers = 1
	}

	logger := logging.WithFields(logging.Fields{
		"component": "batch",
		"files":     len(files),
		"workers":   workers,
	})

	p := pool.NewWithResults[fileResult]().WithMaxGoroutines(workers)
	for i, file := range files {
		p.Go(func() fileResult {
			r := fileResult{index: i, File: file}

			if !decoder.IsAllowedExtension(file) {
				r.Error = fmt.Sprintf("unsupported file type: %s", file)
				return r
			}

			audio, err := os.ReadFile(file)
			if err != nil {
				r.Error = err.Error()
				return r
			}

			if err := fn(ctx, audio, &r); err != nil {
				logger.Error(err, "File failed", logging.Fields{"file": file})
				r.Error = err.Error()
				r.Features = nil
				r.Prediction = nil
			}
			return r
		})
	}

	results := p.Wait()
	sortResults(results)
	return results
}

func batchError(results []fileResult) error {
	if n := failures(results); n > 0 {
		return fmt.Errorf("%d of %d files failed", n, len(results))
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
