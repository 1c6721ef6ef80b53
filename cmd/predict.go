package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/song-popularity/internal/app"
	"github.com/RyanBlaney/song-popularity/pkg/audio/extractors"
)

var (
	predictGenre    string
	predictExplicit bool
	predictFeatures string
	predictWorkers  int
)

var predictCmd = &cobra.Command{
	Use:   "predict [FILE...]",
	Short: "Predict popularity for audio files or a feature record",
	Long: `Predict a 0-100 popularity score.

With audio files, features are extracted first and the --genre flag is
required. With --features, structured records are read from a json or yaml
file (one record or a list) and scored directly.

Examples:
  # Score an mp3
  popularity predict --genre dance track.mp3

  # Score pre-computed features
  popularity predict --features features.json -o json`,
	Args: func(cmd *cobra.Command, args []string) error {
		if predictFeatures == "" && len(args) == 0 {
			return fmt.Errorf("requires at least one audio file or --features")
		}
		if predictFeatures != "" && len(args) > 0 {
			return fmt.Errorf("audio files and --features are mutually exclusive")
		}
		if predictFeatures == "" && predictGenre == "" {
			return fmt.Errorf("--genre is required when scoring audio files")
		}
		return nil
	},
	RunE: runPredict,
}

func init() {
	rootCmd.AddCommand(predictCmd)

	predictCmd.Flags().StringVarP(&predictGenre, "genre", "g", "",
		"track genre (see `popularity genres`)")
	predictCmd.Flags().BoolVar(&predictExplicit, "explicit", false,
		"mark the tracks as explicit")
	predictCmd.Flags().StringVarP(&predictFeatures, "features", "f", "",
		"json or yaml file holding feature records to score")
	predictCmd.Flags().IntVarP(&predictWorkers, "workers", "w", 0,
		"files processed concurrently (default extraction.batch_workers)")
}

func runPredict(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	predictor, err := app.NewContext(cfg)
	if err != nil {
		return err
	}
	defer predictor.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var results []fileResult
	if predictFeatures != "" {
		results, err = predictRecords(ctx, predictor, predictFeatures)
		if err != nil {
			return err
		}
	} else {
		if err := predictor.ValidateGenre(predictGenre); err != nil {
			return err
		}
		opts := extractors.ExtractOptions{
			Explicit:   boolToInt(predictExplicit),
			TrackGenre: predictGenre,
		}
		results = runBatch(ctx, cfg, args, func(ctx context.Context, audio []byte, r *fileResult) error {
			p, err := predictor.PredictAudio(ctx, audio, opts)
			r.Prediction = p
			return err
		}, predictWorkers)
	}

	if err := writeResults(os.Stdout, cfg.OutputFormat, results); err != nil {
		return err
	}
	return batchError(results)
}

// predictRecords scores every record of a features file; the File column
// names the record by position
func predictRecords(ctx context.Context, predictor *app.Context, path string) ([]fileResult, error) {
	records, err := app.LoadFeaturesFromFile(path)
	if err != nil {
		return nil, err
	}

	results := make([]fileResult, len(records))
	for i, raw := range records {
		r := fileResult{index: i, File: fmt.Sprintf("%s[%d]", path, i)}
		p, err := predictor.PredictFeatures(ctx, raw)
		if err != nil {
			r.Error = err.Error()
		} else {
			r.Prediction = p
		}
		results[i] = r
	}
	return results, nil
}
