package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/song-popularity/pkg/model"
)

var genresSorted bool

var genresCmd = &cobra.Command{
	Use:   "genres",
	Short: "List the accepted track genres",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		genres := model.Genres()
		if genresSorted {
			genres = model.SortedGenres()
		}
		return writeGenres(os.Stdout, cfg.OutputFormat, genres)
	},
}

func init() {
	rootCmd.AddCommand(genresCmd)

	genresCmd.Flags().BoolVar(&genresSorted, "sorted", false,
		"list in encoder order instead of publication order")
}
