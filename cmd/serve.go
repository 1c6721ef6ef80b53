package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/RyanBlaney/song-popularity/internal/server"
	"github.com/RyanBlaney/song-popularity/pkg/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP prediction service",
	Long: `Serve the prediction API:

  GET  /, /health     liveness
  GET  /genres        accepted genre vocabulary
  POST /predict       score a json feature record
  POST /predict_file  score an uploaded audio file (multipart: file, track_genre, explicit)
  POST /extract       feature record of an uploaded audio file

Artifacts are loaded at startup; a missing artifact stops the service.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a := fx.New(server.Module(cfg, logging.Default()))
		if err := a.Err(); err != nil {
			return err
		}
		a.Run()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "listen port; PORT is honoured too")
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
