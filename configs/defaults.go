package configs

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/song-popularity/pkg/audio/config"
	"github.com/RyanBlaney/song-popularity/pkg/audio/decoder"
	"github.com/RyanBlaney/song-popularity/pkg/audio/extractors"
	"github.com/RyanBlaney/song-popularity/pkg/metrics"
	"github.com/RyanBlaney/song-popularity/pkg/model"
)

// DefaultMaxUploadBytes caps an uploaded audio file
const DefaultMaxUploadBytes = 50 << 20

// setDefaults sets default configuration values for all components
func setDefaults(v *viper.Viper) {
	d := GetDefaultConfig()

	// Application defaults
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("output_format", d.OutputFormat)

	// Server defaults; PORT is honoured for container platforms
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.max_upload_bytes", d.Server.MaxUploadBytes)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	_ = v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")

	// Extraction defaults
	v.SetDefault("extraction.timeout", d.Extraction.Timeout)
	v.SetDefault("extraction.max_concurrent", d.Extraction.MaxConcurrent)
	v.SetDefault("extraction.batch_workers", d.Extraction.BatchWorkers)

	// Audio defaults
	v.SetDefault("audio.sample_rate", d.Audio.TargetSampleRate)
	v.SetDefault("audio.ffmpeg_path", d.Audio.FFmpegPath)
	v.SetDefault("audio.ffprobe_path", d.Audio.FFprobePath)
	v.SetDefault("audio.temp_dir", d.Audio.TempDir)

	// Analyzer defaults
	f := d.Features
	v.SetDefault("features.window_size", f.WindowSize)
	v.SetDefault("features.hop_size", f.HopSize)
	v.SetDefault("features.mel_bands", f.MelBands)
	v.SetDefault("features.mfcc_coefficients", f.MFCCCoefficients)
	v.SetDefault("features.top_db", f.TopDB)
	v.SetDefault("features.rolloff_percent", f.RolloffPercent)
	v.SetDefault("features.chroma_window_size", f.ChromaWindowSize)
	v.SetDefault("features.chroma_octaves", f.ChromaOctaves)
	v.SetDefault("features.chroma_min_freq", f.ChromaMinFreq)
	v.SetDefault("features.hpss_kernel", f.HPSSKernel)
	v.SetDefault("features.hpss_power", f.HPSSPower)
	v.SetDefault("features.start_bpm", f.StartBPM)
	v.SetDefault("features.max_tempo", f.MaxTempo)
	v.SetDefault("features.tempo_ac_seconds", f.TempoACSeconds)
	v.SetDefault("features.tightness", f.Tightness)
	v.SetDefault("features.pulse_threshold", f.PulseThreshold)

	// Artifact defaults
	v.SetDefault("artifacts.scaler", d.Artifacts.Scaler)
	v.SetDefault("artifacts.encoder", d.Artifacts.Encoder)
	v.SetDefault("artifacts.model", d.Artifacts.Model)

	// Metrics defaults
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.address", d.Metrics.Address)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
}

// ConfigureEnv enables POPULARITY_* overrides for nested keys
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

// GetDefaultConfig returns the default configuration
func GetDefaultConfig() *Config {
	return &Config{
		// Application settings defaults
		Verbose:      false,
		LogLevel:     "info",
		LogFormat:    "console",
		OutputFormat: "table",

		Server:     GetDefaultServerConfig(),
		Extraction: GetDefaultExtractionConfig(),
		Audio:      decoder.DefaultConfig(),
		Features:   *config.DefaultFeatureConfig(),
		Artifacts: model.ArtifactPaths{
			Scaler:  "models/scaler.yaml",
			Encoder: "",
			Model:   "models/model.yaml",
		},
		Metrics: metrics.DefaultConfig(),
	}
}

// GetDefaultServerConfig returns default HTTP service settings
func GetDefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		MaxUploadBytes:  DefaultMaxUploadBytes,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    extractors.DefaultTimeout + 30*time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// GetDefaultExtractionConfig returns the default extraction budget
func GetDefaultExtractionConfig() ExtractionConfig {
	return ExtractionConfig{
		Timeout:       extractors.DefaultTimeout,
		MaxConcurrent: 2,
		BatchWorkers:  4,
	}
}
