package configs

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/song-popularity/pkg/audio/config"
	"github.com/RyanBlaney/song-popularity/pkg/audio/decoder"
	"github.com/RyanBlaney/song-popularity/pkg/metrics"
	"github.com/RyanBlaney/song-popularity/pkg/model"
)

// EnvPrefix prefixes every environment override, e.g. POPULARITY_SERVER_PORT
const EnvPrefix = "POPULARITY"

// Config represents the application configuration
type Config struct {
	// Application settings
	Verbose      bool   `mapstructure:"verbose"`
	LogLevel     string `mapstructure:"log_level"`
	LogFormat    string `mapstructure:"log_format"`
	OutputFormat string `mapstructure:"output_format"`

	// HTTP service
	Server ServerConfig `mapstructure:"server"`

	// Extraction budget and isolation
	Extraction ExtractionConfig `mapstructure:"extraction"`

	// Decoding and resampling
	Audio decoder.Config `mapstructure:"audio"`

	// Analyzer parameters
	Features config.FeatureConfig `mapstructure:"features"`

	// Trained artifacts
	Artifacts model.ArtifactPaths `mapstructure:"artifacts"`

	// DogStatsD metrics
	Metrics metrics.Config `mapstructure:"metrics"`
}

// ServerConfig contains HTTP service settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns host:port for the listener
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ExtractionConfig bounds the CPU spent on feature extraction
type ExtractionConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	BatchWorkers  int           `mapstructure:"batch_workers"`
}

// LoadConfig decodes the global viper instance, with defaults applied
func LoadConfig() (*Config, error) {
	return Load(viper.GetViper())
}

// Load decodes v into a Config, with defaults applied for unset keys
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}

	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// ValidateConfig checks values that would otherwise fail deep inside a request
func ValidateConfig(config *Config) error {
	if config.Extraction.Timeout <= 0 {
		return fmt.Errorf("extraction timeout must be positive")
	}

	if config.Extraction.MaxConcurrent <= 0 {
		return fmt.Errorf("extraction max_concurrent must be positive")
	}

	if config.Audio.TargetSampleRate <= 0 {
		return fmt.Errorf("audio sample rate must be positive")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}

	if config.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server max_upload_bytes must be positive")
	}

	if config.Features.HopSize <= 0 || config.Features.WindowSize < config.Features.HopSize {
		return fmt.Errorf("feature window size must be at least the hop size")
	}

	if config.Metrics.Enabled && config.Metrics.Address == "" {
		return fmt.Errorf("metrics address is required when metrics are enabled")
	}

	switch config.OutputFormat {
	case "json", "yaml", "table", "csv":
	default:
		return fmt.Errorf("unsupported output format: %s", config.OutputFormat)
	}

	return nil
}
