package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/song-popularity/pkg/common"
	"github.com/RyanBlaney/song-popularity/pkg/logging"
)

// ArtifactPaths locates the trained artifacts on disk. An empty encoder
// path selects the default encoder over the genre vocabulary.
type ArtifactPaths struct {
	Scaler  string `mapstructure:"scaler"`
	Encoder string `mapstructure:"encoder"`
	Model   string `mapstructure:"model"`
}

// ScalerArtifact is the on-disk form of a fitted scaler
type ScalerArtifact struct {
	Kind         string    `yaml:"kind" json:"kind"`
	Columns      []string  `yaml:"columns,omitempty" json:"columns,omitempty"`
	Mean         []float64 `yaml:"mean,omitempty" json:"mean,omitempty"`
	Scale        []float64 `yaml:"scale,omitempty" json:"scale,omitempty"`
	DataMin      []float64 `yaml:"data_min,omitempty" json:"data_min,omitempty"`
	DataMax      []float64 `yaml:"data_max,omitempty" json:"data_max,omitempty"`
	FeatureRange []float64 `yaml:"feature_range,omitempty" json:"feature_range,omitempty"`
}

// EncoderArtifact is the on-disk form of a fitted label encoder
type EncoderArtifact struct {
	Classes []string `yaml:"classes" json:"classes"`
}

// ModelArtifact is the on-disk form of a trained regressor
type ModelArtifact struct {
	Kind         string    `yaml:"kind" json:"kind"`
	Intercept    float64   `yaml:"intercept,omitempty" json:"intercept,omitempty"`
	Coefficients []float64 `yaml:"coefficients,omitempty" json:"coefficients,omitempty"`
	Trees        []Tree    `yaml:"trees,omitempty" json:"trees,omitempty"`
}

// Artifacts is the immutable set of loaded artifacts shared by all requests
type Artifacts struct {
	Scaler  Scaler
	Encoder *LabelEncoder
	Scorer  Scorer
}

// LoadArtifacts loads every artifact, failing on the first one that is
// missing or malformed
func LoadArtifacts(paths ArtifactPaths) (*Artifacts, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "artifact_loader",
		"function":  "LoadArtifacts",
	})

	scaler, err := LoadScaler(paths.Scaler)
	if err != nil {
		return nil, err
	}
	encoder, err := LoadEncoder(paths.Encoder)
	if err != nil {
		return nil, err
	}
	scorer, err := LoadScorer(paths.Model)
	if err != nil {
		return nil, err
	}

	logger.Debug("Artifacts loaded", logging.Fields{
		"scaler":  paths.Scaler,
		"encoder": paths.Encoder,
		"model":   paths.Model,
		"classes": len(encoder.Classes()),
	})

	return &Artifacts{Scaler: scaler, Encoder: encoder, Scorer: scorer}, nil
}

// LoadScaler reads a scaler artifact
func LoadScaler(path string) (Scaler, error) {
	var art ScalerArtifact
	if err := readArtifact(path, &art); err != nil {
		return nil, common.NewArtifactMissingError("scaler", path, err)
	}

	if len(art.Columns) > 0 && !slices.Equal(art.Columns, ScaleColumns) {
		return nil, common.NewArtifactMissingError("scaler", path,
			fmt.Errorf("scaler was fitted on columns %v, expected %v", art.Columns, ScaleColumns))
	}

	var (
		scaler Scaler
		err    error
	)
	switch art.Kind {
	case ScalerStandard, "":
		scaler, err = NewStandardScaler(art.Mean, art.Scale)
	case ScalerMinMax:
		scaler, err = NewMinMaxScaler(art.DataMin, art.DataMax, art.FeatureRange)
	default:
		err = fmt.Errorf("unsupported scaler kind: %s", art.Kind)
	}
	if err != nil {
		return nil, common.NewArtifactMissingError("scaler", path, err)
	}
	return scaler, nil
}

// LoadEncoder reads a label encoder artifact, or returns the default
// encoder when path is empty
func LoadEncoder(path string) (*LabelEncoder, error) {
	if path == "" {
		return NewDefaultLabelEncoder(), nil
	}

	var art EncoderArtifact
	if err := readArtifact(path, &art); err != nil {
		return nil, common.NewArtifactMissingError("encoder", path, err)
	}

	enc, err := NewLabelEncoder(art.Classes)
	if err != nil {
		return nil, common.NewArtifactMissingError("encoder", path, err)
	}
	return enc, nil
}

// LoadScorer reads a model artifact
func LoadScorer(path string) (Scorer, error) {
	var art ModelArtifact
	if err := readArtifact(path, &art); err != nil {
		return nil, common.NewArtifactMissingError("model", path, err)
	}

	var (
		scorer Scorer
		err    error
	)
	switch art.Kind {
	case ScorerLinear:
		scorer, err = NewLinearScorer(art.Intercept, art.Coefficients)
	case ScorerForest:
		scorer, err = NewForestScorer(art.Trees)
	default:
		err = fmt.Errorf("unsupported model kind: %q", art.Kind)
	}
	if err != nil {
		return nil, common.NewArtifactMissingError("model", path, err)
	}
	return scorer, nil
}

// readArtifact decodes a JSON or YAML file by extension, trying YAML for
// anything else since it accepts JSON documents too
func readArtifact(path string, out any) error {
	if path == "" {
		return fmt.Errorf("no path configured")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}

	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse JSON artifact: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse YAML artifact: %w", err)
		}
	}
	return nil
}
