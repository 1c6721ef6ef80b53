package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/song-popularity/pkg/audio/extractors"
	"github.com/RyanBlaney/song-popularity/pkg/common"
)

// LoadFeaturesFromFile reads one or more structured feature records from a
// JSON or YAML file. A file may hold a single record or a list of them.
func LoadFeaturesFromFile(filePath string) ([]extractors.RawFeatures, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("features file does not exist: %s", filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open features file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read features file: %w", err)
	}

	switch filepath.Ext(filePath) {
	case ".json":
		return parseFeaturesJSON(data)
	default:
		return parseFeaturesYAML(data)
	}
}

// DecodeFeaturesJSON decodes a single record, rejecting unknown fields so a
// misspelt column is not silently scored as zero
func DecodeFeaturesJSON(r io.Reader) (*extractors.RawFeatures, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var raw extractors.RawFeatures
	if err := dec.Decode(&raw); err != nil {
		return nil, common.NewInvalidInputError("malformed feature record", err)
	}
	return &raw, nil
}

func parseFeaturesJSON(data []byte) ([]extractors.RawFeatures, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []extractors.RawFeatures
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, common.NewInvalidInputError("malformed feature records", err)
		}
		return records, nil
	}

	raw, err := DecodeFeaturesJSON(bytes.NewReader(trimmed))
	if err != nil {
		return nil, err
	}
	return []extractors.RawFeatures{*raw}, nil
}

func parseFeaturesYAML(data []byte) ([]extractors.RawFeatures, error) {
	var records []extractors.RawFeatures
	if err := yaml.Unmarshal(data, &records); err == nil {
		return records, nil
	}

	var raw extractors.RawFeatures
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, common.NewInvalidInputError("malformed feature record", err)
	}
	return []extractors.RawFeatures{raw}, nil
}
