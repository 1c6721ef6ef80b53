package model

import (
	"fmt"
	"math"
)

// ScaleColumns are the columns the scaler was fitted on, in fitting order
var ScaleColumns = []string{
	"duration_ms", "danceability", "loudness", "speechiness",
	"acousticness", "instrumentalness", "liveness", "valence", "tempo",
}

// Scaler kinds
const (
	ScalerStandard = "standard"
	ScalerMinMax   = "minmax"
)

// Scaler rescales the ScaleColumns values of one record
type Scaler interface {
	Transform(values []float64) ([]float64, error)
}

// StandardScaler applies (x - mean) / scale per column
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// NewStandardScaler validates the parameter lengths. A zero scale is
// treated as 1, matching how constant columns were fitted.
func NewStandardScaler(mean, scale []float64) (*StandardScaler, error) {
	if len(mean) != len(ScaleColumns) || len(scale) != len(ScaleColumns) {
		return nil, fmt.Errorf("standard scaler needs %d means and scales, got %d and %d",
			len(ScaleColumns), len(mean), len(scale))
	}

	s := &StandardScaler{
		Mean:  append([]float64(nil), mean...),
		Scale: append([]float64(nil), scale...),
	}
	for i, v := range s.Scale {
		if v == 0 || math.IsNaN(v) {
			s.Scale[i] = 1
		}
	}
	return s, nil
}

func (s *StandardScaler) Transform(values []float64) ([]float64, error) {
	if len(values) != len(s.Mean) {
		return nil, fmt.Errorf("scaler expects %d values, got %d", len(s.Mean), len(values))
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - s.Mean[i]) / s.Scale[i]
	}
	return out, nil
}

// MinMaxScaler maps [DataMin, DataMax] per column onto [Low, High]
type MinMaxScaler struct {
	DataMin []float64
	DataMax []float64
	Low     float64
	High    float64
}

// NewMinMaxScaler validates the parameter lengths; an empty feature range
// defaults to [0, 1]
func NewMinMaxScaler(dataMin, dataMax []float64, featureRange []float64) (*MinMaxScaler, error) {
	if len(dataMin) != len(ScaleColumns) || len(dataMax) != len(ScaleColumns) {
		return nil, fmt.Errorf("minmax scaler needs %d minima and maxima, got %d and %d",
			len(ScaleColumns), len(dataMin), len(dataMax))
	}

	lo, hi := 0.0, 1.0
	switch len(featureRange) {
	case 0:
	case 2:
		lo, hi = featureRange[0], featureRange[1]
		if lo >= hi {
			return nil, fmt.Errorf("invalid feature range [%v, %v]", lo, hi)
		}
	default:
		return nil, fmt.Errorf("feature range needs two values, got %d", len(featureRange))
	}

	return &MinMaxScaler{
		DataMin: append([]float64(nil), dataMin...),
		DataMax: append([]float64(nil), dataMax...),
		Low:     lo,
		High:    hi,
	}, nil
}

func (s *MinMaxScaler) Transform(values []float64) ([]float64, error) {
	if len(values) != len(s.DataMin) {
		return nil, fmt.Errorf("scaler expects %d values, got %d", len(s.DataMin), len(values))
	}
	out := make([]float64, len(values))
	for i, v := range values {
		span := s.DataMax[i] - s.DataMin[i]
		if span == 0 {
			span = 1
		}
		out[i] = (v-s.DataMin[i])/span*(s.High-s.Low) + s.Low
	}
	return out, nil
}
