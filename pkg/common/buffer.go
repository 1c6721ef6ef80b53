package common

import (
	"math"
	"time"
)

// DefaultSampleRate is the canonical analysis rate
const DefaultSampleRate = 22050

// SampleBuffer is a mono PCM signal at a known rate. It is produced once by
// the decoder and must not be mutated afterwards.
type SampleBuffer struct {
	Samples    []float64 `json:"-"`
	SampleRate int       `json:"sample_rate"`
}

// NewSampleBuffer builds a buffer, replacing non-finite samples with silence
func NewSampleBuffer(samples []float64, sampleRate int) *SampleBuffer {
	for i, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			samples[i] = 0
		}
	}
	return &SampleBuffer{Samples: samples, SampleRate: sampleRate}
}

// Len returns the number of samples
func (b *SampleBuffer) Len() int {
	return len(b.Samples)
}

// Duration returns the signal length
func (b *SampleBuffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}

// DurationMs returns round(samples / rate * 1000)
func (b *SampleBuffer) DurationMs() int {
	if b.SampleRate <= 0 {
		return 0
	}
	return int(math.Round(float64(len(b.Samples)) / float64(b.SampleRate) * 1000))
}
