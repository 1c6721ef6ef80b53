package decoder

import (
	"math"

	"github.com/mjibson/go-dsp/window"
)

const lowPassTaps = 101

// Resample converts samples from one rate to another. Downsampling applies a
// Blackman-windowed sinc low-pass at the new Nyquist before interpolating.
func Resample(samples []float64, from, to int) []float64 {
	if from <= 0 || to <= 0 || from == to || len(samples) == 0 {
		return samples
	}

	src := samples
	if to < from {
		src = lowPass(samples, 0.5*float64(to)/float64(from))
	}

	n := int(math.Round(float64(len(samples)) * float64(to) / float64(from)))
	if n < 1 {
		n = 1
	}

	ratio := float64(from) / float64(to)
	last := len(src) - 1
	out := make([]float64, n)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= last {
			out[i] = src[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = src[j] + (src[j+1]-src[j])*frac
	}

	return out
}

// lowPass filters x with a linear-phase FIR. cutoff is in cycles per sample.
func lowPass(x []float64, cutoff float64) []float64 {
	w := window.Blackman(lowPassTaps)
	h := make([]float64, lowPassTaps)
	mid := lowPassTaps / 2

	sum := 0.0
	for k := range h {
		t := float64(k - mid)
		if t == 0 {
			h[k] = 2 * cutoff
		} else {
			h[k] = math.Sin(2*math.Pi*cutoff*t) / (math.Pi * t)
		}
		h[k] *= w[k]
		sum += h[k]
	}
	for k := range h {
		h[k] /= sum
	}

	out := make([]float64, len(x))
	for i := range x {
		acc := 0.0
		for k := range h {
			j := i + mid - k
			if j < 0 || j >= len(x) {
				continue
			}
			acc += h[k] * x[j]
		}
		out[i] = acc
	}
	return out
}
