package analyzers

import (
	"math"
)

const (
	melFSp       = 200.0 / 3
	melMinLogHz  = 1000.0
	melMinLogMel = melMinLogHz / melFSp
)

var melLogStep = math.Log(6.4) / 27.0

// hzToMel converts on the Slaney scale: linear below 1 kHz, logarithmic above
func hzToMel(hz float64) float64 {
	if hz >= melMinLogHz {
		return melMinLogMel + math.Log(hz/melMinLogHz)/melLogStep
	}
	return hz / melFSp
}

func melToHz(mel float64) float64 {
	if mel >= melMinLogMel {
		return melMinLogHz * math.Exp(melLogStep*(mel-melMinLogMel))
	}
	return melFSp * mel
}

// MelFilterBank builds Slaney-normalised triangular filters spanning 0 Hz to
// Nyquist. The result is bands x (windowSize/2+1).
func MelFilterBank(sampleRate, windowSize, bands int) [][]float64 {
	bins := windowSize/2 + 1
	fftFreqs := make([]float64, bins)
	for k := range bins {
		fftFreqs[k] = float64(k) * float64(sampleRate) / float64(windowSize)
	}

	minMel := hzToMel(0)
	maxMel := hzToMel(nyquist(sampleRate))
	melFreqs := make([]float64, bands+2)
	for i := range melFreqs {
		melFreqs[i] = melToHz(minMel + (maxMel-minMel)*float64(i)/float64(bands+1))
	}

	weights := make([][]float64, bands)
	for i := range bands {
		weights[i] = make([]float64, bins)
		lowerWidth := melFreqs[i+1] - melFreqs[i]
		upperWidth := melFreqs[i+2] - melFreqs[i+1]
		enorm := 2.0 / (melFreqs[i+2] - melFreqs[i])

		for k, f := range fftFreqs {
			lower := (f - melFreqs[i]) / lowerWidth
			upper := (melFreqs[i+2] - f) / upperWidth
			w := math.Max(0, math.Min(lower, upper))
			weights[i][k] = w * enorm
		}
	}
	return weights
}

// MelPower projects a magnitude spectrogram's power onto the filter bank.
// Output is frames x bands.
func MelPower(magnitude [][]float64, filters [][]float64) [][]float64 {
	out := make([][]float64, len(magnitude))
	var power []float64
	for t, frame := range magnitude {
		power = powerSpectrum(power, frame)
		row := make([]float64, len(filters))
		for b, filter := range filters {
			sum := 0.0
			for k, w := range filter {
				if w != 0 {
					sum += w * power[k]
				}
			}
			row[b] = sum
		}
		out[t] = row
	}
	return out
}

// PowerToDB converts power to decibels relative to ref, flooring at amin and
// clipping everything more than topDB below the global peak
func PowerToDB(power [][]float64, ref, amin, topDB float64) [][]float64 {
	out := make([][]float64, len(power))
	refDB := 10 * math.Log10(math.Max(amin, ref))
	peak := math.Inf(-1)

	for t, row := range power {
		out[t] = make([]float64, len(row))
		for b, p := range row {
			db := 10*math.Log10(math.Max(amin, p)) - refDB
			out[t][b] = db
			if db > peak {
				peak = db
			}
		}
	}

	if topDB > 0 {
		floor := peak - topDB
		for _, row := range out {
			for b := range row {
				if row[b] < floor {
					row[b] = floor
				}
			}
		}
	}
	return out
}

// MFCC applies an orthonormal DCT-II across the mel axis of a dB
// spectrogram and keeps the first n coefficients. Output is frames x n.
func MFCC(melDB [][]float64, n int) [][]float64 {
	if len(melDB) == 0 {
		return nil
	}
	bands := len(melDB[0])
	n = min(n, bands)

	basis := make([][]float64, n)
	for k := range n {
		scale := math.Sqrt(2.0 / float64(bands))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(bands))
		}
		basis[k] = make([]float64, bands)
		for m := range bands {
			basis[k][m] = scale * math.Cos(math.Pi*float64(k)*(2*float64(m)+1)/(2*float64(bands)))
		}
	}

	out := make([][]float64, len(melDB))
	for t, row := range melDB {
		coeffs := make([]float64, n)
		for k := range n {
			sum := 0.0
			for m, v := range row {
				sum += basis[k][m] * v
			}
			coeffs[k] = sum
		}
		out[t] = coeffs
	}
	return out
}
