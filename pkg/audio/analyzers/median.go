package analyzers

// reflectIndex maps i into [0, n) by half-sample symmetric reflection
// (d c b a | a b c d | d c b a)
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}

// medianFilterTime filters each frequency bin along time. m is frames x bins.
func medianFilterTime(m [][]float64, kernel int, stop func(int) bool) [][]float64 {
	frames := len(m)
	if frames == 0 {
		return nil
	}
	bins := len(m[0])
	half := kernel / 2
	out := make([][]float64, frames)
	for t := range out {
		out[t] = make([]float64, bins)
	}

	buf := make([]float64, kernel)
	for k := range bins {
		if stop(k) {
			return nil
		}
		for t := range frames {
			for j := range kernel {
				buf[j] = m[reflectIndex(t+j-half, frames)][k]
			}
			out[t][k] = quickMedian(buf)
		}
	}
	return out
}

// medianFilterFreq filters each frame along frequency. m is frames x bins.
func medianFilterFreq(m [][]float64, kernel int, stop func(int) bool) [][]float64 {
	frames := len(m)
	if frames == 0 {
		return nil
	}
	bins := len(m[0])
	half := kernel / 2
	out := make([][]float64, frames)

	buf := make([]float64, kernel)
	for t, row := range m {
		if stop(t) {
			return nil
		}
		out[t] = make([]float64, bins)
		for k := range bins {
			for j := range kernel {
				buf[j] = row[reflectIndex(k+j-half, bins)]
			}
			out[t][k] = quickMedian(buf)
		}
	}
	return out
}

// quickMedian returns the middle order statistic of an odd-length slice,
// reordering it in place
func quickMedian(a []float64) float64 {
	k := len(a) / 2
	lo, hi := 0, len(a)-1
	for lo < hi {
		pivot := a[(lo+hi)/2]
		i, j := lo, hi
		for i <= j {
			for a[i] < pivot {
				i++
			}
			for a[j] > pivot {
				j--
			}
			if i <= j {
				a[i], a[j] = a[j], a[i]
				i++
				j--
			}
		}
		switch {
		case k <= j:
			hi = j
		case k >= i:
			lo = i
		default:
			return a[k]
		}
	}
	return a[k]
}
