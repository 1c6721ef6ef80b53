package decoder

// s16leToMono converts interleaved signed 16-bit little-endian PCM to mono
// float samples in [-1, 1]. Trailing partial frames are dropped.
func s16leToMono(buffer []byte, channels int) []float64 {
	if channels <= 0 {
		channels = 1
	}
	bytesPerFrame := 2 * channels
	frames := len(buffer) / bytesPerFrame
	samples := make([]float64, frames)

	for i := range frames {
		sum := 0.0
		for c := range channels {
			off := i*bytesPerFrame + c*2
			sample := int16(buffer[off]) | int16(buffer[off+1])<<8
			sum += float64(sample) / 32768.0
		}
		samples[i] = sum / float64(channels)
	}

	return samples
}
