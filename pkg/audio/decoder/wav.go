package decoder

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-audio/wav"

	"github.com/RyanBlaney/song-popularity/pkg/common"
)

const wavFormatPCM = 1

var errNonPCMWAV = errors.New("non-PCM WAV encoding")

func isNonPCMWAV(err error) bool {
	return errors.Is(err, errNonPCMWAV)
}

// decodeWAV reads integer PCM WAV data and downmixes it to mono in [-1, 1]
func decodeWAV(data []byte) ([]float64, int, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, 0, common.NewDecodeError("invalid WAV file", nil)
	}
	if d.WavAudioFormat != wavFormatPCM {
		return nil, 0, common.NewDecodeError(
			fmt.Sprintf("unsupported WAV audio format %d", d.WavAudioFormat), errNonPCMWAV)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, common.NewDecodeError("could not read WAV PCM buffer", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, 0, common.NewDecodeError("WAV file contains no audio data", nil)
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(d.BitDepth)
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, 0, common.NewDecodeError(fmt.Sprintf("unsupported WAV bit depth %d", bitDepth), nil)
	}

	scale := float64(int64(1) << (bitDepth - 1))
	offset := 0.0
	if bitDepth == 8 {
		// 8-bit WAV is unsigned
		offset = 128
	}

	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := range frames {
		sum := 0.0
		for c := range channels {
			sum += (float64(buf.Data[i*channels+c]) - offset) / scale
		}
		samples[i] = sum / float64(channels)
	}

	return samples, buf.Format.SampleRate, nil
}
