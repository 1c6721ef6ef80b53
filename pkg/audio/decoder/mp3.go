package decoder

import (
	"bytes"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/RyanBlaney/song-popularity/pkg/common"
)

// decodeMP3 decodes an MP3 stream. go-mp3 always yields s16le stereo at the
// stream's own rate.
func decodeMP3(data []byte) ([]float64, int, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, common.NewDecodeError("creating MP3 decoder", err)
	}

	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, 0, common.NewDecodeError("decoding MP3", err)
	}
	if len(pcm) == 0 {
		return nil, 0, common.NewDecodeError("MP3 file contains no audio data", nil)
	}

	return s16leToMono(pcm, 2), d.SampleRate(), nil
}
