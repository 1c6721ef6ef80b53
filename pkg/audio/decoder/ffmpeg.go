package decoder

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/audio/transcode"

	"github.com/RyanBlaney/song-popularity/pkg/common"
)

// DefaultFFmpegTimeout bounds an ffmpeg run when the caller sets no deadline
const DefaultFFmpegTimeout = 60 * time.Second

// ffmpegGrace lets the caller's deadline fire before the transcoder kills
// ffmpeg, so an expired budget surfaces as a timeout rather than a decode error
const ffmpegGrace = 50 * time.Millisecond

// ffmpegDecoder hands containers without a native decoder to the transcoder.
// The upload is written to a scoped temp file which is always removed.
type ffmpegDecoder struct {
	ffmpegPath  string
	ffprobePath string
	tempDir     string
}

func (f *ffmpegDecoder) decode(ctx context.Context, data []byte, sampleRate int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}

	timeout := DefaultFFmpegTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline) + ffmpegGrace
		if timeout <= 0 {
			timeout = ffmpegGrace
		}
	}

	tc := transcode.NewDecoder(&transcode.DecoderConfig{
		TargetSampleRate:    sampleRate,
		TargetChannels:      1,
		OutputFormat:        "f64le",
		FFmpegPath:          f.ffmpegPath,
		FFprobePath:         f.ffprobePath,
		Timeout:             timeout,
		EnableNormalization: false,
	})
	if err := tc.ValidateConfig(); err != nil {
		return nil, common.NewDecodeError("unrecognized container and ffmpeg is not available", err)
	}

	tmp, err := os.CreateTemp(f.tempDir, "popularity-upload-*")
	if err != nil {
		return nil, common.NewDecodeError("creating temp file for decoding", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, common.NewDecodeError("writing temp file for decoding", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, common.NewDecodeError("closing temp file for decoding", err)
	}

	decoded, err := tc.DecodeFile(tmp.Name())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, contextError(ctxErr)
		}
		return nil, common.NewDecodeError("ffmpeg could not decode audio", err)
	}

	if len(decoded.PCM) == 0 {
		return nil, common.NewDecodeError("audio contains no decodable frames", nil)
	}
	return decoded.PCM, nil
}

// contextError reports an ended context as a timeout. The transcoder only
// honours its own deadline, so a cancelled context is caught before or after
// the ffmpeg run.
func contextError(err error) error {
	if errors.Is(err, context.Canceled) {
		return common.NewTimeoutError("decoding was cancelled", err)
	}
	return common.FromContext(err, "decoding")
}
