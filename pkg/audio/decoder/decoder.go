package decoder

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"github.com/RyanBlaney/song-popularity/pkg/common"
	"github.com/RyanBlaney/song-popularity/pkg/logging"
)

// Format is the container detected from the leading bytes of an upload
type Format string

const (
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatUnknown Format = "unknown"
)

// AllowedExtensions lists the upload extensions accepted at the service boundary
var AllowedExtensions = []string{".wav", ".mp3", ".m4a", ".flac", ".aac", ".ogg", ".wma"}

// Config holds decoder settings
type Config struct {
	TargetSampleRate int    `mapstructure:"sample_rate"`
	FFmpegPath       string `mapstructure:"ffmpeg_path"`
	FFprobePath      string `mapstructure:"ffprobe_path"`
	TempDir          string `mapstructure:"temp_dir"`
}

// DefaultConfig returns the canonical decoder settings
func DefaultConfig() Config {
	return Config{
		TargetSampleRate: common.DefaultSampleRate,
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
	}
}

// Decoder turns an opaque audio blob into a mono SampleBuffer at the target rate
type Decoder struct {
	config Config
	ffmpeg *ffmpegDecoder
	logger logging.Logger
}

// NewDecoder creates a decoder
func NewDecoder(cfg Config) *Decoder {
	if cfg.TargetSampleRate <= 0 {
		cfg.TargetSampleRate = common.DefaultSampleRate
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}

	return &Decoder{
		config: cfg,
		ffmpeg: &ffmpegDecoder{
			ffmpegPath:  cfg.FFmpegPath,
			ffprobePath: cfg.FFprobePath,
			tempDir:     cfg.TempDir,
		},
		logger: logging.WithFields(logging.Fields{
			"component":   "audio_decoder",
			"sample_rate": cfg.TargetSampleRate,
		}),
	}
}

// TargetSampleRate returns the rate every decoded buffer is resampled to
func (d *Decoder) TargetSampleRate() int {
	return d.config.TargetSampleRate
}

// Decode decodes data at the configured target rate
func (d *Decoder) Decode(ctx context.Context, data []byte) (*common.SampleBuffer, error) {
	return d.DecodeAt(ctx, data, d.config.TargetSampleRate)
}

// DecodeAt decodes data and resamples it to sampleRate
func (d *Decoder) DecodeAt(ctx context.Context, data []byte, sampleRate int) (*common.SampleBuffer, error) {
	if len(data) == 0 {
		return nil, common.NewDecodeError("empty audio payload", nil)
	}
	if sampleRate <= 0 {
		sampleRate = d.config.TargetSampleRate
	}

	format := DetectFormat(data)
	logger := d.logger.WithFields(logging.Fields{
		"function": "Decode",
		"format":   string(format),
		"bytes":    len(data),
	})

	var (
		samples    []float64
		sourceRate int
		err        error
	)

	switch format {
	case FormatWAV:
		samples, sourceRate, err = decodeWAV(data)
		if err != nil && isNonPCMWAV(err) {
			logger.Debug("WAV encoding not supported natively, using ffmpeg")
			samples, err = d.ffmpeg.decode(ctx, data, sampleRate)
			sourceRate = sampleRate
		}
	case FormatMP3:
		samples, sourceRate, err = decodeMP3(data)
	default:
		samples, err = d.ffmpeg.decode(ctx, data, sampleRate)
		sourceRate = sampleRate
	}
	if err != nil {
		logger.Debug("Decoding failed", logging.Fields{"error": err.Error()})
		return nil, err
	}

	if len(samples) == 0 {
		return nil, common.NewDecodeError("audio contains no decodable frames", nil)
	}

	if err := ctx.Err(); err != nil {
		return nil, common.FromContext(err, "decoding")
	}

	if sourceRate != sampleRate {
		samples = Resample(samples, sourceRate, sampleRate)
	}

	buf := common.NewSampleBuffer(samples, sampleRate)

	logger.Debug("Audio decoded", logging.Fields{
		"source_rate": sourceRate,
		"samples":     buf.Len(),
		"duration_ms": buf.DurationMs(),
	})

	return buf, nil
}

// DetectFormat sniffs the container from magic bytes
func DetectFormat(data []byte) Format {
	if len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")) {
		return FormatWAV
	}
	if len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")) {
		return FormatMP3
	}
	// MPEG audio frame sync; layer bits 00 belong to AAC ADTS, not MP3
	if len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 && (data[1]>>1)&0x03 != 0 {
		return FormatMP3
	}
	return FormatUnknown
}

// IsAllowedExtension reports whether filename carries an accepted audio extension
func IsAllowedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
