package decoder

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/song-popularity/pkg/common"
)

func writeWAV(t *testing.T, channels [][]float64, sampleRate int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	numChans := len(channels)
	frames := len(channels[0])
	data := make([]int, 0, frames*numChans)
	for i := range frames {
		for c := range numChans {
			data = append(data, int(math.Round(channels[c][i]*32767)))
		}
	}

	enc := wav.NewEncoder(f, sampleRate, 16, numChans, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: numChans, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return raw
}

func sine(freq float64, seconds float64, sampleRate int, amp float64) []float64 {
	n := int(seconds * float64(sampleRate))
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"wav", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), FormatWAV},
		{"id3", []byte("ID3\x04\x00"), FormatMP3},
		{"mpeg frame sync", []byte{0xFF, 0xFB, 0x90, 0x00}, FormatMP3},
		{"adts is not mp3", []byte{0xFF, 0xF1, 0x50, 0x80}, FormatUnknown},
		{"flac", []byte("fLaC\x00\x00\x00\x22"), FormatUnknown},
		{"too short", []byte{0xFF}, FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.data))
		})
	}
}

func TestDecodeWAVAtTargetRate(t *testing.T) {
	tone := sine(440, 1, common.DefaultSampleRate, 0.5)
	raw := writeWAV(t, [][]float64{tone}, common.DefaultSampleRate)

	buf, err := NewDecoder(DefaultConfig()).Decode(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, common.DefaultSampleRate, buf.SampleRate)
	require.Equal(t, len(tone), buf.Len())
	for i := 0; i < len(tone); i += 997 {
		assert.InDelta(t, tone[i], buf.Samples[i], 1e-3)
	}
	assert.Equal(t, 1000, buf.DurationMs())
}

func TestDecodeWAVDownmixesStereo(t *testing.T) {
	left := make([]float64, 2048)
	right := make([]float64, 2048)
	for i := range left {
		left[i] = 0.5
		right[i] = -0.25
	}
	raw := writeWAV(t, [][]float64{left, right}, common.DefaultSampleRate)

	buf, err := NewDecoder(DefaultConfig()).Decode(context.Background(), raw)
	require.NoError(t, err)

	require.Equal(t, 2048, buf.Len())
	assert.InDelta(t, 0.125, buf.Samples[100], 1e-3)
}

func TestDecodeWAVResamples(t *testing.T) {
	tone := sine(440, 2, 44100, 0.8)
	raw := writeWAV(t, [][]float64{tone}, 44100)

	buf, err := NewDecoder(DefaultConfig()).Decode(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, common.DefaultSampleRate, buf.SampleRate)
	assert.Equal(t, 2*common.DefaultSampleRate, buf.Len())

	// passband tone keeps its amplitude away from the edges
	peak := 0.0
	for _, s := range buf.Samples[1000 : len(buf.Samples)-1000] {
		peak = math.Max(peak, math.Abs(s))
	}
	assert.InDelta(t, 0.8, peak, 0.05)
}

func TestDecodeRejectsEmptyPayload(t *testing.T) {
	_, err := NewDecoder(DefaultConfig()).Decode(context.Background(), nil)
	assert.ErrorIs(t, err, common.ErrDecode)
}

func TestDecodeUnknownContainerWithoutFFmpeg(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FFmpegPath = "ffmpeg-binary-that-does-not-exist"

	_, err := NewDecoder(cfg).Decode(context.Background(), []byte("definitely not audio at all"))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDecode)
}

func TestDecodeInvalidWAV(t *testing.T) {
	raw := []byte("RIFF\x04\x00\x00\x00WAVE")
	_, err := NewDecoder(DefaultConfig()).Decode(context.Background(), raw)
	assert.ErrorIs(t, err, common.ErrDecode)
}

func TestIsAllowedExtension(t *testing.T) {
	assert.True(t, IsAllowedExtension("song.mp3"))
	assert.True(t, IsAllowedExtension("Song.WAV"))
	assert.True(t, IsAllowedExtension("take.flac"))
	assert.False(t, IsAllowedExtension("notes.txt"))
	assert.False(t, IsAllowedExtension("noextension"))
}

func TestS16LEToMono(t *testing.T) {
	// frames: (32767, -32768) and (16384, 16384) plus a dangling byte
	pcm := []byte{0xFF, 0x7F, 0x00, 0x80, 0x00, 0x40, 0x00, 0x40, 0x01}
	got := s16leToMono(pcm, 2)

	require.Len(t, got, 2)
	assert.InDelta(t, -0.5/32768, got[0], 1e-9)
	assert.InDelta(t, 0.5, got[1], 1e-9)
}

func TestResampleIdentity(t *testing.T) {
	in := []float64{1, 2, 3}
	assert.Equal(t, in, Resample(in, 22050, 22050))
	assert.Empty(t, Resample(nil, 44100, 22050))
}

func TestResampleUpsampleInterpolates(t *testing.T) {
	out := Resample([]float64{0, 1, 2, 3}, 1, 2)
	require.Len(t, out, 8)
	assert.InDelta(t, 0.5, out[1], 1e-9)
	assert.InDelta(t, 3, out[7], 1e-9)
}
