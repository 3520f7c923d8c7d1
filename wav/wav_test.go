package wav

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineWave(freq float64, sampleRate, frames int) []float64 {
	out := make([]float64, frames)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func TestEncodeDecodeMono(t *testing.T) {
	t.Parallel()

	samples := sineWave(440, 16000, 1600)

	var buf bytes.Buffer
	require.NoError(t, EncodePCM16(&buf, samples, 16000, 1))

	info, err := DecodeBytes(buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, 16000, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, 16, info.BitDepth)
	require.Len(t, info.Samples, len(samples))
	assert.InDelta(t, 0.1, info.Duration(), 1e-9)

	for i := range samples {
		if math.Abs(samples[i]-info.Samples[i]) > 1e-4 {
			t.Fatalf("sample %d: got %f want %f", i, info.Samples[i], samples[i])
		}
	}
}

func TestEncodeDecodeStereoInterleaved(t *testing.T) {
	t.Parallel()

	frames := 800
	interleaved := make([]float64, frames*2)
	for i := 0; i < frames; i++ {
		interleaved[2*i] = 0.25
		interleaved[2*i+1] = -0.25
	}

	var buf bytes.Buffer
	require.NoError(t, EncodePCM16(&buf, interleaved, 44100, 2))

	info, err := DecodeBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 2, info.Channels)
	assert.Equal(t, frames, info.Frames())
	assert.InDelta(t, 0.25, info.Samples[0], 1e-4)
	assert.InDelta(t, -0.25, info.Samples[1], 1e-4)
}

func TestEncodeRejectsBadLayout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	assert.Error(t, EncodePCM16(&buf, make([]float64, 3), 8000, 2))
	assert.Error(t, EncodePCM16(&buf, make([]float64, 4), 8000, 6))
	assert.Error(t, EncodePCM16(&buf, make([]float64, 4), 0, 1))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := DecodeBytes([]byte("definitely not a riff header, just text"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidWAV)

	_, err = DecodeBytes(nil)
	require.Error(t, err)
}

func TestDecodeRejectsZeroLengthStream(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, EncodePCM16(&buf, nil, 22050, 1))

	_, err := DecodeBytes(buf.Bytes())
	require.Error(t, err)
}

func TestWriteAndReadWavFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tone.wav")
	require.NoError(t, WriteWavFile(path, sineWave(220, 8000, 8000), 8000, 1))

	info, err := ReadWavInfo(path)
	require.NoError(t, err)
	assert.Equal(t, 8000, info.SampleRate)
	assert.Equal(t, 8000, info.Frames())
}

func TestIntToFloatScaling(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []float64{-1, 0, 0.5}, intToFloat(&audio.IntBuffer{Data: []int{-32768, 0, 16384}}, 16))
	assert.Equal(t, []float64{-1, 0, 0.5}, intToFloat(&audio.IntBuffer{Data: []int{0, 128, 192}}, 8))
}

func TestParseProbeOutput(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"streams": [
			{"codec_type": "video", "codec_name": "mjpeg"},
			{"codec_type": "audio", "codec_name": "mp3", "sample_rate": "44100", "channels": 2}
		],
		"format": {"format_name": "mp3", "duration": "12.500000"}
	}`)

	info, err := parseProbeOutput(raw)
	require.NoError(t, err)
	assert.Equal(t, ProbeInfo{FormatName: "mp3", CodecName: "mp3", Duration: 12.5, SampleRate: 44100, Channels: 2}, info)

	_, err = parseProbeOutput([]byte(`{"streams": [], "format": {}}`))
	assert.Error(t, err)
}
