package audio

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"speech-emotion/wav"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeWAV(t *testing.T, samples []float64, sampleRate, channels int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, wav.EncodePCM16(&buf, samples, sampleRate, channels))
	return buf.Bytes()
}

func tone(freq, amplitude float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i%1000)/1000 - 0.5
	}
	return out
}

func TestTrackConstants(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 22050, SampleRate)
	assert.Equal(t, 66150, SamplesPerTrack)
}

func TestFixLength(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 1000, SamplesPerTrack - 1, SamplesPerTrack, SamplesPerTrack + 1, 200000} {
		in := ramp(n)
		out := FixLength(in, SamplesPerTrack)
		require.Len(t, out, SamplesPerTrack, "input length %d", n)

		kept := min(n, SamplesPerTrack)
		assert.Equal(t, in[:kept], out[:kept], "prefix for input length %d", n)
		for i := kept; i < SamplesPerTrack; i++ {
			if out[i] != 0 {
				t.Fatalf("input length %d: sample %d is %f, want zero padding", n, i, out[i])
			}
		}
	}
}

func TestFixLengthDoesNotAlias(t *testing.T) {
	t.Parallel()

	in := ramp(SamplesPerTrack)
	out := FixLength(in, SamplesPerTrack)
	out[0] = 42
	assert.NotEqual(t, 42.0, in[0])
}

func TestNormalizeSamplesExactLengthForAnyRateAndLength(t *testing.T) {
	t.Parallel()

	rates := []int{8000, 11025, 16000, 22050, 44100, 48000, 96000}
	for _, rate := range rates {
		for _, n := range []int{0, 1, 100, rate, 5 * rate} {
			w, err := NormalizeSamples(ramp(n), rate)
			require.NoError(t, err)
			assert.Equal(t, SamplesPerTrack, w.Len(), "rate=%d len=%d", rate, n)
			assert.Equal(t, SampleRate, w.SampleRate())
			assert.InDelta(t, DurationSeconds, w.Duration(), 1e-12)
		}
	}
}

func TestNormalizeSamplesIdentityAtTrackLength(t *testing.T) {
	t.Parallel()

	in := tone(220, 0.3, SampleRate, SamplesPerTrack)
	w, err := NormalizeSamples(in, SampleRate)
	require.NoError(t, err)
	assert.Equal(t, in, w.Samples())

	again, err := NormalizeSamples(w.Samples(), w.SampleRate())
	require.NoError(t, err)
	assert.Equal(t, w.Samples(), again.Samples())
}

func TestNormalizeSamplesPrefixAndPadding(t *testing.T) {
	t.Parallel()

	long := ramp(10 * SampleRate)
	w, err := NormalizeSamples(long, SampleRate)
	require.NoError(t, err)
	assert.Equal(t, long[:SamplesPerTrack], w.Samples())

	short := ramp(SampleRate)
	w, err = NormalizeSamples(short, SampleRate)
	require.NoError(t, err)
	got := w.Samples()
	assert.Equal(t, short, got[:len(short)])
	assert.Equal(t, make([]float64, SamplesPerTrack-len(short)), got[len(short):])
}

func TestNormalizeSamplesRejectsInvalidRate(t *testing.T) {
	t.Parallel()

	_, err := NormalizeSamples(ramp(10), 0)
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
}

func TestWaveformIsImmutable(t *testing.T) {
	t.Parallel()

	src := []float64{1, 2, 3}
	w := NewWaveform(src, 8000)
	src[0] = 9
	out := w.Samples()
	out[1] = 9
	assert.Equal(t, []float64{1, 2, 3}, w.Samples())
}

func TestDownmix(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []float64{0.5, 0, -0.25}, Downmix([]float64{1, 0, 0.5, -0.5, 0, -0.5}, 2))
	assert.Equal(t, []float64{1, 2}, Downmix([]float64{1, 2}, 1))
	assert.Equal(t, []float64{2}, Downmix([]float64{1, 2, 3}, 3))
}

func TestSilentWAVScenario(t *testing.T) {
	t.Parallel()

	data := encodeWAV(t, make([]float64, 44100), 44100, 1)

	w, src, err := NewNormalizer().NormalizeBytes(context.Background(), "silence.wav", data)
	require.NoError(t, err)

	assert.Equal(t, SamplesPerTrack, w.Len())
	assert.Equal(t, make([]float64, SamplesPerTrack), w.Samples())
	assert.Equal(t, FormatWAV, src.Format)
	assert.Equal(t, 44100, src.SampleRate)
	assert.Equal(t, 1, src.Channels)
	assert.Equal(t, 22050, src.ResampledLength)
	assert.Equal(t, SamplesPerTrack-22050, src.PaddedSamples)
	assert.False(t, src.Truncated)
	assert.InDelta(t, 1.0, src.Duration, 1e-9)
}

func TestLongStereoWAVIsTruncated(t *testing.T) {
	t.Parallel()

	frames := 10 * 44100
	interleaved := make([]float64, 2*frames)
	for i := 0; i < frames; i++ {
		interleaved[2*i] = 0.2
		interleaved[2*i+1] = 0.4
	}

	w, src, err := NewNormalizer().NormalizeBytes(context.Background(), "long.wav", encodeWAV(t, interleaved, 44100, 2))
	require.NoError(t, err)

	assert.Equal(t, SamplesPerTrack, w.Len())
	assert.True(t, src.Truncated)
	assert.Equal(t, 0, src.PaddedSamples)
	assert.Equal(t, 10*SampleRate, src.ResampledLength)
	assert.Equal(t, 2, src.Channels)

	samples := w.Samples()
	for _, i := range []int{1000, SamplesPerTrack / 2, SamplesPerTrack - 1} {
		assert.InDelta(t, 0.3, samples[i], 5e-3, "sample %d", i)
	}
}

func TestTenSecondClipKeepsOnlyFirstThreeSeconds(t *testing.T) {
	t.Parallel()

	head := tone(300, 0.25, SampleRate, SamplesPerTrack)
	tail := tone(1200, 0.9, SampleRate, 7*SampleRate)
	clip := append(append([]float64(nil), head...), tail...)

	w, src, err := NewNormalizer().NormalizeBytes(context.Background(), "clip.wav", encodeWAV(t, clip, SampleRate, 1))
	require.NoError(t, err)
	assert.True(t, src.Truncated)

	decodedHead, err := wav.DecodeBytes(encodeWAV(t, head, SampleRate, 1))
	require.NoError(t, err)
	assert.Equal(t, decodedHead.Samples, w.Samples())
}

func TestEmptyInputIsDecodeError(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(WithTempDir(t.TempDir()))

	_, _, err := n.NormalizeBytes(context.Background(), "empty.wav", nil)
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
	assert.ErrorIs(t, err, ErrEmptyInput)

	path := filepath.Join(t.TempDir(), "empty.mp3")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	_, _, err = n.NormalizeFile(context.Background(), path)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, _, err = n.NormalizeReader(context.Background(), "empty.ogg", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestZeroSampleWAVIsDecodeError(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(WithTempDir(t.TempDir()), WithConverter(nil), WithProber(nil))
	_, _, err := n.NormalizeBytes(context.Background(), "nothing.wav", encodeWAV(t, nil, 22050, 1))
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
}

func TestUnsupportedFormatIsDecodeError(t *testing.T) {
	t.Parallel()

	_, _, err := NewNormalizer().NormalizeBytes(context.Background(), "notes.txt", []byte("hello, world, not audio"))
	require.Error(t, err)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "notes.txt", de.Source)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), "notes.txt")
}

func TestCorruptWAVIsDecodeError(t *testing.T) {
	t.Parallel()

	data := encodeWAV(t, ramp(1000), 8000, 1)
	corrupt := append([]byte(nil), data[:12]...)
	corrupt = append(corrupt, bytes.Repeat([]byte{0xAB}, 64)...)

	n := NewNormalizer(WithTempDir(t.TempDir()), WithConverter(nil))
	_, _, err := n.NormalizeBytes(context.Background(), "broken.wav", corrupt)
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
}

func TestCompressedFormatsGoThroughConverter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	source := tone(440, 0.5, 48000, 48000/2)

	var convertedPath string
	converter := func(_ context.Context, in string, channels int) (string, error) {
		assert.Equal(t, 1, channels)
		assert.Equal(t, ".mp3", filepath.Ext(in))
		convertedPath = strings.TrimSuffix(in, filepath.Ext(in)) + "_pcm.wav"
		return convertedPath, wav.WriteWavFile(convertedPath, source, 48000, 1)
	}
	prober := func(context.Context, string) (wav.ProbeInfo, error) {
		return wav.ProbeInfo{FormatName: "mp3", CodecName: "mp3", SampleRate: 48000, Channels: 2, Duration: 0.5}, nil
	}

	n := NewNormalizer(WithTempDir(dir), WithConverter(converter), WithProber(prober))
	data := append([]byte("ID3"), bytes.Repeat([]byte{0}, 128)...)

	w, src, err := n.NormalizeBytes(context.Background(), "speech.mp3", data)
	require.NoError(t, err)

	assert.Equal(t, SamplesPerTrack, w.Len())
	assert.Equal(t, "speech.mp3", src.Name)
	assert.Equal(t, FormatMP3, src.Format)
	assert.Equal(t, "mp3", src.Codec)
	assert.Equal(t, 48000, src.SampleRate)
	assert.Equal(t, 2, src.Channels)
	assert.Equal(t, ResampledLength(len(source), 48000, SampleRate), src.ResampledLength)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staged and converted files must be removed")
	assert.NoFileExists(t, convertedPath)
}

func TestConverterFailureIsDecodeErrorAndCleansUp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	boom := errors.New("ffmpeg exploded")
	n := NewNormalizer(
		WithTempDir(dir),
		WithConverter(func(context.Context, string, int) (string, error) { return "", boom }),
		WithProber(nil),
	)

	_, _, err := n.NormalizeBytes(context.Background(), "clip.flac", []byte("fLaC\x00\x00\x00\x22garbage"))
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
	assert.ErrorIs(t, err, boom)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		head []byte
		want Format
	}{
		{"a.bin", []byte("RIFF\x24\x00\x00\x00WAVEfmt "), FormatWAV},
		{"a.bin", []byte("fLaC\x00\x00"), FormatFLAC},
		{"a.bin", []byte("OggS\x00\x02"), FormatOGG},
		{"a.bin", []byte("ID3\x04\x00"), FormatMP3},
		{"a.bin", []byte{0xFF, 0xFB, 0x90, 0x00}, FormatMP3},
		{"a.bin", []byte("\x00\x00\x00\x20ftypM4A "), FormatM4A},
		{"voice.M4A", []byte("????"), FormatM4A},
		{"voice.opus", []byte("????"), FormatOGG},
		{"voice.flac", []byte("RIFF\x24\x00\x00\x00WAVE"), FormatWAV},
	}
	for _, tc := range cases {
		got, err := DetectFormat(tc.name, tc.head)
		require.NoError(t, err, "%s %q", tc.name, tc.head)
		assert.Equal(t, tc.want, got, "%s %q", tc.name, tc.head)
	}

	_, err := DetectFormat("voice.aiff", []byte("FORM"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
