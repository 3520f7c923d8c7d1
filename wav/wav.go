package wav

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
	ywav "github.com/youpy/go-wav"
)

// ErrInvalidWAV is returned when the stream is not RIFF/WAVE PCM with at least one sample.
var ErrInvalidWAV = errors.New("not a valid PCM WAV stream")

// Info is a decoded WAV stream. Samples are interleaved and scaled to [-1, 1).
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Samples    []float64
}

// Frames returns the number of per-channel sample frames.
func (i *Info) Frames() int {
	if i.Channels <= 0 {
		return 0
	}
	return len(i.Samples) / i.Channels
}

// Duration returns the stream length in seconds.
func (i *Info) Duration() float64 {
	if i.SampleRate <= 0 {
		return 0
	}
	return float64(i.Frames()) / float64(i.SampleRate)
}

// Decode reads a complete integer PCM WAV stream.
func Decode(r io.ReadSeeker) (*Info, error) {
	dec := gowav.NewDecoder(r)
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}
		return nil, ErrInvalidWAV
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels <= 0 || len(buf.Data) == 0 {
		return nil, ErrInvalidWAV
	}

	bitDepth := int(dec.BitDepth)
	if buf.SourceBitDepth > 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth < 8 || bitDepth > 32 {
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, bitDepth)
	}

	return &Info{
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
		BitDepth:   bitDepth,
		Samples:    intToFloat(buf, bitDepth),
	}, nil
}

// DecodeBytes decodes an in-memory WAV file.
func DecodeBytes(data []byte) (*Info, error) {
	return Decode(bytes.NewReader(data))
}

// ReadWavInfo decodes the WAV file at path.
func ReadWavInfo(path string) (*Info, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open wav file: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// 8-bit WAV is unsigned; every other depth is signed two's complement.
func intToFloat(buf *audio.IntBuffer, bitDepth int) []float64 {
	data := buf.Data
	out := make([]float64, len(data))
	if bitDepth == 8 {
		for i, v := range data {
			out[i] = float64(v-128) / 128.0
		}
		return out
	}

	scale := math.Ldexp(1, bitDepth-1)
	for i, v := range data {
		out[i] = float64(v) / scale
	}
	return out
}

// EncodePCM16 writes interleaved samples in [-1, 1] as a 16-bit PCM WAV file.
// Mono and stereo are supported.
func EncodePCM16(w io.Writer, samples []float64, sampleRate, channels int) error {
	if channels != 1 && channels != 2 {
		return fmt.Errorf("unsupported channel count %d", channels)
	}
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if len(samples)%channels != 0 {
		return fmt.Errorf("sample count %d is not a multiple of %d channels", len(samples), channels)
	}

	frames := len(samples) / channels
	out := make([]ywav.Sample, frames)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			out[i].Values[ch] = toPCM16(samples[i*channels+ch])
		}
	}

	writer := ywav.NewWriter(w, uint32(frames), uint16(channels), uint32(sampleRate), 16)
	if err := writer.WriteSamples(out); err != nil {
		return fmt.Errorf("failed to write wav samples: %w", err)
	}
	return nil
}

// WriteWavFile encodes samples into a 16-bit WAV file at path.
func WriteWavFile(path string, samples []float64, sampleRate, channels int) error {
	var buf bytes.Buffer
	if err := EncodePCM16(&buf, samples, sampleRate, channels); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write wav file: %w", err)
	}
	return nil
}

func toPCM16(v float64) int {
	v = math.Max(-1, math.Min(1, v))
	s := int(math.Round(v * 32767))
	return s
}
