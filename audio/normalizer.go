package audio

// Audio Normalization
//
// Every upload is turned into the same fixed-shape waveform before feature
// extraction:
//
// 1. Format detection: container sniffed from the leading bytes, extension as fallback
// 2. Decoding: WAV natively, MP3/M4A/FLAC/OGG transcoded to PCM WAV through ffmpeg
// 3. Downmix: multi-channel audio averaged to mono
// 4. Resampling: band-limited conversion to SampleRate
// 5. Length enforcement: the first SamplesPerTrack samples are kept and shorter
//    clips are right-padded with zeros
//
// Clips are cut from the start and padded at the end, never centred. The
// classifier was trained on exactly this layout.

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"speech-emotion/wav"
)

const (
	SampleRate      = 22050
	DurationSeconds = 3.0
	SamplesPerTrack = int(SampleRate * DurationSeconds)
)

// Waveform is an immutable mono signal.
type Waveform struct {
	samples    []float64
	sampleRate int
}

// NewWaveform copies samples into a Waveform.
func NewWaveform(samples []float64, sampleRate int) Waveform {
	return Waveform{samples: append([]float64(nil), samples...), sampleRate: sampleRate}
}

func (w Waveform) Len() int        { return len(w.samples) }
func (w Waveform) SampleRate() int { return w.sampleRate }

// Samples returns a copy of the signal.
func (w Waveform) Samples() []float64 {
	return append([]float64(nil), w.samples...)
}

// Duration is the signal length in seconds.
func (w Waveform) Duration() float64 {
	if w.sampleRate <= 0 {
		return 0
	}
	return float64(len(w.samples)) / float64(w.sampleRate)
}

// SourceInfo describes the decoded upload and what normalization did to it.
type SourceInfo struct {
	Name            string  `json:"name"`
	Format          Format  `json:"format"`
	Codec           string  `json:"codec,omitempty"`
	SampleRate      int     `json:"sampleRate"`
	Channels        int     `json:"channels"`
	Duration        float64 `json:"duration"`
	ResampledLength int     `json:"resampledLength"`
	Truncated       bool    `json:"truncated"`
	PaddedSamples   int     `json:"paddedSamples"`
}

// Converter transcodes inputPath into a PCM WAV file and returns its path.
type Converter func(ctx context.Context, inputPath string, channels int) (string, error)

// Prober reports native stream properties of a file.
type Prober func(ctx context.Context, path string) (wav.ProbeInfo, error)

// Normalizer decodes uploads into fixed-length waveforms. It holds no mutable
// state and is safe for concurrent use.
type Normalizer struct {
	tmpDir  string
	convert Converter
	probe   Prober
}

type Option func(*Normalizer)

// WithTempDir sets where byte uploads are staged before transcoding.
func WithTempDir(dir string) Option {
	return func(n *Normalizer) { n.tmpDir = dir }
}

func WithConverter(c Converter) Option {
	return func(n *Normalizer) { n.convert = c }
}

// WithProber sets the source inspector; nil disables probing.
func WithProber(p Prober) Option {
	return func(n *Normalizer) { n.probe = p }
}

// NewNormalizer returns a Normalizer backed by ffmpeg for compressed formats.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{
		tmpDir:  os.TempDir(),
		convert: wav.ConvertToWAV,
		probe:   wav.Probe,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NormalizeFile decodes the audio file at path.
func (n *Normalizer) NormalizeFile(ctx context.Context, path string) (Waveform, SourceInfo, error) {
	name := filepath.Base(path)

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return Waveform{}, SourceInfo{}, decodeError(name, "cannot open file", err)
	}
	defer f.Close()

	head := make([]byte, 16)
	read, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Waveform{}, SourceInfo{}, decodeError(name, "cannot read file", err)
	}
	if read == 0 {
		return Waveform{}, SourceInfo{}, decodeError(name, "", ErrEmptyInput)
	}

	format, err := DetectFormat(name, head[:read])
	if err != nil {
		return Waveform{}, SourceInfo{}, decodeError(name, "", err)
	}

	if format == FormatWAV {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return Waveform{}, SourceInfo{}, decodeError(name, "cannot read file", err)
		}
		info, nativeErr := wav.Decode(f)
		if nativeErr == nil {
			return n.finish(SourceInfo{Name: name, Format: format}, info)
		}
		// float and extensible WAV variants are left to ffmpeg
		info, err := n.transcode(ctx, path)
		if err != nil {
			return Waveform{}, SourceInfo{}, decodeError(name, "invalid WAV data", nativeErr)
		}
		return n.finish(n.describe(ctx, path, name, format), info)
	}

	info, err := n.transcode(ctx, path)
	if err != nil {
		return Waveform{}, SourceInfo{}, decodeError(name, fmt.Sprintf("cannot decode %s stream", format), err)
	}
	return n.finish(n.describe(ctx, path, name, format), info)
}

// NormalizeBytes decodes an in-memory upload. name supplies the extension hint.
// WAV is decoded in memory; other containers are staged to a temporary file
// that is removed before returning.
func (n *Normalizer) NormalizeBytes(ctx context.Context, name string, data []byte) (Waveform, SourceInfo, error) {
	if len(data) == 0 {
		return Waveform{}, SourceInfo{}, decodeError(name, "", ErrEmptyInput)
	}

	format, err := DetectFormat(name, data[:min(len(data), 16)])
	if err != nil {
		return Waveform{}, SourceInfo{}, decodeError(name, "", err)
	}

	if format == FormatWAV {
		if info, err := wav.DecodeBytes(data); err == nil {
			return n.finish(SourceInfo{Name: name, Format: format}, info)
		}
	}

	path, err := n.stage(format, data)
	if err != nil {
		return Waveform{}, SourceInfo{}, fmt.Errorf("failed to stage upload: %w", err)
	}
	defer os.Remove(path)

	w, src, err := n.NormalizeFile(ctx, path)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			de.Source = name
		}
		return Waveform{}, SourceInfo{}, err
	}
	src.Name = name
	return w, src, nil
}

// NormalizeReader reads r fully and decodes it.
func (n *Normalizer) NormalizeReader(ctx context.Context, name string, r io.Reader) (Waveform, SourceInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Waveform{}, SourceInfo{}, decodeError(name, "cannot read stream", err)
	}
	return n.NormalizeBytes(ctx, name, data)
}

func (n *Normalizer) stage(format Format, data []byte) (string, error) {
	if n.tmpDir != "" {
		if err := os.MkdirAll(n.tmpDir, 0o755); err != nil {
			return "", err
		}
	}
	f, err := os.CreateTemp(n.tmpDir, "upload-*."+string(format))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (n *Normalizer) transcode(ctx context.Context, path string) (*wav.Info, error) {
	if n.convert == nil {
		return nil, wav.ErrFFmpegUnavailable
	}
	converted, err := n.convert(ctx, path, 1)
	if err != nil {
		return nil, err
	}
	if converted != path {
		defer os.Remove(converted)
	}
	return wav.ReadWavInfo(converted)
}

// describe fills in native stream properties that transcoding to mono hides.
func (n *Normalizer) describe(ctx context.Context, path, name string, format Format) SourceInfo {
	src := SourceInfo{Name: name, Format: format}
	if n.probe == nil {
		return src
	}
	if probe, err := n.probe(ctx, path); err == nil {
		src.Codec = probe.CodecName
		src.SampleRate = probe.SampleRate
		src.Channels = probe.Channels
	}
	return src
}

func (n *Normalizer) finish(src SourceInfo, info *wav.Info) (Waveform, SourceInfo, error) {
	if info.Frames() == 0 {
		return Waveform{}, SourceInfo{}, decodeError(src.Name, "", ErrEmptyInput)
	}
	if src.SampleRate == 0 {
		src.SampleRate = info.SampleRate
	}
	if src.Channels == 0 {
		src.Channels = info.Channels
	}
	src.Duration = info.Duration()

	mono := Downmix(info.Samples, info.Channels)
	w, resampled, err := fit(mono, info.SampleRate)
	if err != nil {
		return Waveform{}, SourceInfo{}, decodeError(src.Name, "", err)
	}
	src.ResampledLength = resampled
	src.Truncated = resampled > SamplesPerTrack
	src.PaddedSamples = max(SamplesPerTrack-resampled, 0)
	return w, src, nil
}

// NormalizeSamples resamples a mono signal to SampleRate and enforces the
// fixed track length. Any length, including zero, is accepted.
func NormalizeSamples(samples []float64, sampleRate int) (Waveform, error) {
	w, _, err := fit(samples, sampleRate)
	if err != nil {
		return Waveform{}, &DecodeError{Err: err}
	}
	return w, nil
}

func fit(mono []float64, sampleRate int) (Waveform, int, error) {
	if sampleRate <= 0 {
		return Waveform{}, 0, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	resampledLen := ResampledLength(len(mono), sampleRate, SampleRate)
	resampled := Resample(mono, sampleRate, SampleRate, SamplesPerTrack)
	return Waveform{samples: FixLength(resampled, SamplesPerTrack), sampleRate: SampleRate}, resampledLen, nil
}

// FixLength returns a new slice of exactly n samples: a prefix of samples when
// it is longer, samples followed by zeros when it is shorter.
func FixLength(samples []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, samples)
	return out
}

// Downmix averages interleaved multi-channel samples into mono.
func Downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return append([]float64(nil), interleaved...)
	}
	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += interleaved[i*channels+ch]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}
