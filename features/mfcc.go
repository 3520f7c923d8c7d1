package features

// MFCC Feature Extraction
//
// Converts a normalized waveform into the (time, coefficient) matrix the
// emotion classifier was trained on:
//
// 1. Framing: centred frames of FFTSize samples every HopLength samples, the
//    signal zero-padded by FFTSize/2 on both sides
// 2. Windowing: periodic Hann window over each frame
// 3. Power spectrum: squared magnitude of the real FFT (FFTSize/2+1 bins)
// 4. Mel projection: NumMelBands Slaney-normalised triangular filters, 0 Hz to Nyquist
// 5. Log compression: 10*log10(max(1e-10, mel)), floored at TopDB below the global peak
// 6. Cepstrum: orthonormal DCT-II over the mel axis, first NumCoefficients kept
//
// Every constant here is part of the model contract. Changing any of them
// shifts the feature distribution and silently invalidates predictions.

import (
	"fmt"
	"math"

	"speech-emotion/audio"

	"github.com/mjibson/go-dsp/fft"
)

const (
	NumCoefficients = 60
	FFTSize         = 2048
	HopLength       = 512
	NumMelBands     = 128
	TopDB           = 80.0
	powerFloor      = 1e-10

	// TimeFrames is the frame count for a SamplesPerTrack waveform.
	TimeFrames = 1 + audio.SamplesPerTrack/HopLength
)

// FrameCount is the number of centred frames produced for n samples.
func FrameCount(n int) int {
	return 1 + n/HopLength
}

// Matrix is a (frames, coefficients) feature matrix in row-major order.
type Matrix struct {
	frames int
	coeffs int
	data   []float64
}

// Shape returns (time_frames, coefficients).
func (m Matrix) Shape() (int, int) { return m.frames, m.coeffs }

func (m Matrix) At(frame, coeff int) float64 {
	return m.data[frame*m.coeffs+coeff]
}

// Row returns a copy of one frame's coefficients.
func (m Matrix) Row(frame int) []float64 {
	return append([]float64(nil), m.data[frame*m.coeffs:(frame+1)*m.coeffs]...)
}

// Tensor adds the single-example batch dimension and converts to float32.
func (m Matrix) Tensor() Tensor {
	data := make([]float32, len(m.data))
	for i, v := range m.data {
		data[i] = float32(v)
	}
	return Tensor{Shape: [3]int{1, m.frames, m.coeffs}, Data: data}
}

// Tensor is the classifier input: shape (1, time_frames, coefficients),
// float32, row-major.
type Tensor struct {
	Shape [3]int
	Data  []float32
}

// Nested returns the tensor as [batch][frame][coefficient] slices.
func (t Tensor) Nested() [][][]float32 {
	out := make([][][]float32, t.Shape[0])
	stride := t.Shape[1] * t.Shape[2]
	for b := range out {
		frames := make([][]float32, t.Shape[1])
		for f := range frames {
			offset := b*stride + f*t.Shape[2]
			frames[f] = t.Data[offset : offset+t.Shape[2]]
		}
		out[b] = frames
	}
	return out
}

// Extractor computes MFCC matrices. It only holds precomputed read-only
// tables and is safe for concurrent use.
type Extractor struct {
	window  []float64
	melBank []melFilter
	dct     [][]float64
}

func NewExtractor() *Extractor {
	window := make([]float64, FFTSize)
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(FFTSize))
	}
	return &Extractor{
		window:  window,
		melBank: newMelBank(audio.SampleRate, FFTSize, NumMelBands, 0, audio.SampleRate/2.0),
		dct:     dctMatrix(NumCoefficients, NumMelBands),
	}
}

// Extract computes the (TimeFrames, NumCoefficients) MFCC matrix of w. The
// waveform must be exactly SamplesPerTrack finite samples at SampleRate.
func (e *Extractor) Extract(w audio.Waveform) (Matrix, error) {
	if w.SampleRate() != audio.SampleRate {
		return Matrix{}, &ExtractionError{Reason: fmt.Sprintf("waveform sample rate is %d Hz, want %d Hz", w.SampleRate(), audio.SampleRate)}
	}
	if w.Len() != audio.SamplesPerTrack {
		return Matrix{}, &ExtractionError{Reason: fmt.Sprintf("waveform has %d samples, want %d", w.Len(), audio.SamplesPerTrack)}
	}

	samples := w.Samples()
	for i, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return Matrix{}, &ExtractionError{Reason: fmt.Sprintf("sample %d is not finite", i)}
		}
	}

	logMel := e.logMelSpectrogram(samples)

	frames := len(logMel)
	data := make([]float64, frames*NumCoefficients)
	for t, bands := range logMel {
		for c, basis := range e.dct {
			var sum float64
			for m, v := range bands {
				sum += basis[m] * v
			}
			data[t*NumCoefficients+c] = sum
		}
	}

	return Matrix{frames: frames, coeffs: NumCoefficients, data: data}, nil
}

// ExtractTensor is Extract followed by Tensor.
func (e *Extractor) ExtractTensor(w audio.Waveform) (Tensor, error) {
	m, err := e.Extract(w)
	if err != nil {
		return Tensor{}, err
	}
	return m.Tensor(), nil
}

// logMelSpectrogram returns [frame][band] decibel values.
func (e *Extractor) logMelSpectrogram(samples []float64) [][]float64 {
	padded := make([]float64, len(samples)+FFTSize)
	copy(padded[FFTSize/2:], samples)

	frames := FrameCount(len(samples))
	bins := FFTSize/2 + 1
	frame := make([]float64, FFTSize)
	power := make([]float64, bins)

	out := make([][]float64, frames)
	peak := math.Inf(-1)
	for t := 0; t < frames; t++ {
		offset := t * HopLength
		for i := range frame {
			frame[i] = padded[offset+i] * e.window[i]
		}

		spectrum := fft.FFTReal(frame)
		for k := 0; k < bins; k++ {
			re, im := real(spectrum[k]), imag(spectrum[k])
			power[k] = re*re + im*im
		}

		bands := make([]float64, len(e.melBank))
		for m, filter := range e.melBank {
			bands[m] = 10 * math.Log10(math.Max(powerFloor, filter.apply(power)))
			peak = math.Max(peak, bands[m])
		}
		out[t] = bands
	}

	floor := peak - TopDB
	for _, bands := range out {
		for m, v := range bands {
			if v < floor {
				bands[m] = floor
			}
		}
	}
	return out
}
